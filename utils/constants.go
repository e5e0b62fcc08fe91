package utils

import "time"

// General configuration
const (
	BotColor     = 0x2EB67D
	ErrorColor   = 0xFF0000
	WarnColor    = 0xFFAA00
	SuccessColor = 0x00FF00

	CoinEmoji = "🪙"
)

// Session windows. The hard window sits under Discord's 15-minute
// interaction token lifetime so the final edit still has a valid token.
const (
	DefaultIdleTimeout  = 3 * time.Minute
	DefaultHardTimeout  = 14 * time.Minute
	DefaultPageSize     = 25 // Discord select menus cap at 25 options
	ChallengeWindow     = 2 * time.Minute
)
