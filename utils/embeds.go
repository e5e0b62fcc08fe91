package utils

import (
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
)

// CreateBrandedEmbed creates a basic embed with bot branding.
func CreateBrandedEmbed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Pack Vault",
		},
	}
}

// ErrorEmbed is the standard red error embed.
func ErrorEmbed(description string) *discordgo.MessageEmbed {
	return CreateBrandedEmbed("Error", description, ErrorColor)
}

// ExpiredEmbed renders a timed-out session notice.
func ExpiredEmbed(title string) *discordgo.MessageEmbed {
	return CreateBrandedEmbed(title, "⏰ This session timed out. Run the command again to continue.", WarnColor)
}

// CancelledEmbed renders a cancelled session notice.
func CancelledEmbed(title string) *discordgo.MessageEmbed {
	return CreateBrandedEmbed(title, "Cancelled. Nothing was changed.", WarnColor)
}

// FormatCoins formats a coin amount with thousands separators.
func FormatCoins(amount int64) string {
	return FormatNumber(amount)
}

// FormatNumber adds commas for thousands.
func FormatNumber(num int64) string {
	str := strconv.FormatInt(num, 10)
	neg := false
	if len(str) > 0 && str[0] == '-' {
		neg = true
		str = str[1:]
	}
	if len(str) <= 3 {
		if neg {
			return "-" + str
		}
		return str
	}

	var out []byte
	for i, d := range []byte(str) {
		if i > 0 && (len(str)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, d)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
