// Package models holds the economy API's entity types as the bot sees
// them. The backend owns the canonical data; these are wire payloads plus
// the small amount of behavior the session engine needs from them.
package models

import (
	"fmt"
	"strings"
)

// Rarity tiers, lowest to highest.
const (
	RarityCommon    = "common"
	RarityUncommon  = "uncommon"
	RarityRare      = "rare"
	RarityEpic      = "epic"
	RarityLegendary = "legendary"
)

// RarityEmoji maps a rarity tier to its display emoji.
func RarityEmoji(rarity string) string {
	switch strings.ToLower(rarity) {
	case RarityUncommon:
		return "🟢"
	case RarityRare:
		return "🔵"
	case RarityEpic:
		return "🟣"
	case RarityLegendary:
		return "🟡"
	default:
		return "⚪"
	}
}

// Card is one collectible card in a user's inventory or dex.
type Card struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	DexNo    int      `json:"dex_no"`
	Rarity   string   `json:"rarity"`
	Types    []string `json:"types"`
	Count    int      `json:"count"`
	Sealed   bool     `json:"sealed"`
	Featured bool     `json:"featured"`
}

func (c Card) ItemID() string { return c.ID }

func (c Card) FilterFields() []string {
	fields := []string{c.Name, c.Rarity, fmt.Sprintf("#%d", c.DexNo)}
	return append(fields, c.Types...)
}

// Label is the card's one-line menu label.
func (c Card) Label() string {
	return fmt.Sprintf("%s #%03d %s", RarityEmoji(c.Rarity), c.DexNo, c.Name)
}

// DuplicateGroup is one card the user owns more than once; Extras is how
// many copies can be sold while keeping one.
type DuplicateGroup struct {
	Card      Card  `json:"card"`
	Extras    int   `json:"extras"`
	UnitPrice int64 `json:"unit_price"`
}

func (d DuplicateGroup) ItemID() string { return d.Card.ID }

func (d DuplicateGroup) FilterFields() []string { return d.Card.FilterFields() }

func (d DuplicateGroup) Label() string {
	return fmt.Sprintf("%s ×%d @ %d", d.Card.Label(), d.Extras, d.UnitPrice)
}

// Pack is a purchasable or sealed card pack.
type Pack struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Series    string `json:"series"`
	CardCount int    `json:"card_count"`
	Price     int64  `json:"price"`
	Owned     int    `json:"owned"`
}

func (p Pack) ItemID() string { return p.ID }

func (p Pack) FilterFields() []string { return []string{p.Name, p.Series} }

func (p Pack) Label() string {
	return fmt.Sprintf("🎴 %s (%s) — %d cards", p.Name, p.Series, p.CardCount)
}

// ShopItem is a non-pack shop listing (currency, boosts, cosmetics).
type ShopItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    int64  `json:"price"`
	Stock    int    `json:"stock"`
}

func (s ShopItem) ItemID() string { return s.ID }

func (s ShopItem) FilterFields() []string { return []string{s.Name, s.Category} }

func (s ShopItem) Label() string {
	return fmt.Sprintf("%s [%s] — %d", s.Name, s.Category, s.Price)
}

// Challenge is a proposal-style flow: one user challenges another and the
// counterpart accepts or declines inside the proposal window.
type Challenge struct {
	ID           string `json:"id"`
	ChallengerID string `json:"challenger_id"`
	OpponentID   string `json:"opponent_id"`
	Wager        int64  `json:"wager"`
	Status       string `json:"status"`
}

// Challenge statuses as the backend reports them.
const (
	ChallengePending   = "pending"
	ChallengeAccepted  = "accepted"
	ChallengeDeclined  = "declined"
	ChallengeCancelled = "cancelled"
)
