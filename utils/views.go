package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"pvb-go/session"
)

// Component builders for session views. Every custom id is built through
// the session codec so the router can always parse its way back.

// PaginationRow builds the prev/info/next row for a session's list view.
func PaginationRow(prefix, sessionID string, view session.PagedView) discordgo.MessageComponent {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				CustomID: session.MustCustomID(prefix, sessionID, "prev", ""),
				Label:    "Previous",
				Style:    discordgo.SecondaryButton,
				Disabled: view.Page <= 0,
			},
			discordgo.Button{
				CustomID: session.MustCustomID(prefix, sessionID, "pageinfo", ""),
				Label:    fmt.Sprintf("%d/%d", view.Page+1, view.TotalPages),
				Style:    discordgo.SecondaryButton,
				Disabled: true,
			},
			discordgo.Button{
				CustomID: session.MustCustomID(prefix, sessionID, "next", ""),
				Label:    "Next",
				Style:    discordgo.SecondaryButton,
				Disabled: view.Page >= view.TotalPages-1,
			},
		},
	}
}

// SelectOption is one entry of a session select menu.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// SelectRow builds the item select menu for the current page.
func SelectRow(prefix, sessionID, placeholder string, options []SelectOption) discordgo.MessageComponent {
	opts := make([]discordgo.SelectMenuOption, 0, len(options))
	for _, o := range options {
		opts = append(opts, discordgo.SelectMenuOption{
			Label:       truncate(o.Label, 100),
			Value:       o.Value,
			Description: truncate(o.Description, 100),
		})
	}
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    session.MustCustomID(prefix, sessionID, "select", ""),
				Placeholder: placeholder,
				Options:     opts,
			},
		},
	}
}

// ControlRow builds the filter/cancel row, with an optional bulk button.
func ControlRow(prefix, sessionID, bulkLabel string) discordgo.MessageComponent {
	buttons := []discordgo.MessageComponent{
		discordgo.Button{
			CustomID: session.MustCustomID(prefix, sessionID, "filter", ""),
			Label:    "Filter",
			Style:    discordgo.PrimaryButton,
			Emoji:    &discordgo.ComponentEmoji{Name: "🔍"},
		},
	}
	if bulkLabel != "" {
		buttons = append(buttons, discordgo.Button{
			CustomID: session.MustCustomID(prefix, sessionID, "bulk", ""),
			Label:    bulkLabel,
			Style:    discordgo.SuccessButton,
		})
	}
	buttons = append(buttons, discordgo.Button{
		CustomID: session.MustCustomID(prefix, sessionID, "cancel", ""),
		Label:    "Cancel",
		Style:    discordgo.DangerButton,
	})
	return discordgo.ActionsRow{Components: buttons}
}

// ConfirmRow builds the confirm/cancel row shown before a submission.
func ConfirmRow(prefix, sessionID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					CustomID: session.MustCustomID(prefix, sessionID, "confirm", ""),
					Label:    "Confirm",
					Style:    discordgo.SuccessButton,
					Emoji:    &discordgo.ComponentEmoji{Name: "✅"},
				},
				discordgo.Button{
					CustomID: session.MustCustomID(prefix, sessionID, "cancel", ""),
					Label:    "Cancel",
					Style:    discordgo.DangerButton,
					Emoji:    &discordgo.ComponentEmoji{Name: "❌"},
				},
			},
		},
	}
}

// QuantityModal builds the quantity input modal for ConfirmModal flows.
func QuantityModal(prefix, sessionID, title string, bound int) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: session.MustCustomID(prefix, sessionID, "qty", ""),
			Title:    truncate(title, 45),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    "quantity",
							Label:       fmt.Sprintf("Quantity (1-%d)", bound),
							Style:       discordgo.TextInputShort,
							Placeholder: "1",
							Required:    true,
							MaxLength:   6,
						},
					},
				},
			},
		},
	}
}

// FilterModal builds the search text modal.
func FilterModal(prefix, sessionID string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: session.MustCustomID(prefix, sessionID, "search", ""),
			Title:    "Filter",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    "query",
							Label:       "Search (empty to clear)",
							Style:       discordgo.TextInputShort,
							Placeholder: "name, rarity, type...",
							Required:    false,
							MaxLength:   60,
						},
					},
				},
			},
		},
	}
}

// DisabledComponents returns a copy of rows with every button and menu
// disabled, for terminal renders.
func DisabledComponents(rows []discordgo.MessageComponent) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		ar, ok := row.(discordgo.ActionsRow)
		if !ok {
			out = append(out, row)
			continue
		}
		comps := make([]discordgo.MessageComponent, 0, len(ar.Components))
		for _, comp := range ar.Components {
			switch c := comp.(type) {
			case discordgo.Button:
				c.Disabled = true
				comps = append(comps, c)
			case discordgo.SelectMenu:
				c.Disabled = true
				comps = append(comps, c)
			default:
				comps = append(comps, comp)
			}
		}
		out = append(out, discordgo.ActionsRow{Components: comps})
	}
	return out
}

// truncate caps s at max characters. Labels start with emoji, so the cut
// must land on a rune boundary, not a byte offset.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// Discord response helpers. API calls are bounded and edits retried with
// fallbacks: an interaction token that died mid-session should degrade to
// a followup or channel message, not a stuck handler.

// SendInteractionResponse sends the initial response with embed and
// components.
func SendInteractionResponse(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// UpdateComponentInteraction answers a component event by rewriting the
// message it came from.
func UpdateComponentInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	if components == nil {
		// nil would be omitted from the payload and leave the old
		// components live; an empty slice strips them.
		components = []discordgo.MessageComponent{}
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
}

// AcknowledgeComponentInteraction acknowledges without changing the
// message; used for silently dropped events.
func AcknowledgeComponentInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
}

// EphemeralReply sends a private notice to the event's actor.
func EphemeralReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// TryEphemeralFollowup sends a small ephemeral notice after the initial
// response; errors are returned but usually ignorable.
func TryEphemeralFollowup(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	params := &discordgo.WebhookParams{Content: content, Flags: discordgo.MessageFlagsEphemeral}
	_, err := s.FollowupMessageCreate(i.Interaction, true, params)
	return err
}

// EditOriginalInteraction edits the original interaction response. Used by
// expiry, which holds no live component token.
func EditOriginalInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	edit := &discordgo.WebhookEdit{
		Embeds:     &[]*discordgo.MessageEmbed{embed},
		Components: &components,
	}
	_, err := s.InteractionResponseEdit(i.Interaction, edit)
	return err
}

// EditOriginalWithRetry retries EditOriginalInteraction with backoff, then
// falls back to a plain channel message. Expiry edits race the token's own
// lifetime, so a retryable failure is worth a second attempt.
func EditOriginalWithRetry(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, maxRetries int) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(50*attempt*attempt) * time.Millisecond
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
			time.Sleep(backoff)
		}
		lastErr = EditOriginalInteraction(s, i, embed, components)
		if lastErr == nil {
			return nil
		}
		if isNonRetryableError(lastErr) {
			break
		}
	}
	if i.ChannelID != "" {
		if err := sendDirectChannelMessage(s, i.ChannelID, embed, components); err == nil {
			return nil
		}
	}
	return fmt.Errorf("interaction edit failed with all fallbacks: %w", lastErr)
}

func sendDirectChannelMessage(s *discordgo.Session, channelID string, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		})
		select {
		case resultCh <- err:
		default:
		}
	}()

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isNonRetryableError checks if an error should not be retried.
func isNonRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Unknown Webhook") ||
		strings.Contains(msg, "\"code\": 10015") ||
		strings.Contains(msg, "Unknown interaction") ||
		strings.Contains(msg, "400")
}
