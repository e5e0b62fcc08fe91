package cogs

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"pvb-go/backend"
	"pvb-go/models"
	"pvb-go/session"
	"pvb-go/utils"
)

// SellDuplicates implements /sellduplicates: browse duplicate cards and
// sell one (quantity modal bounded by spare copies) or everything at once.
// The bulk path is a single batch call: either the whole sale lands or
// none of it does.
type SellDuplicates struct {
	*browseCog
}

func NewSellDuplicates(deps Deps) *SellDuplicates {
	c := &SellDuplicates{
		browseCog: newBrowseCog(deps, browseSpec{
			prefix:      "dupes",
			title:       "Sell Duplicates",
			placeholder: "Pick a card to sell...",
			bulkLabel:   "Sell All",
			selectable:  true,
			emptyMsg:    "You have no duplicate cards to sell.",
			option: func(it session.Item) utils.SelectOption {
				d := it.(models.DuplicateGroup)
				return utils.SelectOption{
					Label:       d.Card.Label(),
					Description: fmt.Sprintf("×%d spare @ %s each", d.Extras, utils.FormatCoins(d.UnitPrice)),
				}
			},
		}),
	}
	deps.Machine.Register(&session.Flow{
		Name:          c.Prefix(),
		Confirm:       session.ConfirmModal,
		QuantityBound: func(sel session.Item) int { return sel.(models.DuplicateGroup).Extras },
		BulkQuantity: func(s *session.Session) int {
			total := 0
			for _, it := range s.Items {
				total += it.(models.DuplicateGroup).Extras
			}
			return total
		},
		Submit:   c.submit,
		OnExpire: c.onExpire,
	})
	return c
}

func (c *SellDuplicates) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "sellduplicates",
		Description: "Sell spare copies of your cards",
	}
}

func (c *SellDuplicates) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	dupes, err := c.deps.Backend.ListDuplicates(context.Background(), interactionUserID(i))
	if err != nil {
		c.deps.Log.Error().Err(err).Msg("duplicates fetch failed")
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Could not load your duplicates."), nil, true)
		return
	}
	items := make([]session.Item, len(dupes))
	for n, d := range dupes {
		items[n] = d
	}
	c.start(s, i, items)
}

func (c *SellDuplicates) submit(ctx context.Context, sess *session.Session) (session.Outcome, error) {
	var sales []backend.Sale
	if sess.Quantity == session.QuantityAll {
		// Bulk: every spare copy of every duplicate in one request.
		sales = make([]backend.Sale, 0, len(sess.Items))
		for _, it := range sess.Items {
			d := it.(models.DuplicateGroup)
			sales = append(sales, backend.Sale{CardID: d.Card.ID, Quantity: d.Extras})
		}
	} else {
		d := sess.Selection.(models.DuplicateGroup)
		sales = []backend.Sale{{CardID: d.Card.ID, Quantity: sess.Quantity}}
	}

	res, err := c.deps.Backend.SellCards(ctx, sess.OwnerID, sales)
	if err != nil {
		return session.Outcome{}, err
	}
	return session.Outcome{
		Title: "Cards sold",
		Detail: fmt.Sprintf("Sold **%d** card(s) for %s %s.\nBalance: %s %s",
			res.CardsSold,
			utils.FormatCoins(res.Earned), utils.CoinEmoji,
			utils.FormatCoins(res.Balance), utils.CoinEmoji),
	}, nil
}
