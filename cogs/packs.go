package cogs

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"pvb-go/models"
	"pvb-go/session"
	"pvb-go/utils"
)

// maxPackPurchase bounds a single pack purchase.
const maxPackPurchase = 10

// Packs implements /packs: browse the pack catalog, pick one, enter a
// quantity, buy.
type Packs struct {
	*browseCog
}

// NewPacks wires the packs flow into the machine.
func NewPacks(deps Deps) *Packs {
	c := &Packs{
		browseCog: newBrowseCog(deps, browseSpec{
			prefix:      "packs",
			title:       "Pack Shop",
			placeholder: "Pick a pack to buy...",
			selectable:  true,
			emptyMsg:    "No packs are on sale right now.",
			option: func(it session.Item) utils.SelectOption {
				p := it.(models.Pack)
				return utils.SelectOption{
					Label:       p.Label(),
					Description: fmt.Sprintf("%s %s", utils.FormatCoins(p.Price), utils.CoinEmoji),
				}
			},
		}),
	}
	deps.Machine.Register(&session.Flow{
		Name:          c.Prefix(),
		Confirm:       session.ConfirmModal,
		QuantityBound: func(session.Item) int { return maxPackPurchase },
		Submit:        c.submit,
		OnExpire:      c.onExpire,
	})
	return c
}

func (c *Packs) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "packs",
		Description: "Browse and buy card packs",
	}
}

func (c *Packs) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	packs, err := c.deps.Backend.ListPacks(context.Background())
	if err != nil {
		c.deps.Log.Error().Err(err).Msg("pack catalog fetch failed")
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Could not load the pack catalog."), nil, true)
		return
	}
	items := make([]session.Item, len(packs))
	for n, p := range packs {
		items[n] = p
	}
	c.start(s, i, items)
}

func (c *Packs) submit(ctx context.Context, sess *session.Session) (session.Outcome, error) {
	pack := sess.Selection.(models.Pack)
	res, err := c.deps.Backend.BuyPack(ctx, sess.OwnerID, pack.ID, sess.Quantity)
	if err != nil {
		return session.Outcome{}, err
	}
	return session.Outcome{
		Title: "Purchase complete",
		Detail: fmt.Sprintf("Bought **%d × %s** for %s %s.\nBalance: %s %s",
			sess.Quantity, pack.Name,
			utils.FormatCoins(res.Spent), utils.CoinEmoji,
			utils.FormatCoins(res.Balance), utils.CoinEmoji),
	}, nil
}
