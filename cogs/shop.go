package cogs

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"pvb-go/models"
	"pvb-go/session"
	"pvb-go/utils"
)

// Shop implements /shop: browse non-pack shop items and buy with a
// quantity modal bounded by stock.
type Shop struct {
	*browseCog
}

func NewShop(deps Deps) *Shop {
	c := &Shop{
		browseCog: newBrowseCog(deps, browseSpec{
			prefix:      "shop",
			title:       "Item Shop",
			placeholder: "Pick an item to buy...",
			selectable:  true,
			emptyMsg:    "The shop is empty right now. Check back later.",
			option: func(it session.Item) utils.SelectOption {
				s := it.(models.ShopItem)
				return utils.SelectOption{
					Label:       s.Label(),
					Description: fmt.Sprintf("%d in stock", s.Stock),
				}
			},
		}),
	}
	deps.Machine.Register(&session.Flow{
		Name:    c.Prefix(),
		Confirm: session.ConfirmModal,
		QuantityBound: func(sel session.Item) int {
			stock := sel.(models.ShopItem).Stock
			if stock < 1 {
				return 1
			}
			return stock
		},
		Submit:   c.submit,
		OnExpire: c.onExpire,
	})
	return c
}

func (c *Shop) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "shop",
		Description: "Browse the item shop",
	}
}

func (c *Shop) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	listings, err := c.deps.Backend.ListShop(context.Background())
	if err != nil {
		c.deps.Log.Error().Err(err).Msg("shop fetch failed")
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Could not load the shop."), nil, true)
		return
	}
	items := make([]session.Item, len(listings))
	for n, l := range listings {
		items[n] = l
	}
	c.start(s, i, items)
}

func (c *Shop) submit(ctx context.Context, sess *session.Session) (session.Outcome, error) {
	item := sess.Selection.(models.ShopItem)
	res, err := c.deps.Backend.BuyItem(ctx, sess.OwnerID, item.ID, sess.Quantity)
	if err != nil {
		return session.Outcome{}, err
	}
	return session.Outcome{
		Title: "Purchase complete",
		Detail: fmt.Sprintf("Bought **%d × %s** for %s %s.\nBalance: %s %s",
			sess.Quantity, item.Name,
			utils.FormatCoins(res.Spent), utils.CoinEmoji,
			utils.FormatCoins(res.Balance), utils.CoinEmoji),
	}, nil
}
