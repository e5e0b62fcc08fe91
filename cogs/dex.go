package cogs

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"pvb-go/models"
	"pvb-go/session"
	"pvb-go/utils"
)

// Dex implements /dex: browse discovered dex entries and pick one as the
// profile's featured card.
type Dex struct {
	*browseCog
}

func NewDex(deps Deps) *Dex {
	c := &Dex{
		browseCog: newBrowseCog(deps, browseSpec{
			prefix:      "dex",
			title:       "Card Dex",
			placeholder: "Feature a card...",
			selectable:  true,
			emptyMsg:    "No dex entries yet. Open packs to discover cards.",
			option: func(it session.Item) utils.SelectOption {
				card := it.(models.Card)
				opt := utils.SelectOption{Label: card.Label()}
				if card.Featured {
					opt.Description = "currently featured"
				}
				return opt
			},
		}),
	}
	deps.Machine.Register(&session.Flow{
		Name:     c.Prefix(),
		Confirm:  session.ConfirmButtons,
		Submit:   c.submit,
		OnExpire: c.onExpire,
	})
	return c
}

func (c *Dex) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "dex",
		Description: "Browse your dex and set a featured card",
	}
}

func (c *Dex) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	cards, err := c.deps.Backend.ListDex(context.Background(), interactionUserID(i))
	if err != nil {
		c.deps.Log.Error().Err(err).Msg("dex fetch failed")
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Could not load your dex."), nil, true)
		return
	}
	items := make([]session.Item, len(cards))
	for n, card := range cards {
		items[n] = card
	}
	c.start(s, i, items)
}

func (c *Dex) submit(ctx context.Context, sess *session.Session) (session.Outcome, error) {
	card := sess.Selection.(models.Card)
	if err := c.deps.Backend.SetFeaturedCard(ctx, sess.OwnerID, card.ID); err != nil {
		return session.Outcome{}, err
	}
	return session.Outcome{
		Title:  "Featured card set",
		Detail: fmt.Sprintf("%s now headlines your profile.", card.Label()),
	}, nil
}
