package cogs

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"pvb-go/models"
	"pvb-go/session"
	"pvb-go/utils"
)

// Collection implements /collection: a read-only browser over everything
// the user owns. No select menu, so the flow never submits.
type Collection struct {
	*browseCog
}

func NewCollection(deps Deps) *Collection {
	c := &Collection{
		browseCog: newBrowseCog(deps, browseSpec{
			prefix:   "col",
			title:    "Your Collection",
			emptyMsg: "Your collection is empty. Open some packs with /open.",
			option: func(it session.Item) utils.SelectOption {
				card := it.(models.Card)
				return utils.SelectOption{
					Label:       card.Label(),
					Description: fmt.Sprintf("×%d", card.Count),
				}
			},
		}),
	}
	deps.Machine.Register(&session.Flow{
		Name:     c.Prefix(),
		Submit:   c.submit,
		OnExpire: c.onExpire,
	})
	return c
}

func (c *Collection) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "collection",
		Description: "Browse the cards you own",
	}
}

func (c *Collection) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	cards, err := c.deps.Backend.ListCollection(context.Background(), interactionUserID(i))
	if err != nil {
		c.deps.Log.Error().Err(err).Msg("collection fetch failed")
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Could not load your collection."), nil, true)
		return
	}
	items := make([]session.Item, len(cards))
	for n, card := range cards {
		items[n] = card
	}
	c.start(s, i, items)
}

// submit is unreachable: the browser renders no select menu, so the
// machine never moves this flow past browsing.
func (c *Collection) submit(ctx context.Context, sess *session.Session) (session.Outcome, error) {
	return session.Outcome{}, fmt.Errorf("collection sessions do not submit")
}
