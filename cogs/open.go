package cogs

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"pvb-go/models"
	"pvb-go/session"
	"pvb-go/utils"
)

// Open implements /open: pick a sealed pack from inventory, confirm with a
// button, open it and render the pulls.
type Open struct {
	*browseCog
}

func NewOpen(deps Deps) *Open {
	c := &Open{
		browseCog: newBrowseCog(deps, browseSpec{
			prefix:      "open",
			title:       "Open a Pack",
			placeholder: "Pick a sealed pack...",
			selectable:  true,
			emptyMsg:    "You have no sealed packs. Buy some with /packs first.",
			option: func(it session.Item) utils.SelectOption {
				p := it.(models.Pack)
				return utils.SelectOption{
					Label:       p.Label(),
					Description: fmt.Sprintf("%d sealed", p.Owned),
				}
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

func (c *Open) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "open",
		Description: "Open one of your sealed packs",
	}
}

func (c *Open) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	packs, err := c.deps.Backend.ListSealedPacks(context.Background(), interactionUserID(i))
	if err != nil {
		c.deps.Log.Error().Err(err).Msg("sealed pack fetch failed")
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Could not load your packs."), nil, true)
		return
	}
	items := make([]session.Item, len(packs))
	for n, p := range packs {
		items[n] = p
	}
	c.start(s, i, items)
}

func (c *Open) submit(ctx context.Context, sess *session.Session) (session.Outcome, error) {
	pack := sess.Selection.(models.Pack)
	res, err := c.deps.Backend.OpenPack(ctx, sess.OwnerID, pack.ID)
	if err != nil {
		return session.Outcome{}, err
	}

	var sb strings.Builder
	for _, card := range res.Pulls {
		sb.WriteString(card.Label())
		sb.WriteByte('\n')
	}
	if res.NewDex > 0 {
		fmt.Fprintf(&sb, "\n✨ **%d** new dex entr%s!", res.NewDex, plural(res.NewDex, "y", "ies"))
	}
	return session.Outcome{
		Title:  fmt.Sprintf("Opened %s", pack.Name),
		Detail: sb.String(),
	}, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
