// Package cogs implements the bot's slash commands. Every multi-step
// command is a thin adapter between Discord interactions and the session
// engine: it decodes custom ids once at this boundary, feeds events to the
// workflow machine and renders the effects that come back.
package cogs

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"pvb-go/backend"
	"pvb-go/session"
	"pvb-go/utils"
)

// Deps is what every cog needs wired in.
type Deps struct {
	Machine *session.Machine
	Backend *backend.Client
	Log     zerolog.Logger

	// ChallengeWindow bounds how long a duel proposal waits for an answer.
	ChallengeWindow time.Duration
}

func (d Deps) challengeWindow() time.Duration {
	if d.ChallengeWindow > 0 {
		return d.ChallengeWindow
	}
	return utils.ChallengeWindow
}

// Cog is one slash command plus its component and modal handlers.
type Cog interface {
	// Definition returns the slash command to register.
	Definition() *discordgo.ApplicationCommand
	// Prefix is the cog's custom-id namespace.
	Prefix() string
	HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate)
	HandleComponent(s *discordgo.Session, i *discordgo.InteractionCreate, cid session.CustomID)
	HandleModal(s *discordgo.Session, i *discordgo.InteractionCreate, cid session.CustomID)
}

// Router dispatches interactions to cogs by command name or custom-id
// prefix.
type Router struct {
	log      zerolog.Logger
	byName   map[string]Cog
	byPrefix map[string]Cog
}

// NewRouter creates an empty router.
func NewRouter(log zerolog.Logger) *Router {
	return &Router{
		log:      log.With().Str("component", "router").Logger(),
		byName:   make(map[string]Cog),
		byPrefix: make(map[string]Cog),
	}
}

// Register adds a cog. Name and prefix collisions are programming errors.
func (r *Router) Register(c Cog) {
	name := c.Definition().Name
	if _, dup := r.byName[name]; dup {
		panic("duplicate command name: " + name)
	}
	if _, dup := r.byPrefix[c.Prefix()]; dup {
		panic("duplicate cog prefix: " + c.Prefix())
	}
	r.byName[name] = c
	r.byPrefix[c.Prefix()] = c
}

// Commands returns all slash command definitions for registration.
func (r *Router) Commands() []*discordgo.ApplicationCommand {
	cmds := make([]*discordgo.ApplicationCommand, 0, len(r.byName))
	for _, c := range r.byName {
		cmds = append(cmds, c.Definition())
	}
	return cmds
}

// OnInteraction is the single discordgo handler for every interaction kind.
func (r *Router) OnInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if cog, ok := r.byName[i.ApplicationCommandData().Name]; ok {
			cog.HandleCommand(s, i)
		}

	case discordgo.InteractionMessageComponent:
		cid, err := session.ParseCustomID(i.MessageComponentData().CustomID)
		if err != nil {
			// Not one of ours; leave it for other handlers.
			return
		}
		if cog, ok := r.byPrefix[cid.Prefix]; ok {
			cog.HandleComponent(s, i, cid)
		}

	case discordgo.InteractionModalSubmit:
		cid, err := session.ParseCustomID(i.ModalSubmitData().CustomID)
		if err != nil {
			return
		}
		if cog, ok := r.byPrefix[cid.Prefix]; ok {
			cog.HandleModal(s, i, cid)
		}
	}
}

// interactionUserID extracts the acting user's id for guild and DM
// interactions alike.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// modalInputValue digs the named text input out of a modal submission.
func modalInputValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range ar.Components {
			if ti, ok := comp.(*discordgo.TextInput); ok && ti.CustomID == customID {
				return ti.Value
			}
		}
	}
	return ""
}
