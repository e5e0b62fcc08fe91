package cogs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"pvb-go/session"
	"pvb-go/utils"
)

// browseSpec describes one list-driven command: what it is called, how its
// items render, and which extra controls it carries.
type browseSpec struct {
	prefix      string
	title       string
	placeholder string
	// bulkLabel enables the bulk button ("Sell All") when non-empty.
	bulkLabel string
	// selectable disables the select menu for read-only browsers.
	selectable bool
	emptyMsg   string
	// option turns an item into its select-menu entry and list line.
	option func(it session.Item) utils.SelectOption
}

// browseCog is the shared skeleton of every list-driven command. Concrete
// cogs embed it and contribute a spec plus a session flow.
type browseCog struct {
	deps Deps
	spec browseSpec

	// renders maps live session ids to their original interaction so
	// expiry can still edit the message once the component tokens are
	// gone.
	mu      sync.RWMutex
	renders map[string]*renderHandle
}

type renderHandle struct {
	s *discordgo.Session
	i *discordgo.InteractionCreate
}

func newBrowseCog(deps Deps, spec browseSpec) *browseCog {
	return &browseCog{
		deps:    deps,
		spec:    spec,
		renders: make(map[string]*renderHandle),
	}
}

func (b *browseCog) Prefix() string { return b.spec.prefix }

// start creates the session for the fetched snapshot and sends the first
// render.
func (b *browseCog) start(s *discordgo.Session, i *discordgo.InteractionCreate, items []session.Item) {
	owner := interactionUserID(i)
	if len(items) == 0 {
		_ = utils.SendInteractionResponse(s, i, utils.CreateBrandedEmbed(b.spec.title, b.spec.emptyMsg, utils.WarnColor), nil, true)
		return
	}

	sess, view, err := b.deps.Machine.Start(b.spec.prefix, owner, items, utils.DefaultPageSize)
	if err != nil {
		b.deps.Log.Error().Err(err).Str("command", b.spec.prefix).Msg("failed to start session")
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Could not start this session. Try again."), nil, true)
		return
	}

	b.mu.Lock()
	b.renders[sess.ID] = &renderHandle{s: s, i: i}
	b.mu.Unlock()

	embed := b.browseEmbed(sess, view)
	rows := b.browseRows(sess.ID, view)
	if err := utils.SendInteractionResponse(s, i, embed, rows, false); err != nil {
		b.deps.Log.Error().Err(err).Str("session", sess.ID).Msg("initial render failed")
	}
}

// HandleComponent turns a decoded component event into a machine event.
func (b *browseCog) HandleComponent(s *discordgo.Session, i *discordgo.InteractionCreate, cid session.CustomID) {
	actor := interactionUserID(i)

	// Opening the filter modal is pure presentation; the machine only
	// hears about the submitted text.
	if cid.Action == "filter" {
		if err := b.guardOwner(cid.Session, actor); err != nil {
			b.rejectError(s, i, err)
			return
		}
		_ = s.InteractionRespond(i.Interaction, utils.FilterModal(b.spec.prefix, cid.Session))
		return
	}

	ev := session.Event{SessionID: cid.Session, ActorID: actor}
	switch cid.Action {
	case "next":
		ev.Kind = session.EventPageNext
	case "prev":
		ev.Kind = session.EventPagePrev
	case "cancel":
		ev.Kind = session.EventCancel
	case "bulk":
		ev.Kind = session.EventBulk
	case "confirm":
		ev.Kind = session.EventConfirm
	case "select":
		ev.Kind = session.EventSelect
		if vals := i.MessageComponentData().Values; len(vals) > 0 {
			ev.Value = vals[0]
		}
	default:
		_ = utils.AcknowledgeComponentInteraction(s, i)
		return
	}

	b.dispatch(s, i, ev)
}

// HandleModal feeds quantity and search submissions into the machine.
func (b *browseCog) HandleModal(s *discordgo.Session, i *discordgo.InteractionCreate, cid session.CustomID) {
	actor := interactionUserID(i)
	data := i.ModalSubmitData()

	ev := session.Event{SessionID: cid.Session, ActorID: actor}
	switch cid.Action {
	case "qty":
		ev.Kind = session.EventQuantity
		ev.Value = strings.TrimSpace(modalInputValue(data, "quantity"))
	case "search":
		ev.Kind = session.EventFilter
		ev.Value = modalInputValue(data, "query")
	default:
		return
	}

	b.dispatch(s, i, ev)
}

// dispatch runs the event through the machine and renders the effect.
func (b *browseCog) dispatch(s *discordgo.Session, i *discordgo.InteractionCreate, ev session.Event) {
	eff, err := b.deps.Machine.HandleEvent(context.Background(), ev)
	if err != nil {
		b.rejectError(s, i, err)
		return
	}

	switch eff.Kind {
	case session.EffectNone:
		_ = utils.AcknowledgeComponentInteraction(s, i)

	case session.EffectBrowse:
		embed := b.browseEmbed(eff.Session, eff.View)
		rows := b.browseRows(eff.Session.ID, eff.View)
		_ = utils.UpdateComponentInteraction(s, i, embed, rows)

	case session.EffectPromptQuantity:
		title := b.spec.title
		if opt := b.itemOption(eff.Session.Selection); opt.Label != "" {
			title = opt.Label
		}
		_ = s.InteractionRespond(i.Interaction, utils.QuantityModal(b.spec.prefix, eff.Session.ID, title, eff.Bound))

	case session.EffectPromptConfirm:
		embed := b.confirmEmbed(eff.Session)
		_ = utils.UpdateComponentInteraction(s, i, embed, utils.ConfirmRow(b.spec.prefix, eff.Session.ID))

	case session.EffectReprompt:
		notify(s, i, "⚠️ "+eff.Msg)

	case session.EffectResult, session.EffectFailure:
		b.dropHandle(eff.Session.ID)
		color := utils.SuccessColor
		if eff.Outcome.Failed {
			color = utils.ErrorColor
		}
		embed := utils.CreateBrandedEmbed(eff.Outcome.Title, eff.Outcome.Detail, color)
		_ = utils.UpdateComponentInteraction(s, i, embed, nil)

	case session.EffectCancelled:
		b.dropHandle(eff.Session.ID)
		_ = utils.UpdateComponentInteraction(s, i, utils.CancelledEmbed(b.spec.title), nil)
	}
}

// onExpire is the flow's expiry hook: edit the original message with all
// affordances removed. Runs off the event path with no component token.
func (b *browseCog) onExpire(sess *session.Session, kind session.ExpiryKind) {
	b.mu.Lock()
	handle, ok := b.renders[sess.ID]
	delete(b.renders, sess.ID)
	b.mu.Unlock()
	if !ok {
		return
	}
	b.deps.Log.Debug().Str("session", sess.ID).Stringer("kind", kind).
		Str("command", b.spec.prefix).Msg("disabling expired session message")
	if err := utils.EditOriginalWithRetry(handle.s, handle.i, utils.ExpiredEmbed(b.spec.title), []discordgo.MessageComponent{}, 2); err != nil {
		b.deps.Log.Warn().Err(err).Str("session", sess.ID).Msg("expiry edit failed")
	}
}

func (b *browseCog) dropHandle(sessionID string) {
	b.mu.Lock()
	delete(b.renders, sessionID)
	b.mu.Unlock()
}

// guardOwner mirrors the machine's ownership check for render-only steps
// that never reach it.
func (b *browseCog) guardOwner(sessionID, actor string) error {
	sess, err := b.deps.Machine.Store().Get(sessionID)
	if err != nil {
		return err
	}
	if sess.OwnerID != actor {
		return session.ErrNotOwner
	}
	return nil
}

func (b *browseCog) rejectError(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	switch {
	case errors.Is(err, session.ErrNotOwner):
		notify(s, i, "This session belongs to someone else. Run the command yourself to get your own.")
	case errors.Is(err, session.ErrStaleSession):
		notify(s, i, "⏰ This session has ended. Run the command again.")
	default:
		b.deps.Log.Error().Err(err).Str("command", b.spec.prefix).Msg("event handling failed")
		notify(s, i, "Something went wrong handling that. Try again.")
	}
}

// notify sends an ephemeral notice, falling back to a followup when the
// interaction was already answered.
func notify(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if err := utils.EphemeralReply(s, i, content); err != nil {
		_ = utils.TryEphemeralFollowup(s, i, content)
	}
}

func (b *browseCog) itemOption(it session.Item) utils.SelectOption {
	if it == nil {
		return utils.SelectOption{}
	}
	return b.spec.option(it)
}

// browseEmbed renders the current page as a numbered list.
func (b *browseCog) browseEmbed(sess *session.Session, view session.PagedView) *discordgo.MessageEmbed {
	var sb strings.Builder
	offset := view.Page * sess.PageSize
	for n, it := range view.Items {
		opt := b.spec.option(it)
		fmt.Fprintf(&sb, "`%2d.` %s", offset+n+1, opt.Label)
		if opt.Description != "" {
			fmt.Fprintf(&sb, " — %s", opt.Description)
		}
		sb.WriteByte('\n')
	}
	if view.Filtered == 0 {
		sb.WriteString("*No matches. Use Filter to change the search.*")
	}

	embed := utils.CreateBrandedEmbed(b.spec.title, sb.String(), utils.BotColor)
	footer := fmt.Sprintf("Page %d/%d • %d item(s)", view.Page+1, view.TotalPages, view.Filtered)
	if sess.Filter != "" {
		footer += fmt.Sprintf(" • filter: %q", sess.Filter)
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	return embed
}

func (b *browseCog) confirmEmbed(sess *session.Session) *discordgo.MessageEmbed {
	label := b.itemOption(sess.Selection).Label
	return utils.CreateBrandedEmbed(b.spec.title, fmt.Sprintf("Confirm: **%s**?", label), utils.WarnColor)
}

// browseRows assembles the component rows for a list render.
func (b *browseCog) browseRows(sessionID string, view session.PagedView) []discordgo.MessageComponent {
	rows := []discordgo.MessageComponent{}
	if b.spec.selectable && len(view.Items) > 0 {
		options := make([]utils.SelectOption, 0, len(view.Items))
		for _, it := range view.Items {
			opt := b.spec.option(it)
			opt.Value = it.ItemID()
			options = append(options, opt)
		}
		rows = append(rows, utils.SelectRow(b.spec.prefix, sessionID, b.spec.placeholder, options))
	}
	rows = append(rows,
		utils.PaginationRow(b.spec.prefix, sessionID, view),
		utils.ControlRow(b.spec.prefix, sessionID, b.spec.bulkLabel),
	)
	return rows
}
