package cogs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"pvb-go/models"
	"pvb-go/session"
	"pvb-go/utils"
)

// Challenge implements /challenge: a proposal the opponent answers with
// accept or decline buttons. Proposals are not browse sessions; they track
// their own pending map and a domain timer for the answer window.
type Challenge struct {
	deps Deps

	mu      sync.Mutex
	pending map[string]*challengeHandle
	// answering holds challenge ids with a respond call in flight so a
	// double-click cannot POST twice. The backend's respond endpoint is
	// idempotency-unaware; suppression happens here.
	answering map[string]struct{}
}

type challengeHandle struct {
	s    *discordgo.Session
	i    *discordgo.InteractionCreate
	stop func() bool
}

func NewChallenge(deps Deps) *Challenge {
	return &Challenge{
		deps:      deps,
		pending:   make(map[string]*challengeHandle),
		answering: make(map[string]struct{}),
	}
}

func (c *Challenge) Prefix() string { return "chal" }

func (c *Challenge) Definition() *discordgo.ApplicationCommand {
	minWager := float64(1)
	return &discordgo.ApplicationCommand{
		Name:        "challenge",
		Description: "Challenge another collector to a wagered duel",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "opponent",
				Description: "Who to challenge",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "wager",
				Description: "Coins at stake",
				Required:    true,
				MinValue:    &minWager,
			},
		},
	}
}

func (c *Challenge) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	challenger := interactionUserID(i)

	var opponent *discordgo.User
	var wager int64
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "opponent":
			opponent = opt.UserValue(s)
		case "wager":
			wager = opt.IntValue()
		}
	}
	if opponent == nil {
		_ = utils.EphemeralReply(s, i, "Pick an opponent to challenge.")
		return
	}
	if opponent.ID == challenger {
		_ = utils.EphemeralReply(s, i, "You cannot challenge yourself.")
		return
	}
	if opponent.Bot {
		_ = utils.EphemeralReply(s, i, "Bots do not take wagers.")
		return
	}

	ch, err := c.deps.Backend.CreateChallenge(context.Background(), challenger, opponent.ID, wager)
	if err != nil {
		c.deps.Log.Error().Err(err).Msg("challenge create failed")
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed(userFacingOr(err, "Could not create the challenge.")), nil, true)
		return
	}

	window := c.deps.challengeWindow()
	embed := utils.CreateBrandedEmbed("⚔️ Duel Challenge",
		fmt.Sprintf("<@%s> challenges <@%s> for %s %s!\n<@%s> has %s to answer.",
			challenger, opponent.ID, utils.FormatCoins(wager), utils.CoinEmoji,
			opponent.ID, window),
		utils.WarnColor)
	rows := challengeRows(ch.ID, false)
	if err := utils.SendInteractionResponse(s, i, embed, rows, false); err != nil {
		c.deps.Log.Error().Err(err).Str("challenge", ch.ID).Msg("challenge render failed")
		return
	}

	handle := &challengeHandle{s: s, i: i}
	handle.stop = c.deps.Machine.Supervisor().Domain("challenge:"+ch.ID, window, func() {
		c.expire(ch.ID)
	})

	c.mu.Lock()
	c.pending[ch.ID] = handle
	c.mu.Unlock()
}

// Answer rejections, mapped to ephemeral notices by the component handler.
var (
	errAnswerInFlight  = errors.New("challenge answer already in flight")
	errChallengeGone   = errors.New("challenge unavailable")
	errAlreadyAnswered = errors.New("challenge already answered")
	errNotTheOpponent  = errors.New("actor is not the challenged player")
)

// answer runs the check-then-respond sequence while holding the challenge's
// answering claim, so two near-simultaneous clicks collapse into one
// backend call. The claim is released on every exit path.
func (c *Challenge) answer(ctx context.Context, challengeID, actorID string, accept bool) (*models.Challenge, error) {
	c.mu.Lock()
	if _, busy := c.answering[challengeID]; busy {
		c.mu.Unlock()
		return nil, errAnswerInFlight
	}
	c.answering[challengeID] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.answering, challengeID)
		c.mu.Unlock()
	}()

	ch, err := c.deps.Backend.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, errChallengeGone
	}
	if ch.Status != models.ChallengePending {
		return nil, errAlreadyAnswered
	}
	if actorID != ch.OpponentID {
		return nil, errNotTheOpponent
	}

	answered, err := c.deps.Backend.RespondChallenge(ctx, challengeID, actorID, accept)
	if err != nil {
		return nil, err
	}
	c.release(challengeID)
	return answered, nil
}

// HandleComponent answers accept/decline presses. Only the named opponent
// may answer; everyone else gets an ephemeral nudge.
func (c *Challenge) HandleComponent(s *discordgo.Session, i *discordgo.InteractionCreate, cid session.CustomID) {
	actor := interactionUserID(i)
	challengeID := cid.Session

	var accept bool
	switch cid.Action {
	case "accept":
		accept = true
	case "decline":
		accept = false
	default:
		_ = utils.AcknowledgeComponentInteraction(s, i)
		return
	}

	answered, err := c.answer(context.Background(), challengeID, actor, accept)
	if err != nil {
		switch {
		case errors.Is(err, errAnswerInFlight):
			// Duplicate click; the first one will render the result.
			_ = utils.AcknowledgeComponentInteraction(s, i)
		case errors.Is(err, errChallengeGone):
			_ = utils.EphemeralReply(s, i, "⏰ This challenge is no longer available.")
		case errors.Is(err, errAlreadyAnswered):
			_ = utils.EphemeralReply(s, i, "This challenge has already been answered.")
		case errors.Is(err, errNotTheOpponent):
			_ = utils.EphemeralReply(s, i, "Only the challenged player can answer this.")
		default:
			c.deps.Log.Error().Err(err).Str("challenge", challengeID).Msg("challenge respond failed")
			_ = utils.EphemeralReply(s, i, userFacingOr(err, "Could not record your answer. Try again."))
		}
		return
	}

	var embed *discordgo.MessageEmbed
	if answered.Status == models.ChallengeAccepted {
		embed = utils.CreateBrandedEmbed("⚔️ Challenge accepted",
			fmt.Sprintf("<@%s> accepted! %s %s is on the line.", actor, utils.FormatCoins(answered.Wager), utils.CoinEmoji),
			utils.SuccessColor)
	} else {
		embed = utils.CreateBrandedEmbed("Challenge declined",
			fmt.Sprintf("<@%s> declined the duel.", actor),
			utils.ErrorColor)
	}
	_ = utils.UpdateComponentInteraction(s, i, embed, challengeRows(challengeID, true))
}

func (c *Challenge) HandleModal(s *discordgo.Session, i *discordgo.InteractionCreate, cid session.CustomID) {
	// Challenges carry no modals.
}

// expire runs when the answer window elapses. The backend is re-checked
// first: the answer may have raced the timer.
func (c *Challenge) expire(challengeID string) {
	c.mu.Lock()
	handle, ok := c.pending[challengeID]
	delete(c.pending, challengeID)
	c.mu.Unlock()
	if !ok {
		return
	}

	ctx := context.Background()
	ch, err := c.deps.Backend.GetChallenge(ctx, challengeID)
	if err == nil && ch.Status != models.ChallengePending {
		return
	}
	if err := c.deps.Backend.CancelChallenge(ctx, challengeID); err != nil {
		c.deps.Log.Warn().Err(err).Str("challenge", challengeID).Msg("challenge cancel failed")
	}

	embed := utils.CreateBrandedEmbed("Challenge expired",
		"The challenge went unanswered and has been withdrawn.",
		utils.WarnColor)
	if err := utils.EditOriginalWithRetry(handle.s, handle.i, embed, utils.DisabledComponents(challengeRows(challengeID, false)), 2); err != nil {
		c.deps.Log.Warn().Err(err).Str("challenge", challengeID).Msg("challenge expiry edit failed")
	}
}

// release stops the window timer and forgets the proposal.
func (c *Challenge) release(challengeID string) {
	c.mu.Lock()
	handle, ok := c.pending[challengeID]
	delete(c.pending, challengeID)
	c.mu.Unlock()
	if ok && handle.stop != nil {
		handle.stop()
	}
}

func challengeRows(challengeID string, disabled bool) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Accept",
					Style:    discordgo.SuccessButton,
					CustomID: session.MustCustomID("chal", challengeID, "accept", ""),
					Disabled: disabled,
				},
				discordgo.Button{
					Label:    "Decline",
					Style:    discordgo.DangerButton,
					CustomID: session.MustCustomID("chal", challengeID, "decline", ""),
					Disabled: disabled,
				},
			},
		},
	}
}

// userFacingOr surfaces backend messages meant for the user, or falls back.
func userFacingOr(err error, fallback string) string {
	var uf interface{ UserMessage() string }
	if errors.As(err, &uf) {
		return uf.UserMessage()
	}
	return fallback
}
