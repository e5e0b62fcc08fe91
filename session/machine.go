package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// EventKind classifies the discrete UI events a session can receive.
type EventKind int

const (
	EventPageNext EventKind = iota
	EventPagePrev
	// EventFilter carries the submitted search text in Value.
	EventFilter
	// EventSelect carries the chosen item id in Value.
	EventSelect
	// EventBulk requests the flow's bulk action over the whole snapshot
	// as a single submission.
	EventBulk
	// EventConfirm is the confirm button of a button-confirmed flow.
	EventConfirm
	// EventQuantity carries the raw modal quantity input in Value.
	EventQuantity
	EventCancel
)

func (k EventKind) String() string {
	switch k {
	case EventPageNext:
		return "page_next"
	case EventPagePrev:
		return "page_prev"
	case EventFilter:
		return "filter"
	case EventSelect:
		return "select"
	case EventBulk:
		return "bulk"
	case EventConfirm:
		return "confirm"
	case EventQuantity:
		return "quantity"
	case EventCancel:
		return "cancel"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one decoded interaction addressed to a session.
type Event struct {
	Kind      EventKind
	SessionID string
	ActorID   string
	Value     string
}

// ConfirmMode declares how a flow confirms a selection before submitting.
type ConfirmMode int

const (
	// ConfirmNone submits immediately on selection with quantity 1.
	ConfirmNone ConfirmMode = iota
	// ConfirmButtons renders a confirm/cancel row before submitting.
	ConfirmButtons
	// ConfirmModal collects a quantity through a modal first.
	ConfirmModal
)

// Outcome is the rendered result of a submission.
type Outcome struct {
	Title  string
	Detail string
	Failed bool
}

// Flow is a command's binding into the engine: how selections confirm, what
// the backend submission does, and how an expired session's message gets
// its components disabled. Submit runs without any session lock held and is
// called at most once per session.
type Flow struct {
	Name string

	Confirm ConfirmMode
	// QuantityBound returns the inclusive upper bound for a modal
	// quantity. Only consulted for ConfirmModal flows.
	QuantityBound func(sel Item) int
	// BulkQuantity returns the total count covered by a bulk action, or
	// 0 if the flow has no bulk action.
	BulkQuantity func(s *Session) int
	// Submit executes the mutating backend call. The session snapshot
	// carries Selection and Quantity. An error resolves the session as
	// failed; there is no automatic retry.
	Submit func(ctx context.Context, s *Session) (Outcome, error)
	// OnExpire disables the rendered message's components after idle or
	// hard expiry. Runs off the event path, with no interaction token.
	OnExpire func(s *Session, kind ExpiryKind)
}

// EffectKind tells the cog what to render after an event.
type EffectKind int

const (
	// EffectNone means drop the event silently (duplicate click, event
	// during submission). Acknowledge the interaction, render nothing.
	EffectNone EffectKind = iota
	// EffectBrowse re-renders the list view from Effect.View.
	EffectBrowse
	// EffectPromptQuantity opens the quantity modal for Effect.Session.
	EffectPromptQuantity
	// EffectPromptConfirm renders the confirm/cancel row.
	EffectPromptConfirm
	// EffectReprompt re-prompts after invalid input without consuming
	// the session's state. Effect.Msg is user-visible.
	EffectReprompt
	// EffectResult renders a resolved submission from Effect.Outcome.
	EffectResult
	// EffectFailure renders a failed submission; the session is already
	// terminated, so components must render disabled.
	EffectFailure
	// EffectCancelled renders the cancellation notice with components
	// disabled.
	EffectCancelled
)

// Effect is the render instruction produced by one event.
type Effect struct {
	Kind    EffectKind
	Session *Session
	View    PagedView
	Outcome Outcome
	// Bound is the quantity upper bound for EffectPromptQuantity.
	Bound int
	Msg   string
}

// Record summarizes a finished session for analytics.
type Record struct {
	SessionID string
	Command   string
	OwnerID   string
	Outcome   string
	Duration  time.Duration
	EndedAt   time.Time
}

// Machine drives session workflows: it validates events against the current
// state, applies view mutations through the store, runs backend submissions
// outside any lock and settles terminal states.
type Machine struct {
	store *Store
	sup   *Supervisor
	log   zerolog.Logger

	idle time.Duration
	hard time.Duration

	flows map[string]*Flow

	// onFinished receives a Record for every terminal transition. Nil
	// disables recording.
	onFinished func(Record)
}

// NewMachine wires a machine over its store. The supervisor is created here
// so its expiry callback lands back in the machine.
func NewMachine(store *Store, log zerolog.Logger, idle, hard time.Duration, onFinished func(Record)) *Machine {
	m := &Machine{
		store:      store,
		log:        log.With().Str("component", "workflow").Logger(),
		idle:       idle,
		hard:       hard,
		flows:      make(map[string]*Flow),
		onFinished: onFinished,
	}
	m.sup = NewSupervisor(log, m.expire)
	return m
}

// Supervisor exposes the machine's expiry supervisor for domain timers.
func (m *Machine) Supervisor() *Supervisor { return m.sup }

// Store exposes the session store for read-only lookups at the rendering
// boundary.
func (m *Machine) Store() *Store { return m.store }

// Close stops timers. Live sessions are abandoned; they are process-memory
// state by design.
func (m *Machine) Close() {
	m.sup.Close()
}

// Register adds a flow. Flows are registered once at startup; no lock.
func (m *Machine) Register(f *Flow) {
	if _, dup := m.flows[f.Name]; dup {
		panic(fmt.Sprintf("flow %q registered twice", f.Name))
	}
	m.flows[f.Name] = f
}

// Start creates a session for a registered flow and arms its timers. The
// returned view is the first page of the unfiltered snapshot.
func (m *Machine) Start(flowName, ownerID string, items []Item, pageSize int) (*Session, PagedView, error) {
	flow, ok := m.flows[flowName]
	if !ok {
		return nil, PagedView{}, fmt.Errorf("unknown flow %q", flowName)
	}
	sess := m.store.Create(ownerID, flow.Name, items, pageSize, m.idle, m.hard)
	m.sup.Watch(sess.ID, m.idle, m.hard)
	return sess, Paginate(items, "", 0, pageSize), nil
}

// HandleEvent validates and applies one event. The returned Effect tells
// the caller what to render. ErrStaleSession and ErrNotOwner are returned
// as errors; invalid input comes back as EffectReprompt, not an error.
func (m *Machine) HandleEvent(ctx context.Context, ev Event) (Effect, error) {
	var (
		eff    Effect
		submit bool
	)

	snap, err := m.store.Mutate(ev.SessionID, func(s *Session) error {
		if s.OwnerID != ev.ActorID {
			return ErrNotOwner
		}
		if s.State.Terminal() {
			return ErrStaleSession
		}
		e, doSubmit, err := m.apply(s, ev)
		if err != nil {
			return err
		}
		eff = e
		submit = doSubmit
		return nil
	})
	if err != nil {
		return Effect{}, err
	}
	eff.Session = snap

	if eff.Kind == EffectCancelled {
		m.finish(snap, "cancelled")
		return eff, nil
	}

	// Any valid owner event counts as activity.
	m.sup.Touch(ev.SessionID, m.idle)

	if !submit {
		return eff, nil
	}
	return m.submit(ctx, snap)
}

// apply runs under the session lock. It validates the event against the
// state table and mutates view fields only; the submission itself happens
// after the lock is released. The returned bool requests submission.
func (m *Machine) apply(s *Session, ev Event) (Effect, bool, error) {
	flow := m.flows[s.Command]

	switch s.State {
	case StateBrowsing:
		switch ev.Kind {
		case EventPageNext, EventPagePrev:
			delta := 1
			if ev.Kind == EventPagePrev {
				delta = -1
			}
			total := TotalPages(len(Filter(s.Items, s.Filter)), s.PageSize)
			s.Page = ClampPage(s.Page+delta, total)
			return Effect{Kind: EffectBrowse, View: pagedView(s)}, false, nil

		case EventFilter:
			s.Filter = ev.Value
			s.Page = 0
			return Effect{Kind: EffectBrowse, View: pagedView(s)}, false, nil

		case EventSelect:
			it, ok := s.findItem(ev.Value)
			if !ok {
				// Select referencing an item outside the snapshot:
				// a stale menu from a previous render. Re-render.
				return Effect{Kind: EffectBrowse, View: pagedView(s)}, false, nil
			}
			s.Selection = it
			switch flow.Confirm {
			case ConfirmModal:
				s.State = StateConfirming
				return Effect{Kind: EffectPromptQuantity, Bound: flow.QuantityBound(it)}, false, nil
			case ConfirmButtons:
				s.State = StateConfirming
				return Effect{Kind: EffectPromptConfirm}, false, nil
			default:
				s.Quantity = 1
				return m.enterSubmitting(s, ev)
			}

		case EventBulk:
			if flow.BulkQuantity == nil {
				return Effect{Kind: EffectNone}, false, nil
			}
			n := flow.BulkQuantity(s)
			if n <= 0 {
				return Effect{Kind: EffectReprompt, Msg: "Nothing to act on."}, false, nil
			}
			s.Selection = nil
			s.Quantity = QuantityAll
			return m.enterSubmitting(s, ev)

		case EventCancel:
			s.State = StateCancelled
			clearPending(s)
			return Effect{Kind: EffectCancelled}, false, nil
		}

	case StateConfirming:
		switch ev.Kind {
		case EventSelect:
			// A modal cannot be opened in response to a modal, so after
			// an invalid quantity the retry rides on the select menu:
			// re-selecting re-opens the prompt instead of dead-ending.
			it, ok := s.findItem(ev.Value)
			if !ok {
				s.State = StateBrowsing
				s.Selection = nil
				return Effect{Kind: EffectBrowse, View: pagedView(s)}, false, nil
			}
			s.Selection = it
			if flow.Confirm == ConfirmButtons {
				return Effect{Kind: EffectPromptConfirm}, false, nil
			}
			return Effect{Kind: EffectPromptQuantity, Bound: flow.QuantityBound(it)}, false, nil

		case EventFilter:
			// Filtering abandons the pending selection and returns the
			// session to browsing, keeping the filter button honest in
			// this state.
			s.State = StateBrowsing
			s.Selection = nil
			s.Filter = ev.Value
			s.Page = 0
			return Effect{Kind: EffectBrowse, View: pagedView(s)}, false, nil

		case EventConfirm:
			if flow.Confirm != ConfirmButtons {
				return Effect{Kind: EffectNone}, false, nil
			}
			s.Quantity = 1
			return m.enterSubmitting(s, ev)

		case EventQuantity:
			if flow.Confirm != ConfirmModal {
				return Effect{Kind: EffectNone}, false, nil
			}
			bound := flow.QuantityBound(s.Selection)
			qty, err := parseQuantity(ev.Value, bound)
			if err != nil {
				// Re-prompt; deliberately no state transition.
				return Effect{Kind: EffectReprompt, Msg: err.Error()}, false, nil
			}
			s.Quantity = qty
			return m.enterSubmitting(s, ev)

		case EventCancel:
			s.State = StateCancelled
			clearPending(s)
			return Effect{Kind: EffectCancelled}, false, nil
		}

	case StateSubmitting:
		// Submission in flight: everything is dropped, including cancel.
	}

	return Effect{Kind: EffectNone}, false, nil
}

// enterSubmitting claims the submission action key and transitions. A lost
// claim means a near-simultaneous duplicate already holds it: drop the
// event. Runs under the session lock, so the check-and-set is atomic with
// the state transition.
func (m *Machine) enterSubmitting(s *Session, ev Event) (Effect, bool, error) {
	const key = "submit"
	if _, busy := s.pending[key]; busy {
		return Effect{Kind: EffectNone}, false, nil
	}
	s.pending[key] = struct{}{}
	s.State = StateSubmitting
	m.log.Debug().Str("session", s.ID).Str("command", s.Command).
		Stringer("event", ev.Kind).Int("quantity", s.Quantity).Msg("submitting")
	return Effect{}, true, nil
}

// submit runs the backend call with no lock held, then settles the session.
func (m *Machine) submit(ctx context.Context, snap *Session) (Effect, error) {
	flow := m.flows[snap.Command]

	out, err := flow.Submit(ctx, snap)
	outcome := "resolved"
	if err != nil {
		// Backend errors are user-visible and non-fatal, but the
		// session still terminates: no silently stuck sessions, no
		// retry loop.
		m.log.Warn().Err(err).Str("session", snap.ID).Str("command", snap.Command).
			Msg("backend submission failed")
		out = Outcome{Title: "Something went wrong", Detail: userMessage(err), Failed: true}
		outcome = "failed"
	}

	final, mErr := m.store.Mutate(snap.ID, func(s *Session) error {
		if s.State.Terminal() {
			return ErrStaleSession
		}
		s.State = StateResolved
		delete(s.pending, "submit")
		return nil
	})
	eff := Effect{Kind: EffectResult, Outcome: out}
	if out.Failed {
		eff.Kind = EffectFailure
	}
	if mErr != nil {
		// Expiry won the race while the backend call was in flight and
		// already finished the session. The backend transaction still
		// happened, so surface the result without a second record.
		eff.Session = snap
		return eff, nil
	}
	m.finish(final, outcome)
	eff.Session = final
	return eff, nil
}

// expire is the supervisor callback for idle and hard timers.
func (m *Machine) expire(sessionID string, kind ExpiryKind) {
	final, err := m.store.Mutate(sessionID, func(s *Session) error {
		if s.State.Terminal() {
			return ErrStaleSession
		}
		s.State = StateExpired
		clearPending(s)
		return nil
	})
	if err != nil {
		return
	}
	m.finish(final, "expired")

	if flow := m.flows[final.Command]; flow != nil && flow.OnExpire != nil {
		flow.OnExpire(final, kind)
	}
}

// finish destroys the session, cancels its timers and emits the analytics
// record. Safe to call once per session; Destroy and Cancel are idempotent.
func (m *Machine) finish(s *Session, outcome string) {
	m.store.Destroy(s.ID)
	m.sup.Cancel(s.ID)
	m.log.Info().Str("session", s.ID).Str("command", s.Command).
		Str("owner", s.OwnerID).Str("outcome", outcome).Msg("session finished")
	if m.onFinished != nil {
		now := time.Now()
		m.onFinished(Record{
			SessionID: s.ID,
			Command:   s.Command,
			OwnerID:   s.OwnerID,
			Outcome:   outcome,
			Duration:  now.Sub(s.CreatedAt),
			EndedAt:   now,
		})
	}
}

func clearPending(s *Session) {
	for k := range s.pending {
		delete(s.pending, k)
	}
}

// parseQuantity validates a modal quantity as an integer in [1, bound].
func parseQuantity(raw string, bound int) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ValidationError{Msg: fmt.Sprintf("%q is not a number.", raw)}
	}
	if n < 1 || n > bound {
		return 0, &ValidationError{Msg: fmt.Sprintf("Enter a quantity between 1 and %d.", bound)}
	}
	return n, nil
}

// userMessage strips implementation detail from an error headed for an
// embed. Typed backend errors already carry a clean message.
func userMessage(err error) string {
	var uf interface{ UserMessage() string }
	if errors.As(err, &uf) {
		return uf.UserMessage()
	}
	return "The request could not be completed. Your balance was not charged twice; run the command again to check."
}
