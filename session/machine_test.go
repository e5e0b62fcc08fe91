package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type machineHarness struct {
	m  *Machine
	st *Store

	submits  int32
	lastSub  atomic.Value // *Session
	blockSub chan struct{}

	mu      sync.Mutex
	records []Record
	expired chan *Session
}

func newMachineHarness(t *testing.T, idle, hard time.Duration) *machineHarness {
	t.Helper()
	h := &machineHarness{expired: make(chan *Session, 4)}
	h.st = NewStore(zerolog.Nop())
	t.Cleanup(h.st.Close)

	h.m = NewMachine(h.st, zerolog.Nop(), idle, hard, func(r Record) {
		h.mu.Lock()
		h.records = append(h.records, r)
		h.mu.Unlock()
	})
	t.Cleanup(h.m.Close)

	submit := func(ctx context.Context, s *Session) (Outcome, error) {
		if h.blockSub != nil {
			<-h.blockSub
		}
		atomic.AddInt32(&h.submits, 1)
		h.lastSub.Store(s)
		return Outcome{Title: "Done", Detail: "ok"}, nil
	}
	onExpire := func(s *Session, kind ExpiryKind) { h.expired <- s }

	h.m.Register(&Flow{
		Name:     "instant",
		Confirm:  ConfirmNone,
		Submit:   submit,
		OnExpire: onExpire,
	})
	h.m.Register(&Flow{
		Name:          "modal",
		Confirm:       ConfirmModal,
		QuantityBound: func(Item) int { return 5 },
		Submit:        submit,
		OnExpire:      onExpire,
	})
	h.m.Register(&Flow{
		Name:     "buttons",
		Confirm:  ConfirmButtons,
		Submit:   submit,
		OnExpire: onExpire,
	})
	h.m.Register(&Flow{
		Name:          "bulk",
		Confirm:       ConfirmModal,
		QuantityBound: func(Item) int { return 5 },
		BulkQuantity:  func(s *Session) int { return len(s.Items) },
		Submit:        submit,
		OnExpire:      onExpire,
	})
	return h
}

func (h *machineHarness) lastRecord(t *testing.T) Record {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.records)
	return h.records[len(h.records)-1]
}

func (h *machineHarness) start(t *testing.T, flow string, n int) *Session {
	t.Helper()
	sess, view, err := h.m.Start(flow, "owner-1", makeItems(n), 25)
	require.NoError(t, err)
	require.Equal(t, 0, view.Page)
	return sess
}

func ev(k EventKind, sess *Session, value string) Event {
	return Event{Kind: k, SessionID: sess.ID, ActorID: "owner-1", Value: value}
}

func TestBrowsingPagination(t *testing.T) {
	h := newMachineHarness(t, time.Minute, time.Hour)
	sess := h.start(t, "instant", 63)
	ctx := context.Background()

	eff, err := h.m.HandleEvent(ctx, ev(EventPageNext, sess, ""))
	require.NoError(t, err)
	assert.Equal(t, EffectBrowse, eff.Kind)
	assert.Equal(t, 1, eff.View.Page)
	assert.Equal(t, 3, eff.View.TotalPages)

	// Clamped at the last page.
	h.m.HandleEvent(ctx, ev(EventPageNext, sess, ""))
	eff, err = h.m.HandleEvent(ctx, ev(EventPageNext, sess, ""))
	require.NoError(t, err)
	assert.Equal(t, 2, eff.View.Page)

	// Prev below zero clamps to zero.
	for i := 0; i < 5; i++ {
		eff, err = h.m.HandleEvent(ctx, ev(EventPagePrev, sess, ""))
		require.NoError(t, err)
	}
	assert.Equal(t, 0, eff.View.Page)
}

func TestFilterResetsPage(t *testing.T) {
	h := newMachineHarness(t, time.Minute, time.Hour)
	sess := h.start(t, "instant", 30)
	ctx := context.Background()

	h.m.HandleEvent(ctx, ev(EventPageNext, sess, ""))
	eff, err := h.m.HandleEvent(ctx, ev(EventFilter, sess, "card 1"))
	require.NoError(t, err)
	assert.Equal(t, EffectBrowse, eff.Kind)
	assert.Equal(t, 0, eff.View.Page, "filter resets to first page")
	assert.Equal(t, 11, eff.View.Filtered) // card 1, card 1x, card 1xx
}

func TestOwnershipRejectedWithoutMutation(t *testing.T) {
	h := newMachineHarness(t, time.Minute, time.Hour)
	sess := h.start(t, "instant", 30)

	for _, kind := range []EventKind{EventPageNext, EventFilter, EventSelect, EventCancel, EventQuantity} {
		_, err := h.m.HandleEvent(context.Background(), Event{
			Kind: kind, SessionID: sess.ID, ActorID: "intruder", Value: "item-0",
		})
		assert.ErrorIs(t, err, ErrNotOwner)
	}

	got, err := h.st.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateBrowsing, got.State)
	assert.Equal(t, 0, got.Page)
	assert.Nil(t, got.Selection)
}

func TestSelectWithModalConfirm(t *testing.T) {
	h := newMachineHarness(t, time.Minute, time.Hour)
	sess := h.start(t, "modal", 10)
	ctx := context.Background()

	eff, err := h.m.HandleEvent(ctx, ev(EventSelect, sess, "item-3"))
	require.NoError(t, err)
	assert.Equal(t, EffectPromptQuantity, eff.Kind)
	assert.Equal(t, 5, eff.Bound)
	assert.Equal(t, StateConfirming, eff.Session.State)

	// Invalid quantities re-prompt without a transition.
	for _, raw := range []string{"abc", "0", "-2", "6"} {
		eff, err = h.m.HandleEvent(ctx, ev(EventQuantity, sess, raw))
		require.NoError(t, err)
		assert.Equal(t, EffectReprompt, eff.Kind, raw)
		assert.Equal(t, StateConfirming, eff.Session.State, raw)
	}
	assert.Zero(t, atomic.LoadInt32(&h.submits))

	eff, err = h.m.HandleEvent(ctx, ev(EventQuantity, sess, "3"))
	require.NoError(t, err)
	assert.Equal(t, EffectResult, eff.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.submits))

	sub := h.lastSub.Load().(*Session)
	assert.Equal(t, "item-3", sub.Selection.ItemID())
	assert.Equal(t, 3, sub.Quantity)

	// Session is destroyed after resolution.
	_, err = h.st.Get(sess.ID)
	assert.ErrorIs(t, err, ErrStaleSession)
	assert.Equal(t, "resolved", h.lastRecord(t).Outcome)
}

func TestReselectAfterInvalidQuantityReopensPrompt(t *testing.T) {
	// A modal cannot re-open itself after an invalid submission; the
	// select menu is the retry path and must not be dropped.
	h := newMachineHarness(t, time.Minute, time.Hour)
	sess := h.start(t, "modal", 10)
	ctx := context.Background()

	_, err := h.m.HandleEvent(ctx, ev(EventSelect, sess, "item-2"))
	require.NoError(t, err)
	eff, err := h.m.HandleEvent(ctx, ev(EventQuantity, sess, "99"))
	require.NoError(t, err)
	require.Equal(t, EffectReprompt, eff.Kind)

	eff, err = h.m.HandleEvent(ctx, ev(EventSelect, sess, "item-2"))
	require.NoError(t, err)
	assert.Equal(t, EffectPromptQuantity, eff.Kind)
	assert.Equal(t, 5, eff.Bound)
	assert.Equal(t, StateConfirming, eff.Session.State)

	// Re-selecting a different item swaps the pending selection.
	eff, err = h.m.HandleEvent(ctx, ev(EventSelect, sess, "item-7"))
	require.NoError(t, err)
	assert.Equal(t, EffectPromptQuantity, eff.Kind)
	assert.Equal(t, "item-7", eff.Session.Selection.ItemID())

	eff, err = h.m.HandleEvent(ctx, ev(EventQuantity, sess, "2"))
	require.NoError(t, err)
	assert.Equal(t, EffectResult, eff.Kind)
	sub := h.lastSub.Load().(*Session)
	assert.Equal(t, "item-7", sub.Selection.ItemID())
}

func TestReselectWithButtonConfirm(t *testing.T) {
	h := newMachineHarness(t, time.Minute, time.Hour)
	sess := h.start(t, "buttons", 10)
	ctx := context.Background()

	eff, err := h.m.HandleEvent(ctx, ev(EventSelect, sess, "item-1"))
	require.NoError(t, err)
	require.Equal(t, EffectPromptConfirm, eff.Kind)

	eff, err = h.m.HandleEvent(ctx, ev(EventSelect, sess, "item-4"))
	require.NoError(t, err)
	assert.Equal(t, EffectPromptConfirm, eff.Kind)
	assert.Equal(t, "item-4", eff.Session.Selection.ItemID())

	eff, err = h.m.HandleEvent(ctx, ev(EventConfirm, sess, ""))
	require.NoError(t, err)
	assert.Equal(t, EffectResult, eff.Kind)
	sub := h.lastSub.Load().(*Session)
	assert.Equal(t, "item-4", sub.Selection.ItemID())
}

func TestFilterDuringConfirmReturnsToBrowsing(t *testing.T) {
	h := newMachineHarness(t, time.Minute, time.Hour)
	sess := h.start(t, "modal", 30)
	ctx := context.Background()

	_, err := h.m.HandleEvent(ctx, ev(EventSelect, sess, "item-2"))
	require.NoError(t, err)

	eff, err := h.m.HandleEvent(ctx, ev(EventFilter, sess, "card 1"))
	require.NoError(t, err)
	assert.Equal(t, EffectBrowse, eff.Kind)
	assert.Equal(t, StateBrowsing, eff.Session.State)
	assert.Nil(t, eff.Session.Selection, "filtering abandons the pending selection")
	assert.Equal(t, 0, eff.View.Page)
	assert.Equal(t, 11, eff.View.Filtered)
}

func TestReselectUnknownItemFallsBackToBrowsing(t *testing.T) {
	h := newMachineHarness(t, time.Minute, time.Hour)
	sess := h.start(t, "modal", 10)
	ctx := context.Background()

	_, err := h.m.HandleEvent(ctx, ev(EventSelect, sess, "item-2"))
	require.NoError(t, err)

	eff, err := h.m.HandleEvent(ctx, ev(EventSelect, sess, "ghost"))
	require.NoError(t, err)
	assert.Equal(t, EffectBrowse, eff.Kind)
	assert.Equal(t, StateBrowsing, eff.Session.State)
	assert.Nil(t, eff.Session.Selection)
}

func TestSelectUnknownItemRerenders(t *testing.T) {
	h := newMachineHarness(t, time.Minute, time.Hour)
	sess := h.start(t, "modal", 10)

	eff, err := h.m.HandleEvent(context.Background(), ev(EventSelect, sess, "ghost"))
	require.NoError(t, err)
	assert.Equal(t, EffectBrowse, eff.Kind)
	assert.Equal(t, StateBrowsing, eff.Session.State)
	assert.Nil(t, eff.Session.Selection)
}

func TestDoubleSelectSubmitsOnce(t *testing.T) {
	// Scenario: two select events for the same action arrive before the
	// first submission resolves. Exactly one reaches the backend.
	h := newMachineHarness(t, time.Minute, time.Hour)
	h.blockSub = make(chan struct{})
	sess := h.start(t, "instant", 10)
	ctx := context.Background()

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, _ = h.m.HandleEvent(ctx, ev(EventSelect, sess, "item-1"))
			done <- struct{}{}
		}()
	}
	// Let both goroutines pass the mutate; one blocks in Submit, the
	// other must have been dropped with EffectNone.
	time.Sleep(50 * time.Millisecond)
	close(h.blockSub)
	<-done
	<-done

	assert.Equal(t, int32(1), atomic.LoadInt32(&h.submits))
}

func TestBulkIsSingleSubmission(t *testing.T) {
	h := newMachineHarness(t, time.Minute, time.Hour)
	sess := h.start(t, "bulk", 7)

	eff, err := h.m.HandleEvent(context.Background(), ev(EventBulk, sess, ""))
	require.NoError(t, err)
	assert.Equal(t, EffectResult, eff.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.submits))

	sub := h.lastSub.Load().(*Session)
	assert.Nil(t, sub.Selection)
	assert.Equal(t, QuantityAll, sub.Quantity)
}

func TestCancelFromBrowsing(t *testing.T) {
	h := newMachineHarness(t, time.Minute, time.Hour)
	sess := h.start(t, "instant", 10)

	eff, err := h.m.HandleEvent(context.Background(), ev(EventCancel, sess, ""))
	require.NoError(t, err)
	assert.Equal(t, EffectCancelled, eff.Kind)
	assert.Equal(t, StateCancelled, eff.Session.State)

	assert.False(t, h.m.Supervisor().Watching(sess.ID), "zero pending timers after cancel")
	_, err = h.st.Get(sess.ID)
	assert.ErrorIs(t, err, ErrStaleSession)
	assert.Equal(t, "cancelled", h.lastRecord(t).Outcome)
}

func TestBackendErrorResolvesFailed(t *testing.T) {
	h := newMachineHarness(t, time.Minute, time.Hour)
	h.m.Register(&Flow{
		Name:    "failing",
		Confirm: ConfirmNone,
		Submit: func(ctx context.Context, s *Session) (Outcome, error) {
			return Outcome{}, &ValidationError{Msg: "backend says no"}
		},
	})
	sess, _, err := h.m.Start("failing", "owner-1", makeItems(3), 25)
	require.NoError(t, err)

	eff, err := h.m.HandleEvent(context.Background(), ev(EventSelect, sess, "item-0"))
	require.NoError(t, err, "backend failure is not a handler error")
	assert.Equal(t, EffectFailure, eff.Kind)
	assert.True(t, eff.Outcome.Failed)

	// Failed-but-resolved: the session is gone, no retry possible.
	_, err = h.st.Get(sess.ID)
	assert.ErrorIs(t, err, ErrStaleSession)
	assert.Equal(t, "failed", h.lastRecord(t).Outcome)
}

func TestIdleExpiryClearsSession(t *testing.T) {
	h := newMachineHarness(t, 30*time.Millisecond, time.Hour)
	sess := h.start(t, "modal", 10)

	select {
	case expired := <-h.expired:
		assert.Equal(t, StateExpired, expired.State)
		assert.Empty(t, expired.PendingActions(), "pending keys cleared on expiry")
	case <-time.After(2 * time.Second):
		t.Fatal("idle expiry never fired")
	}

	_, err := h.st.Get(sess.ID)
	assert.ErrorIs(t, err, ErrStaleSession)
	assert.Equal(t, "expired", h.lastRecord(t).Outcome)
}

func TestModalAfterExpiryIsStale(t *testing.T) {
	// Scenario: the quantity modal comes back after expiry already
	// transitioned the session. The submission is rejected as stale,
	// never processed.
	h := newMachineHarness(t, 30*time.Millisecond, time.Hour)
	sess := h.start(t, "modal", 10)
	ctx := context.Background()

	_, err := h.m.HandleEvent(ctx, ev(EventSelect, sess, "item-2"))
	require.NoError(t, err)

	select {
	case <-h.expired:
	case <-time.After(2 * time.Second):
		t.Fatal("expiry never fired")
	}

	_, err = h.m.HandleEvent(ctx, ev(EventQuantity, sess, "2"))
	assert.ErrorIs(t, err, ErrStaleSession)
	assert.Zero(t, atomic.LoadInt32(&h.submits))
}

func TestEventsDuringSubmissionAreDropped(t *testing.T) {
	h := newMachineHarness(t, time.Minute, time.Hour)
	h.blockSub = make(chan struct{})
	sess := h.start(t, "instant", 10)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		_, _ = h.m.HandleEvent(ctx, ev(EventSelect, sess, "item-1"))
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)

	eff, err := h.m.HandleEvent(ctx, ev(EventPageNext, sess, ""))
	require.NoError(t, err)
	assert.Equal(t, EffectNone, eff.Kind, "events during submission are ignored")

	close(h.blockSub)
	<-done
}
