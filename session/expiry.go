package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ExpiryKind distinguishes which timer fired.
type ExpiryKind int

const (
	// ExpiryIdle fires after a fixed inactivity window; every valid
	// owner event pushes it back.
	ExpiryIdle ExpiryKind = iota
	// ExpiryHard reflects the platform's absolute interaction-token
	// lifetime. It is set once and never refreshed.
	ExpiryHard
)

func (k ExpiryKind) String() string {
	if k == ExpiryHard {
		return "hard"
	}
	return "idle"
}

type sessionTimers struct {
	idle *time.Timer
	hard *time.Timer
}

// Supervisor schedules idle and hard expiry per session, plus free-standing
// domain timers for proposal flows that must outlive their session.
type Supervisor struct {
	mu     sync.Mutex
	timers map[string]*sessionTimers
	closed bool

	onExpire func(sessionID string, kind ExpiryKind)
	log      zerolog.Logger
}

// NewSupervisor creates a supervisor. onExpire runs on the timer goroutine
// when a session's idle or hard window elapses; it must tolerate the
// session being already gone.
func NewSupervisor(log zerolog.Logger, onExpire func(sessionID string, kind ExpiryKind)) *Supervisor {
	return &Supervisor{
		timers:   make(map[string]*sessionTimers),
		onExpire: onExpire,
		log:      log.With().Str("component", "expiry").Logger(),
	}
}

// Watch arms the idle and hard timers for a session. Watching an already
// watched session rearms both.
func (sup *Supervisor) Watch(sessionID string, idle, hard time.Duration) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	if sup.closed {
		return
	}
	if old, ok := sup.timers[sessionID]; ok {
		old.idle.Stop()
		old.hard.Stop()
	}
	sup.timers[sessionID] = &sessionTimers{
		idle: time.AfterFunc(idle, func() { sup.fire(sessionID, ExpiryIdle) }),
		hard: time.AfterFunc(hard, func() { sup.fire(sessionID, ExpiryHard) }),
	}
}

// Touch pushes the idle timer back by idle. Called for every valid,
// owner-authored event. The hard timer is deliberately left alone.
func (sup *Supervisor) Touch(sessionID string, idle time.Duration) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	if t, ok := sup.timers[sessionID]; ok {
		t.idle.Reset(idle)
	}
}

// Cancel stops both timers for a session. Entering any terminal state must
// cancel so no leaked callback fires against a destroyed session.
func (sup *Supervisor) Cancel(sessionID string) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	if t, ok := sup.timers[sessionID]; ok {
		t.idle.Stop()
		t.hard.Stop()
		delete(sup.timers, sessionID)
	}
}

// Watching reports whether the session still has armed timers.
func (sup *Supervisor) Watching(sessionID string) bool {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	_, ok := sup.timers[sessionID]
	return ok
}

// Close stops every session timer. Domain timers are not tracked and keep
// running; they hold no reference to the supervisor.
func (sup *Supervisor) Close() {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	sup.closed = true
	for id, t := range sup.timers {
		t.idle.Stop()
		t.hard.Stop()
		delete(sup.timers, id)
	}
}

func (sup *Supervisor) fire(sessionID string, kind ExpiryKind) {
	sup.mu.Lock()
	t, ok := sup.timers[sessionID]
	if ok {
		// The sibling timer must not fire for the same session.
		t.idle.Stop()
		t.hard.Stop()
		delete(sup.timers, sessionID)
	}
	sup.mu.Unlock()
	if !ok {
		return
	}
	sup.log.Debug().Str("session", sessionID).Stringer("kind", kind).Msg("session timer fired")
	sup.onExpire(sessionID, kind)
}

// Domain schedules a free-standing business timer (e.g. a challenge
// proposal window). It is independent of any session record: the callback
// runs whether or not the originating session still exists, so fn must
// re-check the counterpart resource's state itself. The returned stop
// function cancels the timer if the proposal resolves first.
func (sup *Supervisor) Domain(name string, delay time.Duration, fn func()) (stop func() bool) {
	sup.log.Debug().Str("timer", name).Dur("delay", delay).Msg("domain timer armed")
	t := time.AfterFunc(delay, fn)
	return t.Stop
}
