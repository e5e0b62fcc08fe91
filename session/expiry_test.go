package session

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expiryRecorder struct {
	mu    sync.Mutex
	fired []ExpiryKind
	ch    chan ExpiryKind
}

func newExpiryRecorder() *expiryRecorder {
	return &expiryRecorder{ch: make(chan ExpiryKind, 8)}
}

func (r *expiryRecorder) onExpire(sessionID string, kind ExpiryKind) {
	r.mu.Lock()
	r.fired = append(r.fired, kind)
	r.mu.Unlock()
	r.ch <- kind
}

func (r *expiryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func waitFor(t *testing.T, ch <-chan ExpiryKind, want ExpiryKind) {
	t.Helper()
	select {
	case got := <-ch:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestIdleTimerFiresWithoutActivity(t *testing.T) {
	rec := newExpiryRecorder()
	sup := NewSupervisor(zerolog.Nop(), rec.onExpire)
	defer sup.Close()

	sup.Watch("s1", 20*time.Millisecond, time.Hour)
	waitFor(t, rec.ch, ExpiryIdle)
	assert.False(t, sup.Watching("s1"), "fired session is no longer watched")
}

func TestHardTimerFiresDespiteActivity(t *testing.T) {
	rec := newExpiryRecorder()
	sup := NewSupervisor(zerolog.Nop(), rec.onExpire)
	defer sup.Close()

	sup.Watch("s1", 30*time.Millisecond, 90*time.Millisecond)
	// Keep touching: idle never fires, hard still does.
	stop := make(chan struct{})
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				sup.Touch("s1", 30*time.Millisecond)
			case <-stop:
				return
			}
		}
	}()
	waitFor(t, rec.ch, ExpiryHard)
	close(stop)
	assert.Equal(t, 1, rec.count(), "sibling idle timer suppressed")
}

func TestCancelStopsBothTimers(t *testing.T) {
	rec := newExpiryRecorder()
	sup := NewSupervisor(zerolog.Nop(), rec.onExpire)
	defer sup.Close()

	sup.Watch("s1", 20*time.Millisecond, 40*time.Millisecond)
	sup.Cancel("s1")
	assert.False(t, sup.Watching("s1"))

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, rec.count(), "no leaked callbacks after cancel")
}

func TestTouchDefersIdle(t *testing.T) {
	rec := newExpiryRecorder()
	sup := NewSupervisor(zerolog.Nop(), rec.onExpire)
	defer sup.Close()

	sup.Watch("s1", 60*time.Millisecond, time.Hour)
	time.Sleep(35 * time.Millisecond)
	sup.Touch("s1", 60*time.Millisecond)
	time.Sleep(35 * time.Millisecond)
	assert.Zero(t, rec.count(), "touched session has not idled out yet")
	waitFor(t, rec.ch, ExpiryIdle)
}

func TestDomainTimerIndependentOfWatch(t *testing.T) {
	sup := NewSupervisor(zerolog.Nop(), func(string, ExpiryKind) {})

	ran := make(chan struct{})
	sup.Domain("challenge", 20*time.Millisecond, func() { close(ran) })

	// Closing the supervisor does not stop domain timers: they may
	// outlive every session.
	sup.Close()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("domain timer did not run")
	}
}

func TestDomainTimerStop(t *testing.T) {
	sup := NewSupervisor(zerolog.Nop(), func(string, ExpiryKind) {})
	defer sup.Close()

	ran := make(chan struct{}, 1)
	stop := sup.Domain("challenge", 40*time.Millisecond, func() { ran <- struct{}{} })
	assert.True(t, stop())

	select {
	case <-ran:
		t.Fatal("stopped domain timer still ran")
	case <-time.After(100 * time.Millisecond):
	}
}
