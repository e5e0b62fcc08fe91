package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// tombstoneTTL is how long a destroyed session id stays known so
	// that late events resolve to stale instead of silently recreating
	// state.
	tombstoneTTL = 5 * time.Minute
	sweepEvery   = 90 * time.Second
)

// entry pairs a session with its own lock so Mutate serializes per session,
// not store-wide.
type entry struct {
	mu   sync.Mutex
	sess *Session
}

// Store is the arena of live session records. Mutate is the only sanctioned
// write path: it linearizes concurrent read-modify-write attempts on the
// same session, which is what keeps two near-simultaneous events from
// interleaving their updates of page or selection.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*entry
	tombstones map[string]time.Time

	sweeper *time.Ticker
	done    chan struct{}
	log     zerolog.Logger
}

// NewStore creates a store and starts its tombstone sweeper.
func NewStore(log zerolog.Logger) *Store {
	st := &Store{
		sessions:   make(map[string]*entry),
		tombstones: make(map[string]time.Time),
		sweeper:    time.NewTicker(sweepEvery),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "session_store").Logger(),
	}
	go st.sweepRoutine()
	return st
}

// Close stops the sweeper.
func (st *Store) Close() {
	st.sweeper.Stop()
	close(st.done)
}

// Create registers a new browsing session for owner over the given snapshot
// and returns a snapshot of it.
func (st *Store) Create(ownerID, command string, items []Item, pageSize int, idle, hard time.Duration) *Session {
	now := time.Now()
	sess := &Session{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Command:       command,
		State:         StateBrowsing,
		Items:         items,
		PageSize:      pageSize,
		Quantity:      1,
		pending:       make(map[string]struct{}),
		CreatedAt:     now,
		HardExpiresAt: now.Add(hard),
		IdleExpiresAt: now.Add(idle),
	}
	st.mu.Lock()
	st.sessions[sess.ID] = &entry{sess: sess}
	st.mu.Unlock()

	st.log.Debug().Str("session", sess.ID).Str("command", command).
		Str("owner", ownerID).Int("items", len(items)).Msg("session created")
	return sess.snapshot()
}

// Get returns a snapshot of the session, or ErrStaleSession if it was
// destroyed or never existed.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	e, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrStaleSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.snapshot(), nil
}

// Mutate runs fn against the live session under its lock and returns a
// snapshot of the result. If fn returns an error it is passed through;
// fn must validate before mutating so a rejected event leaves no partial
// writes behind.
func (st *Store) Mutate(id string, fn func(*Session) error) (*Session, error) {
	st.mu.RLock()
	e, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrStaleSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.sess); err != nil {
		return nil, err
	}
	return e.sess.snapshot(), nil
}

// Destroy removes the session and tombstones its id. Idempotent.
func (st *Store) Destroy(id string) {
	st.mu.Lock()
	if _, ok := st.sessions[id]; ok {
		delete(st.sessions, id)
		st.tombstones[id] = time.Now().Add(tombstoneTTL)
		st.log.Debug().Str("session", id).Msg("session destroyed")
	}
	st.mu.Unlock()
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) sweepRoutine() {
	for {
		select {
		case <-st.sweeper.C:
			st.sweepTombstones()
		case <-st.done:
			return
		}
	}
}

func (st *Store) sweepTombstones() {
	now := time.Now()
	st.mu.Lock()
	for id, until := range st.tombstones {
		if now.After(until) {
			delete(st.tombstones, id)
		}
	}
	st.mu.Unlock()
}
