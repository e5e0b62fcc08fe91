// Package session implements the interactive session engine behind the
// bot's multi-step commands: an in-memory store of per-invocation session
// records, a pure pagination/filter engine, a workflow state machine, an
// idempotency guard and an expiry supervisor. Discord specifics stay out of
// this package; cogs adapt interactions into Events and render Effects.
package session

import (
	"errors"
	"fmt"
	"time"
)

// State is the workflow state of a session.
type State int

const (
	// StateBrowsing covers listing and selecting: pagination, filtering
	// and item selection are all legal here.
	StateBrowsing State = iota
	// StateConfirming waits for a quantity modal or a confirm button.
	StateConfirming
	// StateSubmitting means the backend call is in flight. All user
	// events are ignored until it resolves.
	StateSubmitting
	StateResolved
	StateCancelled
	StateExpired
)

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateCancelled || s == StateExpired
}

func (s State) String() string {
	switch s {
	case StateBrowsing:
		return "browsing"
	case StateConfirming:
		return "confirming"
	case StateSubmitting:
		return "submitting"
	case StateResolved:
		return "resolved"
	case StateCancelled:
		return "cancelled"
	case StateExpired:
		return "expired"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Item is a browsable element of a session's collection snapshot.
type Item interface {
	// ItemID uniquely identifies the item within the snapshot.
	ItemID() string
	// FilterFields returns the strings a filter query is matched against.
	FilterFields() []string
}

// Session is one multi-step interactive workflow bound to a single rendered
// message and owner. All mutation goes through Store.Mutate; cogs only ever
// see snapshots.
type Session struct {
	ID      string
	OwnerID string
	Command string
	State   State

	// Items is the immutable collection snapshot fetched at creation.
	Items    []Item
	Filter   string
	Page     int
	PageSize int

	// Selection references an element of Items once a select event
	// resolves it.
	Selection Item
	// Quantity is the validated submission amount. QuantityAll marks a
	// bulk action covering every sellable item in the snapshot.
	Quantity int

	pending map[string]struct{}

	CreatedAt     time.Time
	HardExpiresAt time.Time
	IdleExpiresAt time.Time
}

// QuantityAll marks a bulk submission ("sell all") carried as one action.
const QuantityAll = -1

// snapshot returns a shallow copy safe to hand outside the store lock.
// Items is immutable by contract; the pending set is copied.
func (s *Session) snapshot() *Session {
	cp := *s
	cp.pending = make(map[string]struct{}, len(s.pending))
	for k := range s.pending {
		cp.pending[k] = struct{}{}
	}
	return &cp
}

// PendingActions returns the in-flight action keys. Snapshot only.
func (s *Session) PendingActions() []string {
	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	return keys
}

// findItem resolves an item id against the snapshot.
func (s *Session) findItem(id string) (Item, bool) {
	for _, it := range s.Items {
		if it.ItemID() == id {
			return it, true
		}
	}
	return nil, false
}

// Engine error taxonomy. Cogs map these to user-visible responses; none of
// them should ever crash a handler.
var (
	// ErrStaleSession means the session was destroyed or never existed:
	// late clicks on a resolved message, or a restart lost the store.
	ErrStaleSession = errors.New("session is stale or unknown")
	// ErrNotOwner means the event actor is not the session owner. The
	// caller responds privately and changes no state.
	ErrNotOwner = errors.New("interaction is not from the session owner")
)

// ValidationError is a recoverable input error: the user is re-prompted and
// the session does not transition.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// IsValidation reports whether err is a recoverable validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
