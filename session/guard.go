package session

// Idempotency guard. Two near-simultaneous events carrying the same action
// key must collapse into one submission: TryAcquire hands the key to
// exactly one caller, and the loser ignores its event silently. Acquire and
// release both go through Mutate so they serialize with every other session
// write.

// TryAcquire attempts to claim actionKey for the session. It returns false
// if the key is already in flight, in which case the caller must drop the
// event without rendering or erroring.
func (st *Store) TryAcquire(id, actionKey string) (bool, error) {
	acquired := false
	_, err := st.Mutate(id, func(s *Session) error {
		if _, busy := s.pending[actionKey]; busy {
			return nil
		}
		s.pending[actionKey] = struct{}{}
		acquired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Release returns actionKey to the session. Safe to call after the session
// was destroyed; a stale release is a no-op.
func (st *Store) Release(id, actionKey string) {
	_, _ = st.Mutate(id, func(s *Session) error {
		delete(s.pending, actionKey)
		return nil
	})
}

type duplicateActionError struct{}

func (duplicateActionError) Error() string { return "duplicate action" }

// ErrDuplicateAction is returned by WithAction when the action key was
// already in flight. Callers ignore the event on this error.
var ErrDuplicateAction error = duplicateActionError{}

// WithAction runs fn while holding actionKey, releasing it on every exit
// path. This replaces the hand-maintained add/delete bookkeeping that
// inevitably leaks a key on an early return.
func (st *Store) WithAction(id, actionKey string, fn func() error) error {
	ok, err := st.TryAcquire(id, actionKey)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateAction
	}
	defer st.Release(id, actionKey)
	return fn()
}
