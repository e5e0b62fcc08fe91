package session

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st := NewStore(zerolog.Nop())
	t.Cleanup(st.Close)
	return st
}

func TestStoreCreateAndGet(t *testing.T) {
	st := newTestStore(t)
	sess := st.Create("owner-1", "packs", makeItems(3), 25, time.Minute, 10*time.Minute)

	require.NotEmpty(t, sess.ID)
	assert.Equal(t, StateBrowsing, sess.State)
	assert.Equal(t, "owner-1", sess.OwnerID)

	got, err := st.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	_, err = st.Get("no-such-session")
	assert.ErrorIs(t, err, ErrStaleSession)
}

func TestStoreMutateSerializesConcurrentWriters(t *testing.T) {
	st := newTestStore(t)
	sess := st.Create("owner-1", "packs", makeItems(100), 1, time.Minute, 10*time.Minute)

	// 100 concurrent page increments must all land: interleaved
	// read-modify-write would lose some.
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Mutate(sess.ID, func(s *Session) error {
				s.Page++
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := st.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Page)
}

func TestStoreMutateErrorAborts(t *testing.T) {
	st := newTestStore(t)
	sess := st.Create("owner-1", "packs", makeItems(3), 25, time.Minute, 10*time.Minute)

	_, err := st.Mutate(sess.ID, func(s *Session) error {
		return ErrNotOwner
	})
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestStoreDestroyTombstones(t *testing.T) {
	st := newTestStore(t)
	sess := st.Create("owner-1", "packs", makeItems(3), 25, time.Minute, 10*time.Minute)

	st.Destroy(sess.ID)
	st.Destroy(sess.ID) // idempotent

	_, err := st.Get(sess.ID)
	assert.ErrorIs(t, err, ErrStaleSession, "late events resolve to stale")

	_, err = st.Mutate(sess.ID, func(s *Session) error { return nil })
	assert.ErrorIs(t, err, ErrStaleSession, "stale session never silently recreated")
	assert.Zero(t, st.Len())
}

func TestStoreSnapshotsAreIsolated(t *testing.T) {
	st := newTestStore(t)
	sess := st.Create("owner-1", "packs", makeItems(3), 25, time.Minute, 10*time.Minute)

	snap, err := st.Get(sess.ID)
	require.NoError(t, err)
	snap.Page = 99

	got, err := st.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Page, "writing a snapshot must not leak into the store")
}
