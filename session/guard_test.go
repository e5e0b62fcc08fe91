package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireExactlyOneWinner(t *testing.T) {
	st := newTestStore(t)
	sess := st.Create("owner-1", "packs", makeItems(3), 25, time.Minute, 10*time.Minute)

	const racers = 16
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.TryAcquire(sess.ID, "submit")
			require.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins, "same action key yields exactly one acquisition")
}

func TestReleaseAllowsReacquire(t *testing.T) {
	st := newTestStore(t)
	sess := st.Create("owner-1", "packs", makeItems(3), 25, time.Minute, 10*time.Minute)

	ok, err := st.TryAcquire(sess.ID, "page")
	require.NoError(t, err)
	require.True(t, ok)

	st.Release(sess.ID, "page")

	ok, err = st.TryAcquire(sess.ID, "page")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseAfterDestroyIsNoop(t *testing.T) {
	st := newTestStore(t)
	sess := st.Create("owner-1", "packs", makeItems(3), 25, time.Minute, 10*time.Minute)
	st.Destroy(sess.ID)
	st.Release(sess.ID, "submit") // must not panic or recreate
	_, err := st.Get(sess.ID)
	assert.ErrorIs(t, err, ErrStaleSession)
}

func TestWithActionReleasesOnEveryPath(t *testing.T) {
	st := newTestStore(t)
	sess := st.Create("owner-1", "packs", makeItems(3), 25, time.Minute, 10*time.Minute)

	boom := errors.New("boom")
	err := st.WithAction(sess.ID, "submit", func() error { return boom })
	assert.ErrorIs(t, err, boom)

	// The error path released the key.
	err = st.WithAction(sess.ID, "submit", func() error { return nil })
	assert.NoError(t, err)

	// While held, a second caller gets ErrDuplicateAction.
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = st.WithAction(sess.ID, "submit", func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	err = st.WithAction(sess.ID, "submit", func() error { return nil })
	assert.ErrorIs(t, err, ErrDuplicateAction)
	close(release)
}
