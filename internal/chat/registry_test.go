package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry(newHarness(t).deps(), Options{}, time.Minute)

	id, s := r.Create()
	require.NotEmpty(t, id)
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, r.Close(id))
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, r.Close(id), ErrSessionNotFound)

	_, err = r.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_SweepExpiresIdleSessions(t *testing.T) {
	h := newHarness(t)
	r := NewRegistry(h.deps(), Options{}, 30*time.Minute)

	staleID, stale := r.Create()
	freshID, fresh := r.Create()
	require.NoError(t, fresh.SetAPIKey(context.Background(), "key"))

	r.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	fresh.mu.Lock()
	fresh.lastUsed = time.Now().Add(30 * time.Minute)
	fresh.mu.Unlock()

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, StateClosed, stale.State())
	_, err := r.Get(staleID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = r.Get(freshID)
	assert.NoError(t, err)
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(newHarness(t).deps(), Options{}, 0)
	_, a := r.Create()
	_, b := r.Create()

	r.CloseAll()
	assert.Zero(t, r.Len())
	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, StateClosed, b.State())
}
