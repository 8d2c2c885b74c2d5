package mlworkerpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handle(id string) *WorkerHandle { return &WorkerHandle{ID: id} }

func TestCacheAdmissionInvariant(t *testing.T) {
	c := NewCache(2, NewLRUPolicy(), nil, nil)
	require.NoError(t, c.Add(handle("w1")))
	require.NoError(t, c.Add(handle("w2")))
	active, cached := c.Len()
	assert.Equal(t, 0, active)
	assert.Equal(t, 2, cached)
	assert.Equal(t, 2, c.SlotCount())
}

func TestCacheActivateAndCacheBackRoundTrip(t *testing.T) {
	c := NewCache(1, NewLRUPolicy(), nil, nil)
	require.NoError(t, c.Add(handle("w1")))

	h, err := c.Activate("w1")
	require.NoError(t, err)
	assert.Equal(t, StateActive, h.State)

	h, err = c.CacheBack("w1")
	require.NoError(t, err)
	assert.Equal(t, StateCached, h.State)
}

func TestCacheActivateMissingIsNotFound(t *testing.T) {
	c := NewCache(1, NewLRUPolicy(), nil, nil)
	_, err := c.Activate("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLRURemoveEndEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(3, NewLRUPolicy(), nil, nil)
	require.NoError(t, c.Add(handle("a")))
	require.NoError(t, c.Add(handle("b")))
	require.NoError(t, c.Add(handle("c")))

	// Touch "a" via activate+cache-back so it becomes most-recently-used.
	_, err := c.Activate("a")
	require.NoError(t, err)
	_, err = c.CacheBack("a")
	require.NoError(t, err)

	victim, err := c.RemoveEnd(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", victim.ID)
}

func TestFIFORemoveEndIgnoresHitReordering(t *testing.T) {
	c := NewCache(3, NewFIFOPolicy(), nil, nil)
	require.NoError(t, c.Add(handle("a")))
	require.NoError(t, c.Add(handle("b")))
	require.NoError(t, c.Add(handle("c")))

	_, err := c.Activate("a")
	require.NoError(t, err)
	_, err = c.CacheBack("a")
	require.NoError(t, err)

	victim, err := c.RemoveEnd(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", victim.ID, "FIFO evicts the oldest insertion regardless of hits")
}

func TestLFURemoveEndPicksMinFrequencyOverAge(t *testing.T) {
	c := NewCache(2, NewLFUPolicy(), nil, nil)
	require.NoError(t, c.Add(handle("a")))
	require.NoError(t, c.Add(handle("b")))

	// "a" gets touched repeatedly; "b" never does.
	for i := 0; i < 5; i++ {
		_, err := c.Activate("a")
		require.NoError(t, err)
		_, err = c.CacheBack("a")
		require.NoError(t, err)
	}

	victim, err := c.RemoveEnd(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", victim.ID)
}

func TestRemoveEndOnEmptyCacheFails(t *testing.T) {
	c := NewCache(1, NewLRUPolicy(), nil, nil)
	_, err := c.RemoveEnd(context.Background())
	assert.ErrorIs(t, err, ErrCacheEmpty)
}

func TestCacheMetricsRecordHitsAndMisses(t *testing.T) {
	m := NewMetrics("mlpipe_test")
	c := NewCache(1, NewLRUPolicy(), m, nil)
	require.NoError(t, c.Add(handle("a")))

	_, err := c.Activate("a")
	require.NoError(t, err)
	_, err = c.Activate("ghost")
	assert.Error(t, err)

	mf, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mf)
}
