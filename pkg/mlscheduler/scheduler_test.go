package mlscheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtengine/mlpipe/pkg/mlmanifest"
	"github.com/virtengine/mlpipe/pkg/mlsemver"
	"github.com/virtengine/mlpipe/pkg/mlworkerpool"
)

type fakeLauncher struct {
	launches []Component
	ready    []*mlworkerpool.WorkerHandle
	launchFn func(c Component) *mlworkerpool.WorkerHandle
}

func (f *fakeLauncher) Launch(ctx context.Context, c Component) error {
	f.launches = append(f.launches, c)
	if f.launchFn != nil {
		if w := f.launchFn(c); w != nil {
			f.ready = append(f.ready, w)
		}
	}
	return nil
}

func componentFor(name string, api, inc uint32, packages map[string]string) Component {
	hash, err := mlmanifest.ComputePackagesHash(name, packages)
	if err != nil {
		panic(err)
	}
	return Component{
		ID:           name + "-id",
		Key:          mlsemver.MetaKey{Type: mlsemver.ComponentLibrary, Name: name, Version: mlsemver.SemanticVersion{Branch: "master", API: api, Inc: inc}},
		Packages:     packages,
		PackagesHash: hash,
	}
}

func TestGetWorkerLaunchesFreshWhenCacheEmpty(t *testing.T) {
	cache := mlworkerpool.NewCache(2, mlworkerpool.NewLRUPolicy(), nil, nil)
	launcher := &fakeLauncher{}
	s := New(Config{SlotCount: 2, EnableCompatibilityCheckOnCaching: true}, cache, launcher, nil)

	called := false
	c := componentFor("A", 0, 0, map[string]string{"numpy": "1.0"})
	err := s.GetWorker(context.Background(), c, func(id string) { called = true })
	require.NoError(t, err)
	assert.False(t, called, "no cached worker yet, callback must not fire")
	assert.Len(t, launcher.launches, 1)
	assert.Len(t, s.Waiting(), 1)
}

func TestGetWorkerReusesCompatibleCachedWorker(t *testing.T) {
	cache := mlworkerpool.NewCache(2, mlworkerpool.NewLRUPolicy(), nil, nil)
	launcher := &fakeLauncher{}
	s := New(Config{SlotCount: 2, EnableCompatibilityCheckOnCaching: true}, cache, launcher, nil)

	c := componentFor("A", 0, 0, map[string]string{"numpy": "1.0"})
	m, err := mlmanifest.NewManifest(c.Key.Name, c.Key.Type, c.Key.Version, c.Packages, false)
	require.NoError(t, err)
	w := &mlworkerpool.WorkerHandle{ID: "w1", LastManifest: m}
	require.NoError(t, cache.Add(w))

	var reused string
	err = s.GetWorker(context.Background(), c, func(id string) { reused = id })
	require.NoError(t, err)
	assert.Equal(t, "w1", reused)
	assert.Empty(t, launcher.launches)
}

// TestGetWorkerStampsReusedWorkerManifest asserts that a cache hit advances
// the reused worker's last-manifest/position to the newly assigned
// component, rather than leaving it pointing at whatever it last ran.
func TestGetWorkerStampsReusedWorkerManifest(t *testing.T) {
	cache := mlworkerpool.NewCache(2, mlworkerpool.NewLRUPolicy(), nil, nil)
	launcher := &fakeLauncher{}
	s := New(Config{SlotCount: 2, EnableCompatibilityCheckOnCaching: true}, cache, launcher, nil)

	first := componentFor("A", 0, 0, map[string]string{"numpy": "1.0"})
	first.Position = 0
	m, err := mlmanifest.NewManifest(first.Key.Name, first.Key.Type, first.Key.Version, first.Packages, false)
	require.NoError(t, err)
	w := &mlworkerpool.WorkerHandle{ID: "w1", LastManifest: m, Position: 0}
	require.NoError(t, cache.Add(w))

	_, err = cache.Activate("w1")
	require.NoError(t, err)
	_, err = cache.CacheBack("w1")
	require.NoError(t, err)

	second := componentFor("A", 0, 1, map[string]string{"numpy": "1.0"})
	second.Position = 1
	var reused string
	err = s.GetWorker(context.Background(), second, func(id string) { reused = id })
	require.NoError(t, err)
	require.Equal(t, "w1", reused)

	assert.Equal(t, second.Key.Version, w.LastManifest.Version, "reused worker's manifest version must advance")
	assert.Equal(t, 1, w.Position, "reused worker's position must advance")
}

// TestGetWorkerSingletonModeStampsReusedWorkerManifest is the same check
// for the DebugSingletonWorker path, which bypasses compatibility checks
// entirely but must still stamp the assignment.
func TestGetWorkerSingletonModeStampsReusedWorkerManifest(t *testing.T) {
	cache := mlworkerpool.NewCache(1, mlworkerpool.NewLRUPolicy(), nil, nil)
	launcher := &fakeLauncher{}
	s := New(Config{SlotCount: 1, DebugSingletonWorker: true}, cache, launcher, nil)

	w := &mlworkerpool.WorkerHandle{ID: "w1", Position: -1}
	require.NoError(t, cache.Add(w))

	c := componentFor("Z", 9, 9, map[string]string{"totally": "different"})
	c.Position = 2
	var reused string
	err := s.GetWorker(context.Background(), c, func(id string) { reused = id })
	require.NoError(t, err)
	assert.Equal(t, "w1", reused)
	require.NotNil(t, w.LastManifest)
	assert.Equal(t, c.Key.Version, w.LastManifest.Version)
	assert.Equal(t, 2, w.Position)
}

func TestGetWorkerSingletonModeReusesFirstRegardlessOfIdentity(t *testing.T) {
	cache := mlworkerpool.NewCache(1, mlworkerpool.NewLRUPolicy(), nil, nil)
	launcher := &fakeLauncher{}
	s := New(Config{SlotCount: 1, DebugSingletonWorker: true}, cache, launcher, nil)

	w := &mlworkerpool.WorkerHandle{ID: "w1"}
	require.NoError(t, cache.Add(w))

	c := componentFor("Z", 9, 9, map[string]string{"totally": "different"})
	var reused string
	err := s.GetWorker(context.Background(), c, func(id string) { reused = id })
	require.NoError(t, err)
	assert.Equal(t, "w1", reused)
}

func TestGetWorkerPoolFullWhenAllActive(t *testing.T) {
	cache := mlworkerpool.NewCache(1, mlworkerpool.NewLRUPolicy(), nil, nil)
	launcher := &fakeLauncher{}
	s := New(Config{SlotCount: 1, EnableCompatibilityCheckOnCaching: true}, cache, launcher, nil)

	require.NoError(t, cache.Add(&mlworkerpool.WorkerHandle{ID: "w1"}))
	_, err := cache.Activate("w1")
	require.NoError(t, err)

	c := componentFor("A", 0, 0, nil)
	err = s.GetWorker(context.Background(), c, func(string) {})
	assert.ErrorIs(t, err, ErrPoolFull)
}

func TestGetWorkerEvictsAndNotifiesCacheFull(t *testing.T) {
	cache := mlworkerpool.NewCache(1, mlworkerpool.NewLRUPolicy(), nil, nil)
	launcher := &fakeLauncher{}
	var evictedID string
	s := New(Config{SlotCount: 1, EnableCompatibilityCheckOnCaching: true}, cache, launcher, func(id string) { evictedID = id })

	existing := componentFor("A", 0, 0, map[string]string{"numpy": "1.0"})
	m, err := mlmanifest.NewManifest(existing.Key.Name, existing.Key.Type, existing.Key.Version, existing.Packages, false)
	require.NoError(t, err)
	require.NoError(t, cache.Add(&mlworkerpool.WorkerHandle{ID: "stale", LastManifest: m}))

	incompatible := componentFor("B", 0, 0, map[string]string{"pandas": "2.0"})
	err = s.GetWorker(context.Background(), incompatible, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, "stale", evictedID)
}

func TestOnWorkerReadyMatchesOldestWaitingComponent(t *testing.T) {
	cache := mlworkerpool.NewCache(2, mlworkerpool.NewLRUPolicy(), nil, nil)
	launcher := &fakeLauncher{}
	s := New(Config{SlotCount: 2, EnableCompatibilityCheckOnNewWorker: false}, cache, launcher, nil)

	c1 := componentFor("A", 0, 0, nil)
	c1.Position = 1
	require.NoError(t, s.GetWorker(context.Background(), c1, func(string) {}))

	w := &mlworkerpool.WorkerHandle{ID: "w-new"}
	var matched Component
	err := s.OnWorkerReady(context.Background(), w, func(c Component) { matched = c })
	require.NoError(t, err)
	assert.Equal(t, c1.ID, matched.ID)
	assert.Equal(t, 1, w.Position)
	assert.Equal(t, StateOf(t, cache, "w-new"), mlworkerpool.StateActive)
	assert.Empty(t, s.Waiting())
}

// TestReleaseMakesWorkerReusable walks the full reuse cycle: a worker
// assigned through OnWorkerReady is released after its component reports
// done, and the next GetWorker for the same component hits it instead of
// launching.
func TestReleaseMakesWorkerReusable(t *testing.T) {
	cache := mlworkerpool.NewCache(2, mlworkerpool.NewLRUPolicy(), nil, nil)
	launcher := &fakeLauncher{}
	s := New(Config{SlotCount: 2, EnableCompatibilityCheckOnCaching: true}, cache, launcher, nil)

	c := componentFor("A", 0, 0, map[string]string{"numpy": "1.0"})
	require.NoError(t, s.GetWorker(context.Background(), c, func(string) {}))
	require.Len(t, launcher.launches, 1)

	w := &mlworkerpool.WorkerHandle{ID: "w1"}
	require.NoError(t, s.OnWorkerReady(context.Background(), w, func(Component) {}))
	require.Equal(t, mlworkerpool.StateActive, w.State)

	require.NoError(t, s.Release("w1"))
	assert.Equal(t, mlworkerpool.StateCached, w.State)

	var reused string
	require.NoError(t, s.GetWorker(context.Background(), c, func(id string) { reused = id }))
	assert.Equal(t, "w1", reused)
	assert.Len(t, launcher.launches, 1, "release must make the warm worker hit, not launch")
}

func StateOf(t *testing.T, cache *mlworkerpool.Cache, id string) mlworkerpool.State {
	t.Helper()
	h, ok := cache.Get(id)
	require.True(t, ok)
	return h.State
}
