// Package mlworkerpool implements the policy-agnostic worker pool cache: an
// ordered set of live worker handles split into active and cached subsets,
// with pluggable eviction policies (LRU, FIFO, LFU, and the pipeline-aware
// policy in mlpac). The coordinator runs a single-threaded cooperative event
// loop (see the scheduler package), so Cache does none of its own locking.
package mlworkerpool

import (
	"context"
	"time"

	"github.com/virtengine/mlpipe/pkg/mlmanifest"
)

// State is the lifecycle stage of a worker handle.
type State int

const (
	StateLaunching State = iota
	StateCached
	StateActive
	StateExiting
)

func (s State) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateCached:
		return "cached"
	case StateActive:
		return "active"
	case StateExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// WorkerHandle is the coordinator's view of one live worker process.
type WorkerHandle struct {
	ID           string
	LastManifest *mlmanifest.Manifest
	State        State
	LastUsed     time.Time

	// Position is the pipeline index (0-based) of the component this
	// worker was last assigned to, or -1 if never assigned. The PAC
	// policy reads it to locate the worker's (major, minor) coordinate in
	// VSM[Position]; other policies ignore it.
	Position int

	// freq and insertedAt are bookkeeping fields owned by the LFU policy;
	// other policies ignore them.
	freq       uint64
	insertedAt uint64
}

// Policy decides eviction order for the cached set. Track/Touch/Untrack let
// a policy maintain its own bookkeeping (list position, frequency counters)
// alongside the Cache's maps; RemoveEnd picks the victim without removing it
// from the cache — the caller (Cache.RemoveEnd) does that.
type Policy interface {
	Name() string
	Track(h *WorkerHandle)
	Touch(h *WorkerHandle)
	Untrack(h *WorkerHandle)
	RemoveEnd(ctx context.Context, cached map[string]*WorkerHandle) (string, bool)
}

// Cache holds the active/cached worker sets. It does not enforce the
// admission invariant |active|+|cached| <= slotCount; that is the caller's
// responsibility:
// RemoveEnd must be invoked to make room before Add when the pool is full.
// Cache itself performs no locking, matching the single-threaded cooperative
// coordinator loop it is designed to run under.
type Cache struct {
	slotCount int
	policy    Policy
	active    map[string]*WorkerHandle
	cached    map[string]*WorkerHandle
	metrics   *Metrics
	mirror    *RedisMirror
}

// NewCache builds an empty Cache bound to slotCount total worker slots and
// the given eviction policy. metrics and mirror may be nil.
func NewCache(slotCount int, policy Policy, metrics *Metrics, mirror *RedisMirror) *Cache {
	return &Cache{
		slotCount: slotCount,
		policy:    policy,
		active:    make(map[string]*WorkerHandle),
		cached:    make(map[string]*WorkerHandle),
		metrics:   metrics,
		mirror:    mirror,
	}
}

// SlotCount returns the configured worker-set size.
func (c *Cache) SlotCount() int { return c.slotCount }

// Len reports the current active and cached set sizes.
func (c *Cache) Len() (active, cached int) {
	return len(c.active), len(c.cached)
}

// Add admits a new worker handle into the cached set.
func (c *Cache) Add(h *WorkerHandle) error {
	if _, ok := c.active[h.ID]; ok {
		return ErrAlreadyExists.Wrapf("worker %q already active", h.ID)
	}
	if _, ok := c.cached[h.ID]; ok {
		return ErrAlreadyExists.Wrapf("worker %q already cached", h.ID)
	}
	h.State = StateCached
	h.LastUsed = time.Now()
	c.cached[h.ID] = h
	c.policy.Track(h)
	c.mirrorOccupancy()
	return nil
}

// Activate moves a worker from cached to active, recording a cache hit.
func (c *Cache) Activate(id string) (*WorkerHandle, error) {
	h, ok := c.cached[id]
	if !ok {
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return nil, ErrNotFound.Wrapf("no cached worker %q", id)
	}
	delete(c.cached, id)
	c.policy.Touch(h)
	h.State = StateActive
	h.LastUsed = time.Now()
	c.active[id] = h
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	c.mirrorOccupancy()
	return h, nil
}

// CacheBack moves a worker from active to cached, idle but warm.
func (c *Cache) CacheBack(id string) (*WorkerHandle, error) {
	h, ok := c.active[id]
	if !ok {
		return nil, ErrNotFound.Wrapf("no active worker %q", id)
	}
	delete(c.active, id)
	h.State = StateCached
	h.LastUsed = time.Now()
	c.cached[id] = h
	c.policy.Track(h)
	c.mirrorOccupancy()
	return h, nil
}

// Get looks up a worker handle in either set.
func (c *Cache) Get(id string) (*WorkerHandle, bool) {
	if h, ok := c.active[id]; ok {
		return h, true
	}
	h, ok := c.cached[id]
	return h, ok
}

// RemoveEnd asks the policy for an eviction victim among cached workers,
// removes it from the cache, and returns it. Callers must notify any
// external state keyed to the evicted id (component-host leases, etc).
func (c *Cache) RemoveEnd(ctx context.Context) (*WorkerHandle, error) {
	if len(c.cached) == 0 {
		return nil, ErrCacheEmpty
	}
	id, ok := c.policy.RemoveEnd(ctx, c.cached)
	if !ok {
		return nil, ErrCacheEmpty
	}
	h := c.cached[id]
	delete(c.cached, id)
	h.State = StateExiting
	c.policy.Untrack(h)
	if c.metrics != nil {
		c.metrics.recordEviction()
	}
	c.mirrorOccupancy()
	return h, nil
}

// Remove drops a worker handle from whichever set currently holds it,
// without going through policy-driven eviction (used for exit/poison).
func (c *Cache) Remove(id string) {
	if h, ok := c.cached[id]; ok {
		delete(c.cached, id)
		c.policy.Untrack(h)
	}
	delete(c.active, id)
	c.mirrorOccupancy()
}

// CachedInOrder returns cached workers in the policy's eviction order,
// next victim first.
func (c *Cache) CachedInOrder() []*WorkerHandle {
	out := make([]*WorkerHandle, 0, len(c.cached))
	remaining := make(map[string]*WorkerHandle, len(c.cached))
	for k, v := range c.cached {
		remaining[k] = v
	}
	for len(remaining) > 0 {
		id, ok := c.policy.RemoveEnd(context.Background(), remaining)
		if !ok {
			break
		}
		out = append(out, remaining[id])
		delete(remaining, id)
	}
	return out
}

// RecordLaunch increments the launch counter for a newly started worker
// process, independent of cache admission.
func (c *Cache) RecordLaunch() {
	if c.metrics != nil {
		c.metrics.recordLaunch()
	}
}

func (c *Cache) mirrorOccupancy() {
	if c.mirror == nil {
		return
	}
	c.mirror.Publish(len(c.active), len(c.cached), c.slotCount)
}
