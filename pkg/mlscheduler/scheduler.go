package mlscheduler

import (
	"context"
	"log"

	"github.com/virtengine/mlpipe/pkg/mlmanifest"
	"github.com/virtengine/mlpipe/pkg/mlsemver"
	"github.com/virtengine/mlpipe/pkg/mlworkerpool"
)

// Component is one pipeline stage the scheduler must find or launch a
// worker for.
type Component struct {
	ID             string
	Position       int
	Key            mlsemver.MetaKey
	Packages       map[string]string
	PackagesHash   string
	PackagesSemver bool
	WorkingDir     string
	KeyForEncFS    string
	Command        []string
}

// Launcher issues the opaque, fire-and-forget worker launch exec. The
// sandbox runtime it drives is out of scope (spec.md §1); the scheduler
// only needs to know the launch was accepted, not that the worker is
// ready — readiness arrives later via OnWorkerReady.
type Launcher interface {
	Launch(ctx context.Context, c Component) error
}

// CacheFullFunc is invoked with the id of a worker evicted to make room
// for a new launch, so the coordinator can release any external state
// keyed to it (component-host leases, temp dirs, etc).
type CacheFullFunc func(evictedID string)

// Config holds the scheduler's recognized knobs (spec.md §6).
type Config struct {
	SlotCount int

	// EnableCompatibilityCheckOnCaching runs the three-level check when
	// looking for a reusable cached worker in GetWorker.
	EnableCompatibilityCheckOnCaching bool
	// EnableCompatibilityCheckOnNewWorker runs the three-level check
	// against waiting components in OnWorkerReady.
	EnableCompatibilityCheckOnNewWorker bool
	// DebugDisableLevel3Check skips the per-package superset check.
	DebugDisableLevel3Check bool
	// DebugSingletonWorker always reuses the first cached worker,
	// bypassing compatibility checks entirely.
	DebugSingletonWorker bool
	// DebugWorkerCreationDryRun logs the launch command instead of
	// invoking the Launcher.
	DebugWorkerCreationDryRun bool
}

// Scheduler drives worker reuse and launch decisions for one pipeline
// coordinator. It is not safe for concurrent use: the coordinator's
// single-threaded cooperative event loop is the only caller (spec.md §5).
type Scheduler struct {
	cfg         Config
	cache       *mlworkerpool.Cache
	launcher    Launcher
	onCacheFull CacheFullFunc
	waiting     []Component
}

// New builds a Scheduler over cache (which already carries the configured
// eviction policy) and launcher.
func New(cfg Config, cache *mlworkerpool.Cache, launcher Launcher, onCacheFull CacheFullFunc) *Scheduler {
	return &Scheduler{cfg: cfg, cache: cache, launcher: launcher, onCacheFull: onCacheFull}
}

// Waiting returns the components currently queued for a worker, oldest
// first, for introspection/tests.
func (s *Scheduler) Waiting() []Component {
	out := make([]Component, len(s.waiting))
	copy(out, s.waiting)
	return out
}

// GetWorker implements spec.md §4.G's get_worker: it walks cached workers
// in policy order looking for a reusable one, and on a miss either evicts
// to make room and launches a fresh worker, or fails with ErrPoolFull.
// callback is invoked synchronously with the reused worker's id on a hit.
func (s *Scheduler) GetWorker(ctx context.Context, c Component, callback func(workerID string)) error {
	for _, w := range s.cache.CachedInOrder() {
		if s.cfg.DebugSingletonWorker {
			if _, err := s.cache.Activate(w.ID); err != nil {
				continue
			}
			if err := stampAssignment(w, c); err != nil {
				return err
			}
			callback(w.ID)
			return nil
		}
		if s.cfg.EnableCompatibilityCheckOnCaching && s.compatible(w, c) {
			if _, err := s.cache.Activate(w.ID); err != nil {
				continue
			}
			if err := stampAssignment(w, c); err != nil {
				return err
			}
			callback(w.ID)
			return nil
		}
	}

	active, cached := s.cache.Len()
	if active >= s.cfg.SlotCount {
		return ErrPoolFull
	}
	if active+cached >= s.cfg.SlotCount {
		evicted, err := s.cache.RemoveEnd(ctx)
		if err == nil && s.onCacheFull != nil {
			s.onCacheFull(evicted.ID)
		}
	}

	s.waiting = append(s.waiting, c)
	s.cache.RecordLaunch()

	if s.cfg.DebugWorkerCreationDryRun {
		log.Printf("[mlscheduler] dry-run: would launch worker for %s: %v", c.Key.VersionedString(), c.Command)
		return nil
	}
	if err := s.launcher.Launch(ctx, c); err != nil {
		return ErrWorkerLaunch.Wrapf("launch %s: %v", c.Key.VersionedString(), err)
	}
	return nil
}

// OnWorkerReady implements spec.md §4.G's on_worker_ready: the worker w
// (freshly launched, possibly carrying an initial manifest) is admitted
// into the cached set, then matched against the oldest compatible waiting
// component. On a match, w.LastManifest is stamped with the component's
// identity and w is activated; callback fires with the matched component.
func (s *Scheduler) OnWorkerReady(ctx context.Context, w *mlworkerpool.WorkerHandle, callback func(Component)) error {
	if err := s.cache.Add(w); err != nil {
		return err
	}

	for i, c := range s.waiting {
		if s.cfg.EnableCompatibilityCheckOnNewWorker && !s.compatible(w, c) {
			continue
		}
		s.waiting = append(s.waiting[:i:i], s.waiting[i+1:]...)

		if err := stampAssignment(w, c); err != nil {
			return err
		}

		if _, err := s.cache.Activate(w.ID); err != nil {
			return err
		}
		callback(c)
		return nil
	}

	return ErrNoWaitingComponent
}

// Release returns an active worker to the cached set once its component has
// reported done. The worker keeps its stamped manifest, so later stages and
// submissions can hit it through the compatibility check.
func (s *Scheduler) Release(id string) error {
	_, err := s.cache.CacheBack(id)
	return err
}

// Poison drops a worker from the cache without returning it to the launch
// path: a worker whose component timed out or whose channel errored cannot
// be trusted to serve a future component (spec.md §9 resolves the
// unspecified per-component timeout as "evict the worker and abort the
// pipeline").
func (s *Scheduler) Poison(id string) {
	s.cache.Remove(id)
}

// compatible runs the three-level compatibility check between w's last
// manifest and component c (spec.md §4.G):
//
//	L1 identity:    name and version match exactly.
//	L2 bundle hash:  packages_hash matches.
//	L3 superset:     every (pkg, ver) in c.Packages is present and equal
//	                 in w's last manifest (skipped if DebugDisableLevel3Check;
//	                 a component with no packages never passes L3).
func (s *Scheduler) compatible(w *mlworkerpool.WorkerHandle, c Component) bool {
	m := w.LastManifest
	if m == nil {
		return false
	}
	if m.Name == c.Key.Name && m.Version.Equal(c.Key.Version) {
		return true
	}
	if m.PackagesHash != "" && m.PackagesHash == c.PackagesHash {
		return true
	}
	if !s.cfg.DebugDisableLevel3Check {
		if superset(m.Packages, c.Packages) {
			return true
		}
	}
	return false
}

func superset(have, want map[string]string) bool {
	if len(want) == 0 {
		return false
	}
	for pkg, ver := range want {
		if have[pkg] != ver {
			return false
		}
	}
	return true
}

// stampAssignment records component c's identity onto worker w, whether w
// was just launched or is being reused from the cache: a reused worker's
// last-manifest version must advance to the new component's version, not
// stay pinned to whatever it ran before. Downstream readers of
// w.LastManifest/w.Position — Scheduler.compatible and the PAC eviction
// policy's workerMatches — must never see a stale assignment from w's
// previous occupant.
func stampAssignment(w *mlworkerpool.WorkerHandle, c Component) error {
	manifest, err := mlmanifest.NewManifest(c.Key.Name, c.Key.Type, c.Key.Version, c.Packages, c.PackagesSemver)
	if err != nil {
		return err
	}
	w.LastManifest = manifest
	w.Position = c.Position
	return nil
}
