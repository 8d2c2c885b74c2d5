package mlpac

import (
	"context"

	"github.com/virtengine/mlpipe/pkg/mlworkerpool"
)

// Policy is the PAC eviction policy: it selects the cached worker whose
// (position, version) the Version-Score-Matrix model scores as least
// likely to recur, falling back to LRU when the model has no opinion
// (every candidate at every occupied position exhausted without a match,
// e.g. cached workers running versions outside the tracked grid).
type Policy struct {
	state    *State
	fallback *mlworkerpool.LRUPolicy
}

// NewPolicy builds a PAC eviction policy over state.
func NewPolicy(state *State) *Policy {
	return &Policy{state: state, fallback: mlworkerpool.NewLRUPolicy()}
}

func (p *Policy) Name() string { return "pac" }

func (p *Policy) Track(h *mlworkerpool.WorkerHandle)   { p.fallback.Track(h) }
func (p *Policy) Touch(h *mlworkerpool.WorkerHandle)   { p.fallback.Touch(h) }
func (p *Policy) Untrack(h *mlworkerpool.WorkerHandle) { p.fallback.Untrack(h) }

// RemoveEnd implements least_possible_worker (spec.md §4.F): for each
// position f, walk its VSM[f] entries in ascending-score order via a
// pointer; at each step pick the occupied position whose current pointer
// entry scores lowest, and evict the first cached worker matching that
// (position, version). Falls back to LRU if the sweep exhausts every
// occupied position without finding a match.
func (p *Policy) RemoveEnd(ctx context.Context, cached map[string]*mlworkerpool.WorkerHandle) (string, bool) {
	L := p.state.Length()

	byPosition := make([][]*mlworkerpool.WorkerHandle, L)
	for _, h := range cached {
		if h.Position < 0 || h.Position >= L {
			continue
		}
		byPosition[h.Position] = append(byPosition[h.Position], h)
	}

	order := make([][]scoredCoord, L)
	pointer := make([]int, L)
	for f := 0; f < L; f++ {
		order[f] = p.state.VSM(f).ascendingOrder()
	}

	// The sweep visits at most len(order[f]) entries per position before
	// exhausting it; bound total iterations accordingly to guarantee
	// termination even if no occupied position ever matches.
	maxSteps := 0
	for f := 0; f < L; f++ {
		maxSteps += len(order[f]) + 1
	}

	for step := 0; step < maxSteps; step++ {
		bestF := -1
		bestScore := 0.0
		for f := 0; f < L; f++ {
			if len(byPosition[f]) == 0 {
				continue
			}
			if pointer[f] >= len(order[f]) {
				continue
			}
			score := order[f][pointer[f]].score
			if bestF == -1 || score < bestScore {
				bestF = f
				bestScore = score
			}
		}
		if bestF == -1 {
			break
		}

		candidate := order[bestF][pointer[bestF]].coord
		for _, h := range byPosition[bestF] {
			if workerMatches(h, candidate) {
				return h.ID, true
			}
		}
		pointer[bestF]++
	}

	return p.fallback.RemoveEnd(ctx, cached)
}

func workerMatches(h *mlworkerpool.WorkerHandle, coord VersionCoord) bool {
	if h.LastManifest == nil {
		return false
	}
	v := h.LastManifest.Version
	return v.API == coord.Major && v.Inc == coord.Minor
}
