package mlworkerpool

import "context"

// LFUPolicy evicts the cached entry with the minimum frequency/age ratio.
// age is a monotonic counter shared by all tracked entries and incremented
// whenever a new entry is tracked and on every Touch (a cache hit via
// Cache.Activate), not per-entry wall-clock time. It uses the WorkerHandle.freq
// and .insertedAt bookkeeping fields directly, same as pool.go documents.
type LFUPolicy struct {
	clock uint64
}

// NewLFUPolicy builds an empty LFU policy.
func NewLFUPolicy() *LFUPolicy { return &LFUPolicy{} }

func (p *LFUPolicy) Name() string { return "lfu" }

func (p *LFUPolicy) Track(h *WorkerHandle) {
	if h.insertedAt != 0 {
		return
	}
	p.clock++
	h.insertedAt = p.clock
	h.freq = 1
}

func (p *LFUPolicy) Touch(h *WorkerHandle) {
	p.clock++
	h.freq++
}

func (p *LFUPolicy) Untrack(h *WorkerHandle) {
	h.freq = 0
	h.insertedAt = 0
}

// RemoveEnd picks the cached entry minimizing freq/age, where age is the
// number of global clock ticks elapsed since the entry was first tracked (at
// least 1, so a never-touched entry is not a division by zero).
func (p *LFUPolicy) RemoveEnd(_ context.Context, cached map[string]*WorkerHandle) (string, bool) {
	var (
		bestID    string
		bestScore float64
		found     bool
	)
	for id, h := range cached {
		freq := h.freq
		if freq == 0 {
			freq = 1
		}
		age := p.clock - h.insertedAt + 1
		score := float64(freq) / float64(age)
		if !found || score < bestScore {
			bestID = id
			bestScore = score
			found = true
		}
	}
	return bestID, found
}
