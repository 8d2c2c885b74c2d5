package mlpac

// History is a bounded ring buffer of the most recently submitted
// pipelines, each represented as a length-L vector of (major, minor). It
// retains at most capacity entries, dropping the oldest on overflow.
type History struct {
	capacity int
	entries  [][]VersionCoord
}

// NewHistory builds an empty History retaining at most capacity pipelines.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{capacity: capacity}
}

// Len reports how many pipelines are currently retained.
func (h *History) Len() int { return len(h.entries) }

// At returns the i-th retained pipeline, oldest first.
func (h *History) At(i int) []VersionCoord { return h.entries[i] }

// Entries returns every retained pipeline, oldest first. The returned
// slice is a read-only view; callers must not mutate it.
func (h *History) Entries() [][]VersionCoord { return h.entries }

// Last returns the most recently appended pipeline, i.e. the predecessor
// p_{t-1} used by the UL update rule, and whether one exists.
func (h *History) Last() ([]VersionCoord, bool) {
	if len(h.entries) == 0 {
		return nil, false
	}
	return h.entries[len(h.entries)-1], true
}

// Append records pipeline as the newest entry, evicting the oldest if the
// ring buffer is already at capacity.
func (h *History) Append(pipeline []VersionCoord) {
	if len(h.entries) >= h.capacity {
		h.entries = append(h.entries[1:], pipeline)
		return
	}
	h.entries = append(h.entries, pipeline)
}

// AtPosition collects every historical version recorded at position k
// across all retained pipelines.
func (h *History) AtPosition(k int) []VersionCoord {
	out := make([]VersionCoord, 0, len(h.entries))
	for _, p := range h.entries {
		if k < len(p) {
			out = append(out, p[k])
		}
	}
	return out
}
