package mlworkerpool

import (
	"container/list"
	"context"
)

// LRUPolicy evicts the least-recently-used cached entry. Recency updates on
// both Track (insertion) and Touch (cache hit via Activate).
type LRUPolicy struct {
	order *list.List
	elems map[string]*list.Element
}

// NewLRUPolicy builds an empty LRU policy.
func NewLRUPolicy() *LRUPolicy {
	return &LRUPolicy{order: list.New(), elems: make(map[string]*list.Element)}
}

func (p *LRUPolicy) Name() string { return "lru" }

func (p *LRUPolicy) Track(h *WorkerHandle) {
	if elem, ok := p.elems[h.ID]; ok {
		p.order.MoveToFront(elem)
		return
	}
	p.elems[h.ID] = p.order.PushFront(h.ID)
}

func (p *LRUPolicy) Touch(h *WorkerHandle) {
	if elem, ok := p.elems[h.ID]; ok {
		p.order.MoveToFront(elem)
	}
}

func (p *LRUPolicy) Untrack(h *WorkerHandle) {
	if elem, ok := p.elems[h.ID]; ok {
		p.order.Remove(elem)
		delete(p.elems, h.ID)
	}
}

func (p *LRUPolicy) RemoveEnd(_ context.Context, cached map[string]*WorkerHandle) (string, bool) {
	for elem := p.order.Back(); elem != nil; elem = elem.Prev() {
		id := elem.Value.(string)
		if _, ok := cached[id]; ok {
			return id, true
		}
	}
	return "", false
}
