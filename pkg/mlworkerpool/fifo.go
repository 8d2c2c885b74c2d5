package mlworkerpool

import (
	"container/list"
	"context"
)

// FIFOPolicy evicts the oldest insertion, never reordering on a cache hit.
type FIFOPolicy struct {
	order *list.List
	elems map[string]*list.Element
}

// NewFIFOPolicy builds an empty FIFO policy.
func NewFIFOPolicy() *FIFOPolicy {
	return &FIFOPolicy{order: list.New(), elems: make(map[string]*list.Element)}
}

func (p *FIFOPolicy) Name() string { return "fifo" }

func (p *FIFOPolicy) Track(h *WorkerHandle) {
	if _, ok := p.elems[h.ID]; ok {
		return
	}
	p.elems[h.ID] = p.order.PushFront(h.ID)
}

func (p *FIFOPolicy) Touch(h *WorkerHandle) {}

func (p *FIFOPolicy) Untrack(h *WorkerHandle) {
	if elem, ok := p.elems[h.ID]; ok {
		p.order.Remove(elem)
		delete(p.elems, h.ID)
	}
}

func (p *FIFOPolicy) RemoveEnd(_ context.Context, cached map[string]*WorkerHandle) (string, bool) {
	for elem := p.order.Back(); elem != nil; elem = elem.Prev() {
		id := elem.Value.(string)
		if _, ok := cached[id]; ok {
			return id, true
		}
	}
	return "", false
}
