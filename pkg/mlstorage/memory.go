package mlstorage

import (
	"context"
	"sort"
	"sync"
)

type memoryKeyState struct {
	branches map[string]string              // branch -> head hash
	blobs    map[string][]byte              // hash -> payload, content-addressed and shared across branches
	parents  map[string]map[string][]string // branch -> hash -> parents; lineage is scoped per (key, branch, hash)
}

// MemoryProvider is an in-process Storage Provider, used for tests and the
// default single-node deployment. It is safe for concurrent use.
type MemoryProvider struct {
	mu   sync.RWMutex
	keys map[string]*memoryKeyState
}

// NewMemoryProvider constructs an empty in-process provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{keys: make(map[string]*memoryKeyState)}
}

func (p *MemoryProvider) state(key string) *memoryKeyState {
	st, ok := p.keys[key]
	if !ok {
		st = &memoryKeyState{
			branches: make(map[string]string),
			blobs:    make(map[string][]byte),
			parents:  make(map[string]map[string][]string),
		}
		p.keys[key] = st
	}
	return st
}

func (st *memoryKeyState) setParents(branch, hash string, parents []string) {
	bp, ok := st.parents[branch]
	if !ok {
		bp = make(map[string][]string)
		st.parents[branch] = bp
	}
	bp[hash] = parents
}

func (p *MemoryProvider) Get(_ context.Context, key string, lookup Lookup, _ EntryKind) (*Entry, error) {
	if (lookup.Branch == "") == (lookup.Hash == "") {
		return nil, ErrInvalidArgument.Wrap("exactly one of branch or hash must be set")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	st, ok := p.keys[key]
	if !ok {
		return nil, ErrNotFound.Wrapf("key %q", key)
	}

	hash := lookup.Hash
	if lookup.Branch != "" {
		h, ok := st.branches[lookup.Branch]
		if !ok {
			return nil, ErrNotFound.Wrapf("branch %q of key %q", lookup.Branch, key)
		}
		hash = h
	}

	payload, ok := st.blobs[hash]
	if !ok {
		return nil, ErrNotFound.Wrapf("hash %q of key %q", hash, key)
	}
	return &Entry{Payload: append([]byte(nil), payload...), Hash: hash}, nil
}

func (p *MemoryProvider) Put(_ context.Context, key, branch string, _ EntryKind, value []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state(key)
	hash := writeID(key, branch, value)

	var parents []string
	if prev, ok := st.branches[branch]; ok {
		parents = []string{prev}
	}

	st.blobs[hash] = append([]byte(nil), value...)
	st.setParents(branch, hash, parents)
	st.branches[branch] = hash
	return hash, nil
}

func (p *MemoryProvider) Head(_ context.Context, key, branch string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st, ok := p.keys[key]
	if !ok {
		return "", ErrNotFound.Wrapf("key %q", key)
	}
	hash, ok := st.branches[branch]
	if !ok {
		return "", ErrNotFound.Wrapf("branch %q of key %q", branch, key)
	}
	return hash, nil
}

// Branch forks newBranch at the resolved hash. The forked-at hash is
// registered as a root (no parents) under newBranch: lineage on the new
// branch must stop there rather than continuing into the source branch's
// pre-fork history, which that history's parent pointers (recorded under
// the source branch) would otherwise expose.
func (p *MemoryProvider) Branch(_ context.Context, key, newBranch, basedOnBranch, referHash string) error {
	if (basedOnBranch == "") == (referHash == "") {
		return ErrInvalidArgument.Wrap("exactly one of basedOnBranch or referHash must be set")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state(key)
	if _, exists := st.branches[newBranch]; exists {
		return ErrAlreadyExists.Wrapf("branch %q of key %q", newBranch, key)
	}

	hash := referHash
	if basedOnBranch != "" {
		h, ok := st.branches[basedOnBranch]
		if !ok {
			return ErrNotFound.Wrapf("branch %q of key %q", basedOnBranch, key)
		}
		hash = h
	}
	if _, ok := st.blobs[hash]; !ok {
		return ErrNotFound.Wrapf("hash %q of key %q", hash, key)
	}

	st.setParents(newBranch, hash, nil)
	st.branches[newBranch] = hash
	return nil
}

func (p *MemoryProvider) ListKeys(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]string, 0, len(p.keys))
	for k := range p.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (p *MemoryProvider) ListBranches(_ context.Context, key string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st, ok := p.keys[key]
	if !ok {
		return nil, ErrNotFound.Wrapf("key %q", key)
	}
	branches := make([]string, 0, len(st.branches))
	for b := range st.branches {
		branches = append(branches, b)
	}
	sort.Strings(branches)
	return branches, nil
}

func (p *MemoryProvider) Meta(_ context.Context, key string, lookup Lookup) ([]string, error) {
	if lookup.Branch == "" {
		return nil, ErrInvalidArgument.Wrap("branch must be set: parent lineage is branch-scoped")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	st, ok := p.keys[key]
	if !ok {
		return nil, ErrNotFound.Wrapf("key %q", key)
	}

	hash := lookup.Hash
	if hash == "" {
		h, ok := st.branches[lookup.Branch]
		if !ok {
			return nil, ErrNotFound.Wrapf("branch %q of key %q", lookup.Branch, key)
		}
		hash = h
	}

	bp, ok := st.parents[lookup.Branch]
	if !ok {
		return nil, ErrNotFound.Wrapf("branch %q of key %q has no recorded history", lookup.Branch, key)
	}
	parents, ok := bp[hash]
	if !ok {
		return nil, ErrNotFound.Wrapf("hash %q not recorded on branch %q of key %q", hash, lookup.Branch, key)
	}
	return append([]string(nil), parents...), nil
}

func (p *MemoryProvider) Merge(_ context.Context, key, headBranch, mergeBranch string, _ EntryKind, resolvedValue []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.keys[key]
	if !ok {
		return "", ErrNotFound.Wrapf("key %q", key)
	}
	headHash, ok := st.branches[headBranch]
	if !ok {
		return "", ErrNotFound.Wrapf("branch %q of key %q", headBranch, key)
	}
	mergeHash, ok := st.branches[mergeBranch]
	if !ok {
		return "", ErrNotFound.Wrapf("branch %q of key %q", mergeBranch, key)
	}

	hash := writeID(key, headBranch, resolvedValue)
	st.blobs[hash] = append([]byte(nil), resolvedValue...)
	st.setParents(headBranch, hash, []string{headHash, mergeHash})
	st.branches[headBranch] = hash
	return hash, nil
}

var _ Provider = (*MemoryProvider)(nil)
