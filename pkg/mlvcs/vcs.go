// Package mlvcs implements the semantic versioned content-addressed store:
// a two-level mapping of (component-type, name, semantic-version) keys to
// blob hashes, built on top of an abstract mlstorage.Provider.
package mlvcs

import (
	"context"
	"strings"

	"github.com/virtengine/mlpipe/pkg/mlsemver"
	"github.com/virtengine/mlpipe/pkg/mlstorage"
)

const (
	versionMappingSegment = "VersionMapping"
	entitySegment         = "Entity"
)

// VCS is the semantic VCS layer: a VersionMapping string store keyed by the
// fully-versioned MetaKey text, and an Entity file store keyed by the
// unversioned (type, name) pair, both built on one mlstorage.Provider.
type VCS struct {
	provider mlstorage.Provider
	prefix   string
}

// New constructs a VCS over provider, namespacing every key under prefix.
func New(provider mlstorage.Provider, prefix string) *VCS {
	return &VCS{provider: provider, prefix: prefix}
}

func (v *VCS) entityKey(key mlsemver.MetaKey) string {
	return v.prefix + "::" + entitySegment + "::" + key.UnversionedString()
}

func (v *VCS) versionMappingKey(key mlsemver.MetaKey) string {
	return v.prefix + "::" + versionMappingSegment + "::" + key.VersionedString()
}

// Put writes payload to the Entity store under key.Version.Branch, then
// records the resulting hash in the VersionMapping at the fully-versioned
// key. Returns the new content hash.
func (v *VCS) Put(ctx context.Context, key mlsemver.MetaKey, payload []byte) (string, error) {
	branch := key.Version.Branch
	hash, err := v.provider.Put(ctx, v.entityKey(key), branch, mlstorage.KindFile, payload)
	if err != nil {
		return "", err
	}
	if _, err := v.provider.Put(ctx, v.versionMappingKey(key), branch, mlstorage.KindString, []byte(hash)); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBranchHead reads the Entity head at key.Version.Branch, i.e. the most
// recent commit regardless of which semantic version it was tagged with.
func (v *VCS) GetBranchHead(ctx context.Context, key mlsemver.MetaKey) ([]byte, error) {
	hash, err := v.provider.Head(ctx, v.entityKey(key), key.Version.Branch)
	if err != nil {
		return nil, err
	}
	entry, err := v.provider.Get(ctx, v.entityKey(key), mlstorage.Lookup{Hash: hash}, mlstorage.KindFile)
	if err != nil {
		return nil, err
	}
	return entry.Payload, nil
}

func (v *VCS) resolveVersionHash(ctx context.Context, key mlsemver.MetaKey) (string, error) {
	vm, err := v.provider.Get(ctx, v.versionMappingKey(key), mlstorage.Lookup{Branch: key.Version.Branch}, mlstorage.KindString)
	if err != nil {
		return "", err
	}
	return string(vm.Payload), nil
}

// GetSemanticVersion resolves the hash recorded for the exact semantic
// version in key, then returns the Entity payload at that hash. Fails with
// ErrNotFound if the VersionMapping entry is absent.
func (v *VCS) GetSemanticVersion(ctx context.Context, key mlsemver.MetaKey) ([]byte, error) {
	hash, err := v.resolveVersionHash(ctx, key)
	if err != nil {
		return nil, err
	}
	entry, err := v.provider.Get(ctx, v.entityKey(key), mlstorage.Lookup{Hash: hash}, mlstorage.KindFile)
	if err != nil {
		return nil, err
	}
	return entry.Payload, nil
}

// BranchOnSemanticVersion resolves key's hash, forks the Entity branch to
// newBranch pointing at that hash, and records the same hash in the
// VersionMapping under the new branch (same api/inc, new branch name).
func (v *VCS) BranchOnSemanticVersion(ctx context.Context, key mlsemver.MetaKey, newBranch string) error {
	hash, err := v.resolveVersionHash(ctx, key)
	if err != nil {
		return err
	}
	if err := v.provider.Branch(ctx, v.entityKey(key), newBranch, "", hash); err != nil {
		return err
	}
	newKey := mlsemver.MetaKey{
		Type: key.Type,
		Name: key.Name,
		Version: mlsemver.SemanticVersion{
			Branch: newBranch,
			API:    key.Version.API,
			Inc:    key.Version.Inc,
		},
	}
	_, err = v.provider.Put(ctx, v.versionMappingKey(newKey), newBranch, mlstorage.KindString, []byte(hash))
	return err
}

// Merge performs a three-way merge of headKey's and mergeHeadKey's branches
// using the caller-resolved resolvedPayload, then records the new hash in
// the VersionMapping under newHeadKey. All three keys must share (type,
// name); conflict resolution is the caller's responsibility.
func (v *VCS) Merge(ctx context.Context, headKey, mergeHeadKey, newHeadKey mlsemver.MetaKey, resolvedPayload []byte) (string, error) {
	if !headKey.TypeNameEqual(mergeHeadKey) || !headKey.TypeNameEqual(newHeadKey) {
		return "", ErrKeyMismatch
	}
	hash, err := v.provider.Merge(ctx, v.entityKey(headKey), headKey.Version.Branch, mergeHeadKey.Version.Branch, mlstorage.KindFile, resolvedPayload)
	if err != nil {
		return "", err
	}
	if _, err := v.provider.Put(ctx, v.versionMappingKey(newHeadKey), newHeadKey.Version.Branch, mlstorage.KindString, []byte(hash)); err != nil {
		return "", err
	}
	return hash, nil
}

// Lineage walks parent pointers starting from key's resolved version hash,
// newest first, staying within key.Version.Branch throughout. Parent
// lineage is branch-scoped (mlstorage.Lookup): a hash that was forked onto
// this branch carries no parents here, so the walk stops at the fork point
// rather than continuing into the source branch's pre-fork history. A
// single-parent edge continues the walk; a node with no parents ends it; a
// multi-parent (merge) node returns ErrMergeAncestor alongside the lineage
// accumulated so far.
func (v *VCS) Lineage(ctx context.Context, key mlsemver.MetaKey) ([]string, error) {
	hash, err := v.resolveVersionHash(ctx, key)
	if err != nil {
		return nil, err
	}
	branch := key.Version.Branch

	var out []string
	current := hash
	for {
		out = append(out, current)
		parents, err := v.provider.Meta(ctx, v.entityKey(key), mlstorage.Lookup{Branch: branch, Hash: current})
		if err != nil {
			return out, err
		}
		switch len(parents) {
		case 0:
			return out, nil
		case 1:
			current = parents[0]
		default:
			return out, ErrMergeAncestor
		}
	}
}

// ListComponents enumerates every (type, name) entity known to the store.
func (v *VCS) ListComponents(ctx context.Context) ([]mlsemver.MetaKey, error) {
	keys, err := v.provider.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	prefix := v.prefix + "::" + entitySegment + "::"
	var out []mlsemver.MetaKey
	for _, k := range keys {
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		mk, err := mlsemver.ParseMetaKey(rest)
		if err != nil {
			continue
		}
		out = append(out, mk)
	}
	return out, nil
}

// ListBranches enumerates every branch recorded for key's (type, name)
// entity.
func (v *VCS) ListBranches(ctx context.Context, key mlsemver.MetaKey) ([]string, error) {
	return v.provider.ListBranches(ctx, v.entityKey(key))
}

// ListVersions enumerates every semantic version ever committed for key's
// (type, name), across all branches.
func (v *VCS) ListVersions(ctx context.Context, key mlsemver.MetaKey) ([]mlsemver.SemanticVersion, error) {
	keys, err := v.provider.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	prefix := v.prefix + "::" + versionMappingSegment + "::" + key.UnversionedString() + "::"
	var out []mlsemver.SemanticVersion
	for _, k := range keys {
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		ver, err := mlsemver.ParseSemanticVersion(rest)
		if err != nil {
			continue
		}
		out = append(out, ver)
	}
	return out, nil
}
