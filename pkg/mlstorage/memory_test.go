package mlstorage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProviderPutGetHead(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	hash, err := p.Put(ctx, "k1", "master", KindString, []byte("v1"))
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	head, err := p.Head(ctx, "k1", "master")
	require.NoError(t, err)
	assert.Equal(t, hash, head)

	entry, err := p.Get(ctx, "k1", Lookup{Branch: "master"}, KindString)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), entry.Payload)

	byHash, err := p.Get(ctx, "k1", Lookup{Hash: hash}, KindString)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), byHash.Payload)
}

func TestMemoryProviderPutDistinctHashesOnReplay(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	h1, err := p.Put(ctx, "k1", "master", KindString, []byte("same"))
	require.NoError(t, err)
	h2, err := p.Put(ctx, "k1", "master", KindString, []byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2, "replaying an identical payload must yield a distinct write-id")
}

func TestMemoryProviderHeadNotFoundOnUnwrittenBranch(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	_, err := p.Head(ctx, "k1", "never-written")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryProviderBranchFork(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	_, err := p.Put(ctx, "k", "master", KindString, []byte("v1"))
	require.NoError(t, err)
	h2, err := p.Put(ctx, "k", "master", KindString, []byte("v2"))
	require.NoError(t, err)

	require.NoError(t, p.Branch(ctx, "k", "dev", "master", ""))

	h3, err := p.Put(ctx, "k", "dev", KindString, []byte("v3"))
	require.NoError(t, err)

	lineageDev, err := p.Meta(ctx, "k", Lookup{Branch: "dev", Hash: h3})
	require.NoError(t, err)
	assert.Equal(t, []string{h2}, lineageDev)

	// The fork point is a root on dev: its parents on master must not leak
	// across the branch boundary.
	forkParentsOnDev, err := p.Meta(ctx, "k", Lookup{Branch: "dev", Hash: h2})
	require.NoError(t, err)
	assert.Empty(t, forkParentsOnDev)

	devHead, err := p.Head(ctx, "k", "dev")
	require.NoError(t, err)
	assert.Equal(t, h3, devHead)

	masterHead, err := p.Head(ctx, "k", "master")
	require.NoError(t, err)
	assert.Equal(t, h2, masterHead)
}

func TestMemoryProviderMerge(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	headHash, err := p.Put(ctx, "k", "master", KindString, []byte("base"))
	require.NoError(t, err)
	require.NoError(t, p.Branch(ctx, "k", "feature", "master", ""))
	mergeHash, err := p.Put(ctx, "k", "feature", KindString, []byte("feature-change"))
	require.NoError(t, err)

	newHash, err := p.Merge(ctx, "k", "master", "feature", KindString, []byte("resolved"))
	require.NoError(t, err)

	parents, err := p.Meta(ctx, "k", Lookup{Branch: "master", Hash: newHash})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{headHash, mergeHash}, parents)
}

func TestMemoryProviderGetRequiresExactlyOneLookup(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	_, err := p.Get(ctx, "k", Lookup{}, KindString)
	require.Error(t, err)

	_, err = p.Get(ctx, "k", Lookup{Branch: "a", Hash: "b"}, KindString)
	require.Error(t, err)
}

func TestMemoryProviderMetaRequiresBranch(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	hash, err := p.Put(ctx, "k", "master", KindString, []byte("v1"))
	require.NoError(t, err)

	_, err = p.Meta(ctx, "k", Lookup{Hash: hash})
	require.Error(t, err, "parent lineage is branch-scoped, Meta must reject a bare hash lookup")
}
