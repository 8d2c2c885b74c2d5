// Package mlstorage specifies the abstract Storage Provider contract that
// the semantic VCS layer is built on, plus two concrete implementations: an
// in-process MemoryProvider and an embedded-KV BadgerProvider.
package mlstorage

import "context"

// EntryKind distinguishes payloads stored as opaque byte blobs ("file") from
// payloads that are themselves short UTF-8 strings (branch-head pointers,
// version-mapping hashes).
type EntryKind int

const (
	KindFile EntryKind = iota
	KindString
)

// Lookup selects an entry to read. Get requires exactly one of Branch or
// Hash, since blob content is addressed globally. Meta requires Branch
// always: parent lineage is recorded per (key, branch, hash), so the same
// hash can carry different parents on different branches (a branch forked
// at that hash has no parents there, even though the branch it forked from
// does). Hash additionally pins Meta to a specific historical commit on
// that branch instead of the branch head.
type Lookup struct {
	Branch string
	Hash   string
}

// Entry is the result of a successful Get.
type Entry struct {
	Payload []byte
	// Hash is the content address the payload was stored under.
	Hash string
}

// Provider is the abstract byte-keyed blob+branch store every physical
// backend (filesystem, RDBMS, remote KV) must implement. Providers may be
// single-writer or multi-writer with their own branching; this interface
// does not assume either.
type Provider interface {
	// Get reads an entry by branch head or by content hash. Exactly one of
	// lookup.Branch or lookup.Hash must be set. Returns ErrNotFound if the
	// key/branch/hash is absent.
	Get(ctx context.Context, key string, lookup Lookup, kind EntryKind) (*Entry, error)

	// Put writes value under key on branch, advancing that branch's head,
	// and returns the new content hash.
	Put(ctx context.Context, key, branch string, kind EntryKind, value []byte) (string, error)

	// Head returns the current branch-head hash for key. Returns
	// ErrNotFound if the branch has never been written.
	Head(ctx context.Context, key, branch string) (string, error)

	// Branch forks newBranch from exactly one of basedOnBranch's current
	// head or referHash.
	Branch(ctx context.Context, key, newBranch, basedOnBranch, referHash string) error

	// ListKeys enumerates every key known to the provider.
	ListKeys(ctx context.Context) ([]string, error)

	// ListBranches enumerates every branch recorded for key.
	ListBranches(ctx context.Context, key string) ([]string, error)

	// Meta returns the parent hashes recorded at commit time for the entry
	// resolved by lookup, scoped to lookup.Branch (see Lookup). A hash
	// forked onto a new branch has no parents under that branch, even if
	// it has parents recorded under the branch it was forked from.
	Meta(ctx context.Context, key string, lookup Lookup) ([]string, error)

	// Merge performs a three-way merge of headBranch and mergeBranch using
	// the caller-resolved payload, recording both ancestors as parents, and
	// returns the new hash.
	Merge(ctx context.Context, key, headBranch, mergeBranch string, kind EntryKind, resolvedValue []byte) (string, error)
}
