package mlstorage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const (
	storageSchemaVersion = 1
	storageSchemaKey     = "mlstorage/meta/schema_version"
	storageBlobPrefix    = "mlstorage/blob/"
	storageParentsPrefix = "mlstorage/parents/"
	storageBranchPrefix  = "mlstorage/branch/"
	storageKeyPrefix     = "mlstorage/keys/"
)

// BadgerProvider is an embedded-KV on-disk Storage Provider, persisting
// branch heads, content blobs, and parent pointers as Badger keys rather
// than directory entries. Parent pointers are namespaced per (key, branch,
// hash): the same content hash forked onto a new branch carries no parents
// there, independent of whatever parents it carries on the branch it was
// forked from.
type BadgerProvider struct {
	db *badger.DB
}

// OpenBadgerProvider opens or creates the Badger-backed store at path. When
// inMemory is true, path is ignored and the store lives only in memory.
func OpenBadgerProvider(path string, inMemory bool) (*BadgerProvider, error) {
	if path == "" {
		path = "data/mlstorage"
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithLogger(nil).WithInMemory(true)
	} else {
		opts = opts.WithValueDir(filepath.Join(path, "value"))
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, ErrBackend.Wrapf("open badger store: %v", err)
	}

	p := &BadgerProvider{db: db}
	if err := p.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *BadgerProvider) ensureSchema() error {
	return p.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(storageSchemaKey))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return txn.Set([]byte(storageSchemaKey), []byte(fmt.Sprintf("%d", storageSchemaVersion)))
			}
			return err
		}
		return item.Value(func(val []byte) error {
			version := strings.TrimSpace(string(val))
			if version == fmt.Sprintf("%d", storageSchemaVersion) {
				return nil
			}
			return fmt.Errorf("unsupported mlstorage schema version %s", version)
		})
	})
}

// Close closes the underlying Badger database.
func (p *BadgerProvider) Close() error {
	return p.db.Close()
}

func blobKey(key, hash string) []byte {
	return []byte(storageBlobPrefix + key + "/" + hash)
}

func parentsKey(key, branch, hash string) []byte {
	return []byte(storageParentsPrefix + key + "/" + branch + "/" + hash)
}

func branchKey(key, branch string) []byte {
	return []byte(storageBranchPrefix + key + "/" + branch)
}

func keyMarker(key string) []byte {
	return []byte(storageKeyPrefix + key)
}

func (p *BadgerProvider) readBlob(txn *badger.Txn, key, hash string) ([]byte, error) {
	item, err := txn.Get(blobKey(key, hash))
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound.Wrapf("hash %q of key %q", hash, key)
	}
	if err != nil {
		return nil, ErrBackend.Wrapf("read blob: %v", err)
	}
	var payload []byte
	if err := item.Value(func(val []byte) error {
		payload = append([]byte(nil), val...)
		return nil
	}); err != nil {
		return nil, ErrBackend.Wrapf("decode blob: %v", err)
	}
	return payload, nil
}

func (p *BadgerProvider) readParents(txn *badger.Txn, key, branch, hash string) ([]string, error) {
	item, err := txn.Get(parentsKey(key, branch, hash))
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound.Wrapf("hash %q not recorded on branch %q of key %q", hash, branch, key)
	}
	if err != nil {
		return nil, ErrBackend.Wrapf("read parents: %v", err)
	}
	var parents []string
	if err := item.Value(func(val []byte) error {
		if len(val) == 0 {
			return nil
		}
		return json.Unmarshal(val, &parents)
	}); err != nil {
		return nil, ErrBackend.Wrapf("decode parents: %v", err)
	}
	return parents, nil
}

func (p *BadgerProvider) writeParents(txn *badger.Txn, key, branch, hash string, parents []string) error {
	data, err := json.Marshal(parents)
	if err != nil {
		return ErrBackend.Wrapf("encode parents: %v", err)
	}
	if err := txn.Set(parentsKey(key, branch, hash), data); err != nil {
		return ErrBackend.Wrapf("write parents: %v", err)
	}
	return nil
}

func (p *BadgerProvider) readBranchHead(txn *badger.Txn, key, branch string) (string, error) {
	item, err := txn.Get(branchKey(key, branch))
	if err == badger.ErrKeyNotFound {
		return "", ErrNotFound.Wrapf("branch %q of key %q", branch, key)
	}
	if err != nil {
		return "", ErrBackend.Wrapf("read branch head: %v", err)
	}
	var hash string
	if err := item.Value(func(val []byte) error {
		hash = string(val)
		return nil
	}); err != nil {
		return "", ErrBackend.Wrapf("decode branch head: %v", err)
	}
	return hash, nil
}

func (p *BadgerProvider) Get(_ context.Context, key string, lookup Lookup, _ EntryKind) (*Entry, error) {
	if (lookup.Branch == "") == (lookup.Hash == "") {
		return nil, ErrInvalidArgument.Wrap("exactly one of branch or hash must be set")
	}

	var entry *Entry
	err := p.db.View(func(txn *badger.Txn) error {
		hash := lookup.Hash
		if lookup.Branch != "" {
			h, err := p.readBranchHead(txn, key, lookup.Branch)
			if err != nil {
				return err
			}
			hash = h
		}
		payload, err := p.readBlob(txn, key, hash)
		if err != nil {
			return err
		}
		entry = &Entry{Payload: payload, Hash: hash}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (p *BadgerProvider) Put(_ context.Context, key, branch string, _ EntryKind, value []byte) (string, error) {
	hash := writeID(key, branch, value)

	err := p.db.Update(func(txn *badger.Txn) error {
		var parents []string
		prevHash, err := p.readBranchHead(txn, key, branch)
		if err == nil {
			parents = []string{prevHash}
		} else if !isNotFound(err) {
			return err
		}

		if err := txn.Set(blobKey(key, hash), value); err != nil {
			return ErrBackend.Wrapf("write blob: %v", err)
		}
		if err := p.writeParents(txn, key, branch, hash, parents); err != nil {
			return err
		}
		if err := txn.Set(branchKey(key, branch), []byte(hash)); err != nil {
			return ErrBackend.Wrapf("write branch head: %v", err)
		}
		return txn.Set(keyMarker(key), []byte{1})
	})
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (p *BadgerProvider) Head(_ context.Context, key, branch string) (string, error) {
	var hash string
	err := p.db.View(func(txn *badger.Txn) error {
		h, err := p.readBranchHead(txn, key, branch)
		hash = h
		return err
	})
	return hash, err
}

// Branch forks newBranch at the resolved hash, recording that hash as a
// root (no parents) under newBranch so lineage walks on the new branch
// stop at the fork point instead of continuing into the source branch's
// parent pointers, which are namespaced separately.
func (p *BadgerProvider) Branch(_ context.Context, key, newBranch, basedOnBranch, referHash string) error {
	if (basedOnBranch == "") == (referHash == "") {
		return ErrInvalidArgument.Wrap("exactly one of basedOnBranch or referHash must be set")
	}

	return p.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(branchKey(key, newBranch)); err == nil {
			return ErrAlreadyExists.Wrapf("branch %q of key %q", newBranch, key)
		} else if err != badger.ErrKeyNotFound {
			return ErrBackend.Wrapf("check existing branch: %v", err)
		}

		hash := referHash
		if basedOnBranch != "" {
			h, err := p.readBranchHead(txn, key, basedOnBranch)
			if err != nil {
				return err
			}
			hash = h
		}
		if _, err := p.readBlob(txn, key, hash); err != nil {
			return err
		}
		if err := p.writeParents(txn, key, newBranch, hash, nil); err != nil {
			return err
		}
		if err := txn.Set(branchKey(key, newBranch), []byte(hash)); err != nil {
			return ErrBackend.Wrapf("write branch head: %v", err)
		}
		return nil
	})
}

func (p *BadgerProvider) ListKeys(_ context.Context) ([]string, error) {
	var keys []string
	err := p.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(storageKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().KeyCopy(nil)), storageKeyPrefix))
		}
		return nil
	})
	return keys, err
}

func (p *BadgerProvider) ListBranches(_ context.Context, key string) ([]string, error) {
	var branches []string
	err := p.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(storageBranchPrefix + key + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			branches = append(branches, strings.TrimPrefix(string(it.Item().KeyCopy(nil)), string(prefix)))
		}
		return nil
	})
	if err == nil && len(branches) == 0 {
		return nil, ErrNotFound.Wrapf("key %q", key)
	}
	return branches, err
}

func (p *BadgerProvider) Meta(_ context.Context, key string, lookup Lookup) ([]string, error) {
	if lookup.Branch == "" {
		return nil, ErrInvalidArgument.Wrap("branch must be set: parent lineage is branch-scoped")
	}

	var parents []string
	err := p.db.View(func(txn *badger.Txn) error {
		hash := lookup.Hash
		if hash == "" {
			h, err := p.readBranchHead(txn, key, lookup.Branch)
			if err != nil {
				return err
			}
			hash = h
		}
		pl, err := p.readParents(txn, key, lookup.Branch, hash)
		if err != nil {
			return err
		}
		parents = pl
		return nil
	})
	return parents, err
}

func (p *BadgerProvider) Merge(_ context.Context, key, headBranch, mergeBranch string, _ EntryKind, resolvedValue []byte) (string, error) {
	hash := writeID(key, headBranch, resolvedValue)

	err := p.db.Update(func(txn *badger.Txn) error {
		headHash, err := p.readBranchHead(txn, key, headBranch)
		if err != nil {
			return err
		}
		mergeHash, err := p.readBranchHead(txn, key, mergeBranch)
		if err != nil {
			return err
		}

		if err := txn.Set(blobKey(key, hash), resolvedValue); err != nil {
			return ErrBackend.Wrapf("write blob: %v", err)
		}
		if err := p.writeParents(txn, key, headBranch, hash, []string{headHash, mergeHash}); err != nil {
			return err
		}
		return txn.Set(branchKey(key, headBranch), []byte(hash))
	})
	if err != nil {
		return "", err
	}
	return hash, nil
}

func isNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

var _ Provider = (*BadgerProvider)(nil)
