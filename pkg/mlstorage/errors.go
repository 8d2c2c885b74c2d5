package mlstorage

import "cosmossdk.io/errors"

// Error kinds for the mlstorage module, claiming code range 5050-5099.
var (
	// ErrNotFound is returned when a key, branch, or hash is absent. It is
	// distinguishable from transport/backend errors so callers can treat a
	// missing branch as "start a fresh commit".
	ErrNotFound = errors.Register("mlstorage", 5050, "not found")
	// ErrBackend wraps I/O failures from the underlying physical store.
	ErrBackend = errors.Register("mlstorage", 5051, "storage backend error")
	// ErrInvalidArgument is returned for malformed requests (e.g. both or
	// neither of branch/hash set).
	ErrInvalidArgument = errors.Register("mlstorage", 5052, "invalid argument")
	// ErrAlreadyExists is returned when a branch fork target already exists.
	ErrAlreadyExists = errors.Register("mlstorage", 5053, "branch already exists")
)
