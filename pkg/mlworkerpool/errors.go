package mlworkerpool

import "cosmossdk.io/errors"

// Error kinds for the mlworkerpool module, claiming code range 5200-5249.
var (
	ErrPoolFull      = errors.Register("mlworkerpool", 5200, "worker pool is full")
	ErrNotFound      = errors.Register("mlworkerpool", 5201, "worker handle not found")
	ErrAlreadyExists = errors.Register("mlworkerpool", 5202, "worker handle already tracked")
	ErrInvalidState  = errors.Register("mlworkerpool", 5203, "worker handle in unexpected state")
	ErrCacheEmpty    = errors.Register("mlworkerpool", 5204, "no cached worker to evict")
)
