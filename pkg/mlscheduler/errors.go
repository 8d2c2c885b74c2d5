// Package mlscheduler implements the scheduler: the three-level worker
// compatibility check, admission against the worker-pool cache, the
// waiting queue for components pending a launched worker, and the launch
// path delegated to an opaque worker launcher.
package mlscheduler

import "cosmossdk.io/errors"

// Error kinds for the mlscheduler module, claiming code range 5300-5339.
var (
	// ErrPoolFull is returned when every active slot is occupied and no
	// cached worker is compatible; retryable by the coordinator.
	ErrPoolFull = errors.Register("mlscheduler", 5300, "worker pool is full")
	// ErrWorkerLaunch wraps a failure from the opaque worker launcher.
	ErrWorkerLaunch = errors.Register("mlscheduler", 5301, "worker launch failed")
	// ErrNoWaitingComponent is returned when on_worker_ready finds no
	// waiting component whose compatibility check passes.
	ErrNoWaitingComponent = errors.Register("mlscheduler", 5302, "no compatible waiting component")
)
