// Package mlcoordinator implements the single-threaded cooperative
// coordinator loop: pipeline submission, per-stage dispatch over the
// framed worker channel, blocking on component completion, and commit of
// results back into the semantic VCS.
package mlcoordinator

import "cosmossdk.io/errors"

// Error kinds for the mlcoordinator module, claiming code range 5340-5369.
var (
	// ErrAborted is returned when a pipeline submission is abandoned because
	// a dataset fetch or component stage failed (worker launch failure,
	// timeout, channel error); no partial commit is made.
	ErrAborted = errors.Register("mlcoordinator", 5340, "pipeline submission aborted")
	// ErrComponentTimeout is returned when a dispatched component never
	// reports done within the configured deadline; the worker is treated
	// as poisoned (spec.md §9 open question, resolved in DESIGN.md).
	ErrComponentTimeout = errors.Register("mlcoordinator", 5341, "component did not report done in time")
	// ErrUnexpectedMessage is returned when a worker sends a command the
	// coordinator did not ask for at that point in the protocol.
	ErrUnexpectedMessage = errors.Register("mlcoordinator", 5342, "unexpected message from worker")
	// ErrShuttingDown is registered for operations submitted after Shutdown.
	// Shutdown records no state, so no function in this package returns it.
	ErrShuttingDown = errors.Register("mlcoordinator", 5343, "coordinator is shutting down")
)
