// Package mlpac implements the Pipeline-Aware Cache algorithm: a
// Version-Score-Matrix model over (major, minor) version pairs at each
// pipeline position, updated from submission history by the SL and UL
// rules, and an eviction selector that picks the cached worker least
// likely to recur.
package mlpac

import "cosmossdk.io/errors"

// Error kinds for the mlpac module, claiming code range 5250-5299.
var (
	ErrInvalidConfig    = errors.Register("mlpac", 5250, "invalid PAC configuration")
	ErrPipelineMismatch = errors.Register("mlpac", 5251, "pipeline length does not match PAC state")
	ErrCoordOutOfRange  = errors.Register("mlpac", 5252, "version coordinate out of tracked range")
)
