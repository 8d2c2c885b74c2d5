package mltrialtree

import "cosmossdk.io/errors"

// Error kinds for the mltrialtree module, claiming code range 5160-5199.
var (
	ErrPipelineLengthMismatch = errors.Register("mltrialtree", 5160, "inconsistent pipeline length")
	ErrPathNotFound           = errors.Register("mltrialtree", 5161, "no matching un-pruned path")
)
