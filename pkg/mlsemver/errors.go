package mlsemver

import "cosmossdk.io/errors"

// Error kinds for the mlsemver module, claiming code range 5000-5049.
var (
	ErrParse = errors.Register("mlsemver", 5000, "parse error")
)
