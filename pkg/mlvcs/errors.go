package mlvcs

import "cosmossdk.io/errors"

// Error kinds for the mlvcs module, claiming code range 5100-5149.
var (
	// ErrMergeAncestor is the documented fault raised when lineage()
	// reaches a multi-parent (merge) node. Full merge-ancestor traversal
	// is an open question left undecided upstream; callers receive this
	// typed fault instead of a guessed semantics.
	ErrMergeAncestor = errors.Register("mlvcs", 5100, "lineage walk reached a merge ancestor")
	// ErrKeyMismatch is returned when a merge's three keys do not share
	// (type, name).
	ErrKeyMismatch = errors.Register("mlvcs", 5101, "merge keys do not share type and name")
)
