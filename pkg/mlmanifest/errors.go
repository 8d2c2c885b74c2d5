package mlmanifest

import "cosmossdk.io/errors"

// Error kinds for the mlmanifest module, claiming code range 5150-5159.
var (
	ErrInvalidManifest  = errors.Register("mlmanifest", 5150, "invalid manifest")
	ErrInvalidWorkspace = errors.Register("mlmanifest", 5151, "invalid workspace")
	ErrMetaFileParse    = errors.Register("mlmanifest", 5152, "invalid workspace meta file")
)
