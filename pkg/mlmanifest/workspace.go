package mlmanifest

import (
	"time"

	"github.com/virtengine/mlpipe/pkg/mlsemver"
)

// DatasetRole names the role a dataset plays within a workspace's pipeline.
type DatasetRole string

const (
	RoleTrain      DatasetRole = "train"
	RoleValidation DatasetRole = "validation"
	RoleInference  DatasetRole = "inference"
)

// Workspace is a committed (or in-flight) pipeline instance.
type Workspace struct {
	Key              mlsemver.MetaKey
	Pipeline         []mlsemver.MetaKey
	Datasets         map[DatasetRole]mlsemver.MetaKey
	Outputs          map[string]string // stringified MetaKey -> blob hash
	Params           map[string]string // stringified MetaKey -> blob hash
	Paths            WorkspacePaths
	CreatedTimestamp time.Time
}

// WorkspacePaths are plain local-filesystem paths prepared for one pipeline
// invocation.
type WorkspacePaths struct {
	Base   string
	Venv   string
	Temp   string
	Output string
}

// Validate enforces the invariants from the data model: pipeline[0] must be
// a dataset, pipeline[i>=1] must be library stages, and every outputs key
// must stringify to a key present in pipeline.
func (w *Workspace) Validate() error {
	if w.Key.Type != mlsemver.ComponentWorkspace {
		return ErrInvalidWorkspace.Wrapf("key type must be workspace, got %q", w.Key.Type)
	}
	if len(w.Pipeline) == 0 {
		return ErrInvalidWorkspace.Wrap("pipeline must not be empty")
	}
	if w.Pipeline[0].Type != mlsemver.ComponentDataset {
		return ErrInvalidWorkspace.Wrap("pipeline[0] must be a dataset")
	}
	for i := 1; i < len(w.Pipeline); i++ {
		if w.Pipeline[i].Type != mlsemver.ComponentLibrary {
			return ErrInvalidWorkspace.Wrapf("pipeline[%d] must be a library", i)
		}
	}

	pipelineKeys := make(map[string]bool, len(w.Pipeline))
	for _, k := range w.Pipeline {
		pipelineKeys[k.VersionedString()] = true
	}
	for k := range w.Outputs {
		if !pipelineKeys[k] {
			return ErrInvalidWorkspace.Wrapf("outputs key %q is not in pipeline", k)
		}
	}
	return nil
}

// IsTrained reports whether the workspace has a non-empty outputs map,
// meaning a prior run already materialized artifacts for it.
func (w *Workspace) IsTrained() bool {
	return len(w.Outputs) > 0
}

// NextVersion derives the next version for a workspace being recommitted.
// When current is the zero value (no prior branch head), the workspace
// starts at (0, 0). The apiVersionUpdated flag, carried verbatim from a
// library manifest's "api-version-updated" attribute, selects whether the
// bump advances api (resetting inc to 0) or inc.
func NextVersion(branch string, current *mlsemver.SemanticVersion, apiVersionUpdated bool) mlsemver.SemanticVersion {
	if current == nil {
		return mlsemver.SemanticVersion{Branch: branch, API: 0, Inc: 0}
	}
	if apiVersionUpdated {
		return mlsemver.SemanticVersion{Branch: branch, API: current.API + 1, Inc: 0}
	}
	return mlsemver.SemanticVersion{Branch: branch, API: current.API, Inc: current.Inc + 1}
}
