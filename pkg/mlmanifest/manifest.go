// Package mlmanifest models the component Manifest and Workspace records
// the coordinator captures at execution time, plus the workspace meta file
// format they are persisted under.
package mlmanifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/virtengine/mlpipe/pkg/mlsemver"
)

// Manifest describes a component's environment at execution time. The JSON
// tags name the on-wire schema fields (name, type, version, packages_semver,
// hash, packages); MarshalManifestJSON emits them in sorted key order.
type Manifest struct {
	Name           string                 `json:"name"`
	Type           mlsemver.ComponentKind `json:"type"`
	Version        mlsemver.SemanticVersion `json:"version"`
	PackagesSemver bool                     `json:"packages_semver"`
	PackagesHash   string                   `json:"hash"`
	Packages       map[string]string        `json:"packages"`

	// Appendix holds ad-hoc attributes the source hangs directly on a
	// manifest object at runtime. Modeled as an explicit side-map instead
	// of dynamic attribute injection (see design notes).
	Appendix map[string]string `json:"-"`
}

// ComputePackagesHash derives the packages_hash salted SHA-256: a hash over
// the canonical JSON encoding of packages (encoding/json sorts map keys),
// salted with name. Two manifests with identical package sets and names
// always produce identical packages_hash.
func ComputePackagesHash(name string, packages map[string]string) (string, error) {
	data, err := json.Marshal(packages)
	if err != nil {
		return "", ErrInvalidManifest.Wrapf("encode packages: %v", err)
	}
	h := sha256.New()
	h.Write(data)
	h.Write([]byte(name))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NewManifest constructs a Manifest and fills in PackagesHash.
func NewManifest(name string, kind mlsemver.ComponentKind, version mlsemver.SemanticVersion, packages map[string]string, packagesSemver bool) (*Manifest, error) {
	if kind != mlsemver.ComponentDataset && kind != mlsemver.ComponentLibrary {
		return nil, ErrInvalidManifest.Wrapf("manifest type must be dataset or library, got %q", kind)
	}
	hash, err := ComputePackagesHash(name, packages)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		Name:           name,
		Type:           kind,
		Version:        version,
		PackagesSemver: packagesSemver,
		PackagesHash:   hash,
		Packages:       packages,
	}, nil
}

// Key returns the MetaKey identifying this manifest's component.
func (m *Manifest) Key() mlsemver.MetaKey {
	return mlsemver.MetaKey{Type: m.Type, Name: m.Name, Version: m.Version}
}

// Validate checks the manifest's own invariants.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return ErrInvalidManifest.Wrap("name is required")
	}
	if m.Type != mlsemver.ComponentDataset && m.Type != mlsemver.ComponentLibrary {
		return ErrInvalidManifest.Wrapf("invalid type %q", m.Type)
	}
	wantHash, err := ComputePackagesHash(m.Name, m.Packages)
	if err != nil {
		return err
	}
	if wantHash != m.PackagesHash {
		return ErrInvalidManifest.Wrap("packages_hash does not match packages")
	}
	return nil
}

// UnmarshalManifestJSON parses the manifest JSON schema (§6).
func UnmarshalManifestJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ErrInvalidManifest.Wrapf("decode manifest: %v", err)
	}
	return &m, nil
}

// MarshalManifestJSON renders the manifest with sorted, UTF-8 JSON as
// required by the wire schema.
func (m *Manifest) MarshalManifestJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	// Re-encode through a map so the top-level keys come out sorted.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}
