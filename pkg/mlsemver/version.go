// Package mlsemver implements the value types shared across the pipeline
// coordinator: semantic component versions and the composite keys used to
// address them in storage.
package mlsemver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cosmossdk.io/errors"
)

var versionPattern = regexp.MustCompile(`^(\S+)\.(\d+)\.(\d+)$`)

// SemanticVersion is a branch-scoped (api, inc) version pair. Ordering within
// a branch is lexicographic on (api, inc); ordering across branches is
// undefined and callers must not rely on it.
type SemanticVersion struct {
	Branch string
	API    uint32
	Inc    uint32
}

// ZeroVersion returns the canonical initial version, ("master", 0, 0).
func ZeroVersion() SemanticVersion {
	return SemanticVersion{Branch: "master", API: 0, Inc: 0}
}

// String renders the canonical "<branch>.<api>.<inc>" text form.
func (v SemanticVersion) String() string {
	return fmt.Sprintf("%s.%d.%d", v.Branch, v.API, v.Inc)
}

// ParseSemanticVersion parses "b.a.i"; the branch segment may contain any
// non-whitespace character, api and inc are unsigned decimal integers.
func ParseSemanticVersion(s string) (SemanticVersion, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return SemanticVersion{}, errors.Wrapf(ErrParse, "invalid semantic version %q", s)
	}
	api, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return SemanticVersion{}, errors.Wrapf(ErrParse, "invalid api segment in %q", s)
	}
	inc, err := strconv.ParseUint(m[3], 10, 32)
	if err != nil {
		return SemanticVersion{}, errors.Wrapf(ErrParse, "invalid inc segment in %q", s)
	}
	return SemanticVersion{Branch: m[1], API: uint32(api), Inc: uint32(inc)}, nil
}

// MarshalJSON renders the canonical "<branch>.<api>.<inc>" text form.
func (v SemanticVersion) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(v.String())), nil
}

// UnmarshalJSON parses the canonical text form.
func (v *SemanticVersion) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return errors.Wrapf(ErrParse, "invalid semantic version JSON %s", data)
	}
	parsed, err := ParseSemanticVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// SameBranch reports whether v and other share a branch, the only condition
// under which Less is meaningful.
func (v SemanticVersion) SameBranch(other SemanticVersion) bool {
	return v.Branch == other.Branch
}

// Less orders two versions on the same branch by (api, inc). The result is
// undefined for cross-branch comparisons.
func (v SemanticVersion) Less(other SemanticVersion) bool {
	if v.API != other.API {
		return v.API < other.API
	}
	return v.Inc < other.Inc
}

// Equal reports full-tuple equality including branch.
func (v SemanticVersion) Equal(other SemanticVersion) bool {
	return v.Branch == other.Branch && v.API == other.API && v.Inc == other.Inc
}

// ComponentKind enumerates the recognized MetaKey types.
type ComponentKind string

const (
	ComponentDataset   ComponentKind = "dataset"
	ComponentLibrary   ComponentKind = "library"
	ComponentWorkspace ComponentKind = "workspace"
	ComponentSolution  ComponentKind = "solution"
)

// IsValid reports whether k is one of the recognized component kinds.
func (k ComponentKind) IsValid() bool {
	switch k {
	case ComponentDataset, ComponentLibrary, ComponentWorkspace, ComponentSolution:
		return true
	default:
		return false
	}
}

// MetaKey addresses a component by type, name, and version. Equality is
// full-tuple; TypeNameEqual ignores version.
type MetaKey struct {
	Type    ComponentKind
	Name    string
	Version SemanticVersion
}

// NewMetaKey constructs a MetaKey, rejecting unrecognized kinds.
func NewMetaKey(kind ComponentKind, name string, version SemanticVersion) (MetaKey, error) {
	if !kind.IsValid() {
		return MetaKey{}, errors.Wrapf(ErrParse, "invalid component kind %q", kind)
	}
	return MetaKey{Type: kind, Name: name, Version: version}, nil
}

// VersionedString serializes "type::name::branch.api.inc".
func (k MetaKey) VersionedString() string {
	return fmt.Sprintf("%s::%s::%s", k.Type, k.Name, k.Version.String())
}

// UnversionedString serializes "type::name", dropping the version segment.
func (k MetaKey) UnversionedString() string {
	return fmt.Sprintf("%s::%s", k.Type, k.Name)
}

// TypeNameEqual reports equality ignoring version.
func (k MetaKey) TypeNameEqual(other MetaKey) bool {
	return k.Type == other.Type && k.Name == other.Name
}

// Equal reports full-tuple equality.
func (k MetaKey) Equal(other MetaKey) bool {
	return k.TypeNameEqual(other) && k.Version.Equal(other.Version)
}

// ParseMetaKey accepts either "T::N::b.a.i" or "T::N"; any other shape fails.
func ParseMetaKey(s string) (MetaKey, error) {
	parts := strings.Split(s, "::")
	switch len(parts) {
	case 2:
		kind := ComponentKind(parts[0])
		if !kind.IsValid() {
			return MetaKey{}, errors.Wrapf(ErrParse, "invalid component kind in %q", s)
		}
		if parts[1] == "" {
			return MetaKey{}, errors.Wrapf(ErrParse, "empty name in %q", s)
		}
		return MetaKey{Type: kind, Name: parts[1]}, nil
	case 3:
		kind := ComponentKind(parts[0])
		if !kind.IsValid() {
			return MetaKey{}, errors.Wrapf(ErrParse, "invalid component kind in %q", s)
		}
		if parts[1] == "" {
			return MetaKey{}, errors.Wrapf(ErrParse, "empty name in %q", s)
		}
		v, err := ParseSemanticVersion(parts[2])
		if err != nil {
			return MetaKey{}, errors.Wrapf(ErrParse, "invalid version in %q", s)
		}
		return MetaKey{Type: kind, Name: parts[1], Version: v}, nil
	default:
		return MetaKey{}, errors.Wrapf(ErrParse, "invalid meta key shape %q", s)
	}
}
