package mlsemver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSemanticVersion(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    SemanticVersion
		wantErr bool
	}{
		{"basic", "master.0.0", SemanticVersion{"master", 0, 0}, false},
		{"branch with dash", "feature-x.1.20", SemanticVersion{"feature-x", 1, 20}, false},
		{"missing inc", "master.0", SemanticVersion{}, true},
		{"non-numeric api", "master.a.0", SemanticVersion{}, true},
		{"whitespace branch", "has space.0.0", SemanticVersion{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSemanticVersion(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestZeroVersion(t *testing.T) {
	assert.Equal(t, SemanticVersion{Branch: "master", API: 0, Inc: 0}, ZeroVersion())
}

func TestSemanticVersionStringRoundTrip(t *testing.T) {
	v := SemanticVersion{Branch: "master", API: 3, Inc: 7}
	parsed, err := ParseSemanticVersion(v.String())
	require.NoError(t, err)
	assert.True(t, v.Equal(parsed))
}

func TestSemanticVersionLess(t *testing.T) {
	a := SemanticVersion{Branch: "master", API: 0, Inc: 1}
	b := SemanticVersion{Branch: "master", API: 0, Inc: 2}
	c := SemanticVersion{Branch: "master", API: 1, Inc: 0}
	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
}

func TestMetaKeyVersionedString(t *testing.T) {
	k := MetaKey{Type: ComponentLibrary, Name: "A", Version: SemanticVersion{"m", 0, 1}}
	assert.Equal(t, "library::A::m.0.1", k.VersionedString())
	assert.Equal(t, "library::A", k.UnversionedString())
}

func TestParseMetaKeyRoundTrip(t *testing.T) {
	k := MetaKey{Type: ComponentDataset, Name: "D", Version: SemanticVersion{"h", 0, 0}}
	parsed, err := ParseMetaKey(k.VersionedString())
	require.NoError(t, err)
	assert.True(t, k.Equal(parsed))
}

func TestParseMetaKeyUnversioned(t *testing.T) {
	k, err := ParseMetaKey("workspace::ws1")
	require.NoError(t, err)
	assert.Equal(t, ComponentWorkspace, k.Type)
	assert.Equal(t, "ws1", k.Name)
}

func TestParseMetaKeyInvalidShape(t *testing.T) {
	_, err := ParseMetaKey("library::A::m.0.1::extra")
	require.Error(t, err)

	_, err = ParseMetaKey("bogus::A::m.0.1")
	require.Error(t, err)
}

func TestMetaKeyTypeNameEqual(t *testing.T) {
	a := MetaKey{Type: ComponentLibrary, Name: "A", Version: SemanticVersion{"m", 0, 0}}
	b := MetaKey{Type: ComponentLibrary, Name: "A", Version: SemanticVersion{"m", 0, 1}}
	assert.True(t, a.TypeNameEqual(b))
	assert.False(t, a.Equal(b))
}

func TestComponentKindIsValid(t *testing.T) {
	assert.True(t, ComponentDataset.IsValid())
	assert.True(t, ComponentLibrary.IsValid())
	assert.True(t, ComponentWorkspace.IsValid())
	assert.True(t, ComponentSolution.IsValid())
	assert.False(t, ComponentKind("bogus").IsValid())
}
