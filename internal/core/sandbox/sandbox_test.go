package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Normalize Tests
// =============================================================================

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/home/alice", "/home/alice"},
		{"/home/alice/", "/home/alice"},
		{"/home/alice/../bob", "/home/bob"},
		{"/home/./alice", "/home/alice"},
		{"/home//alice", "/home/alice"},
		{"relative/path", "relative/path"},
		{"", "."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

// =============================================================================
// IsWithin Tests
// =============================================================================

func TestIsWithin(t *testing.T) {
	tests := []struct {
		candidate string
		root      string
		want      bool
	}{
		{"/home/alice/data", "/home/alice", true},
		{"/home/alice", "/home/alice", true},
		{"/home/alice/", "/home/alice", true},
		{"/home/alice/a/b/c", "/home/alice", true},
		{"/home/alice/../bob", "/home/alice", false},
		{"/home/alicedata", "/home/alice", false}, // prefix but not a child
		{"/home/bob", "/home/alice", false},
		{"/etc/passwd", "/home/alice", false},
		{"/home/alice/data/../../../etc", "/home/alice", false},
		{"/anything", "/", true},
		{"/home/alice", "", false},
		{"/home/alice", ".", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsWithin(tt.candidate, tt.root),
			"IsWithin(%q, %q)", tt.candidate, tt.root)
	}
}

// =============================================================================
// IsWithinResolved Tests
// =============================================================================

func TestIsWithinResolved_PlainPaths(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(inside, 0o755))

	ok, err := IsWithinResolved(inside, root)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsWithinResolved("/etc", root)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsWithinResolved_NonexistentTail(t *testing.T) {
	root := t.TempDir()

	// The candidate does not exist yet; the existing ancestor anchors it.
	ok, err := IsWithinResolved(filepath.Join(root, "not", "yet", "created"), root)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsWithinResolved(filepath.Join(root, "..", "sibling"), root)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsWithinResolved_SymlinkEscape(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "home")
	outside := filepath.Join(base, "outside")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))

	// A symlink planted inside the root pointing outside it.
	link := filepath.Join(root, "sneaky")
	require.NoError(t, os.Symlink(outside, link))

	// Lexically the path is inside the root.
	assert.True(t, IsWithin(filepath.Join(link, "data"), root))

	// Resolved, the escape is caught.
	ok, err := IsWithinResolved(filepath.Join(link, "data"), root)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsWithinResolved_SymlinkedRoot(t *testing.T) {
	base := t.TempDir()
	real := filepath.Join(base, "real-home")
	require.NoError(t, os.MkdirAll(filepath.Join(real, "data"), 0o755))

	alias := filepath.Join(base, "alias-home")
	require.NoError(t, os.Symlink(real, alias))

	// Candidate under the real path, root given via its alias.
	ok, err := IsWithinResolved(filepath.Join(real, "data"), alias)
	require.NoError(t, err)
	assert.True(t, ok)
}
