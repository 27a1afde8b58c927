// Package sandbox confirms filesystem paths stay within a tenant's
// dedicated root. This is part of the Functional Core - IsWithin is pure;
// the resolved variant touches the filesystem only to expand symlinks.
package sandbox

import (
	"path/filepath"
	"strings"
)

// =============================================================================
// Containment Check
// =============================================================================

// Normalize converts a path to forward slashes and collapses "." and ".."
// components lexically.
func Normalize(path string) string {
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(path)))
}

// IsWithin reports whether candidate lies within root: after normalization
// the candidate equals the root or is prefixed by the root followed by a
// separator. Both paths are interpreted lexically; ".." components are
// collapsed but symlinks are not resolved. Callers needing symlink safety
// use IsWithinResolved.
func IsWithin(candidate, root string) bool {
	c := Normalize(candidate)
	r := Normalize(root)
	if r == "" || r == "." {
		return false
	}
	if c == r {
		return true
	}
	if r == "/" {
		return strings.HasPrefix(c, "/")
	}
	return strings.HasPrefix(c, r+"/")
}

// =============================================================================
// Resolved Containment Check
// =============================================================================

// IsWithinResolved canonicalizes both paths before the prefix check,
// resolving symlinks through the nearest existing ancestor. A lexical
// prefix check alone is spoofable by a symlink planted inside the root, so
// externally supplied paths go through this variant.
func IsWithinResolved(candidate, root string) (bool, error) {
	resolvedRoot, err := resolveExisting(root)
	if err != nil {
		return false, err
	}
	resolvedCandidate, err := resolveExisting(candidate)
	if err != nil {
		return false, err
	}
	return IsWithin(resolvedCandidate, resolvedRoot), nil
}

// resolveExisting resolves symlinks in the longest existing prefix of path
// and re-joins the non-existing tail lexically. The tail cannot smuggle a
// symlink because it does not exist yet.
func resolveExisting(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	remainder := ""
	probe := clean
	for {
		resolved, err := filepath.EvalSymlinks(probe)
		if err == nil {
			return filepath.ToSlash(filepath.Join(resolved, remainder)), nil
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			// Hit the filesystem root without finding an existing ancestor.
			return filepath.ToSlash(clean), nil
		}
		remainder = filepath.Join(filepath.Base(probe), remainder)
		probe = parent
	}
}
