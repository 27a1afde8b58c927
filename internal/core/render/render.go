// Package render substitutes ${VAR} placeholders in stack definitions.
// This is part of the Functional Core - all functions are pure with no I/O.
package render

import "regexp"

// StackPathVar is the variable the engine injects with the stack's
// materialized directory, so templates can reference their own on-disk
// location.
const StackPathVar = "STACK_PATH"

// placeholderRegex matches ${VAR} and ${VAR:-default} patterns.
// Groups:
//   - Group 1: Variable name (required)
//   - Group 2: Default value (optional, after :-)
var placeholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// =============================================================================
// Rendering
// =============================================================================

// Render replaces every ${KEY} occurrence with vars[KEY].
//
// Behavior:
//   - ${VAR} - replaced with vars["VAR"] if present, otherwise kept verbatim
//   - ${VAR:-default} - replaced with vars["VAR"] if present, otherwise "default"
//
// Keys without a supplied value stay unsubstituted so partially specified
// templates remain visibly incomplete instead of silently rendering empty
// strings. Deterministic for the same inputs.
func Render(text string, vars map[string]string) string {
	if vars == nil {
		vars = map[string]string{}
	}
	return placeholderRegex.ReplaceAllStringFunc(text, func(match string) string {
		sub := placeholderRegex.FindStringSubmatch(match)
		name := sub[1]
		if val, ok := vars[name]; ok {
			return val
		}
		// ${VAR:-default}: the match is longer than ${VAR} when a default
		// clause is present, even an empty one.
		if len(match) > len(name)+3 {
			return sub[2]
		}
		return match
	})
}

// WithStackPath returns a copy of vars guaranteed to carry StackPathVar set
// to stackPath. A caller-supplied value wins.
func WithStackPath(vars map[string]string, stackPath string) map[string]string {
	out := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		out[k] = v
	}
	if _, ok := out[StackPathVar]; !ok {
		out[StackPathVar] = stackPath
	}
	return out
}

// UnresolvedPlaceholders returns the names of placeholders left verbatim in
// rendered text, in order of first appearance.
func UnresolvedPlaceholders(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderRegex.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
