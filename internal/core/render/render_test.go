package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Render Tests
// =============================================================================

func TestRender_BasicSubstitution(t *testing.T) {
	out := Render("ports:\n  - \"${HOST_PORT}:80\"", map[string]string{"HOST_PORT": "8080"})
	assert.Equal(t, "ports:\n  - \"8080:80\"", out)
}

func TestRender_MissingKeyLeftVerbatim(t *testing.T) {
	out := Render("value: ${MISSING}", map[string]string{})
	assert.Equal(t, "value: ${MISSING}", out)
}

func TestRender_DefaultClause(t *testing.T) {
	out := Render("value: ${PORT:-8080}", nil)
	assert.Equal(t, "value: 8080", out)

	out = Render("value: ${PORT:-8080}", map[string]string{"PORT": "9090"})
	assert.Equal(t, "value: 9090", out)
}

func TestRender_EmptyDefault(t *testing.T) {
	out := Render("value: '${OPT:-}'", nil)
	assert.Equal(t, "value: ''", out)
}

func TestRender_SuppliedEmptyValueWins(t *testing.T) {
	out := Render("value: '${OPT:-fallback}'", map[string]string{"OPT": ""})
	assert.Equal(t, "value: ''", out)
}

func TestRender_MultipleOccurrences(t *testing.T) {
	out := Render("${A} ${B} ${A}", map[string]string{"A": "1", "B": "2"})
	assert.Equal(t, "1 2 1", out)
}

func TestRender_NilVars(t *testing.T) {
	out := Render("plain text ${X}", nil)
	assert.Equal(t, "plain text ${X}", out)
}

func TestRender_IgnoresMalformedPlaceholders(t *testing.T) {
	// $VAR without braces and ${1BAD} (leading digit) are not placeholders.
	in := "a: $VAR\nb: ${1BAD}\nc: ${GOOD}"
	out := Render(in, map[string]string{"VAR": "x", "GOOD": "y"})
	assert.Equal(t, "a: $VAR\nb: ${1BAD}\nc: y", out)
}

func TestRender_Deterministic(t *testing.T) {
	vars := map[string]string{"A": "1", "B": "2"}
	text := "${A}-${B}-${C}"
	first := Render(text, vars)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Render(text, vars))
	}
}

// =============================================================================
// WithStackPath Tests
// =============================================================================

func TestWithStackPath_Injects(t *testing.T) {
	vars := WithStackPath(map[string]string{"A": "1"}, "/stacks/alice/blog")
	assert.Equal(t, "/stacks/alice/blog", vars[StackPathVar])
	assert.Equal(t, "1", vars["A"])
}

func TestWithStackPath_CallerValueWins(t *testing.T) {
	vars := WithStackPath(map[string]string{StackPathVar: "/custom"}, "/stacks/alice/blog")
	assert.Equal(t, "/custom", vars[StackPathVar])
}

func TestWithStackPath_DoesNotMutateInput(t *testing.T) {
	in := map[string]string{"A": "1"}
	_ = WithStackPath(in, "/stacks/alice/blog")
	_, present := in[StackPathVar]
	assert.False(t, present)
}

func TestWithStackPath_NilInput(t *testing.T) {
	vars := WithStackPath(nil, "/stacks/alice/blog")
	assert.Equal(t, "/stacks/alice/blog", vars[StackPathVar])
}

// =============================================================================
// UnresolvedPlaceholders Tests
// =============================================================================

func TestUnresolvedPlaceholders(t *testing.T) {
	names := UnresolvedPlaceholders("a: ${X}\nb: ${Y}\nc: ${X}")
	assert.Equal(t, []string{"X", "Y"}, names)
}

func TestUnresolvedPlaceholders_CleanText(t *testing.T) {
	assert.Empty(t, UnresolvedPlaceholders("services:\n  web:\n    image: nginx"))
}

func TestUnresolvedPlaceholders_AfterRender(t *testing.T) {
	out := Render("${A} ${B}", map[string]string{"A": "1"})
	assert.Equal(t, []string{"B"}, UnresolvedPlaceholders(out))
}
