package netalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// FirstFree Tests
// =============================================================================

func TestFirstFree_EmptyUsed(t *testing.T) {
	port, ok := FirstFree(nil, 20000, 20009)
	assert.True(t, ok)
	assert.Equal(t, 20000, port)
}

func TestFirstFree_SkipsUsed(t *testing.T) {
	used := UsedSet([]int{20000, 20001, 20003})
	port, ok := FirstFree(used, 20000, 20009)
	assert.True(t, ok)
	assert.Equal(t, 20002, port)
}

func TestFirstFree_Exhausted(t *testing.T) {
	used := UsedSet([]int{20000, 20001, 20002})
	_, ok := FirstFree(used, 20000, 20002)
	assert.False(t, ok)
}

func TestFirstFree_SinglePortRange(t *testing.T) {
	port, ok := FirstFree(nil, 25000, 25000)
	assert.True(t, ok)
	assert.Equal(t, 25000, port)

	_, ok = FirstFree(UsedSet([]int{25000}), 25000, 25000)
	assert.False(t, ok)
}

func TestFirstFree_InvalidRange(t *testing.T) {
	_, ok := FirstFree(nil, 20009, 20000)
	assert.False(t, ok)

	_, ok = FirstFree(nil, 0, 100)
	assert.False(t, ok)

	_, ok = FirstFree(nil, 65000, 70000)
	assert.False(t, ok)
}

func TestFirstFree_IgnoresPortsOutsideRange(t *testing.T) {
	used := UsedSet([]int{19999, 30000})
	port, ok := FirstFree(used, 20000, 20009)
	assert.True(t, ok)
	assert.Equal(t, 20000, port)
}

// =============================================================================
// UsedSet Tests
// =============================================================================

func TestUsedSet(t *testing.T) {
	used := UsedSet([]int{1, 2, 2, 3})
	assert.Len(t, used, 3)
	_, ok := used[2]
	assert.True(t, ok)
	_, ok = used[4]
	assert.False(t, ok)
}

func TestUsedSet_Empty(t *testing.T) {
	assert.Empty(t, UsedSet(nil))
}
