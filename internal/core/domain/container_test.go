package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// NewContainer Tests
// =============================================================================

func TestNewContainer_Valid(t *testing.T) {
	c, err := NewContainer("tenant-1", "web", "nginx:alpine")
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "tenant-1", c.TenantID)
	assert.Equal(t, "web", c.Name)
	assert.Equal(t, "nginx:alpine", c.Image)
	assert.Equal(t, ContainerCreated, c.Status)
	assert.Empty(t, c.RuntimeID)
	assert.False(t, c.CreatedAt.IsZero())
}

func TestNewContainer_MissingTenant(t *testing.T) {
	_, err := NewContainer("", "web", "nginx:alpine")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewContainer_MissingName(t *testing.T) {
	_, err := NewContainer("tenant-1", "", "nginx:alpine")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewContainer_MissingImage(t *testing.T) {
	_, err := NewContainer("tenant-1", "web", "  ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewContainer_UniqueIDs(t *testing.T) {
	a, err := NewContainer("tenant-1", "web", "nginx:alpine")
	require.NoError(t, err)
	b, err := NewContainer("tenant-1", "web2", "nginx:alpine")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

// =============================================================================
// Container Name Validation Tests
// =============================================================================

func TestValidateContainerName_Valid(t *testing.T) {
	for _, name := range []string{"web", "Web-1", "a", "app_v2", "app.staging", "0box"} {
		assert.NoError(t, ValidateContainerName(name), name)
	}
}

func TestValidateContainerName_Invalid(t *testing.T) {
	for _, name := range []string{"", "-leading", ".leading", "_leading", "has space", "semi;colon", "slash/y"} {
		assert.ErrorIs(t, ValidateContainerName(name), ErrValidation, name)
	}
}

func TestValidateContainerName_TooLong(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, ValidateContainerName(string(long)), ErrValidation)
}

// =============================================================================
// Port Validation Tests
// =============================================================================

func TestValidatePortRange_Valid(t *testing.T) {
	assert.NoError(t, ValidatePortRange(8080, 80))
	assert.NoError(t, ValidatePortRange(0, 80)) // 0 requests auto-allocation
	assert.NoError(t, ValidatePortRange(1, 65535))
}

func TestValidatePortRange_Invalid(t *testing.T) {
	assert.ErrorIs(t, ValidatePortRange(8080, 0), ErrValidation)
	assert.ErrorIs(t, ValidatePortRange(8080, 65536), ErrValidation)
	assert.ErrorIs(t, ValidatePortRange(-1, 80), ErrValidation)
	assert.ErrorIs(t, ValidatePortRange(70000, 80), ErrValidation)
}

func TestNormalizeProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    Protocol
		wantErr bool
	}{
		{"", ProtoTCP, false},
		{"tcp", ProtoTCP, false},
		{"TCP", ProtoTCP, false},
		{"udp", ProtoUDP, false},
		{"UDP", ProtoUDP, false},
		{"sctp", "", true},
		{"http", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizeProtocol(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrValidation, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

// =============================================================================
// Status Transition Tests
// =============================================================================

func TestValidateContainerTransition(t *testing.T) {
	tests := []struct {
		from, to ContainerStatus
		valid    bool
	}{
		{ContainerCreated, ContainerRunning, true},
		{ContainerCreated, ContainerStopped, true},
		{ContainerCreated, ContainerRemoved, true},
		{ContainerRunning, ContainerStopped, true},
		{ContainerRunning, ContainerRunning, true}, // restart
		{ContainerStopped, ContainerRunning, true},
		{ContainerStopped, ContainerStopped, true},
		{ContainerRemoved, ContainerRunning, false},
		{ContainerRemoved, ContainerCreated, false},
		{ContainerRunning, ContainerCreated, false},
		{ContainerStatus("bogus"), ContainerRunning, false},
	}

	for _, tt := range tests {
		err := ValidateContainerTransition(tt.from, tt.to)
		if tt.valid {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tt.from, tt.to)
		}
	}
}

func TestContainerTransition_MutatesOnSuccess(t *testing.T) {
	c, err := NewContainer("tenant-1", "web", "nginx:alpine")
	require.NoError(t, err)

	require.NoError(t, c.Transition(ContainerRunning))
	assert.Equal(t, ContainerRunning, c.Status)

	assert.ErrorIs(t, c.Transition(ContainerCreated), ErrInvalidTransition)
	assert.Equal(t, ContainerRunning, c.Status, "failed transition must not change status")
}
