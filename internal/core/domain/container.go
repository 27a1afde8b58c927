package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Container Status
// =============================================================================

type ContainerStatus string

const (
	ContainerCreated ContainerStatus = "created"
	ContainerRunning ContainerStatus = "running"
	ContainerStopped ContainerStatus = "stopped"
	ContainerRemoved ContainerStatus = "removed"
)

// ErrInvalidTransition is returned for a status transition the container
// state machine does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// validContainerTransitions defines the allowed state transitions.
// "removed" is terminal: the record is deleted, never flagged.
var validContainerTransitions = map[ContainerStatus][]ContainerStatus{
	ContainerCreated: {ContainerRunning, ContainerStopped, ContainerRemoved},
	ContainerRunning: {ContainerRunning, ContainerStopped, ContainerRemoved},
	ContainerStopped: {ContainerRunning, ContainerStopped, ContainerRemoved},
	ContainerRemoved: {},
}

// ValidateContainerTransition checks if a status transition is valid.
func ValidateContainerTransition(from, to ContainerStatus) error {
	allowed, exists := validContainerTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// =============================================================================
// Port Binding
// =============================================================================

// Protocol is the transport protocol of a port binding.
type Protocol string

const (
	ProtoTCP Protocol = "tcp"
	ProtoUDP Protocol = "udp"
)

// NormalizeProtocol maps an empty or mixed-case protocol to a valid one.
func NormalizeProtocol(p string) (Protocol, error) {
	switch strings.ToLower(p) {
	case "", "tcp":
		return ProtoTCP, nil
	case "udp":
		return ProtoUDP, nil
	default:
		return "", fmt.Errorf("%w: protocol must be tcp or udp, got %q", ErrValidation, p)
	}
}

// PortBinding reserves one host port for one container. For a given tenant
// and protocol a host port is held by at most one active binding.
type PortBinding struct {
	ID            string   `json:"id"`
	TenantID      string   `json:"tenant_id"`
	ContainerID   string   `json:"container_id"`
	HostPort      int      `json:"host_port"`
	ContainerPort int      `json:"container_port"`
	Protocol      Protocol `json:"protocol"`
}

// =============================================================================
// Mount
// =============================================================================

// Mount is a bind mount from a host path into a container path. Mounts are
// immutable after creation; changing one requires remove + recreate.
type Mount struct {
	ID            string `json:"id"`
	ContainerID   string `json:"container_id"`
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
	ReadOnly      bool   `json:"read_only"`
}

// =============================================================================
// Container
// =============================================================================

// Container is a single managed runtime unit owned by a tenant. Name is
// unique within the tenant's namespace and doubles as the runtime object
// name. RuntimeID stays empty until the runtime run call succeeds.
type Container struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	RuntimeID   string            `json:"runtime_id,omitempty"`
	Status      ContainerStatus   `json:"status"`
	Ports       []PortBinding     `json:"ports,omitempty"`
	Mounts      []Mount           `json:"mounts,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	CPULimit    string            `json:"cpu_limit,omitempty"`
	MemoryLimit string            `json:"memory_limit,omitempty"`
	Network     string            `json:"network,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewContainer creates a container record in the created state.
// Returns ErrValidation if name or image is empty.
func NewContainer(tenantID, name, image string) (*Container, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if err := ValidateContainerName(name); err != nil {
		return nil, err
	}
	if strings.TrimSpace(image) == "" {
		return nil, fmt.Errorf("%w: image is required", ErrValidation)
	}
	return &Container{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      name,
		Image:     image,
		Status:    ContainerCreated,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Transition attempts to move the container to a new status.
func (c *Container) Transition(to ContainerStatus) error {
	if err := ValidateContainerTransition(c.Status, to); err != nil {
		return err
	}
	c.Status = to
	return nil
}

// =============================================================================
// Validation Functions (Pure)
// =============================================================================

// containerNameRegex matches names the runtime accepts as object names.
var containerNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidateContainerName validates a container name.
func ValidateContainerName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(name) > 63 {
		return fmt.Errorf("%w: name must be at most 63 characters", ErrValidation)
	}
	if !containerNameRegex.MatchString(name) {
		return fmt.Errorf("%w: name %q may only contain alphanumerics, dots, hyphens, and underscores", ErrValidation, name)
	}
	return nil
}

// ValidatePortRange validates both ports of a requested binding.
func ValidatePortRange(hostPort, containerPort int) error {
	if containerPort < 1 || containerPort > 65535 {
		return fmt.Errorf("%w: container port %d out of range", ErrValidation, containerPort)
	}
	if hostPort != 0 && (hostPort < 1 || hostPort > 65535) {
		return fmt.Errorf("%w: host port %d out of range", ErrValidation, hostPort)
	}
	return nil
}
