// Package runtime provides the gateway to the container runtime. The engine
// talks to Docker exclusively through the Gateway interface so tests can
// substitute a fake.
package runtime

import (
	"context"
	"time"
)

// =============================================================================
// Gateway Interface
// =============================================================================

// Gateway is the runtime boundary consumed by the lifecycle engine. Every
// call runs under the caller's context deadline; a deadline hit surfaces as
// ErrTimeout.
type Gateway interface {
	// Run creates and starts a container, returning its runtime ID.
	Run(ctx context.Context, spec RunSpec) (string, Output, error)

	Start(ctx context.Context, name string) (Output, error)
	Stop(ctx context.Context, name string) (Output, error)
	Restart(ctx context.Context, name string) (Output, error)
	Remove(ctx context.Context, name string, force bool) (Output, error)
	Logs(ctx context.Context, name string, tail int) ([]string, error)
	ListImages(ctx context.Context) ([]ImageRef, error)

	ComposeUp(ctx context.Context, file, workdir string) (Output, error)
	ComposeDown(ctx context.Context, file, workdir string) (Output, error)
	ComposeCmd(ctx context.Context, file string, args []string, workdir string) (Output, error)

	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Specs and Results
// =============================================================================

// RunSpec defines the container to create and start.
type RunSpec struct {
	Name        string
	Image       string
	Env         map[string]string
	Labels      map[string]string
	Ports       []PortMap
	Mounts      []MountSpec
	CPULimit    float64 // cores, 0 = unlimited
	MemoryLimit int64   // bytes, 0 = unlimited
	Network     string
}

// PortMap defines a host-to-container port mapping.
type PortMap struct {
	HostPort      int
	ContainerPort int
	Protocol      string // "tcp" or "udp"
}

// MountSpec defines a bind mount.
type MountSpec struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// Output captures what a runtime invocation produced. SDK-backed calls leave
// Stdout/Stderr empty unless the daemon returned a message worth keeping;
// CLI-backed compose calls carry the full captured streams.
type Output struct {
	ExitCode int
	Stdout   []string
	Stderr   []string
}

// ImageRef describes an image known to the runtime.
type ImageRef struct {
	ID        string
	Tags      []string
	SizeBytes int64
	CreatedAt time.Time
}
