package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// =============================================================================
// Docker Gateway
// =============================================================================

// DockerGateway implements Gateway with the Docker SDK for single-container
// operations. Compose operations delegate to the CLI runner because the SDK
// has no compose surface.
type DockerGateway struct {
	cli     *client.Client
	compose *ComposeCLI
}

// NewDockerGateway creates a new Docker gateway. If host is empty the client
// uses the default Docker host from the environment.
func NewDockerGateway(host string, compose *ComposeCLI) (*DockerGateway, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewRuntimeError("NewDockerGateway", "", "", "failed to create client", ErrConnectionFailed)
	}

	return &DockerGateway{cli: cli, compose: compose}, nil
}

// Ping checks if the Docker daemon is reachable.
func (g *DockerGateway) Ping(ctx context.Context) error {
	if _, err := g.cli.Ping(ctx); err != nil {
		return NewRuntimeError("Ping", "", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

// Close closes the Docker client connection.
func (g *DockerGateway) Close() error {
	return g.cli.Close()
}

// =============================================================================
// Container Operations
// =============================================================================

// Run creates and starts a container from the given spec.
func (g *DockerGateway) Run(ctx context.Context, spec RunSpec) (string, Output, error) {
	config := &container.Config{
		Image:  spec.Image,
		Labels: spec.Labels,
	}
	for k, v := range spec.Env {
		config.Env = append(config.Env, fmt.Sprintf("%s=%s", k, v))
	}

	hostConfig := &container.HostConfig{}

	if len(spec.Ports) > 0 {
		portBindings := nat.PortMap{}
		exposedPorts := nat.PortSet{}
		for _, p := range spec.Ports {
			proto := p.Protocol
			if proto == "" {
				proto = "tcp"
			}
			containerPort := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
			exposedPorts[containerPort] = struct{}{}
			portBindings[containerPort] = []nat.PortBinding{
				{HostPort: strconv.Itoa(p.HostPort)},
			}
		}
		config.ExposedPorts = exposedPorts
		hostConfig.PortBindings = portBindings
	}

	for _, m := range spec.Mounts {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.HostPath,
			Target:   m.ContainerPath,
			ReadOnly: m.ReadOnly,
		})
	}

	if spec.CPULimit > 0 {
		hostConfig.NanoCPUs = int64(spec.CPULimit * 1e9)
	}
	if spec.MemoryLimit > 0 {
		hostConfig.Memory = spec.MemoryLimit
	}

	var networkConfig *network.NetworkingConfig
	if spec.Network != "" {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {},
			},
		}
	}

	resp, err := g.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, spec.Name)
	if err != nil {
		return "", Output{ExitCode: 1, Stderr: []string{err.Error()}}, g.mapContainerErr(ctx, "Run", spec.Name, err)
	}

	if err := g.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.ID, Output{ExitCode: 1, Stderr: []string{err.Error()}}, g.mapContainerErr(ctx, "Run", spec.Name, err)
	}

	return resp.ID, Output{}, nil
}

// Start starts a stopped container.
func (g *DockerGateway) Start(ctx context.Context, name string) (Output, error) {
	err := g.cli.ContainerStart(ctx, name, container.StartOptions{})
	if err != nil {
		return Output{ExitCode: 1, Stderr: []string{err.Error()}}, g.mapContainerErr(ctx, "Start", name, err)
	}
	return Output{}, nil
}

// Stop stops a running container using the daemon's default grace period.
func (g *DockerGateway) Stop(ctx context.Context, name string) (Output, error) {
	err := g.cli.ContainerStop(ctx, name, container.StopOptions{})
	if err != nil {
		return Output{ExitCode: 1, Stderr: []string{err.Error()}}, g.mapContainerErr(ctx, "Stop", name, err)
	}
	return Output{}, nil
}

// Restart restarts a container.
func (g *DockerGateway) Restart(ctx context.Context, name string) (Output, error) {
	err := g.cli.ContainerRestart(ctx, name, container.StopOptions{})
	if err != nil {
		return Output{ExitCode: 1, Stderr: []string{err.Error()}}, g.mapContainerErr(ctx, "Restart", name, err)
	}
	return Output{}, nil
}

// Remove removes a container.
func (g *DockerGateway) Remove(ctx context.Context, name string, force bool) (Output, error) {
	err := g.cli.ContainerRemove(ctx, name, container.RemoveOptions{
		Force:         force,
		RemoveVolumes: false,
	})
	if err != nil {
		return Output{ExitCode: 1, Stderr: []string{err.Error()}}, g.mapContainerErr(ctx, "Remove", name, err)
	}
	return Output{}, nil
}

// Logs returns the last tail lines of a container's combined output.
func (g *DockerGateway) Logs(ctx context.Context, name string, tail int) ([]string, error) {
	logOpts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
	}
	if tail > 0 {
		logOpts.Tail = strconv.Itoa(tail)
	}

	reader, err := g.cli.ContainerLogs(ctx, name, logOpts)
	if err != nil {
		return nil, g.mapContainerErr(ctx, "Logs", name, err)
	}
	defer reader.Close()

	// The daemon multiplexes stdout and stderr into one stream.
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return nil, g.mapContainerErr(ctx, "Logs", name, err)
	}

	lines := splitLines(stdout.String())
	lines = append(lines, splitLines(stderr.String())...)
	return lines, nil
}

// ListImages lists images known to the daemon.
func (g *DockerGateway) ListImages(ctx context.Context) ([]ImageRef, error) {
	images, err := g.cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, g.mapContainerErr(ctx, "ListImages", "", err)
	}

	refs := make([]ImageRef, 0, len(images))
	for _, img := range images {
		refs = append(refs, ImageRef{
			ID:        img.ID,
			Tags:      img.RepoTags,
			SizeBytes: img.Size,
			CreatedAt: time.Unix(img.Created, 0),
		})
	}
	return refs, nil
}

// =============================================================================
// Compose Delegation
// =============================================================================

func (g *DockerGateway) ComposeUp(ctx context.Context, file, workdir string) (Output, error) {
	return g.compose.ComposeUp(ctx, file, workdir)
}

func (g *DockerGateway) ComposeDown(ctx context.Context, file, workdir string) (Output, error) {
	return g.compose.ComposeDown(ctx, file, workdir)
}

func (g *DockerGateway) ComposeCmd(ctx context.Context, file string, args []string, workdir string) (Output, error) {
	return g.compose.ComposeCmd(ctx, file, args, workdir)
}

// =============================================================================
// Error Mapping
// =============================================================================

func (g *DockerGateway) mapContainerErr(ctx context.Context, op, name string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return NewRuntimeError(op, "container", name, "operation timed out", ErrTimeout)
	}
	if client.IsErrNotFound(err) {
		return NewRuntimeError(op, "container", name, "container not found", ErrContainerNotFound)
	}
	if strings.Contains(err.Error(), "Conflict") {
		return NewRuntimeError(op, "container", name, "container already exists", ErrContainerAlreadyExists)
	}
	if strings.Contains(err.Error(), "port is already allocated") {
		return NewRuntimeError(op, "container", name, err.Error(), ErrPortAlreadyAllocated)
	}
	if strings.Contains(err.Error(), "No such image") {
		return NewRuntimeError(op, "container", name, err.Error(), ErrImageNotFound)
	}
	return NewRuntimeError(op, "container", name, err.Error(), err)
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
