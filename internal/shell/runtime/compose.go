package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// =============================================================================
// Compose CLI Runner
// =============================================================================

// ComposeCLI runs docker compose as a subprocess. Arguments are passed as
// discrete argv tokens, never through a shell.
type ComposeCLI struct {
	bin string
}

// NewComposeCLI creates a compose runner. An empty bin defaults to "docker".
func NewComposeCLI(bin string) *ComposeCLI {
	if bin == "" {
		bin = "docker"
	}
	return &ComposeCLI{bin: bin}
}

// ComposeUp brings a compose file up detached.
func (c *ComposeCLI) ComposeUp(ctx context.Context, file, workdir string) (Output, error) {
	return c.ComposeCmd(ctx, file, []string{"up", "-d", "--remove-orphans"}, workdir)
}

// ComposeDown tears a compose file down.
func (c *ComposeCLI) ComposeDown(ctx context.Context, file, workdir string) (Output, error) {
	return c.ComposeCmd(ctx, file, []string{"down"}, workdir)
}

// ComposeCmd runs an arbitrary compose subcommand against a file.
func (c *ComposeCLI) ComposeCmd(ctx context.Context, file string, args []string, workdir string) (Output, error) {
	argv := append([]string{"compose", "-f", file}, args...)

	cmd := exec.CommandContext(ctx, c.bin, argv...)
	cmd.Dir = workdir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	out := Output{
		Stdout: splitLines(stdout.String()),
		Stderr: splitLines(stderr.String()),
	}

	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			out.ExitCode = -1
			return out, &RuntimeError{
				Op: "ComposeCmd", Entity: "compose", ID: file,
				Message: "compose command timed out",
				Output:  out,
				Err:     ErrTimeout,
			}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
		} else {
			out.ExitCode = -1
		}
		return out, &RuntimeError{
			Op: "ComposeCmd", Entity: "compose", ID: file,
			Message: fmt.Sprintf("compose %v exited with code %d", args, out.ExitCode),
			Output:  out,
			Err:     ErrCommandFailed,
		}
	}

	return out, nil
}
