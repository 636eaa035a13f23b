// Package compute runs training jobs in local sandboxes (Docker containers
// or Modal sandboxes) so a workflow can be dry-run end to end before it is
// pointed at managed workspace compute.
package compute

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/util"
)

// Sandbox is one running isolated environment a job executes in.
type Sandbox interface {
	// ID returns the unique identifier for this sandbox.
	ID() string

	// CopyTo copies a local file or directory into the sandbox.
	CopyTo(ctx context.Context, src, dst string) error

	// CopyFrom copies a file or directory from the sandbox to a local path.
	CopyFrom(ctx context.Context, src, dst string) error

	// Exec runs a command in the sandbox, streaming stdout and stderr to
	// the given writers, and returns the exit code.
	Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts ExecOptions) (int, error)

	// Destroy removes the sandbox and all of its resources.
	Destroy(ctx context.Context) error
}

// ExecOptions configures command execution inside a sandbox.
type ExecOptions struct {
	Env     map[string]string
	Timeout time.Duration
	WorkDir string
}

// Provider is a factory for sandboxes on one backend.
type Provider interface {
	// Name returns the backend name ("docker" or "modal").
	Name() string

	// BuildImage builds a runtime image from a directory containing a
	// Dockerfile and returns the reference sandboxes are created from.
	BuildImage(ctx context.Context, contextDir, tag string) (string, error)

	// CreateSandbox creates and starts a sandbox from an image reference.
	CreateSandbox(ctx context.Context, opts SandboxOptions) (Sandbox, error)
}

// SandboxOptions configures sandbox creation.
type SandboxOptions struct {
	Name     string
	ImageRef string
	CPUs     int
	MemoryMB int
	Env      map[string]string
}

// Resources extracts the sandbox resource shape from a compute config.
func Resources(cfg models.ComputeConfig) (cpus, memoryMB int, err error) {
	cpus = cfg.CPUs
	if cpus <= 0 {
		cpus = 1
	}
	memoryMB, err = util.ParseMemory(cfg.Memory)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing compute memory %q: %w", cfg.Memory, err)
	}
	if memoryMB <= 0 {
		memoryMB = 2048
	}
	return cpus, memoryMB, nil
}
