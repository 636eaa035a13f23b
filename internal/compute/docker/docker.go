package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/compute"
)

// Provider runs sandboxes as local Docker containers.
type Provider struct{}

// NewProvider creates a new Docker provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "docker"
}

// BuildImage builds a Docker image from the given context directory.
func (p *Provider) BuildImage(ctx context.Context, contextDir, tag string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", "build", "-t", tag, contextDir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("building docker image: %w", err)
	}

	return tag, nil
}

// CreateSandbox creates and starts a Docker container that idles until
// commands are executed in it.
func (p *Provider) CreateSandbox(ctx context.Context, opts compute.SandboxOptions) (compute.Sandbox, error) {
	containerID := opts.Name
	if containerID == "" {
		containerID = "mlops-" + uuid.NewString()[:8]
	}

	args := []string{"run", "-d", "--name", containerID}
	if opts.CPUs > 0 {
		args = append(args, "--cpus", fmt.Sprintf("%d", opts.CPUs))
	}
	if opts.MemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", opts.MemoryMB))
	}
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, opts.ImageRef, "sleep", "infinity")

	cmd := exec.CommandContext(ctx, "docker", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("creating docker container: %w: %s", err, stderr.String())
	}

	return &dockerSandbox{containerID: containerID}, nil
}

// dockerSandbox is a running Docker container.
type dockerSandbox struct {
	containerID string
}

func (s *dockerSandbox) ID() string {
	return s.containerID
}

func (s *dockerSandbox) CopyTo(ctx context.Context, src, dst string) error {
	dstDir := filepath.Dir(dst)
	if dstDir != "/" && dstDir != "." {
		mkdirCmd := exec.CommandContext(ctx, "docker", "exec", s.containerID, "mkdir", "-p", dstDir)
		if err := mkdirCmd.Run(); err != nil {
			return fmt.Errorf("creating directory %s: %w", dstDir, err)
		}
	}

	cmd := exec.CommandContext(ctx, "docker", "cp", src, fmt.Sprintf("%s:%s", s.containerID, dst))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copying to container: %w: %s", err, stderr.String())
	}
	return nil
}

func (s *dockerSandbox) CopyFrom(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating local directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "docker", "cp", fmt.Sprintf("%s:%s", s.containerID, src), dst)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copying from container: %w: %s", err, stderr.String())
	}
	return nil
}

func (s *dockerSandbox) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts compute.ExecOptions) (int, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{"exec"}
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	args = append(args, s.containerID, "bash", "-c", cmd)

	execCmd := exec.CommandContext(ctx, "docker", args...)
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

	err := execCmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		if ctx.Err() == context.DeadlineExceeded {
			return -1, fmt.Errorf("command timed out")
		}
		return -1, fmt.Errorf("executing command: %w", err)
	}

	return 0, nil
}

func (s *dockerSandbox) Destroy(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "rm", "-f", s.containerID)
	if err := cmd.Run(); err != nil {
		if !strings.Contains(err.Error(), "No such container") {
			return fmt.Errorf("removing container: %w", err)
		}
	}
	return nil
}
