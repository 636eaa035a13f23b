package compute

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

const (
	sandboxCodeDir   = "/code"
	sandboxInputDir  = "/inputs"
	sandboxOutputDir = "/outputs"
)

// Runner executes jobs inside provider sandboxes. It stages the job's code
// and inputs into the sandbox, runs the command with input and output
// placeholders expanded, and copies declared outputs back out.
type Runner struct {
	provider Provider
	cpus     int
	memoryMB int
	timeout  time.Duration

	// Stdout and Stderr receive the job's output streams. They default
	// to the process's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner creates a runner on top of the given provider, sized from the
// compute configuration.
func NewRunner(provider Provider, cfg models.ComputeConfig) (*Runner, error) {
	cpus, memoryMB, err := Resources(cfg)
	if err != nil {
		return nil, err
	}
	return &Runner{
		provider: provider,
		cpus:     cpus,
		memoryMB: memoryMB,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}, nil
}

// SetTimeout bounds the job command's execution time. Zero means no limit.
func (r *Runner) SetTimeout(d time.Duration) {
	r.timeout = d
}

// RunJob executes the job to completion in a fresh sandbox. The sandbox is
// destroyed when the job finishes, whether it succeeded or not.
func (r *Runner) RunJob(ctx context.Context, job models.JobSpec, env models.EnvironmentSpec) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	imageRef, err := r.resolveImage(ctx, env)
	if err != nil {
		return err
	}

	name := job.Name
	if name == "" {
		name = "job-" + uuid.NewString()[:8]
	}

	slog.Info("creating sandbox",
		"provider", r.provider.Name(),
		"job", name,
		"image", imageRef,
		"cpus", r.cpus,
		"memory_mb", r.memoryMB)

	sandbox, err := r.provider.CreateSandbox(ctx, SandboxOptions{
		Name:     name,
		ImageRef: imageRef,
		CPUs:     r.cpus,
		MemoryMB: r.memoryMB,
	})
	if err != nil {
		return fmt.Errorf("creating sandbox: %w", err)
	}
	defer func() {
		if err := sandbox.Destroy(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to destroy sandbox", "sandbox_id", sandbox.ID(), "error", err)
		}
	}()

	if err := r.stage(ctx, sandbox, job); err != nil {
		return err
	}

	command := ExpandPlaceholders(job.Command, job.Inputs, job.Outputs)
	slog.Info("running job command", "job", name, "command", command)

	exitCode, err := sandbox.Exec(ctx, command, r.Stdout, r.Stderr, ExecOptions{
		WorkDir: sandboxCodeDir,
		Timeout: r.timeout,
	})
	if err != nil {
		return fmt.Errorf("executing job command: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("job %s failed with exit code %d", name, exitCode)
	}

	if err := r.collect(ctx, sandbox, job); err != nil {
		return err
	}

	slog.Info("job completed", "job", name)
	return nil
}

// resolveImage turns the environment spec into a runnable image reference,
// building the context directory when one is given.
func (r *Runner) resolveImage(ctx context.Context, env models.EnvironmentSpec) (string, error) {
	if err := env.Validate(); err != nil {
		return "", fmt.Errorf("invalid environment: %w", err)
	}
	switch {
	case env.BuildContext != "":
		ref, err := r.provider.BuildImage(ctx, env.BuildContext, env.Ref())
		if err != nil {
			return "", fmt.Errorf("building environment image: %w", err)
		}
		return ref, nil
	case env.Image != "":
		return env.Image, nil
	default:
		return "", fmt.Errorf("environment %s: conda environments require workspace compute", env.Ref())
	}
}

// stage copies the job's code directory and input bindings into the sandbox.
func (r *Runner) stage(ctx context.Context, sandbox Sandbox, job models.JobSpec) error {
	if err := sandbox.CopyTo(ctx, job.CodeDir, sandboxCodeDir); err != nil {
		return fmt.Errorf("copying code directory: %w", err)
	}
	for _, in := range job.Inputs {
		dst := path.Join(sandboxInputDir, in.Name)
		if err := sandbox.CopyTo(ctx, in.Path, dst); err != nil {
			return fmt.Errorf("copying input %s: %w", in.Name, err)
		}
	}
	for _, out := range job.Outputs {
		dst := path.Join(sandboxOutputDir, out.Name)
		cmd := fmt.Sprintf("mkdir -p %q", dst)
		if code, err := sandbox.Exec(ctx, cmd, nil, nil, ExecOptions{}); err != nil || code != 0 {
			return fmt.Errorf("preparing output directory %s: exit %d, %v", dst, code, err)
		}
	}
	return nil
}

// collect copies declared outputs from the sandbox back to their local paths.
func (r *Runner) collect(ctx context.Context, sandbox Sandbox, job models.JobSpec) error {
	for _, out := range job.Outputs {
		src := path.Join(sandboxOutputDir, out.Name)
		if err := sandbox.CopyFrom(ctx, src, out.Path); err != nil {
			return fmt.Errorf("collecting output %s: %w", out.Name, err)
		}
	}
	return nil
}

// ExpandPlaceholders substitutes ${inputs.NAME} and ${outputs.NAME}
// references in the command with the sandbox paths the bindings are staged
// at. Unknown placeholders are left untouched.
func ExpandPlaceholders(command string, inputs, outputs []models.AssetBinding) string {
	for _, in := range inputs {
		placeholder := fmt.Sprintf("${inputs.%s}", in.Name)
		command = strings.ReplaceAll(command, placeholder, path.Join(sandboxInputDir, in.Name))
	}
	for _, out := range outputs {
		placeholder := fmt.Sprintf("${outputs.%s}", out.Name)
		command = strings.ReplaceAll(command, placeholder, path.Join(sandboxOutputDir, out.Name))
	}
	return command
}
