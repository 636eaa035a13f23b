// Package modal runs sandboxes on Modal's managed infrastructure through
// the modal-go SDK. Images are either pulled from a registry or assembled
// from a local Dockerfile; the SDK does not support build contexts, so
// Dockerfiles must not COPY or ADD local files.
package modal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modal-labs/libmodal/modal-go"
	"golang.org/x/sync/errgroup"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/compute"
)

// ProviderConfig holds Modal-specific configuration.
type ProviderConfig struct {
	// AppName is the Modal app sandboxes are created under. If empty, a
	// unique name is generated per sandbox.
	AppName string
	// Regions restricts sandbox placement (e.g. "us-east").
	Regions []string
	// Verbose enables detailed sandbox logging.
	Verbose bool
}

// ParseProviderConfig extracts Modal-specific settings from the generic
// provider_config map.
func ParseProviderConfig(config map[string]any) ProviderConfig {
	pc := ProviderConfig{}
	if config == nil {
		return pc
	}
	if v, ok := config["app_name"].(string); ok {
		pc.AppName = v
	}
	if v, ok := config["region"].(string); ok {
		pc.Regions = []string{v}
	}
	if v, ok := config["regions"].([]any); ok {
		for _, r := range v {
			if s, ok := r.(string); ok {
				pc.Regions = append(pc.Regions, s)
			}
		}
	}
	if v, ok := config["verbose"].(bool); ok {
		pc.Verbose = v
	}
	return pc
}

// Provider runs sandboxes on Modal.
type Provider struct {
	client *modal.Client
	config ProviderConfig
}

// MinImageBuilderVersion is the oldest Modal image builder that handles
// WORKDIR and the other Dockerfile instructions sandboxes rely on.
const MinImageBuilderVersion = "2025.06"

// NewProvider creates a new Modal provider using the ambient Modal
// credentials (~/.modal.toml or MODAL_TOKEN_* variables).
func NewProvider(config ProviderConfig) (*Provider, error) {
	if err := checkImageBuilderVersion(); err != nil {
		return nil, err
	}

	slog.Debug("initializing modal client")
	client, err := modal.NewClient()
	if err != nil {
		return nil, fmt.Errorf("creating modal client: %w", err)
	}
	return &Provider{client: client, config: config}, nil
}

// ConfigReader reads the Modal CLI configuration.
type ConfigReader interface {
	ReadConfig() ([]byte, error)
}

// cliConfigReader shells out to the modal CLI for the active config.
type cliConfigReader struct{}

func (cliConfigReader) ReadConfig() ([]byte, error) {
	modalPath, err := exec.LookPath("modal")
	if err != nil {
		return nil, fmt.Errorf("modal CLI not found: %w", err)
	}
	cmd := exec.Command(modalPath, "config", "show")
	return cmd.Output()
}

var defaultConfigReader ConfigReader = cliConfigReader{}

func checkImageBuilderVersion() error {
	return checkImageBuilderVersionWith(defaultConfigReader)
}

func checkImageBuilderVersionWith(reader ConfigReader) error {
	output, err := reader.ReadConfig()
	if err != nil {
		return fmt.Errorf("reading modal config: %w", err)
	}

	var config struct {
		ImageBuilderVersion *string `json:"image_builder_version"`
	}
	if err := json.Unmarshal(output, &config); err != nil {
		return fmt.Errorf("parsing modal config: %w", err)
	}

	if config.ImageBuilderVersion == nil || *config.ImageBuilderVersion == "" ||
		*config.ImageBuilderVersion < MinImageBuilderVersion {
		return fmt.Errorf("modal image_builder_version must be %s or later; "+
			"run: modal config set image_builder_version %s",
			MinImageBuilderVersion, MinImageBuilderVersion)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "modal"
}

// BuildImage validates the build context and returns it as the image
// reference. The actual build happens lazily on the Modal side when the
// sandbox is created, once an app exists to attach the image to.
func (p *Provider) BuildImage(ctx context.Context, contextDir, tag string) (string, error) {
	dockerfilePath := filepath.Join(contextDir, "Dockerfile")
	if _, err := os.Stat(dockerfilePath); err != nil {
		return "", fmt.Errorf("Dockerfile not found at %s: %w", dockerfilePath, err)
	}
	slog.Debug("modal build deferred to sandbox creation", "context", contextDir)
	return contextDir, nil
}

// CreateSandbox creates and starts a Modal sandbox.
func (p *Provider) CreateSandbox(ctx context.Context, opts compute.SandboxOptions) (compute.Sandbox, error) {
	appName := opts.Name
	if appName == "" {
		appName = p.config.AppName
	}
	if appName == "" {
		appName = "mlops-" + uuid.NewString()[:8]
	}

	app, err := p.client.Apps.FromName(ctx, appName, &modal.AppFromNameParams{
		CreateIfMissing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating modal app: %w", err)
	}

	var image *modal.Image
	if isBuildContext(opts.ImageRef) {
		image, err = p.imageFromDockerfile(ctx, app, opts.ImageRef)
		if err != nil {
			return nil, fmt.Errorf("building image from dockerfile: %w", err)
		}
	} else {
		image = p.client.Images.FromRegistry(opts.ImageRef, nil)
	}

	cpus := opts.CPUs
	if cpus <= 0 {
		cpus = 1
	}
	memoryMiB := opts.MemoryMB
	if memoryMiB <= 0 {
		memoryMiB = 2048
	}

	env := make(map[string]string, len(opts.Env))
	for k, v := range opts.Env {
		env[k] = v
	}

	slog.Debug("creating modal sandbox",
		"app", appName,
		"cpus", cpus,
		"memory_mib", memoryMiB,
		"regions", p.config.Regions)

	sandbox, err := p.client.Sandboxes.Create(ctx, app, image, &modal.SandboxCreateParams{
		CPU:       float64(cpus),
		MemoryMiB: memoryMiB,
		Env:       env,
		Timeout:   24 * time.Hour, // Modal's maximum
		Verbose:   p.config.Verbose,
		Regions:   p.config.Regions,
	})
	if err != nil {
		return nil, fmt.Errorf("creating modal sandbox: %w", err)
	}

	slog.Debug("modal sandbox created", "sandbox_id", sandbox.SandboxID)
	return &modalSandbox{sandbox: sandbox}, nil
}

// imageFromDockerfile assembles a Modal image out of a Dockerfile's base
// image and instructions.
func (p *Provider) imageFromDockerfile(ctx context.Context, app *modal.App, contextDir string) (*modal.Image, error) {
	content, err := os.ReadFile(filepath.Join(contextDir, "Dockerfile"))
	if err != nil {
		return nil, fmt.Errorf("reading Dockerfile: %w", err)
	}

	baseImage, commands, err := parseDockerfile(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing Dockerfile: %w", err)
	}

	image := p.client.Images.FromRegistry(baseImage, nil)
	if len(commands) > 0 {
		image = image.DockerfileCommands(commands, nil)
	}

	// Build eagerly to surface build errors before the sandbox starts.
	built, err := image.Build(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("building image: %w", err)
	}
	return built, nil
}

// isBuildContext reports whether the image reference is a local directory
// rather than a registry reference.
func isBuildContext(imageRef string) bool {
	info, err := os.Stat(imageRef)
	return err == nil && info.IsDir()
}

// supportedInstructions are the Dockerfile instructions Modal accepts
// without a build context.
var supportedInstructions = []string{"RUN ", "WORKDIR ", "ENV ", "USER ", "EXPOSE ", "LABEL "}

// parseDockerfile extracts the base image and the instruction list from a
// Dockerfile. COPY and ADD are rejected because there is no build context
// to copy from; with multiple FROM instructions the last stage wins.
func parseDockerfile(content string) (baseImage string, commands []string, err error) {
	for _, line := range joinContinuations(content) {
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "FROM "):
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				baseImage = fields[1]
				commands = commands[:0]
			}
		case strings.HasPrefix(upper, "COPY ") || strings.HasPrefix(upper, "ADD "):
			return "", nil, fmt.Errorf("COPY and ADD instructions are not supported without a build context")
		default:
			for _, instr := range supportedInstructions {
				if strings.HasPrefix(upper, instr) {
					commands = append(commands, line)
					break
				}
			}
		}
	}

	if baseImage == "" {
		return "", nil, fmt.Errorf("no FROM instruction found in Dockerfile")
	}
	return baseImage, commands, nil
}

// joinContinuations returns the logical lines of a Dockerfile with
// backslash continuations folded, comments and blanks dropped.
func joinContinuations(content string) []string {
	var lines []string
	var current strings.Builder

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if cont := strings.TrimSuffix(line, "\\"); cont != line {
			current.WriteString(strings.TrimSpace(cont))
			current.WriteString(" ")
			continue
		}

		if current.Len() > 0 {
			current.WriteString(line)
			lines = append(lines, current.String())
			current.Reset()
			continue
		}

		lines = append(lines, line)
	}

	if current.Len() > 0 {
		lines = append(lines, strings.TrimSpace(current.String()))
	}
	return lines
}

// modalSandbox is a running Modal sandbox.
type modalSandbox struct {
	sandbox *modal.Sandbox
}

func (s *modalSandbox) ID() string {
	return s.sandbox.SandboxID
}

func (s *modalSandbox) CopyTo(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if dstDir := filepath.Dir(dst); dstDir != "/" && dstDir != "." {
		if _, err := s.execQuiet(ctx, fmt.Sprintf("mkdir -p %q", dstDir)); err != nil {
			return fmt.Errorf("creating directory %s: %w", dstDir, err)
		}
	}

	if info.IsDir() {
		return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			target := filepath.Join(dst, rel)
			if info.IsDir() {
				_, err := s.execQuiet(ctx, fmt.Sprintf("mkdir -p %q", target))
				return err
			}
			return s.copyFileTo(ctx, path, target)
		})
	}
	return s.copyFileTo(ctx, src, dst)
}

func (s *modalSandbox) copyFileTo(ctx context.Context, src, dst string) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading source file: %w", err)
	}

	f, err := s.sandbox.Open(ctx, dst, "w")
	if err != nil {
		return fmt.Errorf("opening destination file: %w", err)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("writing destination file: %w", err)
	}
	if err := f.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing destination file: %w", err)
	}
	return f.Close()
}

func (s *modalSandbox) CopyFrom(ctx context.Context, src, dst string) error {
	if code, _ := s.execQuiet(ctx, fmt.Sprintf("test -d %q", src)); code == 0 {
		return s.copyDirFrom(ctx, src, dst)
	}
	return s.copyFileFrom(ctx, src, dst)
}

func (s *modalSandbox) copyFileFrom(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating local directory: %w", err)
	}

	f, err := s.sandbox.Open(ctx, src, "r")
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}

	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("reading source file: %w", err)
	}

	return os.WriteFile(dst, content, 0644)
}

func (s *modalSandbox) copyDirFrom(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("creating local directory: %w", err)
	}

	var listing strings.Builder
	process, err := s.sandbox.Exec(ctx, []string{"find", src, "-maxdepth", "1", "-mindepth", "1"}, &modal.SandboxExecParams{})
	if err != nil {
		return fmt.Errorf("listing sandbox directory: %w", err)
	}
	io.Copy(&listing, process.Stdout)
	if _, err := process.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for find: %w", err)
	}

	for _, entry := range strings.Split(strings.TrimSpace(listing.String()), "\n") {
		if entry == "" {
			continue
		}
		target := filepath.Join(dst, filepath.Base(entry))
		if code, _ := s.execQuiet(ctx, fmt.Sprintf("test -d %q", entry)); code == 0 {
			if err := s.copyDirFrom(ctx, entry, target); err != nil {
				return err
			}
		} else if err := s.copyFileFrom(ctx, entry, target); err != nil {
			return err
		}
	}
	return nil
}

// execQuiet runs a command discarding output and returns the exit code.
func (s *modalSandbox) execQuiet(ctx context.Context, cmd string) (int, error) {
	process, err := s.sandbox.Exec(ctx, []string{"bash", "-c", cmd}, &modal.SandboxExecParams{})
	if err != nil {
		return -1, err
	}
	io.Copy(io.Discard, process.Stdout)
	io.Copy(io.Discard, process.Stderr)
	return process.Wait(ctx)
}

func (s *modalSandbox) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts compute.ExecOptions) (int, error) {
	params := &modal.SandboxExecParams{Env: opts.Env}
	if opts.Timeout > 0 {
		params.Timeout = opts.Timeout
	}
	if opts.WorkDir != "" {
		params.Workdir = opts.WorkDir
	}

	process, err := s.sandbox.Exec(ctx, []string{"bash", "-c", cmd}, params)
	if err != nil {
		return -1, fmt.Errorf("executing command: %w", err)
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	// Drain both streams fully before waiting on the process.
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(stdout, process.Stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(stderr, process.Stderr)
		return err
	})
	if err := g.Wait(); err != nil {
		return -1, fmt.Errorf("streaming output: %w", err)
	}

	exitCode, err := process.Wait(ctx)
	if err != nil {
		return -1, fmt.Errorf("waiting for process: %w", err)
	}
	return exitCode, nil
}

func (s *modalSandbox) Destroy(ctx context.Context) error {
	slog.Debug("terminating modal sandbox", "sandbox_id", s.sandbox.SandboxID)
	if err := s.sandbox.Terminate(ctx); err != nil {
		if strings.Contains(err.Error(), "already terminated") ||
			strings.Contains(err.Error(), "not found") {
			return nil
		}
		return fmt.Errorf("terminating sandbox: %w", err)
	}
	return nil
}
