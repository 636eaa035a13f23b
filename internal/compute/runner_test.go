package compute

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

type fakeSandbox struct {
	id        string
	copiedTo  map[string]string // dst -> src
	copiedOut map[string]string // src -> dst
	execs     []string
	exitCode  int
	execErr   error
	destroyed bool
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{
		id:        "sb-test",
		copiedTo:  make(map[string]string),
		copiedOut: make(map[string]string),
	}
}

func (f *fakeSandbox) ID() string { return f.id }

func (f *fakeSandbox) CopyTo(ctx context.Context, src, dst string) error {
	f.copiedTo[dst] = src
	return nil
}

func (f *fakeSandbox) CopyFrom(ctx context.Context, src, dst string) error {
	f.copiedOut[src] = dst
	return nil
}

func (f *fakeSandbox) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts ExecOptions) (int, error) {
	f.execs = append(f.execs, cmd)
	if strings.HasPrefix(cmd, "mkdir") {
		return 0, nil
	}
	if f.execErr != nil {
		return -1, f.execErr
	}
	if stdout != nil {
		fmt.Fprintln(stdout, "training complete")
	}
	return f.exitCode, nil
}

func (f *fakeSandbox) Destroy(ctx context.Context) error {
	f.destroyed = true
	return nil
}

type fakeProvider struct {
	sandbox    *fakeSandbox
	builtTags  []string
	createOpts SandboxOptions
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) BuildImage(ctx context.Context, contextDir, tag string) (string, error) {
	f.builtTags = append(f.builtTags, tag)
	return "built:" + tag, nil
}

func (f *fakeProvider) CreateSandbox(ctx context.Context, opts SandboxOptions) (Sandbox, error) {
	f.createOpts = opts
	return f.sandbox, nil
}

func testJob() models.JobSpec {
	return models.JobSpec{
		Name:        "train-taxi",
		CodeDir:     "./src",
		Command:     "python train.py --data ${inputs.data} --out ${outputs.model}",
		Environment: "sklearn-env:1",
		Compute:     "local",
		Inputs: []models.AssetBinding{
			{Name: "data", Type: "uri_file", Path: "./data/taxi.csv"},
		},
		Outputs: []models.AssetBinding{
			{Name: "model", Type: "uri_folder", Path: "./out"},
		},
	}
}

func TestRunnerRunJob(t *testing.T) {
	sandbox := newFakeSandbox()
	provider := &fakeProvider{sandbox: sandbox}
	runner, err := NewRunner(provider, models.ComputeConfig{Type: "docker", CPUs: 2, Memory: "4Gi"})
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	runner.Stdout = io.Discard
	runner.Stderr = io.Discard

	env := models.EnvironmentSpec{Name: "sklearn-env", Version: "1", Image: "python:3.10"}
	if err := runner.RunJob(context.Background(), testJob(), env); err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}

	if provider.createOpts.ImageRef != "python:3.10" {
		t.Errorf("expected image python:3.10, got %q", provider.createOpts.ImageRef)
	}
	if provider.createOpts.CPUs != 2 {
		t.Errorf("expected 2 cpus, got %d", provider.createOpts.CPUs)
	}
	if provider.createOpts.MemoryMB != 4096 {
		t.Errorf("expected 4096 MB memory, got %d", provider.createOpts.MemoryMB)
	}

	if src := sandbox.copiedTo["/code"]; src != "./src" {
		t.Errorf("expected code dir staged at /code, got %q", src)
	}
	if src := sandbox.copiedTo["/inputs/data"]; src != "./data/taxi.csv" {
		t.Errorf("expected input staged at /inputs/data, got %q", src)
	}
	if dst := sandbox.copiedOut["/outputs/model"]; dst != "./out" {
		t.Errorf("expected output collected to ./out, got %q", dst)
	}

	want := "python train.py --data /inputs/data --out /outputs/model"
	var ran string
	for _, cmd := range sandbox.execs {
		if !strings.HasPrefix(cmd, "mkdir") {
			ran = cmd
		}
	}
	if ran != want {
		t.Errorf("expected command %q, got %q", want, ran)
	}

	if !sandbox.destroyed {
		t.Error("expected sandbox to be destroyed")
	}
}

func TestRunnerBuildsImageFromContext(t *testing.T) {
	sandbox := newFakeSandbox()
	provider := &fakeProvider{sandbox: sandbox}
	runner, err := NewRunner(provider, models.ComputeConfig{Type: "docker"})
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	runner.Stdout = io.Discard
	runner.Stderr = io.Discard

	env := models.EnvironmentSpec{Name: "custom-env", Version: "2", BuildContext: "./envs/custom"}
	if err := runner.RunJob(context.Background(), testJob(), env); err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}

	if len(provider.builtTags) != 1 || provider.builtTags[0] != "custom-env:2" {
		t.Errorf("expected image built with tag custom-env:2, got %v", provider.builtTags)
	}
	if provider.createOpts.ImageRef != "built:custom-env:2" {
		t.Errorf("expected built image ref, got %q", provider.createOpts.ImageRef)
	}
}

func TestRunnerRejectsCondaEnvironment(t *testing.T) {
	sandbox := newFakeSandbox()
	provider := &fakeProvider{sandbox: sandbox}
	runner, err := NewRunner(provider, models.ComputeConfig{Type: "docker"})
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	env := models.EnvironmentSpec{Name: "conda-env", Version: "1", CondaFile: "./env.yml"}
	err = runner.RunJob(context.Background(), testJob(), env)
	if err == nil {
		t.Fatal("expected error for conda environment on local compute")
	}
	if !strings.Contains(err.Error(), "conda environments require workspace compute") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunnerReportsNonzeroExit(t *testing.T) {
	sandbox := newFakeSandbox()
	sandbox.exitCode = 3
	provider := &fakeProvider{sandbox: sandbox}
	runner, err := NewRunner(provider, models.ComputeConfig{Type: "docker"})
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	runner.Stdout = io.Discard
	runner.Stderr = io.Discard

	env := models.EnvironmentSpec{Name: "sklearn-env", Version: "1", Image: "python:3.10"}
	err = runner.RunJob(context.Background(), testJob(), env)
	if err == nil {
		t.Fatal("expected error for nonzero exit code")
	}
	if !strings.Contains(err.Error(), "exit code 3") {
		t.Errorf("unexpected error: %v", err)
	}
	if !sandbox.destroyed {
		t.Error("expected sandbox to be destroyed after failure")
	}
	if len(sandbox.copiedOut) != 0 {
		t.Error("outputs should not be collected after a failed job")
	}
}

func TestExpandPlaceholders(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string
	}{
		{
			name:    "input and output",
			command: "python train.py ${inputs.data} ${outputs.model}",
			want:    "python train.py /inputs/data /outputs/model",
		},
		{
			name:    "repeated placeholder",
			command: "cp ${inputs.data} ${inputs.data}.bak",
			want:    "cp /inputs/data /inputs/data.bak",
		},
		{
			name:    "unknown placeholder left alone",
			command: "echo ${inputs.other}",
			want:    "echo ${inputs.other}",
		},
		{
			name:    "no placeholders",
			command: "python train.py",
			want:    "python train.py",
		},
	}

	inputs := []models.AssetBinding{{Name: "data", Path: "./d"}}
	outputs := []models.AssetBinding{{Name: "model", Path: "./m"}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandPlaceholders(tt.command, inputs, outputs)
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
