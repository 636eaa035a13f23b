// Package artifact is the single source of truth for the model artifact
// contract between the training job and the scoring service: the on-disk
// layout and the serialized format. The artifact is a Python pickle so
// that notebook tooling on the platform side can read it unchanged.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	ogórek "github.com/kisielk/og-rek"
)

const (
	// FileName is the artifact file a training job writes under its
	// output root.
	FileName = "model.pickle"

	// RootEnvVar names the environment variable the hosting runtime sets
	// to the directory the registered model was materialized under.
	RootEnvVar = "MODEL_ROOT"

	// DefaultRoot is the fallback model root when RootEnvVar is unset.
	DefaultRoot = "."
)

// Model is the placeholder model object the quickstart trains and serves.
type Model struct {
	Name        string
	Version     string
	Placeholder string
}

// TrainPath returns the path a training job writes the artifact to,
// given its output root.
func TrainPath(outputRoot string) string {
	return filepath.Join(outputRoot, FileName)
}

// ScorePath returns the path the scoring service loads the artifact from,
// given the model root. Model registration uploads the training output
// under a "model" directory, hence the extra path element.
func ScorePath(modelRoot string) string {
	return filepath.Join(modelRoot, "model", FileName)
}

// ResolveRoot returns the model root from the environment, or DefaultRoot.
func ResolveRoot() string {
	if root := os.Getenv(RootEnvVar); root != "" {
		return root
	}
	return DefaultRoot
}

// Save pickles the model to path, creating parent directories as needed.
func Save(path string, m Model) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating artifact file: %w", err)
	}

	enc := ogórek.NewEncoder(f)
	err = enc.Encode(map[string]any{
		"name":        m.Name,
		"version":     m.Version,
		"placeholder": m.Placeholder,
	})
	if err != nil {
		f.Close()
		return fmt.Errorf("encoding artifact: %w", err)
	}

	return f.Close()
}

// Load unpickles a model from path.
func Load(path string) (Model, error) {
	var m Model

	f, err := os.Open(path)
	if err != nil {
		return m, fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()

	v, err := ogórek.NewDecoder(f).Decode()
	if err != nil {
		return m, fmt.Errorf("decoding artifact: %w", err)
	}

	dict, ok := v.(map[any]any)
	if !ok {
		return m, fmt.Errorf("artifact is not a pickled dict: %T", v)
	}

	m.Name, _ = dict["name"].(string)
	m.Version, _ = dict["version"].(string)
	m.Placeholder, _ = dict["placeholder"].(string)

	if m.Placeholder == "" {
		return m, fmt.Errorf("artifact at %s has no placeholder attribute", path)
	}

	return m, nil
}
