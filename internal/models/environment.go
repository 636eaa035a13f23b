package models

import "fmt"

// EnvironmentSpec describes a named runtime image. Exactly one of Image,
// CondaFile, or BuildContext must be set; the platform performs the actual
// build and reports success or failure out of band.
type EnvironmentSpec struct {
	Name         string `yaml:"name" json:"name"`
	Version      string `yaml:"version,omitempty" json:"version,omitempty"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
	Image        string `yaml:"image,omitempty" json:"image,omitempty"`                 // base image reference
	CondaFile    string `yaml:"conda_file,omitempty" json:"conda_file,omitempty"`       // path to a conda dependency spec
	BuildContext string `yaml:"build_context,omitempty" json:"build_context,omitempty"` // path to a directory with a Dockerfile
}

// Ref returns the name[:version] reference other descriptors use.
func (e EnvironmentSpec) Ref() string {
	if e.Version == "" {
		return e.Name
	}
	return e.Name + ":" + e.Version
}

// Validate enforces the one-of rule across the three source kinds.
func (e EnvironmentSpec) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("environment: name is required")
	}
	if e.Image == "" && e.CondaFile == "" && e.BuildContext == "" {
		return fmt.Errorf("environment %s: one of image, conda_file, or build_context is required", e.Name)
	}
	if e.CondaFile != "" && e.BuildContext != "" {
		return fmt.Errorf("environment %s: conda_file and build_context are mutually exclusive", e.Name)
	}
	if e.BuildContext != "" && e.Image != "" {
		return fmt.Errorf("environment %s: build_context already names its base image; image must be empty", e.Name)
	}
	return nil
}
