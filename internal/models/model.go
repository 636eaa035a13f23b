package models

import "fmt"

// ModelSpec describes a model artifact to register with the workspace
// model registry. Path points at a local artifact to upload; BlobURI
// references one already in workspace storage.
type ModelSpec struct {
	Name        string            `yaml:"name" json:"name"`
	Version     string            `yaml:"version,omitempty" json:"version,omitempty"`
	Path        string            `yaml:"path,omitempty" json:"path,omitempty"`
	BlobURI     string            `yaml:"blob_uri,omitempty" json:"blobUri,omitempty"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Ref returns the name[:version] reference deployments use.
func (m ModelSpec) Ref() string {
	if m.Version == "" {
		return m.Name
	}
	return m.Name + ":" + m.Version
}

// Validate checks that the spec names a model and a source.
func (m ModelSpec) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model: name is required")
	}
	if m.Path == "" && m.BlobURI == "" {
		return fmt.Errorf("model %s: one of path or blob_uri is required", m.Name)
	}
	return nil
}
