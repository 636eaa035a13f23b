package models

import "fmt"

// AssetBinding names a storage location mounted into a job's filesystem.
// Paths are platform URIs or local paths; they are not validated locally.
// Direction is implied by which JobSpec list the binding appears in.
type AssetBinding struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type,omitempty" json:"type,omitempty"` // e.g. "uri_folder", "uri_file"
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// JobSpec describes a single command execution on provisioned compute.
// It is created once per submission and not reused.
type JobSpec struct {
	Name        string         `yaml:"name,omitempty" json:"name,omitempty"`
	CodeDir     string         `yaml:"code_dir" json:"code_dir"`
	Command     string         `yaml:"command" json:"command"`
	Environment string         `yaml:"environment" json:"environment"` // registered environment name[:version]
	Compute     string         `yaml:"compute" json:"compute"`         // compute target name
	Inputs      []AssetBinding `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs     []AssetBinding `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

// Validate checks the fields the platform cannot default for us.
func (j JobSpec) Validate() error {
	if j.Command == "" {
		return fmt.Errorf("job: command is required")
	}
	if j.CodeDir == "" {
		return fmt.Errorf("job: code_dir is required")
	}
	for i, b := range j.Inputs {
		if b.Name == "" {
			return fmt.Errorf("job: inputs[%d]: name is required", i)
		}
	}
	for i, b := range j.Outputs {
		if b.Name == "" {
			return fmt.Errorf("job: outputs[%d]: name is required", i)
		}
	}
	return nil
}

// JobStatus is the execution state reported by the platform.
type JobStatus string

const (
	JobQueued    JobStatus = "Queued"
	JobPreparing JobStatus = "Preparing"
	JobRunning   JobStatus = "Running"
	JobCompleted JobStatus = "Completed"
	JobFailed    JobStatus = "Failed"
	JobCanceled  JobStatus = "Canceled"
)

// Terminal reports whether the job has finished.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCanceled
}
