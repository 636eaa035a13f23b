package models

// ErrorType identifies the phase in which a workflow failure occurred.
type ErrorType string

const (
	// Credential phase
	ErrAuthFailed ErrorType = "auth_failed"

	// Job phase
	ErrJobSubmitFailed ErrorType = "job_submit_failed"
	ErrJobFailed       ErrorType = "job_failed"
	ErrJobTimeout      ErrorType = "job_timeout"

	// Artifact phase
	ErrArtifactMissing     ErrorType = "artifact_missing"
	ErrModelRegisterFailed ErrorType = "model_register_failed"

	// Environment phase
	ErrEnvironmentBuildFailed ErrorType = "environment_build_failed"

	// Endpoint phase
	ErrEndpointProvisionFailed   ErrorType = "endpoint_provision_failed"
	ErrDeploymentProvisionFailed ErrorType = "deployment_provision_failed"
	ErrEndpointNotReady          ErrorType = "endpoint_not_ready"
	ErrTrafficInvalid            ErrorType = "traffic_invalid"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// WorkflowError pairs a phase classification with the underlying message.
type WorkflowError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

func (e *WorkflowError) Error() string {
	return string(e.Type) + ": " + e.Message
}
