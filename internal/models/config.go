package models

// CredentialMode selects which token strategy a run uses. Exactly one mode
// is active per run, chosen in the workflow config rather than by editing
// code.
type CredentialMode string

const (
	// CredentialAmbient derives a service-principal session from the
	// environment or the credential profile.
	CredentialAmbient CredentialMode = "ambient"
	// CredentialCLI reuses the local platform CLI session token.
	CredentialCLI CredentialMode = "cli"
	// CredentialInteractive prompts through the system browser.
	CredentialInteractive CredentialMode = "interactive"
)

// WorkflowConfig represents the parsed workflow.yaml configuration.
type WorkflowConfig struct {
	Name        *string          `yaml:"name,omitempty" json:"name,omitempty"`
	LogLevel    string           `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	Credential  CredentialConfig `yaml:"credential" json:"credential"`
	Workspace   WorkspaceConfig  `yaml:"workspace" json:"workspace"`
	Compute     ComputeConfig    `yaml:"compute" json:"compute"`
	Training    TrainingConfig   `yaml:"training" json:"training"`
	Model       *ModelSpec       `yaml:"model,omitempty" json:"model,omitempty"`
	Environment *EnvironmentSpec `yaml:"environment,omitempty" json:"environment,omitempty"`
	Endpoint    *EndpointConfig  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// CredentialConfig selects and parameterizes the token strategy.
type CredentialConfig struct {
	Mode        CredentialMode `yaml:"mode" json:"mode"`
	TenantID    string         `yaml:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	ClientID    string         `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	ProfilePath string         `yaml:"profile_path,omitempty" json:"profile_path,omitempty"`

	// ClientSecret is filled from the credential profile or environment,
	// never from workflow.yaml.
	ClientSecret string `yaml:"-" json:"-"`
}

// WorkspaceConfig points the client at a workspace and its API base URL.
type WorkspaceConfig struct {
	WorkspaceRef `yaml:",inline"`
	APIBase      string `yaml:"api_base" json:"api_base"`
}

// ComputeConfig selects where the training job runs: the managed workspace
// compute target, or a local sandbox backend for dry runs.
type ComputeConfig struct {
	// Type is "workspace" for managed compute, or "modal"/"docker" for
	// local sandbox dry runs.
	Type           string         `yaml:"type" json:"type"`
	Target         string         `yaml:"target,omitempty" json:"target,omitempty"`
	CPUs           int            `yaml:"cpus,omitempty" json:"cpus,omitempty"`
	Memory         string         `yaml:"memory,omitempty" json:"memory,omitempty"`
	ProviderConfig map[string]any `yaml:"provider_config,omitempty" json:"provider_config,omitempty"`
}

// TrainingConfig wraps the job descriptor with submission behavior.
type TrainingConfig struct {
	Job               JobSpec `yaml:",inline" json:"job"`
	WaitForCompletion *bool   `yaml:"wait_for_completion,omitempty" json:"wait_for_completion,omitempty"`
	PollIntervalSec   float64 `yaml:"poll_interval_sec,omitempty" json:"poll_interval_sec,omitempty"`
	TimeoutSec        float64 `yaml:"timeout_sec,omitempty" json:"timeout_sec,omitempty"`
}

// Wait reports whether the orchestrator should block on job completion
// before registering the model. Defaults to true; submitting and moving on
// leaves the registration racing the job.
func (t TrainingConfig) Wait() bool {
	if t.WaitForCompletion == nil {
		return true
	}
	return *t.WaitForCompletion
}

// EndpointConfig groups the endpoint descriptor with its deployments and
// the traffic split to apply once they are ready.
type EndpointConfig struct {
	EndpointSpec `yaml:",inline"`
	Deployments  []DeploymentSpec `yaml:"deployments" json:"deployments"`
	Traffic      TrafficMap       `yaml:"traffic" json:"traffic"`
}
