package models

import (
	"fmt"
	"sort"
)

// AuthMode controls how callers authenticate against an endpoint.
type AuthMode string

const (
	AuthModeKey   AuthMode = "key"
	AuthModeToken AuthMode = "token"
)

// EndpointSpec describes a managed online endpoint: a stable named entry
// point that routes inbound requests across its deployments by weight.
type EndpointSpec struct {
	Name        string   `yaml:"name" json:"name"`
	AuthMode    AuthMode `yaml:"auth_mode" json:"auth_mode"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// Validate checks name and auth mode.
func (e EndpointSpec) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("endpoint: name is required")
	}
	switch e.AuthMode {
	case AuthModeKey, AuthModeToken, "":
		return nil
	default:
		return fmt.Errorf("endpoint %s: unknown auth_mode %q", e.Name, e.AuthMode)
	}
}

// DeploymentSpec binds a registered model, a runtime environment, and a
// scoring entrypoint behind a parent endpoint.
type DeploymentSpec struct {
	Name          string `yaml:"name" json:"name"`
	Endpoint      string `yaml:"-" json:"endpoint,omitempty"`
	Model         string `yaml:"model" json:"model"`             // registered model name[:version]
	Environment   string `yaml:"environment" json:"environment"` // registered environment name[:version]
	CodeDir       string `yaml:"code_dir" json:"code_dir"`
	ScoringScript string `yaml:"scoring_script" json:"scoring_script"`
	InstanceType  string `yaml:"instance_type" json:"instance_type"`
	InstanceCount int    `yaml:"instance_count" json:"instance_count"`
}

// Validate checks the references a deployment cannot do without.
func (d DeploymentSpec) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("deployment: name is required")
	}
	if d.Model == "" {
		return fmt.Errorf("deployment %s: model is required", d.Name)
	}
	if d.ScoringScript == "" {
		return fmt.Errorf("deployment %s: scoring_script is required", d.Name)
	}
	if d.InstanceCount < 0 {
		return fmt.Errorf("deployment %s: instance_count must not be negative", d.Name)
	}
	return nil
}

// TrafficMap assigns an integer percentage of inbound requests to each
// deployment of one endpoint.
type TrafficMap map[string]int

// Validate requires the weights to cover exactly 100 percent. A deployment
// may carry zero weight, but the map as a whole must account for all
// traffic before it is applied.
func (t TrafficMap) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("traffic: at least one deployment weight is required")
	}
	total := 0
	for name, pct := range t {
		if pct < 0 {
			return fmt.Errorf("traffic: %s: weight must not be negative", name)
		}
		total += pct
	}
	if total != 100 {
		return fmt.Errorf("traffic: weights sum to %d, want 100", total)
	}
	return nil
}

// Deployments returns the deployment names in stable order.
func (t TrafficMap) Deployments() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
