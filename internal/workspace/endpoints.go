package workspace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

// Endpoint is the platform's record of a managed online endpoint.
type Endpoint struct {
	Name              string                   `json:"name"`
	AuthMode          models.AuthMode          `json:"authMode"`
	ScoringURI        string                   `json:"scoringUri,omitempty"`
	ProvisioningState models.ProvisioningState `json:"provisioningState"`
	Traffic           models.TrafficMap        `json:"traffic,omitempty"`
	Error             string                   `json:"error,omitempty"`
}

// Deployment is the platform's record of one deployment behind an endpoint.
type Deployment struct {
	Name              string                   `json:"name"`
	Endpoint          string                   `json:"endpoint"`
	Model             string                   `json:"model"`
	ProvisioningState models.ProvisioningState `json:"provisioningState"`
	Error             string                   `json:"error,omitempty"`
}

// CreateEndpoint creates a named endpoint. The returned Poller resolves
// when the endpoint is ready to accept deployments.
func (c *Client) CreateEndpoint(ctx context.Context, spec models.EndpointSpec) (*Poller[Endpoint], error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.AuthMode == "" {
		spec.AuthMode = models.AuthModeKey
	}

	slog.Info("creating endpoint", "endpoint", spec.Name, "auth_mode", spec.AuthMode)

	var ep Endpoint
	if err := c.do(ctx, "PUT", c.resourceURL("endpoints", spec.Name), spec, &ep); err != nil {
		return nil, fmt.Errorf("creating endpoint %s: %w", spec.Name, err)
	}

	name := spec.Name
	return newPoller(fmt.Sprintf("endpoint %s", name), c.pollInterval,
		func(ctx context.Context) (*Endpoint, models.ProvisioningState, string, error) {
			current, err := c.GetEndpoint(ctx, name)
			if err != nil {
				return nil, "", "", err
			}
			return current, current.ProvisioningState, current.Error, nil
		}), nil
}

// GetEndpoint fetches the current state of an endpoint.
func (c *Client) GetEndpoint(ctx context.Context, name string) (*Endpoint, error) {
	var ep Endpoint
	if err := c.do(ctx, "GET", c.resourceURL("endpoints", name), nil, &ep); err != nil {
		return nil, fmt.Errorf("getting endpoint %s: %w", name, err)
	}
	return &ep, nil
}

// CreateDeployment creates a deployment behind an endpoint. The parent
// endpoint must already be ready: the call is rejected locally (and by the
// platform) while the endpoint is still provisioning, so a deployment can
// never be created against an endpoint that does not exist yet.
func (c *Client) CreateDeployment(ctx context.Context, spec models.DeploymentSpec) (*Poller[Deployment], error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Endpoint == "" {
		return nil, fmt.Errorf("deployment %s: endpoint is required", spec.Name)
	}

	ep, err := c.GetEndpoint(ctx, spec.Endpoint)
	if err != nil {
		return nil, err
	}
	if ep.ProvisioningState != models.ProvisioningSucceeded {
		return nil, fmt.Errorf("endpoint %s is not ready for deployments (state %s)",
			spec.Endpoint, ep.ProvisioningState)
	}

	slog.Info("creating deployment",
		"endpoint", spec.Endpoint,
		"deployment", spec.Name,
		"model", spec.Model,
		"instance_type", spec.InstanceType,
		"instance_count", spec.InstanceCount)

	var dep Deployment
	url := c.resourceURL("endpoints", spec.Endpoint, "deployments", spec.Name)
	if err := c.do(ctx, "PUT", url, spec, &dep); err != nil {
		return nil, fmt.Errorf("creating deployment %s/%s: %w", spec.Endpoint, spec.Name, err)
	}

	endpoint, name := spec.Endpoint, spec.Name
	return newPoller(fmt.Sprintf("deployment %s/%s", endpoint, name), c.pollInterval,
		func(ctx context.Context) (*Deployment, models.ProvisioningState, string, error) {
			current, err := c.GetDeployment(ctx, endpoint, name)
			if err != nil {
				return nil, "", "", err
			}
			return current, current.ProvisioningState, current.Error, nil
		}), nil
}

// GetDeployment fetches the current state of a deployment.
func (c *Client) GetDeployment(ctx context.Context, endpoint, name string) (*Deployment, error) {
	var dep Deployment
	url := c.resourceURL("endpoints", endpoint, "deployments", name)
	if err := c.do(ctx, "GET", url, nil, &dep); err != nil {
		return nil, fmt.Errorf("getting deployment %s/%s: %w", endpoint, name, err)
	}
	return &dep, nil
}

// UpdateTraffic applies a traffic split across an endpoint's deployments.
// The weights must sum to 100; a deployment may carry zero weight.
func (c *Client) UpdateTraffic(ctx context.Context, endpoint string, traffic models.TrafficMap) (*Endpoint, error) {
	if err := traffic.Validate(); err != nil {
		return nil, err
	}

	for _, name := range traffic.Deployments() {
		slog.Info("updating endpoint traffic",
			"endpoint", endpoint, "deployment", name, "weight", traffic[name])
	}

	var ep Endpoint
	url := c.resourceURL("endpoints", endpoint, "traffic")
	if err := c.do(ctx, "PUT", url, traffic, &ep); err != nil {
		return nil, fmt.Errorf("updating traffic for %s: %w", endpoint, err)
	}
	return &ep, nil
}
