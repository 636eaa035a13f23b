package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

// Environment is the platform's record of a registered runtime image.
type Environment struct {
	Name              string                   `json:"name"`
	Version           string                   `json:"version"`
	Image             string                   `json:"image,omitempty"`
	ProvisioningState models.ProvisioningState `json:"provisioningState"`
	Error             string                   `json:"error,omitempty"`
}

// environmentRequest inlines dependency specs so the platform's build
// service needs no access to the local filesystem.
type environmentRequest struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	CondaSpec   string `json:"condaSpec,omitempty"`
	Dockerfile  string `json:"dockerfile,omitempty"`
}

// CreateEnvironment registers a runtime image descriptor. The platform
// performs the actual image build; the returned Poller resolves when the
// build service reports a terminal state.
func (c *Client) CreateEnvironment(ctx context.Context, spec models.EnvironmentSpec) (*Poller[Environment], error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	req := environmentRequest{
		Name:        spec.Name,
		Version:     spec.Version,
		Description: spec.Description,
		Image:       spec.Image,
	}

	if spec.CondaFile != "" {
		data, err := os.ReadFile(spec.CondaFile)
		if err != nil {
			return nil, fmt.Errorf("reading conda file: %w", err)
		}
		req.CondaSpec = string(data)
	}
	if spec.BuildContext != "" {
		data, err := os.ReadFile(filepath.Join(spec.BuildContext, "Dockerfile"))
		if err != nil {
			return nil, fmt.Errorf("reading Dockerfile: %w", err)
		}
		req.Dockerfile = string(data)
	}

	slog.Info("registering environment", "environment", spec.Ref())

	var env Environment
	if err := c.do(ctx, "PUT", c.resourceURL("environments", spec.Name), req, &env); err != nil {
		return nil, fmt.Errorf("registering environment %s: %w", spec.Name, err)
	}

	name := spec.Name
	return newPoller(fmt.Sprintf("environment %s", name), c.pollInterval,
		func(ctx context.Context) (*Environment, models.ProvisioningState, string, error) {
			current, err := c.GetEnvironment(ctx, name)
			if err != nil {
				return nil, "", "", err
			}
			return current, current.ProvisioningState, current.Error, nil
		}), nil
}

// GetEnvironment fetches a registered environment.
func (c *Client) GetEnvironment(ctx context.Context, name string) (*Environment, error) {
	var env Environment
	if err := c.do(ctx, "GET", c.resourceURL("environments", name), nil, &env); err != nil {
		return nil, fmt.Errorf("getting environment %s: %w", name, err)
	}
	return &env, nil
}
