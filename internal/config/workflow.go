package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

// ParseLogLevel maps the workflow log_level field to a slog level. The
// empty string means info.
func ParseLogLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log_level %q (want debug, info, warn, or error)", s)
	}
	return level, nil
}

// DefaultWorkflowConfig returns a WorkflowConfig with default values.
func DefaultWorkflowConfig() models.WorkflowConfig {
	return models.WorkflowConfig{
		Credential: models.CredentialConfig{
			Mode: models.CredentialAmbient,
		},
		Compute: models.ComputeConfig{
			Type: "workspace",
		},
		Training: models.TrainingConfig{
			PollIntervalSec: 15.0,
		},
	}
}

// LoadWorkflowConfig loads and parses a workflow.yaml file.
func LoadWorkflowConfig(path string) (models.WorkflowConfig, error) {
	cfg := DefaultWorkflowConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading workflow config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing workflow config: %w", err)
	}

	// Apply defaults for missing values
	if cfg.Credential.Mode == "" {
		cfg.Credential.Mode = models.CredentialAmbient
	}
	if cfg.Compute.Type == "" {
		cfg.Compute.Type = "workspace"
	}
	if cfg.Training.PollIntervalSec == 0 {
		cfg.Training.PollIntervalSec = 15.0
	}

	// Fill identity and workspace gaps from the credential profile, when
	// one exists.
	if profile, err := loadProfileFor(cfg); err == nil {
		ApplyProfileDefaults(&cfg, profile)
	} else if cfg.Credential.ProfilePath != "" {
		// An explicitly named profile must load.
		return cfg, err
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func validate(cfg models.WorkflowConfig) error {
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	switch cfg.Credential.Mode {
	case models.CredentialAmbient, models.CredentialCLI, models.CredentialInteractive:
	default:
		return fmt.Errorf("credential: unknown mode %q (want ambient, cli, or interactive)", cfg.Credential.Mode)
	}

	switch cfg.Compute.Type {
	case "workspace", "modal", "docker":
	default:
		return fmt.Errorf("compute: unknown type %q (want workspace, modal, or docker)", cfg.Compute.Type)
	}
	if cfg.Compute.Type == "workspace" && cfg.Compute.Target == "" {
		return fmt.Errorf("compute: target is required for workspace compute")
	}

	if err := cfg.Workspace.Validate(); err != nil {
		return err
	}
	if cfg.Workspace.APIBase == "" {
		return fmt.Errorf("workspace: api_base is required")
	}

	if err := cfg.Training.Job.Validate(); err != nil {
		return err
	}

	if cfg.Model != nil {
		if err := cfg.Model.Validate(); err != nil {
			return err
		}
	}

	if cfg.Environment != nil {
		if err := cfg.Environment.Validate(); err != nil {
			return err
		}
	}

	if cfg.Endpoint != nil {
		if err := cfg.Endpoint.EndpointSpec.Validate(); err != nil {
			return err
		}
		if len(cfg.Endpoint.Deployments) == 0 {
			return fmt.Errorf("endpoint %s: at least one deployment is required", cfg.Endpoint.Name)
		}
		for _, d := range cfg.Endpoint.Deployments {
			if err := d.Validate(); err != nil {
				return err
			}
		}
		if err := cfg.Endpoint.Traffic.Validate(); err != nil {
			return err
		}
		for name := range cfg.Endpoint.Traffic {
			found := false
			for _, d := range cfg.Endpoint.Deployments {
				if d.Name == name {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("traffic: %s does not match any deployment", name)
			}
		}
	}

	return nil
}
