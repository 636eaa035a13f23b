package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

// ProfileFileName is the credential profile file looked up inside the
// profile directory.
const ProfileFileName = "profile.toml"

// DefaultProfileDir returns the per-user profile directory.
func DefaultProfileDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".mlops"), nil
}

// loadProfileFor resolves the profile directory for a workflow config:
// the explicitly configured path wins, otherwise the per-user default.
func loadProfileFor(cfg models.WorkflowConfig) (models.Profile, error) {
	dir := cfg.Credential.ProfilePath
	if dir == "" {
		d, err := DefaultProfileDir()
		if err != nil {
			return models.Profile{}, err
		}
		dir = d
	}
	return LoadProfile(os.DirFS(dir))
}

// LoadProfile loads and parses a profile.toml from the given filesystem.
func LoadProfile(fsys fs.FS) (models.Profile, error) {
	var p models.Profile

	data, err := fs.ReadFile(fsys, ProfileFileName)
	if err != nil {
		return p, fmt.Errorf("reading %s: %w", ProfileFileName, err)
	}

	if _, err := toml.Decode(string(data), &p); err != nil {
		return p, fmt.Errorf("parsing %s: %w", ProfileFileName, err)
	}

	return p, nil
}

// ApplyProfileDefaults fills workspace identifiers and credential fields
// left empty in the workflow config from the profile.
func ApplyProfileDefaults(cfg *models.WorkflowConfig, p models.Profile) {
	if cfg.Workspace.Subscription == "" {
		cfg.Workspace.Subscription = p.Defaults.Subscription
	}
	if cfg.Workspace.ResourceGroup == "" {
		cfg.Workspace.ResourceGroup = p.Defaults.ResourceGroup
	}
	if cfg.Workspace.Name == "" {
		cfg.Workspace.Name = p.Defaults.Workspace
	}
	if cfg.Credential.TenantID == "" {
		cfg.Credential.TenantID = p.Auth.TenantID
	}
	if cfg.Credential.ClientID == "" {
		cfg.Credential.ClientID = p.Auth.ClientID
	}
	if cfg.Credential.ClientSecret == "" {
		cfg.Credential.ClientSecret = p.Auth.ClientSecret
	}
}
