package models

import "fmt"

// WorkspaceRef identifies a managed ML workspace. It is immutable after
// construction; every platform call is scoped by it.
type WorkspaceRef struct {
	Subscription  string `yaml:"subscription" json:"subscription"`
	ResourceGroup string `yaml:"resource_group" json:"resource_group"`
	Name          string `yaml:"name" json:"name"`
}

// Path returns the workspace-scoped URL path prefix for API calls.
func (w WorkspaceRef) Path() string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/workspaces/%s",
		w.Subscription, w.ResourceGroup, w.Name)
}

// Validate checks that all three identifiers are present.
func (w WorkspaceRef) Validate() error {
	if w.Subscription == "" {
		return fmt.Errorf("workspace: subscription is required")
	}
	if w.ResourceGroup == "" {
		return fmt.Errorf("workspace: resource_group is required")
	}
	if w.Name == "" {
		return fmt.Errorf("workspace: name is required")
	}
	return nil
}

// ProvisioningState is the lifecycle state reported by the platform for
// long-running resources (endpoints, deployments, environments).
type ProvisioningState string

const (
	ProvisioningCreating  ProvisioningState = "Creating"
	ProvisioningUpdating  ProvisioningState = "Updating"
	ProvisioningSucceeded ProvisioningState = "Succeeded"
	ProvisioningFailed    ProvisioningState = "Failed"
	ProvisioningDeleting  ProvisioningState = "Deleting"
)

// Terminal reports whether the state is final.
func (s ProvisioningState) Terminal() bool {
	return s == ProvisioningSucceeded || s == ProvisioningFailed
}
