package models

// Profile represents the parsed profile.toml credential profile. It feeds
// the ambient credential flow with a service-principal identity so that
// secrets stay out of workflow.yaml.
type Profile struct {
	Auth     ProfileAuth     `toml:"auth"`
	Defaults ProfileDefaults `toml:"defaults"`
}

type ProfileAuth struct {
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// ProfileDefaults fills workspace identifiers left empty in workflow.yaml.
type ProfileDefaults struct {
	Subscription  string `toml:"subscription,omitempty"`
	ResourceGroup string `toml:"resource_group,omitempty"`
	Workspace     string `toml:"workspace,omitempty"`
}
