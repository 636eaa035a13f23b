// Package credential obtains bearer tokens for the workspace API through
// one of three interchangeable strategies, selected by the workflow
// config's credential mode.
package credential

import (
	"context"
	"fmt"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

// TokenResource is the fixed audience tokens are scoped to.
const TokenResource = "https://management.azure.com/"

// TokenScope is the OAuth2 scope form of TokenResource.
const TokenScope = TokenResource + ".default"

// Provider produces bearer tokens for the fixed audience. Implementations
// cache the token and renew it on expiry; an authentication failure
// propagates to the caller unretried.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// New creates the Provider selected by the credential config.
func New(cfg models.CredentialConfig) (Provider, error) {
	switch cfg.Mode {
	case models.CredentialAmbient:
		return newAmbientCredential(cfg)
	case models.CredentialCLI:
		return newCLICredential(), nil
	case models.CredentialInteractive:
		return newInteractiveCredential(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported credential mode: %s", cfg.Mode)
	}
}
