package credential

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

// Environment variables consulted by the ambient credential when the
// workflow config and profile leave identity fields empty.
const (
	EnvTenantID     = "MLOPS_TENANT_ID"
	EnvClientID     = "MLOPS_CLIENT_ID"
	EnvClientSecret = "MLOPS_CLIENT_SECRET"
)

// ambientCredential runs the OAuth2 client-credentials flow with a
// service-principal identity from the environment or profile.
type ambientCredential struct {
	conf clientcredentials.Config

	mu  sync.Mutex
	tok *oauth2.Token
}

func newAmbientCredential(cfg models.CredentialConfig) (*ambientCredential, error) {
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = os.Getenv(EnvTenantID)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = os.Getenv(EnvClientID)
	}
	secret := cfg.ClientSecret
	if secret == "" {
		secret = os.Getenv(EnvClientSecret)
	}

	if tenant == "" || clientID == "" || secret == "" {
		return nil, fmt.Errorf("ambient credential: tenant, client id, and %s must all be set", EnvClientSecret)
	}

	return &ambientCredential{
		conf: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: secret,
			TokenURL:     tokenURL(tenant),
			Scopes:       []string{TokenScope},
		},
	}, nil
}

func (c *ambientCredential) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tok.Valid() {
		return c.tok.AccessToken, nil
	}

	tok, err := c.conf.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("ambient credential: %w", err)
	}

	c.tok = tok
	return tok.AccessToken, nil
}

func tokenURL(tenant string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenant)
}

func authorizeURL(tenant string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/authorize", tenant)
}
