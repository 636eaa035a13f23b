package credential

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

// interactiveCredential runs the OAuth2 authorization-code flow through the
// system browser, with a loopback listener catching the redirect.
type interactiveCredential struct {
	tenant      string
	clientID    string
	openBrowser func(url string) error

	mu  sync.Mutex
	tok *oauth2.Token
}

func newInteractiveCredential(cfg models.CredentialConfig) *interactiveCredential {
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = "common"
	}
	return &interactiveCredential{
		tenant:      tenant,
		clientID:    cfg.ClientID,
		openBrowser: openBrowser,
	}
}

func (c *interactiveCredential) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tok.Valid() {
		return c.tok.AccessToken, nil
	}

	tok, err := c.authorize(ctx)
	if err != nil {
		return "", fmt.Errorf("interactive credential: %w", err)
	}

	c.tok = tok
	return tok.AccessToken, nil
}

// authorize opens the browser at the authorize URL and blocks until the
// redirect delivers a code, then exchanges it for a token.
func (c *interactiveCredential) authorize(ctx context.Context) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("starting redirect listener: %w", err)
	}
	defer listener.Close()

	conf := &oauth2.Config{
		ClientID: c.clientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authorizeURL(c.tenant),
			TokenURL: tokenURL(c.tenant),
		},
		RedirectURL: fmt.Sprintf("http://%s/", listener.Addr().String()),
		Scopes:      []string{TokenScope},
	}

	state := uuid.NewString()

	type callback struct {
		code string
		err  error
	}
	callbackChan := make(chan callback, 1)

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query()
			if query.Get("state") != state {
				callbackChan <- callback{err: fmt.Errorf("authorization state mismatch")}
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			}
			if errMsg := query.Get("error"); errMsg != "" {
				callbackChan <- callback{err: fmt.Errorf("authorization denied: %s", errMsg)}
				http.Error(w, errMsg, http.StatusBadRequest)
				return
			}
			callbackChan <- callback{code: query.Get("code")}
			fmt.Fprintln(w, "Signed in. You can close this tab and return to the terminal.")
		}),
	}
	go server.Serve(listener)
	defer server.Close()

	authURL := conf.AuthCodeURL(state)
	slog.Info("opening browser for sign-in", "url", authURL)
	if err := c.openBrowser(authURL); err != nil {
		// The user can still follow the printed URL manually.
		slog.Warn("could not open browser", "error", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case cb := <-callbackChan:
		if cb.err != nil {
			return nil, cb.err
		}
		return conf.Exchange(ctx, cb.code)
	}
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
