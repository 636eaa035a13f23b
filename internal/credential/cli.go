package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// TokenReader obtains a raw access-token document from the platform CLI.
type TokenReader interface {
	ReadToken(ctx context.Context) ([]byte, error)
}

// azTokenReader shells out to the az CLI for the current session's token.
type azTokenReader struct{}

func (azTokenReader) ReadToken(ctx context.Context) ([]byte, error) {
	azPath, err := exec.LookPath("az")
	if err != nil {
		return nil, fmt.Errorf("az CLI not found (run 'az login' on this machine first): %w", err)
	}
	cmd := exec.CommandContext(ctx, azPath,
		"account", "get-access-token",
		"--resource", TokenResource,
		"--output", "json")
	return cmd.Output()
}

// cliTimeLayout is the local-time format the CLI prints expiresOn in.
const cliTimeLayout = "2006-01-02 15:04:05.000000"

// cliCredential reuses the token of an existing local CLI session.
type cliCredential struct {
	reader TokenReader

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newCLICredential() *cliCredential {
	return &cliCredential{reader: azTokenReader{}}
}

func (c *cliCredential) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiresAt) {
		return c.token, nil
	}

	token, expiresAt, err := readCLIToken(ctx, c.reader)
	if err != nil {
		return "", err
	}

	c.token = token
	c.expiresAt = expiresAt
	return token, nil
}

// readCLIToken invokes the reader and parses its JSON token payload.
func readCLIToken(ctx context.Context, reader TokenReader) (string, time.Time, error) {
	output, err := reader.ReadToken(ctx)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("reading CLI token: %w", err)
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
		ExpiresOn   string `json:"expiresOn"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		return "", time.Time{}, fmt.Errorf("parsing CLI token: %w", err)
	}

	if payload.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("CLI returned an empty access token")
	}

	expiresAt, err := time.ParseInLocation(cliTimeLayout, payload.ExpiresOn, time.Local)
	if err != nil {
		// Unparseable expiry: keep the token briefly rather than failing.
		expiresAt = time.Now().Add(5 * time.Minute)
	}

	return payload.AccessToken, expiresAt, nil
}
