package credential

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

type fakeTokenReader struct {
	output []byte
	err    error
	calls  int
}

func (r *fakeTokenReader) ReadToken(ctx context.Context) ([]byte, error) {
	r.calls++
	return r.output, r.err
}

func TestReadCLIToken(t *testing.T) {
	expiresOn := time.Now().Add(time.Hour).Format(cliTimeLayout)

	tests := []struct {
		name        string
		output      string
		readerErr   error
		wantToken   string
		wantErr     bool
		errContains string
	}{
		{
			name:      "valid payload",
			output:    fmt.Sprintf(`{"accessToken": "tok-abc", "expiresOn": "%s", "tokenType": "Bearer"}`, expiresOn),
			wantToken: "tok-abc",
		},
		{
			name:      "unparseable expiry still yields token",
			output:    `{"accessToken": "tok-abc", "expiresOn": "soon"}`,
			wantToken: "tok-abc",
		},
		{
			name:        "empty token",
			output:      `{"expiresOn": "2030-01-01 00:00:00.000000"}`,
			wantErr:     true,
			errContains: "empty access token",
		},
		{
			name:        "not json",
			output:      "ERROR: Please run 'az login'",
			wantErr:     true,
			errContains: "parsing CLI token",
		},
		{
			name:        "reader failure",
			readerErr:   fmt.Errorf("az CLI not found"),
			wantErr:     true,
			errContains: "reading CLI token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeTokenReader{output: []byte(tt.output), err: tt.readerErr}
			token, expiresAt, err := readCLIToken(context.Background(), reader)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if token != tt.wantToken {
				t.Errorf("expected token %q, got %q", tt.wantToken, token)
			}
			if !expiresAt.After(time.Now()) {
				t.Errorf("expected expiry in the future, got %s", expiresAt)
			}
		})
	}
}

func TestCLICredentialCachesToken(t *testing.T) {
	expiresOn := time.Now().Add(time.Hour).Format(cliTimeLayout)
	reader := &fakeTokenReader{
		output: []byte(fmt.Sprintf(`{"accessToken": "tok-cached", "expiresOn": "%s"}`, expiresOn)),
	}
	cred := &cliCredential{reader: reader}

	for range 3 {
		token, err := cred.Token(context.Background())
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if token != "tok-cached" {
			t.Errorf("expected tok-cached, got %s", token)
		}
	}

	if reader.calls != 1 {
		t.Errorf("expected a single CLI invocation, got %d", reader.calls)
	}
}

func TestCLICredentialRefreshesExpiredToken(t *testing.T) {
	reader := &fakeTokenReader{
		output: []byte(`{"accessToken": "tok-new", "expiresOn": "2030-01-01 00:00:00.000000"}`),
	}
	cred := &cliCredential{
		reader:    reader,
		token:     "tok-old",
		expiresAt: time.Now().Add(-time.Minute),
	}

	token, err := cred.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "tok-new" {
		t.Errorf("expected tok-new, got %s", token)
	}
	if reader.calls != 1 {
		t.Errorf("expected one CLI invocation, got %d", reader.calls)
	}
}

func TestNewModeSelection(t *testing.T) {
	t.Setenv(EnvTenantID, "tenant-1")
	t.Setenv(EnvClientID, "client-1")
	t.Setenv(EnvClientSecret, "hunter2")

	modes := []models.CredentialMode{
		models.CredentialAmbient,
		models.CredentialCLI,
		models.CredentialInteractive,
	}
	for _, mode := range modes {
		if _, err := New(models.CredentialConfig{Mode: mode}); err != nil {
			t.Errorf("New(%s) failed: %v", mode, err)
		}
	}

	if _, err := New(models.CredentialConfig{Mode: "device_code"}); err == nil {
		t.Error("expected error for unsupported mode")
	}
}

func TestAmbientCredentialRequiresIdentity(t *testing.T) {
	t.Setenv(EnvTenantID, "")
	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "")

	_, err := newAmbientCredential(models.CredentialConfig{})
	if err == nil {
		t.Fatal("expected error when identity is missing")
	}
	if !strings.Contains(err.Error(), "must all be set") {
		t.Errorf("unexpected error: %v", err)
	}
}
