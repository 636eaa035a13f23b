// Package workspace is the client for the managed ML workspace API. All
// calls are scoped to one workspace and authenticated with a bearer token
// from the credential provider. The platform owns the heavy lifting
// (scheduling, image builds, endpoint routing); this client only ships
// descriptors and polls the handles it gets back.
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/credential"
	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

// Client is a handle on one workspace. Immutable after construction.
type Client struct {
	base *url.URL
	ref  models.WorkspaceRef
	cred credential.Provider
	http *http.Client

	// pollInterval is the delay between provisioning-state polls.
	pollInterval time.Duration
}

// NewClient creates a workspace client against the given API base URL.
func NewClient(apiBase string, ref models.WorkspaceRef, cred credential.Provider) (*Client, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	base, err := url.Parse(strings.TrimSuffix(apiBase, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing api_base: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api_base %q is not an absolute URL", apiBase)
	}

	return &Client{
		base:         base,
		ref:          ref,
		cred:         cred,
		http:         &http.Client{Timeout: 60 * time.Second},
		pollInterval: 15 * time.Second,
	}, nil
}

// SetPollInterval overrides the provisioning-state poll interval.
func (c *Client) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval = d
	}
}

// Workspace returns the workspace reference this client is scoped to.
func (c *Client) Workspace() models.WorkspaceRef {
	return c.ref
}

// RequestError is a non-2xx response decoded from the platform.
type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("workspace API: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("workspace API: HTTP %d: %s", e.StatusCode, e.Message)
}

// resourceURL builds a workspace-scoped URL from path elements.
func (c *Client) resourceURL(elem ...string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + c.ref.Path()
	for _, e := range elem {
		u.Path += "/" + url.PathEscape(e)
	}
	return u.String()
}

// do issues an authenticated JSON request and decodes the response into
// out when it is non-nil.
func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	token, err := c.cred.Token(ctx)
	if err != nil {
		return fmt.Errorf("acquiring token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeJSON(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	reqErr := &RequestError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		reqErr.Message = err.Error()
		return reqErr
	}

	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error.Message != "" {
		reqErr.Code = payload.Error.Code
		reqErr.Message = payload.Error.Message
	} else {
		reqErr.Message = strings.TrimSpace(string(data))
	}
	return reqErr
}
