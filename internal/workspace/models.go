package workspace

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/artifact"
	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

// Model is the registry's record of a registered model version.
type Model struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	BlobURI string            `json:"blobUri"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// registerModelRequest is the body for PUT /models/{name}/versions/{version}.
type registerModelRequest struct {
	BlobURI     string            `json:"blobUri"`
	Description string            `json:"description,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// RegisterModel registers a model version. When the spec points at a local
// artifact directory, the artifact is uploaded to workspace storage first
// and the returned blob URI is registered; a spec with BlobURI set skips
// the upload.
func (c *Client) RegisterModel(ctx context.Context, spec models.ModelSpec) (*Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	version := spec.Version
	if version == "" {
		version = "1"
	}

	blobURI := spec.BlobURI
	if blobURI == "" {
		uri, err := c.uploadArtifact(ctx, spec.Name, version, artifact.TrainPath(spec.Path))
		if err != nil {
			return nil, err
		}
		blobURI = uri
	}

	slog.Info("registering model", "model", spec.Name, "version", version, "blob_uri", blobURI)

	req := registerModelRequest{
		BlobURI:     blobURI,
		Description: spec.Description,
		Tags:        spec.Tags,
	}

	var model Model
	if err := c.do(ctx, "PUT", c.resourceURL("models", spec.Name, "versions", version), req, &model); err != nil {
		return nil, fmt.Errorf("registering model %s:%s: %w", spec.Name, version, err)
	}
	return &model, nil
}

// GetModel fetches one registered model version.
func (c *Client) GetModel(ctx context.Context, name, version string) (*Model, error) {
	var model Model
	if err := c.do(ctx, "GET", c.resourceURL("models", name, "versions", version), nil, &model); err != nil {
		return nil, fmt.Errorf("getting model %s:%s: %w", name, version, err)
	}
	return &model, nil
}

// uploadArtifact ships the artifact bytes to workspace storage and returns
// the blob URI the registry should reference.
func (c *Client) uploadArtifact(ctx context.Context, name, version, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading artifact %s: %w", path, err)
	}

	rawURL := c.resourceURL("models", name, "versions", version, "artifact")

	req, err := http.NewRequestWithContext(ctx, "PUT", rawURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating upload request: %w", err)
	}

	token, err := c.cred.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("acquiring token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeError(resp)
	}

	var payload struct {
		BlobURI string `json:"blobUri"`
	}
	if err := decodeJSON(resp, &payload); err != nil {
		return "", err
	}
	if payload.BlobURI == "" {
		return "", fmt.Errorf("upload response has no blobUri")
	}

	slog.Debug("artifact uploaded", "model", name, "version", version, "bytes", len(data))
	return payload.BlobURI, nil
}
