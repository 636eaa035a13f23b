package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

// Job is the platform's handle on a submitted command job.
type Job struct {
	Name       string           `json:"name"`
	Status     models.JobStatus `json:"status"`
	DetailsURL string           `json:"detailsUrl,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// CreateJob submits a job descriptor for asynchronous execution. The
// platform provisions compute, uploads the code directory, mounts the
// bindings, and runs the command; this call returns as soon as the job is
// accepted.
func (c *Client) CreateJob(ctx context.Context, spec models.JobSpec) (*Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Name == "" {
		spec.Name = "job-" + uuid.NewString()[:8]
	}

	slog.Info("submitting job",
		"job", spec.Name,
		"compute", spec.Compute,
		"environment", spec.Environment)

	var job Job
	if err := c.do(ctx, "PUT", c.resourceURL("jobs", spec.Name), spec, &job); err != nil {
		return nil, fmt.Errorf("submitting job %s: %w", spec.Name, err)
	}
	return &job, nil
}

// GetJob fetches the current state of a job.
func (c *Client) GetJob(ctx context.Context, name string) (*Job, error) {
	var job Job
	if err := c.do(ctx, "GET", c.resourceURL("jobs", name), nil, &job); err != nil {
		return nil, fmt.Errorf("getting job %s: %w", name, err)
	}
	return &job, nil
}

// WaitForJob blocks until the job reaches a terminal status. A timeout of
// zero waits indefinitely (subject to ctx).
func (c *Client) WaitForJob(ctx context.Context, name string, timeout time.Duration) (*Job, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, name)
		if err != nil {
			return nil, err
		}

		if job.Status.Terminal() {
			switch job.Status {
			case models.JobCompleted:
				return job, nil
			case models.JobCanceled:
				return job, fmt.Errorf("job %s was canceled", name)
			default:
				msg := job.Error
				if msg == "" {
					msg = "see the job logs for details"
				}
				return job, fmt.Errorf("job %s failed: %s", name, msg)
			}
		}

		slog.Debug("job still running", "job", name, "status", job.Status)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for job %s: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}
