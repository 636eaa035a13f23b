// Package workflow coordinates the end-to-end pipeline: authenticate,
// build the training environment, run the training job, register the model
// artifact, and stand up the online endpoint with its deployments and
// traffic split.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/compute"
	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/compute/docker"
	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/compute/modal"
	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/credential"
	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/workspace"
)

// Result summarizes a completed workflow run.
type Result struct {
	Name        string              `json:"name"`
	JobName     string              `json:"job_name,omitempty"`
	JobStatus   models.JobStatus    `json:"job_status,omitempty"`
	Model       *workspace.Model    `json:"model,omitempty"`
	Endpoint    *workspace.Endpoint `json:"endpoint,omitempty"`
	Deployments []string            `json:"deployments,omitempty"`
	Traffic     models.TrafficMap   `json:"traffic,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	EndedAt     time.Time           `json:"ended_at"`
	DurationSec float64             `json:"duration_sec"`
}

// Orchestrator runs the pipeline stages in order against a workspace.
type Orchestrator struct {
	cfg    models.WorkflowConfig
	client *workspace.Client
}

// New creates an orchestrator for the given configuration. When cred is
// nil the credential is built from the configuration's credential block.
func New(cfg models.WorkflowConfig, cred credential.Provider) (*Orchestrator, error) {
	if cred == nil {
		var err error
		cred, err = credential.New(cfg.Credential)
		if err != nil {
			return nil, &models.WorkflowError{
				Type:    models.ErrAuthFailed,
				Message: fmt.Sprintf("creating credential: %s", err),
			}
		}
	}

	client, err := workspace.NewClient(cfg.Workspace.APIBase, cfg.Workspace.WorkspaceRef, cred)
	if err != nil {
		return nil, fmt.Errorf("creating workspace client: %w", err)
	}
	if cfg.Training.PollIntervalSec > 0 {
		client.SetPollInterval(time.Duration(cfg.Training.PollIntervalSec * float64(time.Second)))
	}

	return &Orchestrator{cfg: cfg, client: client}, nil
}

// Run executes the pipeline stages: environment, training, model
// registration, endpoint, deployments, traffic. Stages without
// configuration are skipped.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	startTime := time.Now()
	result := &Result{StartedAt: startTime}
	if o.cfg.Name != nil {
		result.Name = *o.cfg.Name
	}

	if err := o.ensureEnvironment(ctx); err != nil {
		return nil, err
	}

	if err := o.runTraining(ctx, result); err != nil {
		return nil, err
	}

	if o.cfg.Model != nil {
		model, err := o.client.RegisterModel(ctx, *o.cfg.Model)
		if err != nil {
			return nil, &models.WorkflowError{
				Type:    models.ErrModelRegisterFailed,
				Message: fmt.Sprintf("registering model: %s", err),
			}
		}
		slog.Info("model registered", "model", model.Name, "version", model.Version)
		result.Model = model
	}

	if o.cfg.Endpoint != nil {
		if err := o.deploy(ctx, result); err != nil {
			return nil, err
		}
	}

	result.EndedAt = time.Now()
	result.DurationSec = result.EndedAt.Sub(startTime).Seconds()
	return result, nil
}

// ensureEnvironment creates the configured environment in the workspace
// and waits for it to finish provisioning. Local compute builds images at
// job time instead, so the workspace registration is skipped.
func (o *Orchestrator) ensureEnvironment(ctx context.Context) error {
	if o.cfg.Environment == nil || o.cfg.Compute.Type != "workspace" {
		return nil
	}

	poller, err := o.client.CreateEnvironment(ctx, *o.cfg.Environment)
	if err != nil {
		return &models.WorkflowError{
			Type:    models.ErrEnvironmentBuildFailed,
			Message: fmt.Sprintf("creating environment: %s", err),
		}
	}
	env, err := poller.Wait(ctx)
	if err != nil {
		return &models.WorkflowError{
			Type:    models.ErrEnvironmentBuildFailed,
			Message: fmt.Sprintf("waiting for environment %s: %s", o.cfg.Environment.Ref(), err),
		}
	}
	slog.Info("environment ready", "environment", env.Name, "version", env.Version)
	return nil
}

func (o *Orchestrator) runTraining(ctx context.Context, result *Result) error {
	job := o.cfg.Training.Job

	if o.cfg.Compute.Type != "workspace" {
		return o.runTrainingLocal(ctx, job)
	}

	if job.Compute == "" {
		job.Compute = o.cfg.Compute.Target
	}

	created, err := o.client.CreateJob(ctx, job)
	if err != nil {
		return &models.WorkflowError{
			Type:    models.ErrJobSubmitFailed,
			Message: fmt.Sprintf("submitting job: %s", err),
		}
	}
	result.JobName = created.Name
	result.JobStatus = created.Status

	if !o.cfg.Training.Wait() {
		slog.Warn("not waiting for job completion; later stages may see a stale model artifact",
			"job", created.Name)
		return nil
	}

	timeout := time.Duration(o.cfg.Training.TimeoutSec * float64(time.Second))
	completed, err := o.client.WaitForJob(ctx, created.Name, timeout)
	if completed != nil {
		result.JobStatus = completed.Status
	}
	if err != nil {
		errType := models.ErrJobFailed
		if errors.Is(err, context.DeadlineExceeded) {
			errType = models.ErrJobTimeout
		}
		return &models.WorkflowError{Type: errType, Message: err.Error()}
	}
	return nil
}

// runTrainingLocal executes the training job in a sandbox on this machine
// or on Modal instead of submitting it to the workspace.
func (o *Orchestrator) runTrainingLocal(ctx context.Context, job models.JobSpec) error {
	if o.cfg.Environment == nil {
		return fmt.Errorf("%s compute requires an environment definition", o.cfg.Compute.Type)
	}

	provider, err := newProvider(o.cfg.Compute)
	if err != nil {
		return err
	}

	runner, err := compute.NewRunner(provider, o.cfg.Compute)
	if err != nil {
		return err
	}
	if o.cfg.Training.TimeoutSec > 0 {
		runner.SetTimeout(time.Duration(o.cfg.Training.TimeoutSec * float64(time.Second)))
	}
	if err := runner.RunJob(ctx, job, *o.cfg.Environment); err != nil {
		return &models.WorkflowError{Type: models.ErrJobFailed, Message: err.Error()}
	}
	return nil
}

// deploy provisions the endpoint, its deployments, and the traffic split.
func (o *Orchestrator) deploy(ctx context.Context, result *Result) error {
	epCfg := o.cfg.Endpoint

	poller, err := o.client.CreateEndpoint(ctx, epCfg.EndpointSpec)
	if err != nil {
		return &models.WorkflowError{
			Type:    models.ErrEndpointProvisionFailed,
			Message: fmt.Sprintf("creating endpoint: %s", err),
		}
	}
	endpoint, err := poller.Wait(ctx)
	if err != nil {
		return &models.WorkflowError{
			Type:    models.ErrEndpointProvisionFailed,
			Message: fmt.Sprintf("waiting for endpoint %s: %s", epCfg.Name, err),
		}
	}
	slog.Info("endpoint ready", "endpoint", endpoint.Name, "scoring_uri", endpoint.ScoringURI)

	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range epCfg.Deployments {
		// Deployments are declared under their endpoint in the config;
		// the parent name is filled in here before submission.
		spec.Endpoint = epCfg.Name
		g.Go(func() error {
			poller, err := o.client.CreateDeployment(gctx, spec)
			if err != nil {
				return &models.WorkflowError{
					Type:    models.ErrDeploymentProvisionFailed,
					Message: fmt.Sprintf("creating deployment %s: %s", spec.Name, err),
				}
			}
			dep, err := poller.Wait(gctx)
			if err != nil {
				return &models.WorkflowError{
					Type:    models.ErrDeploymentProvisionFailed,
					Message: fmt.Sprintf("waiting for deployment %s: %s", spec.Name, err),
				}
			}
			slog.Info("deployment ready", "endpoint", dep.Endpoint, "deployment", dep.Name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, spec := range epCfg.Deployments {
		result.Deployments = append(result.Deployments, spec.Name)
	}

	if len(epCfg.Traffic) > 0 {
		endpoint, err = o.client.UpdateTraffic(ctx, epCfg.Name, epCfg.Traffic)
		if err != nil {
			return &models.WorkflowError{
				Type:    models.ErrTrafficInvalid,
				Message: fmt.Sprintf("updating traffic: %s", err),
			}
		}
		result.Traffic = endpoint.Traffic
		slog.Info("traffic updated", "endpoint", endpoint.Name, "traffic", endpoint.Traffic)
	}

	result.Endpoint = endpoint
	return nil
}

// newProvider builds the local sandbox provider named in the compute
// configuration.
func newProvider(cfg models.ComputeConfig) (compute.Provider, error) {
	switch cfg.Type {
	case "docker":
		return docker.NewProvider(), nil
	case "modal":
		return modal.NewProvider(modal.ParseProviderConfig(cfg.ProviderConfig))
	default:
		return nil, fmt.Errorf("unsupported compute type: %s", cfg.Type)
	}
}
