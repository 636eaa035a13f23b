package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/models"
)

type staticCred struct{}

func (staticCred) Token(ctx context.Context) (string, error) { return "test-token", nil }

// fakePlatform serves the workspace API for a full pipeline run. Resources
// answer "Creating" a fixed number of times before flipping to Succeeded,
// and jobs walk Queued, Running, Completed.
type fakePlatform struct {
	mu        sync.Mutex
	jobPolls  int
	envPolls  int
	epPolls   int
	depPolls  map[string]int
	jobStatus []models.JobStatus
	puts      []string
	traffic   models.TrafficMap
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		depPolls:  make(map[string]int),
		jobStatus: []models.JobStatus{models.JobQueued, models.JobRunning, models.JobCompleted},
	}
}

func (f *fakePlatform) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.Method == http.MethodPut {
			f.puts = append(f.puts, r.URL.Path)
		}

		path := r.URL.Path
		switch {
		case strings.Contains(path, "/jobs/"):
			name := path[strings.LastIndex(path, "/")+1:]
			status := models.JobQueued
			if r.Method == http.MethodGet {
				if f.jobPolls < len(f.jobStatus) {
					status = f.jobStatus[f.jobPolls]
					f.jobPolls++
				} else {
					status = f.jobStatus[len(f.jobStatus)-1]
				}
			}
			writeJSON(w, map[string]any{"name": name, "status": status})

		case strings.Contains(path, "/environments/"):
			state := models.ProvisioningCreating
			if r.Method == http.MethodGet {
				f.envPolls++
				if f.envPolls >= 2 {
					state = models.ProvisioningSucceeded
				}
			}
			writeJSON(w, map[string]any{
				"name": "sklearn-env", "version": "1", "provisioningState": state,
			})

		case strings.Contains(path, "/models/"):
			writeJSON(w, map[string]any{
				"name": "taxi-model", "version": "1", "blobUri": "https://blobs.example.com/taxi-model/1",
			})

		case strings.HasSuffix(path, "/traffic"):
			var tm models.TrafficMap
			json.NewDecoder(r.Body).Decode(&tm)
			f.traffic = tm
			writeJSON(w, map[string]any{
				"name": "taxi-endpoint", "provisioningState": models.ProvisioningSucceeded,
				"scoringUri": "https://taxi-endpoint.example.com/score", "traffic": tm,
			})

		case strings.Contains(path, "/deployments/"):
			name := path[strings.LastIndex(path, "/")+1:]
			state := models.ProvisioningCreating
			if r.Method == http.MethodGet {
				f.depPolls[name]++
				if f.depPolls[name] >= 2 {
					state = models.ProvisioningSucceeded
				}
			}
			writeJSON(w, map[string]any{
				"name": name, "endpoint": "taxi-endpoint", "provisioningState": state,
			})

		case strings.Contains(path, "/endpoints/"):
			state := models.ProvisioningCreating
			if r.Method == http.MethodGet {
				f.epPolls++
				if f.epPolls >= 2 {
					state = models.ProvisioningSucceeded
				}
			}
			writeJSON(w, map[string]any{
				"name": "taxi-endpoint", "authMode": "key", "provisioningState": state,
				"scoringUri": "https://taxi-endpoint.example.com/score",
			})

		default:
			http.NotFound(w, r)
		}
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func testConfig(apiBase string) models.WorkflowConfig {
	name := "quickstart"
	return models.WorkflowConfig{
		Name: &name,
		Workspace: models.WorkspaceConfig{
			WorkspaceRef: models.WorkspaceRef{
				Subscription:  "sub-1",
				ResourceGroup: "rg-1",
				Name:          "ws-1",
			},
			APIBase: apiBase,
		},
		Compute: models.ComputeConfig{Type: "workspace", Target: "cpu-cluster"},
		Training: models.TrainingConfig{
			Job: models.JobSpec{
				Name:        "train-taxi",
				CodeDir:     "./src",
				Command:     "python train.py ${outputs.model}",
				Environment: "sklearn-env:1",
				Outputs: []models.AssetBinding{
					{Name: "model", Type: "uri_folder", Path: "./out"},
				},
			},
			PollIntervalSec: 0.001,
		},
		Environment: &models.EnvironmentSpec{Name: "sklearn-env", Version: "1", Image: "python:3.10"},
		Model: &models.ModelSpec{
			Name: "taxi-model", Version: "1",
			BlobURI: "https://blobs.example.com/taxi-model/1",
		},
		Endpoint: &models.EndpointConfig{
			EndpointSpec: models.EndpointSpec{Name: "taxi-endpoint", AuthMode: models.AuthModeKey},
			Deployments: []models.DeploymentSpec{
				{Name: "blue", Model: "taxi-model:1", ScoringScript: "score.py", InstanceCount: 1},
				{Name: "green", Model: "taxi-model:1", ScoringScript: "score.py", InstanceCount: 1},
			},
			Traffic: models.TrafficMap{"blue": 90, "green": 10},
		},
	}
}

func TestOrchestratorRunsFullPipeline(t *testing.T) {
	platform := newFakePlatform()
	server := httptest.NewServer(platform.handler())
	defer server.Close()

	o, err := New(testConfig(server.URL), staticCred{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.JobName != "train-taxi" {
		t.Errorf("expected job train-taxi, got %q", result.JobName)
	}
	if result.JobStatus != models.JobCompleted {
		t.Errorf("expected job Completed, got %q", result.JobStatus)
	}
	if result.Model == nil || result.Model.Name != "taxi-model" {
		t.Errorf("expected registered model, got %+v", result.Model)
	}
	if result.Endpoint == nil || result.Endpoint.ScoringURI != "https://taxi-endpoint.example.com/score" {
		t.Errorf("expected endpoint with scoring URI, got %+v", result.Endpoint)
	}
	if len(result.Deployments) != 2 {
		t.Errorf("expected 2 deployments, got %v", result.Deployments)
	}
	if result.Traffic["blue"] != 90 || result.Traffic["green"] != 10 {
		t.Errorf("expected traffic blue=90 green=10, got %v", result.Traffic)
	}
	if result.DurationSec < 0 {
		t.Errorf("expected non-negative duration, got %f", result.DurationSec)
	}

	// Traffic must be applied after every deployment is provisioned, and
	// every deployment must be created under its parent endpoint even
	// though the config never names the endpoint on the deployment.
	platform.mu.Lock()
	defer platform.mu.Unlock()
	var trafficIdx, lastDepIdx, depPuts int
	for i, p := range platform.puts {
		if strings.HasSuffix(p, "/traffic") {
			trafficIdx = i
		} else if strings.Contains(p, "/deployments/") {
			lastDepIdx = i
			depPuts++
			if !strings.Contains(p, "/endpoints/taxi-endpoint/deployments/") {
				t.Errorf("deployment created outside its endpoint: %s", p)
			}
		}
	}
	if depPuts != 2 {
		t.Errorf("expected 2 deployment creations, got %d", depPuts)
	}
	if trafficIdx < lastDepIdx {
		t.Errorf("traffic update at %d preceded deployment creation at %d", trafficIdx, lastDepIdx)
	}
}

func TestOrchestratorStopsWhenJobFails(t *testing.T) {
	platform := newFakePlatform()
	platform.jobStatus = []models.JobStatus{models.JobRunning, models.JobFailed}
	server := httptest.NewServer(platform.handler())
	defer server.Close()

	o, err := New(testConfig(server.URL), staticCred{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = o.Run(context.Background())
	if err == nil {
		t.Fatal("expected pipeline to fail when the job fails")
	}
	if !strings.Contains(err.Error(), "job train-taxi failed") {
		t.Errorf("unexpected error: %v", err)
	}
	var we *models.WorkflowError
	if !errors.As(err, &we) || we.Type != models.ErrJobFailed {
		t.Errorf("expected job_failed classification, got %v", err)
	}

	platform.mu.Lock()
	defer platform.mu.Unlock()
	for _, p := range platform.puts {
		if strings.Contains(p, "/models/") || strings.Contains(p, "/endpoints/") {
			t.Errorf("no model or endpoint request expected after job failure, saw %s", p)
		}
	}
}

func TestOrchestratorSkipsUnconfiguredStages(t *testing.T) {
	platform := newFakePlatform()
	server := httptest.NewServer(platform.handler())
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Environment = nil
	cfg.Model = nil
	cfg.Endpoint = nil

	o, err := New(cfg, staticCred{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Model != nil || result.Endpoint != nil {
		t.Errorf("expected only the training stage to run, got %+v", result)
	}

	platform.mu.Lock()
	defer platform.mu.Unlock()
	for _, p := range platform.puts {
		if !strings.Contains(p, "/jobs/") {
			t.Errorf("only job requests expected, saw %s", p)
		}
	}
}

func TestOrchestratorLocalComputeRequiresEnvironment(t *testing.T) {
	cfg := testConfig("https://ml.example.com")
	cfg.Compute = models.ComputeConfig{Type: "docker"}
	cfg.Environment = nil

	o, err := New(cfg, staticCred{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = o.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for local compute without an environment")
	}
	if !strings.Contains(err.Error(), "requires an environment definition") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWaitDefaultsToTrue(t *testing.T) {
	var tc models.TrainingConfig
	if !tc.Wait() {
		t.Error("expected waiting for completion to default to true")
	}
	f := false
	tc.WaitForCompletion = &f
	if tc.Wait() {
		t.Error("expected explicit false to disable waiting")
	}
}

func TestOrchestratorSubmitWithoutWait(t *testing.T) {
	platform := newFakePlatform()
	server := httptest.NewServer(platform.handler())
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Environment = nil
	cfg.Model = nil
	cfg.Endpoint = nil
	f := false
	cfg.Training.WaitForCompletion = &f

	o, err := New(cfg, staticCred{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.JobStatus != models.JobQueued {
		t.Errorf("expected job left in Queued, got %q", result.JobStatus)
	}

	platform.mu.Lock()
	defer platform.mu.Unlock()
	if platform.jobPolls != 0 {
		t.Errorf("expected no job polls, got %d", platform.jobPolls)
	}
}

func TestOrchestratorClassifiesInvalidTraffic(t *testing.T) {
	platform := newFakePlatform()
	server := httptest.NewServer(platform.handler())
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Endpoint.Traffic = models.TrafficMap{"blue": 50, "green": 10}

	o, err := New(cfg, staticCred{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = o.Run(context.Background())
	if err == nil {
		t.Fatal("expected pipeline to fail on an incomplete traffic split")
	}
	var we *models.WorkflowError
	if !errors.As(err, &we) || we.Type != models.ErrTrafficInvalid {
		t.Errorf("expected traffic_invalid classification, got %v", err)
	}
	if !strings.Contains(err.Error(), "sum to 60") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewProviderRejectsUnknownType(t *testing.T) {
	if _, err := newProvider(models.ComputeConfig{Type: "slurm"}); err == nil {
		t.Fatal("expected error for unknown compute type")
	} else if !strings.Contains(err.Error(), "unsupported compute type") {
		t.Errorf("unexpected error: %v", err)
	}
}
