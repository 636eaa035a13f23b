// Package scorer serves online scoring requests against a loaded model
// artifact. The model handle is assigned exactly once at startup; request
// handlers only ever read it.
package scorer

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/artifact"
)

// TheAnswer is returned with every scoring response.
const TheAnswer = 42

// modelHandle holds the loaded model. Set may be called at most once;
// later calls fail rather than silently replacing the model under
// concurrent readers.
type modelHandle struct {
	mu    sync.RWMutex
	model *artifact.Model
}

func (h *modelHandle) Set(m artifact.Model) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model != nil {
		return fmt.Errorf("model already loaded")
	}
	h.model = &m
	return nil
}

func (h *modelHandle) Get() (artifact.Model, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.model == nil {
		return artifact.Model{}, false
	}
	return *h.model, true
}

// Service scores requests against a single loaded model.
type Service struct {
	handle modelHandle
}

// New creates a service and loads the model from the artifact path under
// the given model root.
func New(modelRoot string) (*Service, error) {
	s := &Service{}
	path := artifact.ScorePath(modelRoot)
	model, err := artifact.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading model from %s: %w", path, err)
	}
	if err := s.handle.Set(model); err != nil {
		return nil, err
	}
	slog.Info("model loaded", "path", path, "model", model.Name, "version", model.Version)
	return s, nil
}

// NewFromEnv creates a service using the model root from the environment.
func NewFromEnv() (*Service, error) {
	return New(artifact.ResolveRoot())
}

// scoreResponse echoes the parsed request document alongside the answer.
// The document carries exactly these two keys; callers rely on the shape.
type scoreResponse struct {
	Answer int `json:"answer"`
	Input  any `json:"input"`
}

// Score handles POST /score. The body must be a JSON document; it is
// echoed back with the answer.
func (s *Service) Score(c echo.Context) error {
	if _, ok := s.handle.Get(); !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "model not loaded")
	}

	var doc any
	if err := c.Bind(&doc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("parsing request body: %v", err))
	}

	return c.JSON(http.StatusOK, scoreResponse{Answer: TheAnswer, Input: doc})
}

// Health handles GET /healthz. It reports the identity of the loaded model.
func (s *Service) Health(c echo.Context) error {
	model, ok := s.handle.Get()
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "loading"})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"model":   model.Name,
		"version": model.Version,
	})
}

// NewServer builds the HTTP server around the service.
func NewServer(s *Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.POST("/score", s.Score)
	e.GET("/healthz", s.Health)
	return e
}
