package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/config"
	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/workflow"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: mlops <workflow.yaml>")
		os.Exit(1)
	}

	cfg, err := config.LoadWorkflowConfig(os.Args[1])
	if err != nil {
		slog.Error("loading workflow config", "error", err)
		os.Exit(1)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		slog.Error("invalid workflow config", "error", err)
		os.Exit(1)
	}
	slog.SetLogLoggerLevel(level)

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()

	go func() {
		sig := <-sigChan
		slog.Info("interrupt received, shutting down gracefully...", "signal", sig)
		cancel()
	}()

	orchestrator, err := workflow.New(cfg, nil)
	if err != nil {
		slog.Error("creating orchestrator", "error", err)
		os.Exit(1)
	}

	result, err := orchestrator.Run(ctx)
	if err != nil {
		slog.Error("workflow failed", "error", err)
		os.Exit(1)
	}

	// Print summary
	fmt.Printf("\nWorkflow: %s\n", result.Name)
	if result.JobName != "" {
		fmt.Printf("Job: %s (%s)\n", result.JobName, result.JobStatus)
	}
	if result.Model != nil {
		fmt.Printf("Model: %s:%s\n", result.Model.Name, result.Model.Version)
	}
	if result.Endpoint != nil {
		fmt.Printf("Endpoint: %s\n", result.Endpoint.Name)
		fmt.Printf("Scoring URI: %s\n", result.Endpoint.ScoringURI)
	}
	for _, name := range result.Traffic.Deployments() {
		fmt.Printf("Traffic: %s=%d\n", name, result.Traffic[name])
	}
	fmt.Printf("Duration: %.2fs\n", result.DurationSec)
}
