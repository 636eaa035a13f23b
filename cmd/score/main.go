package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/scorer"
)

func main() {
	addr := os.Getenv("SCORE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	svc, err := scorer.NewFromEnv()
	if err != nil {
		slog.Error("failed to load model", "error", err)
		os.Exit(1)
	}

	server := scorer.NewServer(svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("scoring server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
}
