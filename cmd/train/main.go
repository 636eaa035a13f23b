package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andreas-schneider/notebook-to-mlops-pipeline/internal/trainer"
)

func main() {
	modelName := flag.String("model-name", "model", "name recorded in the model artifact")
	modelVersion := flag.String("model-version", "1", "version recorded in the model artifact")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: train [flags] <input-root> <output-root>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := trainer.Run(ctx, trainer.Options{
		InputRoot:    flag.Arg(0),
		OutputRoot:   flag.Arg(1),
		ModelName:    *modelName,
		ModelVersion: *modelVersion,
	})
	if err != nil {
		slog.Error("training failed", "error", err)
		os.Exit(1)
	}
}
