// Package main is the entry point for the ai-engine service and its tooling.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/config"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
	"github.com/capitalize-ai/ai-engine/pkg/tracing"
)

const serviceName = "ai-engine"

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Multi-tenant conversational AI engine",
		Long:          "ai-engine answers channel messages with a per-tenant agent grounded on tenant knowledge.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(knowledgeCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger.
func setup() (*config.Config, *logger.Logger, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log.With(zap.String("service", serviceName)), nil
}

// startTracing installs the tracer provider when enabled and returns its shutdown.
func startTracing(ctx context.Context, cfg *config.Config, log *logger.Logger) func() {
	if !cfg.TracingEnabled {
		return func() {}
	}
	tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
	if err != nil {
		log.Warn("failed to initialize tracing", zap.Error(err))
		return func() {}
	}
	return func() {
		if err := tracing.Shutdown(context.Background(), tp); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}
}
