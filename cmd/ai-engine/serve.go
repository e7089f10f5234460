package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/config"
	"github.com/capitalize-ai/ai-engine/internal/dispatch"
	"github.com/capitalize-ai/ai-engine/internal/handler"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingress and admin API",
		Long: `Runs the HTTP API. With DISPATCH_BACKEND=local inbound messages are
processed by an in-process worker pool; with jetstream they are published
to the INBOUND stream for "ai-engine worker" processes.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopTracing := startTracing(ctx, cfg, log)
	defer stopTracing()

	eng, err := buildEngine(ctx, cfg, log, cfg.UsesNATS())
	if err != nil {
		log.Error("failed to start engine", zap.Error(err))
		return err
	}
	defer eng.close()

	replier := newReplier(eng)

	var (
		dispatcher dispatch.Dispatcher
		pool       *dispatch.Pool
	)
	if cfg.DispatchBackend == config.DispatchJetStream {
		dispatcher = dispatch.NewJetStreamQueue(eng.streams, log)
	} else {
		pool = dispatch.NewPool(eng.orchestrator, replier, dispatch.PoolConfig{
			Workers:   cfg.DispatchWorkers,
			QueueSize: cfg.DispatchQueueSize,
		}, log)
		dispatcher = pool
	}

	checks := map[string]handler.Pinger{"store": eng.repo}
	if eng.nats != nil {
		checks["nats"] = eng.nats
	}

	router := handler.NewRouter(handler.Handlers{
		Health:    handler.NewHealthHandler(checks),
		Messages:  handler.NewMessageHandler(eng.orchestrator, dispatcher, log),
		Knowledge: handler.NewKnowledgeHandler(eng.retriever, log),
		Analytics: handler.NewAnalyticsHandler(eng.analytics, log),
		Tenant:    handler.NewTenantHandler(eng.profiles, log),
	}, handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, log)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("port", cfg.ServerPort),
			zap.String("dispatch", cfg.DispatchBackend),
			zap.String("replies", cfg.ReplyBackend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error("server error", zap.Error(err))
			return err
		}
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if pool != nil {
		if err := pool.Shutdown(shutdownCtx); err != nil {
			log.Error("dispatch pool did not drain", zap.Error(err))
		}
	}

	log.Info("server stopped")
	return nil
}

// newReplier picks where processed replies go.
func newReplier(eng *engine) dispatch.Replier {
	if eng.cfg.ReplyBackend == "jetstream" && eng.streams != nil {
		return dispatch.NewJetStreamReplier(eng.streams)
	}
	return dispatch.NewLogReplier(eng.log)
}
