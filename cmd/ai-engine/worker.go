package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/dispatch"
	natsclient "github.com/capitalize-ai/ai-engine/internal/nats"
)

func workerCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process inbound messages from the INBOUND stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stopTracing := startTracing(ctx, cfg, log)
			defer stopTracing()

			eng, err := buildEngine(ctx, cfg, log, true)
			if err != nil {
				log.Error("failed to start engine", zap.Error(err))
				return err
			}
			defer eng.close()

			consumer, err := eng.streams.InboundConsumer(ctx, natsclient.ConsumerConfig{
				Durable:    cfg.ConsumerName,
				AckWait:    cfg.ConsumerAckWait,
				MaxDeliver: cfg.ConsumerMaxDeliver,
			})
			if err != nil {
				log.Error("failed to create consumer", zap.Error(err))
				return err
			}

			if concurrency <= 0 {
				concurrency = cfg.DispatchWorkers
			}
			worker := dispatch.NewConsumer(consumer, eng.orchestrator, newReplier(eng), dispatch.ConsumerConfig{
				Concurrency: concurrency,
			}, log)

			log.Info("worker started",
				zap.String("consumer", cfg.ConsumerName),
				zap.Int("concurrency", concurrency),
				zap.Bool("jetstream_replies", cfg.ReplyBackend == "jetstream"),
			)
			if err := worker.Run(ctx); err != nil {
				log.Error("worker stopped with error", zap.Error(err))
				return err
			}
			log.Info("worker stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "in-flight messages (default DISPATCH_WORKERS)")
	return cmd
}
