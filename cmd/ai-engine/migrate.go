package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/store"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.StoreDriver == "memory" {
				return errors.New("STORE_DRIVER is memory, nothing to migrate")
			}

			// Open applies the schema.
			s, err := store.Open(context.Background(), store.Dialect(cfg.StoreDriver), cfg.StoreDSN)
			if err != nil {
				return err
			}
			defer s.Close()

			log.Info("schema applied", zap.String("driver", cfg.StoreDriver))
			return nil
		},
	}
}
