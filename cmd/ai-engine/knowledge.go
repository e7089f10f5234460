package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/knowledge"
	"github.com/capitalize-ai/ai-engine/internal/middleware"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
)

func knowledgeCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage tenant knowledge documents",
	}
	cmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", "", "tenant id (required)")
	cmd.MarkPersistentFlagRequired("tenant")

	cmd.AddCommand(knowledgeIndexCmd(&tenantID))
	cmd.AddCommand(knowledgeSearchCmd(&tenantID))
	cmd.AddCommand(knowledgeClearCmd(&tenantID))
	return cmd
}

// withRetriever runs fn against the configured vector index.
func withRetriever(fn func(ctx context.Context, r *knowledge.Retriever, log *logger.Logger) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.VectorBackend != "qdrant" {
		log.Warn("VECTOR_BACKEND is memory, changes are lost when this command exits")
	}

	r, closeFn, err := newRetriever(cfg, log)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(context.Background(), r, log)
}

func knowledgeIndexCmd(tenantID *string) *cobra.Command {
	var files []string
	var source string

	cmd := &cobra.Command{
		Use:   "index [text...]",
		Short: "Index documents from files or arguments",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs := make([]string, 0, len(files)+1)
			for _, path := range files {
				b, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				docs = append(docs, string(b))
			}
			if len(args) > 0 {
				docs = append(docs, strings.Join(args, " "))
			}
			if len(docs) == 0 {
				return fmt.Errorf("nothing to index: pass --file or text arguments")
			}
			for _, d := range docs {
				if err := middleware.ValidateDocument(d); err != nil {
					return err
				}
			}

			return withRetriever(func(ctx context.Context, r *knowledge.Retriever, log *logger.Logger) error {
				var md map[string]string
				if source != "" {
					md = map[string]string{"source": source}
				}
				for _, d := range docs {
					id, err := r.Index(ctx, *tenantID, d, md)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				log.Info("documents indexed", zap.String("tenant_id", *tenantID), zap.Int("count", len(docs)))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "file to index, repeatable")
	cmd.Flags().StringVar(&source, "source", "", "source label stored with the documents")
	return cmd
}

func knowledgeSearchCmd(tenantID *string) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search tenant knowledge",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withRetriever(func(ctx context.Context, r *knowledge.Retriever, log *logger.Logger) error {
				out := cmd.OutOrStdout()
				snippets := r.Search(ctx, *tenantID, query, topK)
				if len(snippets) == 0 {
					fmt.Fprintln(out, "no results")
					return nil
				}
				for i, s := range snippets {
					fmt.Fprintf(out, "[%d] %.3f %s\n", i+1, s.Score, s.Content)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 3, "number of results")
	return cmd
}

func knowledgeClearCmd(tenantID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every document of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRetriever(func(ctx context.Context, r *knowledge.Retriever, log *logger.Logger) error {
				return r.Clear(ctx, *tenantID)
			})
		},
	}
}
