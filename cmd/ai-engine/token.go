package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/ai-engine/internal/config"
	"github.com/capitalize-ai/ai-engine/internal/middleware"
)

func tokenCmd() *cobra.Command {
	var (
		tenantID string
		subject  string
		scopes   []string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a tenant-scoped API token",
		Long: `Signs a JWT with JWT_SECRET. Scopes: messages:write, knowledge:write,
analytics:read, admin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if ttl <= 0 {
				ttl = cfg.JWTExpiration
			}
			tok, err := middleware.IssueToken(cfg.JWTSecret, tenantID, subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "tenant id (required)")
	cmd.Flags().StringVar(&subject, "subject", "channel-gateway", "token subject")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{middleware.ScopeMessages}, "granted scope, repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_EXPIRATION)")
	cmd.MarkFlagRequired("tenant")
	return cmd
}
