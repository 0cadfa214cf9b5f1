package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/futura-orders/internal/auth"
	"github.com/ariefcatur/futura-orders/internal/config"
	"github.com/ariefcatur/futura-orders/internal/postgres"
)

// orderctl migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the orders schema in POSTGRES_DSN",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

// orderctl token --sub ops --role admin --ttl 1h
func newTokenCmd() *cobra.Command {
	var (
		sub  string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with JWT_SECRET (development only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sub == "" {
				return fmt.Errorf("--sub is required")
			}
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			tok, err := auth.NewVerifier(cfg.JWTSecret).Issue(sub, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "token subject")
	cmd.Flags().StringVar(&role, "role", "staff", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
