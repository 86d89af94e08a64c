package main

import (
	"context"
	"time"

	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newMigrateCmd() *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infra(),
				fx.Decorate(func(cfg config.Config) config.Config {
					if seed {
						cfg.SeedDemoData = true
					}
					return cfg
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			return app.Stop(ctx)
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "insert demo users, a delivered load and its POD")
	return cmd
}
