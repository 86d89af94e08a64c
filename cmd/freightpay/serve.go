package main

import (
	"github.com/smallbiznis/freightpay/internal/scheduler"
	"github.com/smallbiznis/freightpay/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the overdue sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infra(),
				domain(),
				server.Module,
				scheduler.Background,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
