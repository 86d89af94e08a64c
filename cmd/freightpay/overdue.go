package main

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/freightpay/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newOverdueCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Run one overdue sweep and exit",
		Example: `  # mark every past-due invoice
  freightpay overdue

  # give up after one minute
  freightpay overdue --timeout 1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sched *scheduler.Scheduler
			app := fx.New(
				infra(),
				domain(),
				fx.Populate(&sched),
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() {
				stopCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
				defer stop()
				_ = app.Stop(stopCtx)
			}()

			marked, err := sched.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d invoice(s) overdue\n", marked)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "abort the sweep after this long")
	return cmd
}
