package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freightpay/internal/authorization"
	"github.com/smallbiznis/freightpay/internal/clock"
	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/docgate"
	"github.com/smallbiznis/freightpay/internal/factoring"
	"github.com/smallbiznis/freightpay/internal/factoring/reference"
	"github.com/smallbiznis/freightpay/internal/finance"
	"github.com/smallbiznis/freightpay/internal/identity"
	invoiceservice "github.com/smallbiznis/freightpay/internal/invoice/service"
	"github.com/smallbiznis/freightpay/internal/load"
	"github.com/smallbiznis/freightpay/internal/logger"
	"github.com/smallbiznis/freightpay/internal/migration"
	"github.com/smallbiznis/freightpay/internal/notification"
	"github.com/smallbiznis/freightpay/internal/observability"
	"github.com/smallbiznis/freightpay/internal/providers"
	"github.com/smallbiznis/freightpay/internal/ratelimit"
	"github.com/smallbiznis/freightpay/internal/scheduler"
	"github.com/smallbiznis/freightpay/internal/sequence"
	"github.com/smallbiznis/freightpay/internal/webhook"
	"github.com/smallbiznis/freightpay/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "freightpay",
	Short:         "Freight invoicing, factoring and webhook service",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(newServeCmd(), newOverdueCmd(), newMigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "freightpay: %v\n", err)
		os.Exit(1)
	}
}

// infra is what every command needs to reach the database.
func infra() fx.Option {
	return fx.Options(
		config.Module,
		logger.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zap.DebugLevel)
			return l
		}),
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
	)
}

// domain wires the invoice lifecycle and everything it calls.
func domain() fx.Option {
	return fx.Options(
		authorization.Module,
		identity.Module,
		load.Module,
		docgate.Module,
		sequence.Module,
		factoring.Module,
		reference.Module,
		providers.Module,
		notification.Module,
		invoiceservice.Module,
		webhook.Module,
		finance.Module,
		ratelimit.Module,
		scheduler.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
