package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/freightpay/internal/observability/metrics"
	"github.com/smallbiznis/freightpay/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		defaultRegisterer,
		tracing.NewProvider,
		metrics.New,
	),
	fx.Invoke(ensureTracingProvider),
)

func defaultRegisterer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}
