package reference

import (
	"github.com/smallbiznis/freightpay/internal/factoring"
	"go.uber.org/fx"
)

var Module = fx.Module("factoring.reference",
	fx.Provide(
		fx.Annotate(
			NewFactory,
			fx.As(new(factoring.ProviderFactory)),
			fx.ResultTags(`group:"factoring_providers"`),
		),
	),
)
