package factoring

import (
	"go.uber.org/fx"
)

// Module expects provider factories in the "factoring_providers" value group.
var Module = fx.Module("factoring",
	fx.Provide(
		fx.Annotate(
			NewRegistry,
			fx.ParamTags(``, `group:"factoring_providers"`),
		),
	),
)
