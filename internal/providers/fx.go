package providers

import (
	"github.com/smallbiznis/freightpay/internal/providers/email"
	"go.uber.org/fx"
)

// Module groups outbound delivery providers.
var Module = fx.Module("providers",
	email.Module,
)
