package service

import (
	"github.com/smallbiznis/freightpay/internal/invoice/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewService),
)
