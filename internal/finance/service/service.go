package service

import (
	"context"

	"github.com/smallbiznis/freightpay/internal/clock"
	"github.com/smallbiznis/freightpay/internal/finance/domain"
	invoicedomain "github.com/smallbiznis/freightpay/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Invoices invoicedomain.Service
}

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	invoices invoicedomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("finance.service"),
		clock:    p.Clock,
		invoices: p.Invoices,
	}
}

// Summary aggregates the invoices visible to the actor in ctx.
func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	invoices, err := s.invoices.ListVisible(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.ComputeSummary(invoices, s.clock.Now()), nil
}

func (s *Service) Forecast(ctx context.Context, rangeDays int) (domain.Forecast, error) {
	days, err := domain.NormalizeRangeDays(rangeDays)
	if err != nil {
		return domain.Forecast{}, err
	}
	invoices, err := s.invoices.ListVisible(ctx)
	if err != nil {
		return domain.Forecast{}, err
	}
	out := domain.ComputeForecast(invoices, days, s.clock.Now())
	s.log.Debug("forecast computed",
		zap.Int("range_days", days),
		zap.Int("invoices", len(invoices)),
		zap.Int64("total", out.Total),
	)
	return out, nil
}
