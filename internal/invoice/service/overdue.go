package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/freightpay/internal/invoice/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultOverdueBatch = 200

var errNotOverdue = errors.New("invoice_not_overdue")

// MarkOverdueInvoices flips at most maxDocs past-due invoices to OVERDUE, each in
// its own transaction. Invoices that changed since the scan are skipped.
func (s *Service) MarkOverdueInvoices(ctx context.Context, maxDocs int) (marked int, err error) {
	ctx, span := s.startSpan(ctx, "mark_overdue", 0)
	defer func() { endSpan(span, err) }()

	if maxDocs <= 0 {
		maxDocs = defaultOverdueBatch
	}
	now := s.clock.Now()
	ids, err := s.repo.ListOverdueCandidates(ctx, s.db, domain.OverdueEligibleStatuses(), now, maxDocs)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			s.metrics.RecordOverdue(marked)
			return marked, err
		}
		_, _, err := s.mutate(ctx, id, func(tx *gorm.DB, inv *domain.Invoice) error {
			if inv.DueDate == nil || !inv.DueDate.Before(now) || !domain.CanTransition(inv.Status, domain.StatusOverdue) || inv.Status == domain.StatusOverdue {
				return errNotOverdue
			}
			return inv.Transition(domain.StatusOverdue, now)
		})
		if errors.Is(err, errNotOverdue) {
			continue
		}
		if err != nil {
			s.log.Warn("failed to mark invoice overdue", zap.String("invoice_id", id.String()), zap.Error(err))
			continue
		}
		marked++
	}

	s.metrics.RecordOverdue(marked)
	s.log.Info("overdue sweep finished",
		zap.Int("candidates", len(ids)),
		zap.Int("marked", marked),
	)
	return marked, nil
}
