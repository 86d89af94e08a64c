package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/freightpay/internal/invoice/domain"
	"github.com/smallbiznis/freightpay/internal/notification"
	"go.uber.org/zap"
)

// notify enqueues an email to recipientUID. Failures never reach the caller.
func (s *Service) notify(ctx context.Context, kind string, inv *domain.Invoice, recipientUID string, extra map[string]any) {
	if s.notifier == nil || recipientUID == "" {
		return
	}
	user, err := s.users.GetUser(ctx, recipientUID)
	if err != nil || user.Email == "" {
		s.log.Debug("notification skipped, no recipient email",
			zap.String("kind", kind),
			zap.String("recipient_uid", recipientUID),
			zap.Error(err),
		)
		return
	}

	data := map[string]any{
		"invoice_number": inv.InvoiceNumber,
		"load_id":        inv.LoadID,
		"amount":         formatMinor(inv.AmountTotal),
		"currency":       inv.Currency,
	}
	if inv.DueDate != nil {
		data["due_date"] = inv.DueDate.UTC().Format("2006-01-02")
	}
	for k, v := range extra {
		data[k] = v
	}
	s.notifier.Enqueue(notification.Message{Kind: kind, To: []string{user.Email}, Data: data})
}

func formatMinor(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
