package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freightpay/internal/authorization"
	"github.com/smallbiznis/freightpay/internal/invoice/domain"
	"github.com/smallbiznis/freightpay/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPaymentMethod = "manual"

var errDuplicatePayment = domain.NewValidationError("external_id", "duplicate_payment", "payment with this external_id already exists")

// RecordPayment appends an immutable payment and moves the invoice to PAID or
// PARTIALLY_PAID. A repeated external_id returns the stored payment untouched.
func (s *Service) RecordPayment(ctx context.Context, id snowflake.ID, req domain.RecordPaymentRequest) (res *domain.PaymentResult, err error) {
	ctx, span := s.startSpan(ctx, "record_payment", id)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}

	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = defaultPaymentMethod
	}
	externalID := strings.TrimSpace(req.ExternalID)

	result := &domain.PaymentResult{}
	inv, from, err := s.mutate(ctx, id, func(tx *gorm.DB, inv *domain.Invoice) error {
		if inv.IssuerUID != actor.UID && inv.PayerUID != actor.UID && !authorization.IsAdmin(actor.Role) {
			return domain.ErrNotParty
		}
		if externalID != "" {
			existing, err := s.repo.FindPaymentByExternalID(ctx, tx, inv.ID, externalID)
			if err != nil {
				return err
			}
			if existing != nil {
				result.Payment = existing
				result.Duplicate = true
				return nil
			}
		}

		now := s.clock.Now()
		if err := inv.ApplyPayment(req.Amount, now); err != nil {
			return err
		}

		receivedAt := now
		if req.ReceivedAt != nil && !req.ReceivedAt.IsZero() {
			receivedAt = req.ReceivedAt.UTC()
		}
		payment := &domain.PaymentTransaction{
			ID:         s.genID.Generate(),
			InvoiceID:  inv.ID,
			Amount:     req.Amount,
			Method:     method,
			RecordedBy: actor.UID,
			ReceivedAt: receivedAt,
			CreatedAt:  now,
		}
		if externalID != "" {
			payment.ExternalID = &externalID
		}
		if err := s.repo.InsertPayment(ctx, tx, payment); err != nil {
			return err
		}
		result.Payment = payment
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, errDuplicatePayment
		}
		return nil, err
	}
	result.Invoice = inv

	if result.Duplicate {
		s.log.Info("duplicate payment ignored",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("external_id", externalID),
		)
		return result, nil
	}

	s.log.Info("payment recorded",
		append(actorFields(actor),
			zap.String("invoice_id", inv.ID.String()),
			zap.String("payment_id", result.Payment.ID.String()),
			zap.Int64("amount", req.Amount),
			zap.String("status", string(inv.Status)),
		)...,
	)
	if inv.Status == domain.StatusPaid && from != domain.StatusPaid {
		s.notify(ctx, "invoice_paid", inv, inv.IssuerUID, nil)
	}
	return result, nil
}
