package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/freightpay/internal/clock"
	invoicedomain "github.com/smallbiznis/freightpay/internal/invoice/domain"
	"github.com/smallbiznis/freightpay/internal/observability/metrics"
	"github.com/smallbiznis/freightpay/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Invoices invoicedomain.Repository
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	invoices invoicedomain.Repository
	metrics  *metrics.Metrics
	validate *validator.Validate
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("webhook.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		invoices: p.Invoices,
		metrics:  p.Metrics,
		validate: validator.New(),
	}
}

// Process stores the event and applies it in one transaction. Application runs in
// a savepoint: on failure the error is recorded on the event, processed_at stays
// nil, and the call still succeeds so the provider's redelivery drives the retry.
func (s *Service) Process(ctx context.Context, provider string, evt domain.Event) (*domain.EventRecord, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, invoicedomain.NewValidationError("provider", "provider_required", "provider is required")
	}
	evt.EventID = strings.TrimSpace(evt.EventID)
	evt.EventType = strings.TrimSpace(evt.EventType)
	if err := s.validate.StructCtx(ctx, evt); err != nil {
		return nil, invoicedomain.NewValidationError("event", "invalid_event", "event_id and event_type are required")
	}

	payload := []byte(evt.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if !json.Valid(payload) {
		return nil, invoicedomain.NewValidationError("payload", "invalid_payload", "payload must be valid JSON")
	}
	invoiceID, err := parseOptionalID("invoice_id", evt.InvoiceID)
	if err != nil {
		return nil, err
	}
	submissionID, err := parseOptionalID("submission_id", evt.SubmissionID)
	if err != nil {
		return nil, err
	}

	var (
		record    *domain.EventRecord
		duplicate bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		fresh := &domain.EventRecord{
			ID:           s.genID.Generate(),
			Provider:     provider,
			EventID:      evt.EventID,
			EventType:    evt.EventType,
			InvoiceID:    invoiceID,
			SubmissionID: submissionID,
			Payload:      datatypes.JSON(payload),
			OccurredAt:   evt.OccurredAt,
			ReceivedAt:   now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		inserted, err := s.repo.InsertEvent(ctx, tx, fresh)
		if err != nil {
			return err
		}
		if inserted {
			record = fresh
		} else {
			existing, err := s.repo.FindEventForUpdate(ctx, tx, provider, evt.EventID)
			if err != nil {
				return err
			}
			if existing == nil {
				return domain.ErrInvalidEvent
			}
			if existing.ProcessedAt != nil {
				record = existing
				duplicate = true
				return nil
			}
			existing.EventType = evt.EventType
			existing.InvoiceID = invoiceID
			existing.SubmissionID = submissionID
			existing.Payload = datatypes.JSON(payload)
			existing.OccurredAt = evt.OccurredAt
			record = existing
		}

		record.Attempts++
		var outcome string
		applyErr := tx.Transaction(func(sp *gorm.DB) error {
			var err error
			outcome, err = s.apply(ctx, sp, record, payload)
			return err
		})
		if applyErr != nil {
			record.ProcessedAt = nil
			record.ProcessingError = applyErr.Error()
			record.Outcome = domain.OutcomeFailed
		} else {
			record.ProcessedAt = &now
			record.ProcessingError = ""
			record.Outcome = outcome
		}
		record.UpdatedAt = now
		return s.repo.UpdateEvent(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	outcome := record.Outcome
	if duplicate {
		outcome = "duplicate"
	}
	s.metrics.RecordWebhookEvent(provider, record.EventType, outcome)

	fields := []zap.Field{
		zap.String("provider", provider),
		zap.String("event_id", record.EventID),
		zap.String("event_type", record.EventType),
		zap.String("outcome", outcome),
		zap.Int("attempts", record.Attempts),
	}
	if record.ProcessingError != "" {
		s.log.Warn("webhook event not applied", append(fields, zap.String("processing_error", record.ProcessingError))...)
	} else {
		s.log.Info("webhook event handled", fields...)
	}
	return record, nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, rec *domain.EventRecord, payload []byte) (string, error) {
	action := domain.Route(rec.EventType)
	if action == domain.ActionIgnore {
		return domain.OutcomeIgnored, nil
	}

	inv, sub, err := s.resolveTarget(ctx, tx, rec, action)
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	from := inv.Status
	switch action {
	case domain.ActionPaid:
		err = s.applyPayment(ctx, tx, rec, inv, payload, now)
	case domain.ActionFactoringAccepted:
		err = s.applyDecision(ctx, tx, rec, inv, sub, payload, true, now)
	case domain.ActionFactoringRejected:
		err = s.applyDecision(ctx, tx, rec, inv, sub, payload, false, now)
	case domain.ActionFactoringFunded:
		err = s.applyFunding(ctx, tx, sub, payload, now)
	}
	if err != nil {
		return "", err
	}
	s.metrics.RecordTransition(string(from), string(inv.Status))
	return domain.OutcomeApplied, nil
}

// resolveTarget locks the invoice named directly or through the submission.
func (s *Service) resolveTarget(ctx context.Context, tx *gorm.DB, rec *domain.EventRecord, action domain.Action) (*invoicedomain.Invoice, *invoicedomain.FactoringSubmission, error) {
	var sub *invoicedomain.FactoringSubmission
	if rec.SubmissionID != nil {
		found, err := s.invoices.FindSubmission(ctx, tx, *rec.SubmissionID)
		if err != nil {
			return nil, nil, err
		}
		if rec.InvoiceID == nil {
			id := found.InvoiceID
			rec.InvoiceID = &id
		} else if *rec.InvoiceID != found.InvoiceID {
			return nil, nil, invoicedomain.NewValidationError("submission_id", "submission_mismatch",
				"submission does not belong to invoice")
		}
		sub = found
	}
	if rec.InvoiceID == nil {
		return nil, nil, invoicedomain.ErrInvoiceNotFound
	}

	inv, err := s.invoices.FindInvoiceForUpdate(ctx, tx, *rec.InvoiceID)
	if err != nil {
		return nil, nil, err
	}

	if action == domain.ActionPaid {
		return inv, sub, nil
	}
	if sub == nil {
		if inv.FactoringSubmissionID == nil {
			return nil, nil, invoicedomain.ErrSubmissionNotFound
		}
		sub, err = s.invoices.FindSubmission(ctx, tx, *inv.FactoringSubmissionID)
		if err != nil {
			return nil, nil, err
		}
	}
	if sub.Provider != rec.Provider {
		return nil, nil, invoicedomain.NewValidationError("provider", "provider_mismatch",
			fmt.Sprintf("submission belongs to provider %s", sub.Provider))
	}
	return inv, sub, nil
}

func (s *Service) applyPayment(ctx context.Context, tx *gorm.DB, rec *domain.EventRecord, inv *invoicedomain.Invoice, payload []byte, now time.Time) error {
	var p domain.PaymentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return invoicedomain.NewValidationError("payload", "invalid_payload", err.Error())
	}

	externalID := strings.TrimSpace(p.ExternalID)
	if externalID == "" {
		externalID = "webhook:" + rec.Provider + ":" + rec.EventID
	}
	existing, err := s.invoices.FindPaymentByExternalID(ctx, tx, inv.ID, externalID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	amount := p.Amount
	if amount == 0 {
		amount = inv.Outstanding()
	}
	if err := inv.ApplyPayment(amount, now); err != nil {
		return err
	}

	method := strings.ToLower(strings.TrimSpace(p.Method))
	if method == "" {
		method = rec.Provider
	}
	receivedAt := now
	if p.ReceivedAt != nil && !p.ReceivedAt.IsZero() {
		receivedAt = p.ReceivedAt.UTC()
	}
	if err := s.invoices.InsertPayment(ctx, tx, &invoicedomain.PaymentTransaction{
		ID:         s.genID.Generate(),
		InvoiceID:  inv.ID,
		Amount:     amount,
		Method:     method,
		ExternalID: &externalID,
		RecordedBy: "webhook:" + rec.Provider,
		ReceivedAt: receivedAt,
		CreatedAt:  now,
	}); err != nil {
		return err
	}
	return s.invoices.UpdateInvoice(ctx, tx, inv)
}

func (s *Service) applyDecision(ctx context.Context, tx *gorm.DB, rec *domain.EventRecord, inv *invoicedomain.Invoice, sub *invoicedomain.FactoringSubmission, payload []byte, accepted bool, now time.Time) error {
	var d domain.DecisionPayload
	if err := json.Unmarshal(payload, &d); err != nil {
		return invoicedomain.NewValidationError("payload", "invalid_payload", err.Error())
	}

	target, subStatus := invoicedomain.StatusFactoringRejected, invoicedomain.SubmissionRejected
	if accepted {
		target, subStatus = invoicedomain.StatusFactoringAccepted, invoicedomain.SubmissionAccepted
	}
	if sub.Status != invoicedomain.SubmissionSubmitted && sub.Status != subStatus {
		return invoicedomain.NewValidationError("submission_id", "submission_decided",
			fmt.Sprintf("submission already %s", sub.Status))
	}
	if err := inv.Transition(target, now); err != nil {
		return err
	}

	sub.Status = subStatus
	if ref := strings.TrimSpace(d.ProviderReference); ref != "" {
		sub.ProviderReference = ref
	}
	if d.AdvanceAmount > 0 {
		sub.AdvanceAmount = d.AdvanceAmount
	}
	if d.Message != "" {
		sub.Message = d.Message
	}
	if d.Metadata != nil {
		sub.Metadata = datatypes.JSONMap(d.Metadata)
	}
	if sub.DecidedAt == nil {
		sub.DecidedAt = &now
	}
	sub.LastError = ""
	sub.UpdatedAt = now
	if err := s.invoices.UpdateSubmission(ctx, tx, sub); err != nil {
		return err
	}
	return s.invoices.UpdateInvoice(ctx, tx, inv)
}

// applyFunding records the advance payout. The invoice status does not change.
func (s *Service) applyFunding(ctx context.Context, tx *gorm.DB, sub *invoicedomain.FactoringSubmission, payload []byte, now time.Time) error {
	var d domain.DecisionPayload
	if err := json.Unmarshal(payload, &d); err != nil {
		return invoicedomain.NewValidationError("payload", "invalid_payload", err.Error())
	}
	if sub.Status != invoicedomain.SubmissionAccepted && sub.Status != invoicedomain.SubmissionFunded {
		return invoicedomain.NewValidationError("submission_id", "submission_not_accepted",
			fmt.Sprintf("cannot fund submission in status %s", sub.Status))
	}

	fundedAt := now
	if d.FundedAt != nil && !d.FundedAt.IsZero() {
		fundedAt = d.FundedAt.UTC()
	}
	sub.Status = invoicedomain.SubmissionFunded
	sub.FundedAt = &fundedAt
	if d.AdvanceAmount > 0 {
		sub.AdvanceAmount = d.AdvanceAmount
	}
	sub.UpdatedAt = now
	return s.invoices.UpdateSubmission(ctx, tx, sub)
}

func parseOptionalID(field, raw string) (*snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return nil, invoicedomain.NewValidationError(field, "invalid_"+field, field+" must be a numeric id")
	}
	return &id, nil
}
