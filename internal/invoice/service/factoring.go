package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/docgate"
	"github.com/smallbiznis/freightpay/internal/factoring"
	"github.com/smallbiznis/freightpay/internal/invoice/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmitToFactoring runs in three steps: record a pending submission and move the
// invoice to FACTORING_SUBMITTED, call the provider with a bounded timeout, then
// persist the verdict. A provider failure leaves the invoice pending; calling
// again resumes the pending submission.
func (s *Service) SubmitToFactoring(ctx context.Context, id snowflake.ID, providerName string) (res *domain.SubmissionResult, err error) {
	ctx, span := s.startSpan(ctx, "submit_factoring", id)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	providerName = strings.ToLower(strings.TrimSpace(providerName))
	if providerName == "" {
		return nil, domain.NewValidationError("provider", "provider_required", "provider is required")
	}
	provider, err := s.factoring.Provider(providerName)
	if err != nil {
		if errors.Is(err, factoring.ErrProviderNotFound) {
			return nil, domain.NewValidationError("provider", "unknown_provider",
				fmt.Sprintf("unknown factoring provider %q", providerName))
		}
		return nil, err
	}

	_, docs, err := s.vault(ctx, id)
	if err != nil {
		return nil, err
	}

	var sub *domain.FactoringSubmission
	inv, _, err := s.mutate(ctx, id, func(tx *gorm.DB, inv *domain.Invoice) error {
		if err := requireIssuer(actor, inv); err != nil {
			return err
		}
		if !inv.FactoringEnabled {
			return domain.NewValidationError("factoring_enabled", "factoring_disabled", "factoring is not enabled for this invoice")
		}
		attachments := docgate.ResolveAttachments(inv.Attachments, docs)
		if err := s.gate.Check(attachments, config.OperationSubmitFactoring); err != nil {
			return err
		}
		inv.Attachments = datatypes.JSONSlice[domain.Attachment](attachments)

		now := s.clock.Now()
		if inv.Status == domain.StatusFactoringSubmitted && inv.FactoringSubmissionID != nil {
			pending, err := s.repo.FindSubmission(ctx, tx, *inv.FactoringSubmissionID)
			if err != nil {
				return err
			}
			if pending.Status == domain.SubmissionSubmitted {
				if pending.Provider != providerName {
					return domain.NewValidationError("provider", "submission_pending",
						fmt.Sprintf("submission pending with provider %s", pending.Provider))
				}
				sub = pending
				return nil
			}
		}

		if err := inv.Transition(domain.StatusFactoringSubmitted, now); err != nil {
			return err
		}
		sub = &domain.FactoringSubmission{
			ID:          s.genID.Generate(),
			InvoiceID:   inv.ID,
			Provider:    providerName,
			Status:      domain.SubmissionSubmitted,
			SubmittedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.InsertSubmission(ctx, tx, sub); err != nil {
			return err
		}
		inv.FactoringProvider = providerName
		inv.FactoringSubmissionID = &sub.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.factoringTimeout)
	result, callErr := provider.Submit(callCtx, buildSubmission(inv, sub))
	cancel()
	if callErr != nil {
		s.metrics.RecordFactoring(providerName, "error")
		s.recordSubmissionError(context.WithoutCancel(ctx), sub.ID, callErr)
		s.log.Warn("factoring provider call failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("submission_id", sub.ID.String()),
			zap.String("provider", providerName),
			zap.Error(callErr),
		)
		return nil, &domain.ProviderError{Provider: providerName, Err: callErr}
	}

	inv, _, err = s.mutate(ctx, id, func(tx *gorm.DB, inv *domain.Invoice) error {
		current, err := s.repo.FindSubmission(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if current.Status != domain.SubmissionSubmitted {
			// A webhook already delivered the verdict.
			sub = current
			return nil
		}

		now := s.clock.Now()
		target := domain.StatusFactoringRejected
		current.Status = domain.SubmissionRejected
		if result.Accepted {
			target = domain.StatusFactoringAccepted
			current.Status = domain.SubmissionAccepted
		}
		if err := inv.Transition(target, now); err != nil {
			return err
		}
		current.ProviderReference = result.ProviderReference
		current.AdvanceAmount = result.AdvanceAmount
		current.Message = result.Message
		current.Metadata = datatypes.JSONMap(result.Metadata)
		current.LastError = ""
		current.DecidedAt = &now
		current.UpdatedAt = now
		if err := s.repo.UpdateSubmission(ctx, tx, current); err != nil {
			return err
		}
		sub = current
		return nil
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		// The invoice moved on while the provider was deciding; keep the verdict on the submission.
		s.metrics.RecordFactoring(providerName, "orphaned")
		s.recordSubmissionVerdict(context.WithoutCancel(ctx), sub.ID, result, err)
		s.log.Warn("factoring verdict arrived after invoice left FACTORING_SUBMITTED",
			zap.String("invoice_id", id.String()),
			zap.String("submission_id", sub.ID.String()),
			zap.String("provider", providerName),
			zap.Bool("accepted", result.Accepted),
			zap.Error(err),
		)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordFactoring(providerName, string(sub.Status))
	s.log.Info("factoring submission decided",
		append(actorFields(actor),
			zap.String("invoice_id", inv.ID.String()),
			zap.String("submission_id", sub.ID.String()),
			zap.String("provider", providerName),
			zap.String("status", string(sub.Status)),
		)...,
	)
	return &domain.SubmissionResult{Invoice: inv, Submission: sub}, nil
}

func (s *Service) recordSubmissionError(ctx context.Context, id snowflake.ID, callErr error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		sub.LastError = callErr.Error()
		sub.UpdatedAt = s.clock.Now()
		return s.repo.UpdateSubmission(ctx, tx, sub)
	})
	if err != nil {
		s.log.Error("failed to record factoring error", zap.String("submission_id", id.String()), zap.Error(err))
	}
}

// recordSubmissionVerdict stores a provider verdict that could not be applied to
// the invoice. last_error carries the reason.
func (s *Service) recordSubmissionVerdict(ctx context.Context, id snowflake.ID, result factoring.Result, cause error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub.Status != domain.SubmissionSubmitted {
			return nil
		}
		now := s.clock.Now()
		sub.Status = domain.SubmissionRejected
		if result.Accepted {
			sub.Status = domain.SubmissionAccepted
		}
		sub.ProviderReference = result.ProviderReference
		sub.AdvanceAmount = result.AdvanceAmount
		sub.Message = result.Message
		sub.Metadata = datatypes.JSONMap(result.Metadata)
		sub.LastError = cause.Error()
		sub.DecidedAt = &now
		sub.UpdatedAt = now
		return s.repo.UpdateSubmission(ctx, tx, sub)
	})
	if err != nil {
		s.log.Error("failed to record factoring verdict", zap.String("submission_id", id.String()), zap.Error(err))
	}
}

func buildSubmission(inv *domain.Invoice, sub *domain.FactoringSubmission) factoring.Submission {
	urls := make([]string, 0, len(inv.Attachments))
	for _, att := range inv.Attachments {
		if att.URL != "" {
			urls = append(urls, att.URL)
		}
	}
	return factoring.Submission{
		SubmissionID:  sub.ID.String(),
		InvoiceID:     inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		LoadID:        inv.LoadID,
		IssuerUID:     inv.IssuerUID,
		PayerUID:      inv.PayerUID,
		AmountTotal:   inv.AmountTotal,
		Currency:      inv.Currency,
		DueDate:       inv.DueDate,
		DocumentURLs:  urls,
	}
}
