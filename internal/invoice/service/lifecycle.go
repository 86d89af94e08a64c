package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freightpay/internal/authorization"
	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/docgate"
	"github.com/smallbiznis/freightpay/internal/invoice/domain"
	"github.com/smallbiznis/freightpay/internal/load"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errDisputeOpen = domain.NewValidationError("status", "dispute_open", "invoice is disputed; resolve the dispute before sending")

// vault reads the invoice's load documents outside any transaction.
func (s *Service) vault(ctx context.Context, id snowflake.ID) (*domain.Invoice, []load.Document, error) {
	inv, err := s.repo.FindInvoice(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	docs, err := s.loads.ListDocuments(ctx, inv.LoadID)
	if err != nil {
		return nil, nil, err
	}
	return inv, docs, nil
}

func (s *Service) IssueInvoice(ctx context.Context, id snowflake.ID) (inv *domain.Invoice, err error) {
	ctx, span := s.startSpan(ctx, "issue", id)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	_, docs, err := s.vault(ctx, id)
	if err != nil {
		return nil, err
	}

	inv, _, err = s.mutate(ctx, id, func(tx *gorm.DB, inv *domain.Invoice) error {
		if err := requireIssuer(actor, inv); err != nil {
			return err
		}
		if inv.Status != domain.StatusDraft {
			return &domain.StateError{From: inv.Status, To: domain.StatusIssued}
		}
		attachments := docgate.ResolveAttachments(inv.Attachments, docs)
		if err := s.gate.Check(attachments, config.OperationIssue); err != nil {
			return err
		}
		inv.Attachments = datatypes.JSONSlice[domain.Attachment](attachments)
		return inv.Transition(domain.StatusIssued, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("invoice issued", append(actorFields(actor), zap.String("invoice_id", inv.ID.String()))...)
	return inv, nil
}

func (s *Service) SendInvoice(ctx context.Context, id snowflake.ID) (inv *domain.Invoice, err error) {
	ctx, span := s.startSpan(ctx, "send", id)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	current, docs, err := s.vault(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IssuerUID != actor.UID {
		return nil, domain.ErrNotIssuer
	}

	ld, err := s.loads.GetLoad(ctx, current.LoadID)
	if err != nil {
		if errors.Is(err, load.ErrLoadNotFound) {
			return nil, domain.ErrLoadNotFound
		}
		return nil, err
	}
	terms := strings.TrimSpace(ld.PaymentTerms)
	if terms == "" {
		terms = s.policy.Get().DefaultPaymentTerms
	}
	days, err := domain.ParsePaymentTerms(terms)
	if err != nil {
		return nil, err
	}

	inv, _, err = s.mutate(ctx, id, func(tx *gorm.DB, inv *domain.Invoice) error {
		if err := requireIssuer(actor, inv); err != nil {
			return err
		}
		if inv.Status == domain.StatusDisputed {
			return errDisputeOpen
		}

		now := s.clock.Now()
		attachments := docgate.ResolveAttachments(inv.Attachments, docs)
		if inv.Status == domain.StatusDraft {
			if err := s.gate.Check(attachments, config.OperationIssue); err != nil {
				return err
			}
			if err := inv.Transition(domain.StatusIssued, now); err != nil {
				return err
			}
		}
		if err := s.gate.Check(attachments, config.OperationSend); err != nil {
			return err
		}
		if err := inv.Transition(domain.StatusSent, now); err != nil {
			return err
		}

		due := now.Add(time.Duration(days) * 24 * time.Hour)
		inv.DueDate = &due
		inv.Attachments = datatypes.JSONSlice[domain.Attachment](attachments)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice sent",
		append(actorFields(actor),
			zap.String("invoice_id", inv.ID.String()),
			zap.Int("term_days", days),
			zap.Timep("due_date", inv.DueDate),
		)...,
	)
	s.notify(ctx, "invoice_sent", inv, inv.PayerUID, nil)
	return inv, nil
}

func (s *Service) DisputeInvoice(ctx context.Context, id snowflake.ID, req domain.DisputeRequest) (inv *domain.Invoice, err error) {
	ctx, span := s.startSpan(ctx, "dispute", id)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}

	inv, _, err = s.mutate(ctx, id, func(tx *gorm.DB, inv *domain.Invoice) error {
		if inv.PayerUID != actor.UID && !authorization.IsAdmin(actor.Role) {
			return domain.ErrNotPayer
		}
		now := s.clock.Now()
		if err := inv.Transition(domain.StatusDisputed, now); err != nil {
			return err
		}
		inv.Metadata = mergeMetadata(inv.Metadata, "dispute", map[string]any{
			"reason":    req.Reason,
			"message":   strings.TrimSpace(req.Message),
			"raised_by": actor.UID,
			"raised_at": now.UTC().Format(time.RFC3339),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice disputed", append(actorFields(actor), zap.String("invoice_id", inv.ID.String()))...)
	s.notify(ctx, "invoice_disputed", inv, inv.IssuerUID, map[string]any{
		"reason":  req.Reason,
		"message": strings.TrimSpace(req.Message),
	})
	return inv, nil
}

func (s *Service) ResolveDispute(ctx context.Context, id snowflake.ID, req domain.ResolveDisputeRequest) (inv *domain.Invoice, err error) {
	ctx, span := s.startSpan(ctx, "resolve_dispute", id)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	inv, _, err = s.mutate(ctx, id, func(tx *gorm.DB, inv *domain.Invoice) error {
		if err := requireIssuer(actor, inv); err != nil {
			return err
		}
		if inv.Status != domain.StatusDisputed {
			return &domain.StateError{From: inv.Status, To: domain.StatusSent}
		}
		now := s.clock.Now()
		if err := inv.Transition(domain.StatusSent, now); err != nil {
			return err
		}
		inv.ClearDispute()

		record, _ := inv.Metadata["dispute"].(map[string]any)
		if record == nil {
			record = map[string]any{}
		}
		record["resolution"] = strings.TrimSpace(req.Resolution)
		record["resolution_message"] = strings.TrimSpace(req.Message)
		record["resolved_by"] = actor.UID
		record["resolved_at"] = now.UTC().Format(time.RFC3339)
		inv.Metadata = mergeMetadata(inv.Metadata, "dispute", record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice dispute resolved", append(actorFields(actor), zap.String("invoice_id", inv.ID.String()))...)
	s.notify(ctx, "invoice_dispute_resolved", inv, inv.PayerUID, map[string]any{
		"message": strings.TrimSpace(req.Message),
	})
	return inv, nil
}

func (s *Service) VoidInvoice(ctx context.Context, id snowflake.ID, req domain.VoidRequest) (inv *domain.Invoice, err error) {
	ctx, span := s.startSpan(ctx, "void", id)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	inv, _, err = s.mutate(ctx, id, func(tx *gorm.DB, inv *domain.Invoice) error {
		if err := requireIssuer(actor, inv); err != nil {
			return err
		}
		now := s.clock.Now()
		if err := inv.Transition(domain.StatusVoid, now); err != nil {
			return err
		}
		inv.Metadata = mergeMetadata(inv.Metadata, "void", map[string]any{
			"reason":    strings.TrimSpace(req.Reason),
			"voided_by": actor.UID,
		})
		return s.repo.ReleaseLoad(ctx, tx, inv.LoadID, inv.ID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice voided", append(actorFields(actor), zap.String("invoice_id", inv.ID.String()))...)
	return inv, nil
}
