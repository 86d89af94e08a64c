package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/freightpay/internal/actorcontext"
	"github.com/smallbiznis/freightpay/internal/authorization"
	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/identity"
	"github.com/smallbiznis/freightpay/internal/invoice/domain"
	"github.com/smallbiznis/freightpay/internal/load"
	"github.com/smallbiznis/freightpay/internal/sequence"
	"github.com/smallbiznis/freightpay/pkg/db"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	errNumberNotUnique = domain.NewValidationError("invoice_number", "invoice_number_not_unique", "invoice_number must be unique")
	errLoadInvoiced    = domain.NewValidationError("load_id", "invoice_exists", "invoice already exists for load")
)

func (s *Service) CreateInvoice(ctx context.Context, req domain.CreateInvoiceRequest) (inv *domain.Invoice, err error) {
	ctx, span := s.startSpan(ctx, "create", 0)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !authorization.CanIssue(actor.Role) {
		return nil, fmt.Errorf("role %s cannot issue invoices: %w", actor.Role, domain.ErrForbidden)
	}
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}

	ld, err := s.loads.GetLoad(ctx, req.LoadID)
	if err != nil {
		if errors.Is(err, load.ErrLoadNotFound) {
			return nil, domain.ErrLoadNotFound
		}
		return nil, err
	}

	policy := s.policy.Get()
	if !policy.IsTerminalLoadStatus(ld.Status) {
		return nil, domain.NewValidationError("load_id", "load_not_delivered",
			fmt.Sprintf("load %s is not delivered (status %s)", ld.Reference(), ld.Status))
	}
	if ld.AssignedCarrierUID != actor.UID {
		return nil, domain.ErrNotAssignedCarrier
	}

	payer, payerRole, err := s.resolvePayer(ctx, req.PayerUID, ld)
	if err != nil {
		return nil, err
	}

	attachments, err := s.gate.Resolve(ctx, ld.ID, req.Attachments)
	if err != nil {
		return nil, err
	}
	if !req.Draft {
		if err := s.gate.Check(attachments, config.OperationCreate); err != nil {
			return nil, err
		}
	}

	var customNumber string
	if strings.TrimSpace(req.InvoiceNumber) != "" {
		customNumber, err = sequence.ValidateCustomNumber(req.InvoiceNumber, ld.LoadNumber)
		if err != nil {
			return nil, err
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	now := s.clock.Now()
	inv = &domain.Invoice{
		ID:               s.genID.Generate(),
		LoadID:           ld.ID,
		IssuerUID:        actor.UID,
		IssuerRole:       actor.Role.String(),
		PayerUID:         payer.UID,
		PayerRole:        payerRole.String(),
		AmountTotal:      req.AmountTotal,
		Currency:         currency,
		Status:           domain.StatusDraft,
		Attachments:      datatypes.JSONSlice[domain.Attachment](attachments),
		FactoringEnabled: req.FactoringEnabled,
		Metadata:         datatypes.JSONMap(req.Metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if !req.Draft {
		if err := inv.Transition(domain.StatusIssued, now); err != nil {
			return nil, err
		}
	}

	var fallback bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, exists, err := s.repo.FindLoadInvoice(ctx, tx, ld.ID); err != nil {
			return err
		} else if exists {
			return errLoadInvoiced
		}

		if customNumber != "" {
			taken, err := s.repo.InvoiceNumberTaken(ctx, tx, customNumber)
			if err != nil {
				return err
			}
			if taken {
				return errNumberNotUnique
			}
			inv.InvoiceNumber = customNumber
		} else {
			number, usedFallback, err := s.sequence.AllocateInvoiceNumber(ctx, tx, ld.Reference(), actor.UID, payer.UID)
			if err != nil {
				return err
			}
			inv.InvoiceNumber = number
			fallback = usedFallback
		}

		ok, err := s.repo.ReserveInvoiceNumber(ctx, tx, inv.InvoiceNumber, inv.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errNumberNotUnique
		}
		ok, err = s.repo.ReserveLoad(ctx, tx, ld.ID, inv.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errLoadInvoiced
		}
		return s.repo.InsertInvoice(ctx, tx, inv)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, errNumberNotUnique
		}
		return nil, err
	}

	s.metrics.RecordTransition("", string(inv.Status))
	s.log.Info("invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("load_id", inv.LoadID),
		zap.String("status", string(inv.Status)),
		zap.Bool("sequence_fallback", fallback),
	)
	return inv, nil
}

// resolvePayer picks the override or the load's payer and checks it may pay.
func (s *Service) resolvePayer(ctx context.Context, override string, ld *load.Load) (*identity.User, authorization.Role, error) {
	uid := strings.TrimSpace(override)
	if uid == "" {
		uid = strings.TrimSpace(ld.PayerUID)
	}
	if uid == "" {
		return nil, "", domain.NewValidationError("payer_uid", "payer_unresolved", "payer could not be resolved for load")
	}

	user, err := s.users.GetUser(ctx, uid)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, "", domain.NewValidationError("payer_uid", "payer_unresolved",
				fmt.Sprintf("payer %s could not be resolved", uid))
		}
		return nil, "", err
	}
	role, ok := user.RoleValue()
	if !ok || !authorization.CanPay(role) {
		return nil, "", domain.NewValidationError("payer_uid", "payer_role_invalid",
			fmt.Sprintf("payer %s does not hold a payer role", uid))
	}
	return user, role, nil
}

func actorFields(actor actorcontext.Actor) []zap.Field {
	return []zap.Field{zap.String("actor_uid", actor.UID), zap.String("actor_role", actor.Role.String())}
}
