package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/freightpay/internal/actorcontext"
	"github.com/smallbiznis/freightpay/internal/authorization"
	"github.com/smallbiznis/freightpay/internal/clock"
	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/docgate"
	"github.com/smallbiznis/freightpay/internal/factoring"
	"github.com/smallbiznis/freightpay/internal/identity"
	"github.com/smallbiznis/freightpay/internal/invoice/domain"
	"github.com/smallbiznis/freightpay/internal/load"
	"github.com/smallbiznis/freightpay/internal/notification"
	"github.com/smallbiznis/freightpay/internal/observability/metrics"
	"github.com/smallbiznis/freightpay/internal/sequence"
	"github.com/smallbiznis/freightpay/pkg/db/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCurrency = "USD"

var tracer = otel.Tracer("freightpay/invoice")

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Policy    *config.PolicyHolder
	Repo      domain.Repository
	Sequence  sequence.Service
	Gate      *docgate.Gate
	Loads     load.Lookup
	Users     identity.Lookup
	Factoring *factoring.Registry
	Notifier  notification.Notifier `optional:"true"`
	Metrics   *metrics.Metrics      `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	repo      domain.Repository
	sequence  sequence.Service
	gate      *docgate.Gate
	loads     load.Lookup
	users     identity.Lookup
	factoring *factoring.Registry
	policy    *config.PolicyHolder
	notifier  notification.Notifier
	metrics   *metrics.Metrics
	validate  *validator.Validate

	factoringTimeout time.Duration
}

func NewService(p ServiceParam) domain.Service {
	return newService(p)
}

func newService(p ServiceParam) *Service {
	timeout := p.Config.FactoringTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,

		repo:      p.Repo,
		sequence:  p.Sequence,
		gate:      p.Gate,
		loads:     p.Loads,
		users:     p.Users,
		factoring: p.Factoring,
		policy:    p.Policy,
		notifier:  p.Notifier,
		metrics:   p.Metrics,
		validate:  validator.New(),

		factoringTimeout: timeout,
	}
}

func (s *Service) GetInvoice(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	inv, err := s.repo.FindInvoice(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, inv) {
		// Hide existence from non-parties.
		return nil, domain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Service) ListInvoices(ctx context.Context, req domain.ListInvoicesRequest) (domain.ListInvoicesResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ListInvoicesResponse{}, err
	}

	filter := scopeFilter(actor)
	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		filter.Status = domain.InvoiceStatus(status)
		if !filter.Status.Valid() {
			return domain.ListInvoicesResponse{}, domain.NewValidationError("status", "invalid_status",
				fmt.Sprintf("unknown invoice status %q", req.Status))
		}
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListInvoicesResponse{}, domain.NewValidationError("page_token", "invalid_page_token", err.Error())
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListInvoicesResponse{}, domain.NewValidationError("page_token", "invalid_page_token", "invalid page token")
		}
		filter.BeforeID = id
	}
	limit := req.Limit()
	filter.Limit = limit + 1

	items, err := s.repo.ListInvoices(ctx, s.db, filter)
	if err != nil {
		return domain.ListInvoicesResponse{}, err
	}

	page, info := pagination.BuildPage(items, limit, func(inv domain.Invoice) string {
		return inv.ID.String()
	})
	if page == nil {
		page = []domain.Invoice{}
	}
	return domain.ListInvoicesResponse{PageInfo: info, Invoices: page}, nil
}

// ListVisible returns every invoice in the actor's scope, for aggregation.
func (s *Service) ListVisible(ctx context.Context) ([]domain.Invoice, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, s.db, scopeFilter(actor))
}

// mutate loads the invoice under a row lock, applies fn and persists the result in one transaction.
func (s *Service) mutate(ctx context.Context, id snowflake.ID, fn func(tx *gorm.DB, inv *domain.Invoice) error) (*domain.Invoice, domain.InvoiceStatus, error) {
	var (
		updated *domain.Invoice
		from    domain.InvoiceStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.repo.FindInvoiceForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		from = inv.Status
		if err := fn(tx, inv); err != nil {
			return err
		}
		if err := s.repo.UpdateInvoice(ctx, tx, inv); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return nil, from, err
	}
	s.metrics.RecordTransition(string(from), string(updated.Status))
	return updated, from, nil
}

func (s *Service) startSpan(ctx context.Context, name string, id snowflake.ID) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{}
	if id != 0 {
		attrs = append(attrs, attribute.String("invoice.id", id.String()))
	}
	return tracer.Start(ctx, "invoice."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func requireActor(ctx context.Context) (actorcontext.Actor, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return actorcontext.Actor{}, domain.ErrMissingActor
	}
	return actor, nil
}

func scopeFilter(actor actorcontext.Actor) domain.ListFilter {
	switch {
	case authorization.IsAdmin(actor.Role):
		return domain.ListFilter{}
	case authorization.CanIssue(actor.Role):
		return domain.ListFilter{IssuerUID: actor.UID}
	default:
		return domain.ListFilter{PayerUID: actor.UID}
	}
}

func canView(actor actorcontext.Actor, inv *domain.Invoice) bool {
	return authorization.IsAdmin(actor.Role) || inv.IssuerUID == actor.UID || inv.PayerUID == actor.UID
}

func requireIssuer(actor actorcontext.Actor, inv *domain.Invoice) error {
	if inv.IssuerUID != actor.UID {
		return domain.ErrNotIssuer
	}
	return nil
}

func (s *Service) validateRequest(ctx context.Context, req any) error {
	err := s.validate.StructCtx(ctx, req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := toSnake(fe.Field())
		return domain.NewValidationError(field, "invalid_"+field,
			fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
	}
	return domain.NewValidationError("", "invalid_request", err.Error())
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func mergeMetadata(dst map[string]any, key string, value any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	dst[key] = value
	return dst
}
