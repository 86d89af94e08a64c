package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const (
	ObjectInvoice = "invoice"
	ObjectFinance = "finance"
)

const (
	ActionInvoiceCreate          = "create"
	ActionInvoiceView            = "view"
	ActionInvoiceIssue           = "issue"
	ActionInvoiceSend            = "send"
	ActionInvoiceVoid            = "void"
	ActionInvoiceDispute         = "dispute"
	ActionInvoiceResolveDispute  = "resolve_dispute"
	ActionInvoiceSubmitFactoring = "submit_factoring"
	ActionInvoiceRecordPayment   = "record_payment"

	ActionFinanceView       = "view"
	ActionFinanceRunOverdue = "run_overdue"
)

type Service interface {
	Authorize(ctx context.Context, role Role, object string, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an in-memory enforcer seeded with the route permissions.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if _, err := enforcer.AddPolicies(seedPolicies()); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role Role, object string, action string) error {
	if _, ok := ParseRole(string(role)); !ok {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("role", role.String()),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func subject(role Role) string {
	return "role:" + role.String()
}

func seedPolicies() [][]string {
	carrier := subject(RoleCarrier)
	shipper := subject(RoleShipper)
	broker := subject(RoleBroker)
	admin := subject(RoleAdmin)

	policies := [][]string{
		{carrier, ObjectInvoice, ActionInvoiceCreate},
		{carrier, ObjectInvoice, ActionInvoiceView},
		{carrier, ObjectInvoice, ActionInvoiceIssue},
		{carrier, ObjectInvoice, ActionInvoiceSend},
		{carrier, ObjectInvoice, ActionInvoiceVoid},
		{carrier, ObjectInvoice, ActionInvoiceResolveDispute},
		{carrier, ObjectInvoice, ActionInvoiceSubmitFactoring},
		{carrier, ObjectInvoice, ActionInvoiceRecordPayment},
		{carrier, ObjectFinance, ActionFinanceView},
	}
	for _, payer := range []string{shipper, broker} {
		policies = append(policies,
			[]string{payer, ObjectInvoice, ActionInvoiceView},
			[]string{payer, ObjectInvoice, ActionInvoiceDispute},
			[]string{payer, ObjectInvoice, ActionInvoiceRecordPayment},
			[]string{payer, ObjectFinance, ActionFinanceView},
		)
	}
	policies = append(policies,
		[]string{admin, ObjectInvoice, ActionInvoiceView},
		[]string{admin, ObjectInvoice, ActionInvoiceDispute},
		[]string{admin, ObjectInvoice, ActionInvoiceRecordPayment},
		[]string{admin, ObjectFinance, ActionFinanceView},
		[]string{admin, ObjectFinance, ActionFinanceRunOverdue},
	)
	return policies
}
