package authorization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoutePermissions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		role    Role
		object  string
		action  string
		allowed bool
	}{
		{"carrier creates invoice", RoleCarrier, ObjectInvoice, ActionInvoiceCreate, true},
		{"shipper cannot create invoice", RoleShipper, ObjectInvoice, ActionInvoiceCreate, false},
		{"broker disputes", RoleBroker, ObjectInvoice, ActionInvoiceDispute, true},
		{"carrier cannot dispute", RoleCarrier, ObjectInvoice, ActionInvoiceDispute, false},
		{"admin runs overdue sweep", RoleAdmin, ObjectFinance, ActionFinanceRunOverdue, true},
		{"carrier cannot run overdue sweep", RoleCarrier, ObjectFinance, ActionFinanceRunOverdue, false},
		{"admin cannot void", RoleAdmin, ObjectInvoice, ActionInvoiceVoid, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.role, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestAuthorizeRejectsUnknownRole(t *testing.T) {
	svc := newTestService(t)
	assert.ErrorIs(t, svc.Authorize(context.Background(), Role("dispatcher"), ObjectInvoice, ActionInvoiceView), ErrInvalidRole)
	assert.ErrorIs(t, svc.Authorize(context.Background(), RoleCarrier, " ", ActionInvoiceView), ErrInvalidObject)
}

func TestRoleCapabilities(t *testing.T) {
	assert.True(t, CanIssue(RoleCarrier))
	assert.False(t, CanIssue(RoleBroker))
	assert.True(t, CanPay(RoleShipper))
	assert.True(t, CanPay(RoleBroker))
	assert.False(t, CanPay(RoleAdmin))

	role, ok := ParseRole(" Broker ")
	assert.True(t, ok)
	assert.Equal(t, RoleBroker, role)
	_, ok = ParseRole("owner")
	assert.False(t, ok)
}
