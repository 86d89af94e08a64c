package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPaymentBoundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	exact := &Invoice{Status: StatusSent, AmountTotal: 25000}
	require.NoError(t, exact.ApplyPayment(25000, now))
	assert.Equal(t, StatusPaid, exact.Status)
	assert.Equal(t, now, *exact.PaidAt)

	short := &Invoice{Status: StatusSent, AmountTotal: 25000}
	require.NoError(t, short.ApplyPayment(24999, now))
	assert.Equal(t, StatusPartiallyPaid, short.Status)
	assert.Equal(t, int64(1), short.Outstanding())
	assert.Nil(t, short.PaidAt)
}

func TestApplyPaymentRejections(t *testing.T) {
	now := time.Now()

	over := &Invoice{Status: StatusPartiallyPaid, AmountTotal: 100, AmountPaid: 90}
	err := over.ApplyPayment(11, now)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, int64(90), over.AmountPaid)

	draft := &Invoice{Status: StatusDraft, AmountTotal: 100}
	assert.ErrorIs(t, draft.ApplyPayment(10, now), ErrInvalidTransition)

	paid := &Invoice{Status: StatusPaid, AmountTotal: 100, AmountPaid: 100}
	assert.ErrorIs(t, paid.ApplyPayment(1, now), ErrValidation)

	assert.ErrorIs(t, (&Invoice{Status: StatusSent, AmountTotal: 1}).ApplyPayment(0, now), ErrValidation)
}
