package reference

import (
	"context"
	"strings"
	"testing"

	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/factoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T) factoring.Provider {
	t.Helper()
	p, err := NewFactory().NewProvider(config.DefaultBillingPolicy().Factoring)
	require.NoError(t, err)
	return p
}

func TestSubmitAcceptsBelowThreshold(t *testing.T) {
	res, err := newProvider(t).Submit(context.Background(), factoring.Submission{AmountTotal: 500_000, Currency: "USD"})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, int64(450_000), res.AdvanceAmount)
	assert.True(t, strings.HasPrefix(res.ProviderReference, "REF-"))
}

func TestSubmitAcceptsAtThreshold(t *testing.T) {
	res, err := newProvider(t).Submit(context.Background(), factoring.Submission{AmountTotal: 1_000_000})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestSubmitRejectsAboveThreshold(t *testing.T) {
	res, err := newProvider(t).Submit(context.Background(), factoring.Submission{AmountTotal: 2_000_000})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Zero(t, res.AdvanceAmount)
	assert.Contains(t, res.Message, "exceeds")
}

func TestSubmitHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newProvider(t).Submit(ctx, factoring.Submission{AmountTotal: 100})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewProviderRejectsBadPolicy(t *testing.T) {
	_, err := NewFactory().NewProvider(config.FactoringPolicy{ApprovalThreshold: 1, AdvanceRateBps: 0})
	assert.Error(t, err)
}
