package docgate

import (
	"context"
	"testing"

	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/invoice/domain"
	"github.com/smallbiznis/freightpay/internal/load"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) GetLoad(ctx context.Context, loadID string) (*load.Load, error) {
	args := m.Called(ctx, loadID)
	l, _ := args.Get(0).(*load.Load)
	return l, args.Error(1)
}

func (m *mockLookup) ListDocuments(ctx context.Context, loadID string) ([]load.Document, error) {
	args := m.Called(ctx, loadID)
	docs, _ := args.Get(0).([]load.Document)
	return docs, args.Error(1)
}

func TestNormalizeKind(t *testing.T) {
	assert.Equal(t, KindPOD, NormalizeKind(" proof of delivery "))
	assert.Equal(t, KindBOL, NormalizeKind("bill-of-lading"))
	assert.Equal(t, KindRateConfirmation, NormalizeKind("rate_con"))
	assert.Equal(t, "LUMPER_RECEIPT", NormalizeKind("lumper receipt"))
	assert.True(t, IsCoreKind("pod"))
	assert.False(t, IsCoreKind("lumper_receipt"))
}

func TestResolveAttachmentsReplacesCoreKinds(t *testing.T) {
	caller := []domain.Attachment{
		{Kind: "pod", URL: "https://evil.test/fake-pod.pdf"},
		{Kind: "lumper receipt", URL: "https://files.test/lumper.pdf"},
	}
	vault := []load.Document{
		{ID: "doc-1", Kind: "POD", URL: "https://vault.test/pod.pdf", Filename: "pod.pdf"},
		{ID: "doc-2", Kind: "photo", URL: "https://vault.test/photo.jpg"},
	}

	got := ResolveAttachments(caller, vault)
	require.Len(t, got, 2)
	assert.Equal(t, "LUMPER_RECEIPT", got[0].Kind)
	assert.Equal(t, domain.AttachmentSourceCaller, got[0].Source)
	assert.Equal(t, KindPOD, got[1].Kind)
	assert.Equal(t, "doc-1", got[1].DocumentID)
	assert.Equal(t, domain.AttachmentSourceVault, got[1].Source)
}

func TestResolveAttachmentsIgnoresCallerPODWithoutVault(t *testing.T) {
	got := ResolveAttachments([]domain.Attachment{{Kind: "POD", URL: "x"}}, nil)
	assert.Empty(t, got)
	err := RequiredDocsPresent(got, []string{KindPOD}, config.OperationIssue)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "POD")
	assert.Contains(t, err.Error(), "issue invoice")
}

func TestRequiredDocsPresent(t *testing.T) {
	atts := []domain.Attachment{{Kind: "POD"}}
	assert.NoError(t, RequiredDocsPresent(atts, []string{"pod"}, config.OperationSend))
	assert.NoError(t, RequiredDocsPresent(atts, nil, config.OperationSend))

	err := RequiredDocsPresent(atts, []string{"POD", "BOL"}, config.OperationSubmitFactoring)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOL")
}

func TestGateUsesPolicyAndVault(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("ListDocuments", mock.Anything, "load-1").
		Return([]load.Document{{ID: "d1", Kind: "POD"}}, nil).Once()

	policy := config.DefaultBillingPolicy()
	policy.RequiredDocuments[config.OperationSend] = []string{"POD", "BOL"}
	gate := NewGate(Params{Loads: lookup, Policy: config.NewStaticPolicyHolder(policy)})

	atts, err := gate.Resolve(context.Background(), "load-1", nil)
	require.NoError(t, err)
	assert.NoError(t, gate.Check(atts, config.OperationIssue))

	err = gate.Check(atts, config.OperationSend)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOL")
	lookup.AssertExpectations(t)
}

func TestGateAlwaysRequiresPOD(t *testing.T) {
	policy := config.DefaultBillingPolicy()
	policy.RequiredDocuments[config.OperationSend] = nil
	policy.RequiredDocuments[config.OperationSubmitFactoring] = []string{"BOL"}
	gate := NewGate(Params{Loads: &mockLookup{}, Policy: config.NewStaticPolicyHolder(policy)})

	bolOnly := []domain.Attachment{{Kind: "BOL"}}
	for _, op := range config.GuardedOperations {
		err := gate.Check(bolOnly, op)
		require.Error(t, err, op)
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Contains(t, err.Error(), "POD")
	}
}
