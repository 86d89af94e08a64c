package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultBillingPolicyIsValid(t *testing.T) {
	p := DefaultBillingPolicy()
	assert.NoError(t, validatePolicy(p))
	assert.Equal(t, []string{"POD"}, p.RequiredFor(OperationIssue))
	assert.Empty(t, p.RequiredFor("unknown"))
}

func TestIsTerminalLoadStatus(t *testing.T) {
	p := DefaultBillingPolicy()
	assert.True(t, p.IsTerminalLoadStatus("delivered"))
	assert.True(t, p.IsTerminalLoadStatus(" Completed "))
	assert.False(t, p.IsTerminalLoadStatus("IN_TRANSIT"))
}

func TestValidatePolicyRejectsBadAdvanceRate(t *testing.T) {
	p := DefaultBillingPolicy()
	p.Factoring.AdvanceRateBps = 12000
	assert.Error(t, validatePolicy(p))

	p = DefaultBillingPolicy()
	p.TerminalLoadStatuses = nil
	assert.Error(t, validatePolicy(p))
}

func TestStaticPolicyHolder(t *testing.T) {
	p := DefaultBillingPolicy()
	p.DefaultPaymentTerms = "NET45"
	h := NewStaticPolicyHolder(p)
	assert.Equal(t, "NET45", h.Get().DefaultPaymentTerms)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "  s3cret ")
	t.Setenv("FACTORING_TIMEOUT", "3s")
	t.Setenv("OVERDUE_BATCH_SIZE", "not-a-number")

	cfg := Load()
	assert.Equal(t, "s3cret", cfg.WebhookSecret)
	assert.Equal(t, "3s", cfg.FactoringTimeout.String())
	assert.Equal(t, 200, cfg.Overdue.BatchSize)
	assert.False(t, cfg.Redis.Enabled())
}

func TestValidatePolicyRequiresPODForEveryGuardedOperation(t *testing.T) {
	for _, op := range GuardedOperations {
		p := DefaultBillingPolicy()
		p.RequiredDocuments[op] = []string{"BOL"}
		err := validatePolicy(p)
		require.Error(t, err, op)
		assert.Contains(t, err.Error(), op)

		p = DefaultBillingPolicy()
		delete(p.RequiredDocuments, op)
		assert.Error(t, validatePolicy(p), op)
	}

	p := DefaultBillingPolicy()
	p.RequiredDocuments[OperationSend] = []string{" pod ", "BOL"}
	assert.NoError(t, validatePolicy(p))
}

func TestNewPolicyHolderRejectsFileWithoutPOD(t *testing.T) {
	dir := t.TempDir()
	yml := `billing:
  requiredDocuments:
    create: [POD]
    issue: [POD]
    send: []
    submit_factoring: [BOL]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), []byte(yml), 0o600))
	t.Chdir(dir)

	_, err := NewPolicyHolder(zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must include POD")
}

func TestNewPolicyHolderLoadsValidFile(t *testing.T) {
	dir := t.TempDir()
	yml := `billing:
  requiredDocuments:
    create: [POD]
    issue: [POD]
    send: [POD, BOL]
    submit_factoring: [POD]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), []byte(yml), 0o600))
	t.Chdir(dir)

	h, err := NewPolicyHolder(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"POD", "BOL"}, h.Get().RequiredFor(OperationSend))
	assert.Equal(t, "NET30", h.Get().DefaultPaymentTerms)
}
