package factoring

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/freightpay/internal/config"
)

var (
	ErrProviderNotFound  = errors.New("factoring_provider_not_found")
	ErrInvalidSubmission = errors.New("invalid_factoring_submission")
)

// Submission is what a provider sees of an invoice.
type Submission struct {
	SubmissionID  string
	InvoiceID     string
	InvoiceNumber string
	LoadID        string
	IssuerUID     string
	PayerUID      string
	AmountTotal   int64
	Currency      string
	DueDate       *time.Time
	DocumentURLs  []string
}

// Result is the provider's verdict.
type Result struct {
	ProviderReference string
	Accepted          bool
	Message           string
	AdvanceAmount     int64
	Metadata          map[string]any
}

type Provider interface {
	Name() string
	Submit(ctx context.Context, sub Submission) (Result, error)
}

// ProviderFactory builds a provider from the current factoring policy.
type ProviderFactory interface {
	Provider() string
	NewProvider(policy config.FactoringPolicy) (Provider, error)
}
