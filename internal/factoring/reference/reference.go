// Package reference is a deterministic factoring provider used for development and tests.
// It accepts any invoice whose total does not exceed the configured approval threshold.
package reference

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/factoring"
)

const Name = "reference"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Name
}

func (f *Factory) NewProvider(policy config.FactoringPolicy) (factoring.Provider, error) {
	if policy.ApprovalThreshold <= 0 || policy.AdvanceRateBps <= 0 || policy.AdvanceRateBps > 10000 {
		return nil, fmt.Errorf("reference provider: invalid policy %+v", policy)
	}
	return &Provider{threshold: policy.ApprovalThreshold, advanceBps: policy.AdvanceRateBps}, nil
}

type Provider struct {
	threshold  int64
	advanceBps int64
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) Submit(ctx context.Context, sub factoring.Submission) (factoring.Result, error) {
	if err := ctx.Err(); err != nil {
		return factoring.Result{}, err
	}
	if sub.AmountTotal <= 0 {
		return factoring.Result{}, factoring.ErrInvalidSubmission
	}

	ref := "REF-" + ulid.Make().String()
	if sub.AmountTotal > p.threshold {
		return factoring.Result{
			ProviderReference: ref,
			Accepted:          false,
			Message:           fmt.Sprintf("invoice total %d exceeds approval limit %d", sub.AmountTotal, p.threshold),
			Metadata:          map[string]any{"approval_threshold": p.threshold},
		}, nil
	}

	advance := sub.AmountTotal * p.advanceBps / 10000
	return factoring.Result{
		ProviderReference: ref,
		Accepted:          true,
		Message:           "approved",
		AdvanceAmount:     advance,
		Metadata: map[string]any{
			"advance_rate_bps": p.advanceBps,
		},
	}, nil
}
