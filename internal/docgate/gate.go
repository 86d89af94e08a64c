package docgate

import (
	"context"
	"fmt"

	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/invoice/domain"
	"github.com/smallbiznis/freightpay/internal/load"
	"go.uber.org/fx"
)

var operationLabels = map[string]string{
	config.OperationCreate:          "create invoice",
	config.OperationIssue:           "issue invoice",
	config.OperationSend:            "send invoice",
	config.OperationSubmitFactoring: "submit invoice to factoring",
}

// ResolveAttachments drops caller supplied core documents and replaces them with
// the load vault's documents. Other kinds pass through untouched.
func ResolveAttachments(caller []domain.Attachment, vault []load.Document) []domain.Attachment {
	out := make([]domain.Attachment, 0, len(caller)+len(vault))
	for _, att := range caller {
		if IsCoreKind(att.Kind) || att.Source == domain.AttachmentSourceVault {
			continue
		}
		att.Kind = NormalizeKind(att.Kind)
		if att.Source == "" {
			att.Source = domain.AttachmentSourceCaller
		}
		out = append(out, att)
	}
	for _, doc := range vault {
		kind := NormalizeKind(doc.Kind)
		if !IsCoreKind(kind) {
			continue
		}
		out = append(out, domain.Attachment{
			Kind:       kind,
			URL:        doc.URL,
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			Source:     domain.AttachmentSourceVault,
		})
	}
	return out
}

// RequiredDocsPresent fails with a validation error naming the first missing kind
// and the operation it blocks.
func RequiredDocsPresent(attachments []domain.Attachment, required []string, operation string) error {
	present := make(map[string]bool, len(attachments))
	for _, att := range attachments {
		present[NormalizeKind(att.Kind)] = true
	}
	for _, kind := range required {
		kind = NormalizeKind(kind)
		if kind == "" || present[kind] {
			continue
		}
		label := operationLabels[operation]
		if label == "" {
			label = operation
		}
		return domain.NewValidationError("attachments", "missing_required_document",
			fmt.Sprintf("missing required document %s: cannot %s", kind, label))
	}
	return nil
}

// Gate binds the vault lookup and the configured requirements.
type Gate struct {
	loads  load.Lookup
	policy *config.PolicyHolder
}

type Params struct {
	fx.In

	Loads  load.Lookup
	Policy *config.PolicyHolder
}

func NewGate(p Params) *Gate {
	return &Gate{loads: p.Loads, policy: p.Policy}
}

// Resolve fetches the vault for loadID and merges it with the caller's attachments.
func (g *Gate) Resolve(ctx context.Context, loadID string, caller []domain.Attachment) ([]domain.Attachment, error) {
	vault, err := g.loads.ListDocuments(ctx, loadID)
	if err != nil {
		return nil, err
	}
	return ResolveAttachments(caller, vault), nil
}

// Check applies the configured requirements of operation. POD is always required.
func (g *Gate) Check(attachments []domain.Attachment, operation string) error {
	required := append([]string{config.BaselineDocument}, g.policy.Get().RequiredFor(operation)...)
	return RequiredDocsPresent(attachments, required, operation)
}

var Module = fx.Module("docgate",
	fx.Provide(NewGate),
)
