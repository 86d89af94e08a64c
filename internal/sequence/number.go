package sequence

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/freightpay/internal/invoice/domain"
)

const (
	invoicePrefix = "FP"
	tagLength     = 4
	tagPadding    = "X"
)

// NormalizeInvoiceNumber uppercases raw, turns whitespace runs into a hyphen and
// drops anything outside [A-Z0-9._-]. Applying it twice changes nothing.
func NormalizeInvoiceNumber(raw string) string {
	joined := strings.Join(strings.Fields(strings.ToUpper(raw)), "-")

	var b strings.Builder
	b.Grow(len(joined))
	for _, r := range joined {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PartyTag derives the short party code embedded in generated numbers.
func PartyTag(uid string) string {
	tag := strings.ToUpper(strings.ReplaceAll(slug.Make(uid), "-", ""))
	if len(tag) > tagLength {
		tag = tag[:tagLength]
	}
	for len(tag) < tagLength {
		tag += tagPadding
	}
	return tag
}

// ComposeInvoiceNumber builds FP-<LOAD>-<ISSUER>-<PAYER>-<SEQ>.
func ComposeInvoiceNumber(loadRef, issuerUID, payerUID string, seq int64) string {
	return NormalizeInvoiceNumber(fmt.Sprintf("%s-%s-%s-%s-%06d",
		invoicePrefix,
		loadRef,
		PartyTag(issuerUID),
		PartyTag(payerUID),
		seq,
	))
}

// ValidateCustomNumber normalizes a caller supplied number and checks it embeds the load reference.
// Uniqueness is checked by the caller inside the creation transaction.
func ValidateCustomNumber(raw, loadRef string) (string, error) {
	normalized := NormalizeInvoiceNumber(raw)
	if normalized == "" {
		return "", domain.NewValidationError("invoice_number", "invoice_number_required", "invoice_number is required")
	}
	ref := NormalizeInvoiceNumber(loadRef)
	if ref != "" && !strings.Contains(normalized, ref) {
		return "", domain.NewValidationError("invoice_number", "invoice_number_missing_load",
			"invoice_number must include load_number")
	}
	return normalized, nil
}
