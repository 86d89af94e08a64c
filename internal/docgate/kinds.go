package docgate

import "strings"

// Core document kinds. These are only ever sourced from the load document vault.
const (
	KindPOD              = "POD"
	KindBOL              = "BOL"
	KindRateConfirmation = "RATE_CONFIRMATION"
)

var kindAliases = map[string]string{
	"PROOF_OF_DELIVERY":   KindPOD,
	"BILL_OF_LADING":      KindBOL,
	"RATE_CON":            KindRateConfirmation,
	"RATECON":             KindRateConfirmation,
	"RATE_CONF":           KindRateConfirmation,
	"RATE_CONFIRMATIONS":  KindRateConfirmation,
	"SIGNED_RATE_CONFIRM": KindRateConfirmation,
}

// NormalizeKind canonicalizes a document kind.
func NormalizeKind(kind string) string {
	k := strings.ToUpper(strings.TrimSpace(kind))
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	if canonical, ok := kindAliases[k]; ok {
		return canonical
	}
	return k
}

func IsCoreKind(kind string) bool {
	switch NormalizeKind(kind) {
	case KindPOD, KindBOL, KindRateConfirmation:
		return true
	}
	return false
}
