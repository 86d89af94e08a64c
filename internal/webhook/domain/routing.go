package domain

import "strings"

// Action is what an event type does to an invoice.
type Action int

const (
	ActionIgnore Action = iota
	ActionPaid
	ActionFactoringAccepted
	ActionFactoringRejected
	ActionFactoringFunded
)

var eventActions = map[string]Action{
	"invoice.paid":               ActionPaid,
	"invoice.payment_succeeded":  ActionPaid,
	"payment.received":           ActionPaid,
	"payment.succeeded":          ActionPaid,
	"factoring.accepted":         ActionFactoringAccepted,
	"factoring.approved":         ActionFactoringAccepted,
	"submission.accepted":        ActionFactoringAccepted,
	"factoring.rejected":         ActionFactoringRejected,
	"factoring.declined":         ActionFactoringRejected,
	"submission.rejected":        ActionFactoringRejected,
	"factoring.funded":           ActionFactoringFunded,
	"factoring.advance_paid":     ActionFactoringFunded,
	"factoring.advance_released": ActionFactoringFunded,
}

// Route maps an event type, case-insensitively, to its action.
func Route(eventType string) Action {
	return eventActions[strings.ToLower(strings.TrimSpace(eventType))]
}

func (a Action) String() string {
	switch a {
	case ActionPaid:
		return "paid"
	case ActionFactoringAccepted:
		return "factoring_accepted"
	case ActionFactoringRejected:
		return "factoring_rejected"
	case ActionFactoringFunded:
		return "factoring_funded"
	default:
		return "ignore"
	}
}
