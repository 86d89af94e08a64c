package domain

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	StatusDraft              InvoiceStatus = "DRAFT"
	StatusIssued             InvoiceStatus = "ISSUED"
	StatusSent               InvoiceStatus = "SENT"
	StatusDisputed           InvoiceStatus = "DISPUTED"
	StatusFactoringSubmitted InvoiceStatus = "FACTORING_SUBMITTED"
	StatusFactoringAccepted  InvoiceStatus = "FACTORING_ACCEPTED"
	StatusFactoringRejected  InvoiceStatus = "FACTORING_REJECTED"
	StatusPartiallyPaid      InvoiceStatus = "PARTIALLY_PAID"
	StatusOverdue            InvoiceStatus = "OVERDUE"
	StatusPaid               InvoiceStatus = "PAID"
	StatusVoid               InvoiceStatus = "VOID"
)

// transitions is the only source of truth for legal status changes.
var transitions = map[InvoiceStatus][]InvoiceStatus{
	StatusDraft:              {StatusIssued, StatusVoid},
	StatusIssued:             {StatusSent, StatusDisputed, StatusVoid},
	StatusSent:               {StatusDisputed, StatusFactoringSubmitted, StatusOverdue, StatusPaid, StatusPartiallyPaid},
	StatusDisputed:           {StatusSent, StatusVoid},
	StatusFactoringSubmitted: {StatusFactoringAccepted, StatusFactoringRejected, StatusOverdue},
	StatusFactoringAccepted:  {StatusPaid, StatusPartiallyPaid, StatusOverdue},
	StatusFactoringRejected:  {StatusSent, StatusOverdue},
	StatusPartiallyPaid:      {StatusPaid, StatusOverdue},
	StatusOverdue:            {StatusDisputed, StatusPaid, StatusPartiallyPaid},
	StatusPaid:               {},
	StatusVoid:               {},
}

// AllStatuses lists every lifecycle state in declaration order.
func AllStatuses() []InvoiceStatus {
	return []InvoiceStatus{
		StatusDraft, StatusIssued, StatusSent, StatusDisputed,
		StatusFactoringSubmitted, StatusFactoringAccepted, StatusFactoringRejected,
		StatusPartiallyPaid, StatusOverdue, StatusPaid, StatusVoid,
	}
}

func (s InvoiceStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s InvoiceStatus) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransition reports whether moving from current to target is legal.
// Staying in the same state is always allowed.
func CanTransition(current, target InvoiceStatus) bool {
	if current == target {
		return current.Valid()
	}
	for _, next := range transitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

// AssertTransition returns a *StateError when the move is illegal.
func AssertTransition(current, target InvoiceStatus) error {
	if !CanTransition(current, target) {
		return &StateError{From: current, To: target}
	}
	return nil
}

// OverdueEligibleStatuses are the states with a legal edge into OVERDUE.
func OverdueEligibleStatuses() []InvoiceStatus {
	out := make([]InvoiceStatus, 0, 5)
	for _, s := range AllStatuses() {
		if s != StatusOverdue && CanTransition(s, StatusOverdue) {
			out = append(out, s)
		}
	}
	return out
}
