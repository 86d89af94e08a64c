package domain

import (
	"fmt"
	"time"
)

// ApplyPayment adds amount to the paid total and moves the invoice to PAID when
// the total is covered, PARTIALLY_PAID otherwise. Overpayment is rejected.
func (inv *Invoice) ApplyPayment(amount int64, now time.Time) error {
	if amount <= 0 {
		return NewValidationError("amount", "invalid_amount", "amount must be positive")
	}
	target := StatusPartiallyPaid
	if inv.AmountPaid+amount >= inv.AmountTotal {
		target = StatusPaid
	}
	if err := AssertTransition(inv.Status, target); err != nil {
		return err
	}
	if amount > inv.Outstanding() {
		return NewValidationError("amount", "overpayment",
			fmt.Sprintf("payment of %d exceeds outstanding balance %d", amount, inv.Outstanding()))
	}
	if err := inv.Transition(target, now); err != nil {
		return err
	}
	inv.AmountPaid += amount
	return nil
}
