// Package domain holds the receivables figures computed over an invoice set.
// Everything here is a pure function of its inputs.
package domain

import (
	"context"
	"fmt"
	"time"

	invoicedomain "github.com/smallbiznis/freightpay/internal/invoice/domain"
)

const (
	DefaultRangeDays = 30
	MaxRangeDays     = 365

	// ExpectedAdvanceBps is the assumed factoring advance rate used by forecasts.
	// It is an estimate and ignores the advance a provider actually quoted.
	ExpectedAdvanceBps = 9000

	paidWindow = 30 * 24 * time.Hour
)

type Summary struct {
	OutstandingAmount          int64     `json:"outstanding_amount"`
	OverdueAmount              int64     `json:"overdue_amount"`
	OpenInvoiceCount           int       `json:"open_invoice_count"`
	OverdueInvoiceCount        int       `json:"overdue_invoice_count"`
	FactoringOutstandingAmount int64     `json:"factoring_outstanding_amount"`
	PaidAmount30d              int64     `json:"paid_amount_30d"`
	AsOf                       time.Time `json:"as_of"`
}

// Forecast figures are estimates, not commitments.
type Forecast struct {
	RangeDays                 int       `json:"range_days"`
	OverdueCollections        int64     `json:"overdue_collections"`
	ExpectedFactoringAdvances int64     `json:"expected_factoring_advances"`
	ExpectedDirectPayments    int64     `json:"expected_direct_payments"`
	Total                     int64     `json:"total"`
	Estimated                 bool      `json:"estimated"`
	AsOf                      time.Time `json:"as_of"`
}

type Service interface {
	Summary(ctx context.Context) (Summary, error)
	Forecast(ctx context.Context, rangeDays int) (Forecast, error)
}

// NormalizeRangeDays applies the default horizon and rejects values outside 1..365.
func NormalizeRangeDays(days int) (int, error) {
	if days == 0 {
		return DefaultRangeDays, nil
	}
	if days < 1 || days > MaxRangeDays {
		return 0, invoicedomain.NewValidationError("range_days", "invalid_range_days",
			fmt.Sprintf("range_days must be between 1 and %d", MaxRangeDays))
	}
	return days, nil
}

func isOpen(inv invoicedomain.Invoice) bool {
	return inv.Status != invoicedomain.StatusPaid && inv.Status != invoicedomain.StatusVoid
}

func isPastDue(inv invoicedomain.Invoice, now time.Time) bool {
	if inv.Status == invoicedomain.StatusOverdue {
		return true
	}
	return inv.DueDate != nil && inv.DueDate.Before(now)
}

// onFactoringTrack reports whether the balance is expected to come from a factor.
func onFactoringTrack(inv invoicedomain.Invoice) bool {
	return inv.FactoringEnabled && inv.Status != invoicedomain.StatusFactoringRejected
}

func ComputeSummary(invoices []invoicedomain.Invoice, now time.Time) Summary {
	out := Summary{AsOf: now}
	since := now.Add(-paidWindow)

	for _, inv := range invoices {
		if inv.Status == invoicedomain.StatusPaid {
			if inv.PaidAt != nil && !inv.PaidAt.Before(since) && !inv.PaidAt.After(now) {
				out.PaidAmount30d += inv.AmountTotal
			}
			continue
		}
		if !isOpen(inv) {
			continue
		}

		outstanding := inv.Outstanding()
		out.OpenInvoiceCount++
		out.OutstandingAmount += outstanding
		if isPastDue(inv, now) {
			out.OverdueInvoiceCount++
			out.OverdueAmount += outstanding
		}
		if inv.FactoringEnabled {
			out.FactoringOutstandingAmount += outstanding
		}
	}
	return out
}

// ComputeForecast splits open balances into past-due collections, factoring
// advances and direct payments due within rangeDays. Each invoice lands in at
// most one bucket, checked in that order. rangeDays must already be normalized.
func ComputeForecast(invoices []invoicedomain.Invoice, rangeDays int, now time.Time) Forecast {
	out := Forecast{RangeDays: rangeDays, Estimated: true, AsOf: now}
	horizon := now.Add(time.Duration(rangeDays) * 24 * time.Hour)

	for _, inv := range invoices {
		if !isOpen(inv) {
			continue
		}
		remaining := inv.Outstanding()
		if remaining == 0 {
			continue
		}

		switch {
		case isPastDue(inv, now):
			out.OverdueCollections += remaining
		case onFactoringTrack(inv):
			out.ExpectedFactoringAdvances += remaining * ExpectedAdvanceBps / 10000
		case inv.DueDate != nil && !inv.DueDate.After(horizon):
			out.ExpectedDirectPayments += remaining
		}
	}
	out.Total = out.OverdueCollections + out.ExpectedFactoringAdvances + out.ExpectedDirectPayments
	return out
}
