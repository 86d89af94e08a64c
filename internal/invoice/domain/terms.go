package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	MinTermDays   = 1
	MaxTermDays   = 120
	QuickPayDays  = 2
	SecondsPerDay = 86400
)

var (
	netTermsPattern  = regexp.MustCompile(`^NET[\s_-]*(\d+)$`)
	daysTermsPattern = regexp.MustCompile(`^(\d+)\s*DAYS?$`)
)

// ParsePaymentTerms converts NET<n>, "<n> Days" or the legacy "Quick Pay" into a day count.
func ParsePaymentTerms(raw string) (int, error) {
	normalized := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if normalized == "" {
		return 0, NewValidationError("payment_terms", "payment_terms_required", "payment terms are required")
	}
	if normalized == "QUICK PAY" || normalized == "QUICKPAY" {
		return QuickPayDays, nil
	}

	var digits string
	if m := netTermsPattern.FindStringSubmatch(normalized); m != nil {
		digits = m[1]
	} else if m := daysTermsPattern.FindStringSubmatch(normalized); m != nil {
		digits = m[1]
	} else {
		return 0, NewValidationError("payment_terms", "payment_terms_invalid",
			fmt.Sprintf("unsupported payment terms %q", raw))
	}

	days, err := strconv.Atoi(digits)
	if err != nil || days < MinTermDays || days > MaxTermDays {
		return 0, NewValidationError("payment_terms", "payment_terms_out_of_range",
			fmt.Sprintf("payment terms must be between %d and %d days", MinTermDays, MaxTermDays))
	}
	return days, nil
}
