package domain

import (
	"errors"
	"fmt"
)

// Error categories. Concrete errors match them with errors.Is.
var (
	ErrValidation        = errors.New("validation_error")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not_found")
	ErrProvider          = errors.New("provider_error")
)

var (
	ErrInvoiceNotFound    = fmt.Errorf("invoice_not_found: %w", ErrNotFound)
	ErrSubmissionNotFound = fmt.Errorf("factoring_submission_not_found: %w", ErrNotFound)
	ErrLoadNotFound       = fmt.Errorf("load_not_found: %w", ErrNotFound)
	ErrMissingActor       = fmt.Errorf("missing_actor: %w", ErrUnauthorized)
	ErrNotIssuer          = fmt.Errorf("only the issuing carrier may perform this action: %w", ErrForbidden)
	ErrNotPayer           = fmt.Errorf("only the invoice payer may perform this action: %w", ErrForbidden)
	ErrNotParty           = fmt.Errorf("actor is not a party to this invoice: %w", ErrForbidden)
	ErrNotAssignedCarrier = fmt.Errorf("actor is not the carrier assigned to this load: %w", ErrForbidden)
)

// ValidationError is a business-rule failure reported back to the caller.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func NewValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StateError reports an illegal status transition.
type StateError struct {
	From InvoiceStatus
	To   InvoiceStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid invoice status transition from %s to %s", e.From, e.To)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ProviderError wraps a failed call to a third-party provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}
