package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freightpay/pkg/db/pagination"
)

type CreateInvoiceRequest struct {
	LoadID           string         `json:"load_id" validate:"required"`
	AmountTotal      int64          `json:"amount_total" validate:"gt=0"`
	Currency         string         `json:"currency" validate:"omitempty,len=3,alpha"`
	PayerUID         string         `json:"payer_uid,omitempty"`
	InvoiceNumber    string         `json:"invoice_number,omitempty"`
	Attachments      []Attachment   `json:"attachments,omitempty"`
	Draft            bool           `json:"draft"`
	FactoringEnabled bool           `json:"factoring_enabled"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type DisputeRequest struct {
	Reason  string `json:"reason" validate:"required"`
	Message string `json:"message"`
}

type ResolveDisputeRequest struct {
	Resolution string `json:"resolution"`
	Message    string `json:"message"`
}

type VoidRequest struct {
	Reason string `json:"reason"`
}

type RecordPaymentRequest struct {
	Amount     int64      `json:"amount" validate:"gt=0"`
	Method     string     `json:"method"`
	ExternalID string     `json:"external_id,omitempty"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

type ListInvoicesRequest struct {
	pagination.Pagination
	Status string `form:"status"`
}

type ListInvoicesResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type SubmissionResult struct {
	Invoice    *Invoice             `json:"invoice"`
	Submission *FactoringSubmission `json:"submission"`
}

type PaymentResult struct {
	Invoice   *Invoice            `json:"invoice"`
	Payment   *PaymentTransaction `json:"payment"`
	Duplicate bool                `json:"duplicate"`
}

// Service is the invoice lifecycle. The acting identity is read from the context.
type Service interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	GetInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) (ListInvoicesResponse, error)
	ListVisible(ctx context.Context) ([]Invoice, error)
	IssueInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	SendInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	DisputeInvoice(ctx context.Context, id snowflake.ID, req DisputeRequest) (*Invoice, error)
	ResolveDispute(ctx context.Context, id snowflake.ID, req ResolveDisputeRequest) (*Invoice, error)
	VoidInvoice(ctx context.Context, id snowflake.ID, req VoidRequest) (*Invoice, error)
	SubmitToFactoring(ctx context.Context, id snowflake.ID, provider string) (*SubmissionResult, error)
	RecordPayment(ctx context.Context, id snowflake.ID, req RecordPaymentRequest) (*PaymentResult, error)
	MarkOverdueInvoices(ctx context.Context, maxDocs int) (int, error)
}
