// Package domain contains invoicing models, the status machine and the error taxonomy.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Attachment sources.
const (
	AttachmentSourceVault  = "load_vault"
	AttachmentSourceCaller = "caller"
)

// Attachment references a supporting document stored outside the invoice.
type Attachment struct {
	Kind       string         `json:"kind"`
	URL        string         `json:"url,omitempty"`
	DocumentID string         `json:"document_id,omitempty"`
	Filename   string         `json:"filename,omitempty"`
	Source     string         `json:"source,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Invoice is the billing record for one delivered load.
type Invoice struct {
	ID                    snowflake.ID                    `gorm:"primaryKey" json:"invoice_id"`
	InvoiceNumber         string                          `gorm:"size:128;not null;uniqueIndex:ux_invoices_invoice_number" json:"invoice_number"`
	LoadID                string                          `gorm:"size:128;not null;index" json:"load_id"`
	IssuerUID             string                          `gorm:"size:128;not null;index" json:"issuer_uid"`
	IssuerRole            string                          `gorm:"type:text;not null" json:"issuer_role"`
	PayerUID              string                          `gorm:"size:128;not null;index" json:"payer_uid"`
	PayerRole             string                          `gorm:"type:text;not null" json:"payer_role"`
	AmountTotal           int64                           `gorm:"not null" json:"amount_total"`
	AmountPaid            int64                           `gorm:"not null;default:0" json:"amount_paid"`
	Currency              string                          `gorm:"type:text;not null" json:"currency"`
	Status                InvoiceStatus                   `gorm:"size:32;not null;index" json:"status"`
	DueDate               *time.Time                      `gorm:"index" json:"due_date,omitempty"`
	IssuedAt              *time.Time                      `json:"issued_at,omitempty"`
	SentAt                *time.Time                      `json:"sent_at,omitempty"`
	DisputedAt            *time.Time                      `json:"disputed_at,omitempty"`
	PaidAt                *time.Time                      `json:"paid_at,omitempty"`
	OverdueAt             *time.Time                      `json:"overdue_at,omitempty"`
	VoidedAt              *time.Time                      `json:"voided_at,omitempty"`
	Attachments           datatypes.JSONSlice[Attachment] `json:"attachments"`
	FactoringEnabled      bool                            `gorm:"not null;default:false" json:"factoring_enabled"`
	FactoringProvider     string                          `gorm:"type:text" json:"factoring_provider,omitempty"`
	FactoringSubmissionID *snowflake.ID                   `json:"factoring_submission_id,omitempty"`
	Metadata              datatypes.JSONMap               `json:"metadata"`
	CreatedAt             time.Time                       `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time                       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Outstanding is the unpaid remainder, never negative.
func (inv Invoice) Outstanding() int64 {
	if inv.AmountPaid >= inv.AmountTotal {
		return 0
	}
	return inv.AmountTotal - inv.AmountPaid
}

// Transition moves the invoice to target through the status machine and stamps
// the matching lifecycle timestamp the first time it is reached.
func (inv *Invoice) Transition(target InvoiceStatus, now time.Time) error {
	if err := AssertTransition(inv.Status, target); err != nil {
		return err
	}
	if inv.Status == target {
		return nil
	}

	switch target {
	case StatusIssued:
		stampOnce(&inv.IssuedAt, now)
	case StatusSent:
		stampOnce(&inv.SentAt, now)
	case StatusDisputed:
		stampOnce(&inv.DisputedAt, now)
	case StatusPaid:
		stampOnce(&inv.PaidAt, now)
	case StatusOverdue:
		stampOnce(&inv.OverdueAt, now)
	case StatusVoid:
		stampOnce(&inv.VoidedAt, now)
	}
	inv.Status = target
	inv.UpdatedAt = now
	return nil
}

// ClearDispute is only called when a dispute is resolved.
func (inv *Invoice) ClearDispute() {
	inv.DisputedAt = nil
}

func stampOnce(field **time.Time, now time.Time) {
	if *field != nil {
		return
	}
	t := now
	*field = &t
}

// InvoiceNumberIndex reserves an invoice number. Rows are never deleted.
type InvoiceNumberIndex struct {
	InvoiceNumber string       `gorm:"primaryKey;size:128"`
	InvoiceID     snowflake.ID `gorm:"not null"`
	CreatedAt     time.Time    `gorm:"not null"`
}

func (InvoiceNumberIndex) TableName() string { return "invoice_number_index" }

// InvoiceLoadIndex maps a load to its single non-void invoice.
type InvoiceLoadIndex struct {
	LoadID    string       `gorm:"primaryKey;size:128"`
	InvoiceID snowflake.ID `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (InvoiceLoadIndex) TableName() string { return "invoice_load_index" }

// PaymentTransaction is an immutable record of money received against an invoice.
type PaymentTransaction struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"payment_id"`
	InvoiceID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_payment_external_id,priority:1" json:"invoice_id"`
	Amount     int64        `gorm:"not null" json:"amount"`
	Method     string       `gorm:"type:text;not null" json:"method"`
	ExternalID *string      `gorm:"size:255;uniqueIndex:ux_payment_external_id,priority:2" json:"external_id,omitempty"`
	RecordedBy string       `gorm:"type:text" json:"recorded_by,omitempty"`
	ReceivedAt time.Time    `gorm:"not null" json:"received_at"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

// SubmissionStatus is the lifecycle of a factoring submission.
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionAccepted  SubmissionStatus = "accepted"
	SubmissionRejected  SubmissionStatus = "rejected"
	SubmissionFunded    SubmissionStatus = "funded"
	SubmissionCancelled SubmissionStatus = "cancelled"
)

// FactoringSubmission records one attempt to sell an invoice to a factoring provider.
type FactoringSubmission struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"submission_id"`
	InvoiceID         snowflake.ID      `gorm:"not null;index" json:"invoice_id"`
	Provider          string            `gorm:"type:text;not null" json:"provider"`
	Status            SubmissionStatus  `gorm:"type:text;not null" json:"status"`
	ProviderReference string            `gorm:"type:text" json:"provider_reference,omitempty"`
	AdvanceAmount     int64             `gorm:"not null;default:0" json:"advance_amount"`
	Message           string            `gorm:"type:text" json:"message,omitempty"`
	LastError         string            `gorm:"type:text" json:"last_error,omitempty"`
	Metadata          datatypes.JSONMap `json:"metadata,omitempty"`
	SubmittedAt       time.Time         `gorm:"not null" json:"submitted_at"`
	DecidedAt         *time.Time        `json:"decided_at,omitempty"`
	FundedAt          *time.Time        `json:"funded_at,omitempty"`
	CreatedAt         time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null" json:"updated_at"`
}

func (FactoringSubmission) TableName() string { return "factoring_submissions" }

// Models lists every table owned by invoicing, in creation order.
func Models() []any {
	return []any{
		&Invoice{},
		&InvoiceNumberIndex{},
		&InvoiceLoadIndex{},
		&PaymentTransaction{},
		&FactoringSubmission{},
	}
}
