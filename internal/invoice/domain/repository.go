package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter scopes invoice listings. Empty fields do not filter.
type ListFilter struct {
	IssuerUID string
	PayerUID  string
	Status    InvoiceStatus
	BeforeID  snowflake.ID
	Limit     int
}

// Repository persists invoicing records. Every method runs on the given db handle
// so callers decide the transaction boundary.
type Repository interface {
	InsertInvoice(ctx context.Context, db *gorm.DB, inv *Invoice) error
	UpdateInvoice(ctx context.Context, db *gorm.DB, inv *Invoice) error
	FindInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindInvoiceForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListInvoices(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Invoice, error)
	ListOverdueCandidates(ctx context.Context, db *gorm.DB, statuses []InvoiceStatus, now time.Time, limit int) ([]snowflake.ID, error)

	InvoiceNumberTaken(ctx context.Context, db *gorm.DB, number string) (bool, error)
	ReserveInvoiceNumber(ctx context.Context, db *gorm.DB, number string, invoiceID snowflake.ID, now time.Time) (bool, error)
	FindLoadInvoice(ctx context.Context, db *gorm.DB, loadID string) (snowflake.ID, bool, error)
	ReserveLoad(ctx context.Context, db *gorm.DB, loadID string, invoiceID snowflake.ID, now time.Time) (bool, error)
	ReleaseLoad(ctx context.Context, db *gorm.DB, loadID string, invoiceID snowflake.ID) error

	InsertPayment(ctx context.Context, db *gorm.DB, payment *PaymentTransaction) error
	FindPaymentByExternalID(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, externalID string) (*PaymentTransaction, error)
	ListPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]PaymentTransaction, error)

	InsertSubmission(ctx context.Context, db *gorm.DB, sub *FactoringSubmission) error
	UpdateSubmission(ctx context.Context, db *gorm.DB, sub *FactoringSubmission) error
	FindSubmission(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FactoringSubmission, error)
}
