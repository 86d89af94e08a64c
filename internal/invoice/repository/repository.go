package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freightpay/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return db.WithContext(ctx).Create(inv).Error
}

func (r *repo) UpdateInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id = ?", inv.ID).
		Select("*").
		Omit("id", "invoice_number", "load_id", "created_at").
		Updates(inv).Error
}

func (r *repo) FindInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findInvoice(db.WithContext(ctx), id)
}

// FindInvoiceForUpdate row-locks the invoice on dialects that support it.
func (r *repo) FindInvoiceForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findInvoice(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repo) findInvoice(db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.Where("id = ?", id).Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) ListInvoices(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Invoice, error) {
	q := db.WithContext(ctx).Model(&domain.Invoice{})
	if filter.IssuerUID != "" {
		q = q.Where("issuer_uid = ?", filter.IssuerUID)
	}
	if filter.PayerUID != "" {
		q = q.Where("payer_uid = ?", filter.PayerUID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.BeforeID != 0 {
		q = q.Where("id < ?", filter.BeforeID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var items []domain.Invoice
	if err := q.Order("id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListOverdueCandidates(ctx context.Context, db *gorm.DB, statuses []domain.InvoiceStatus, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("status IN ?", statuses).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Order("due_date ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repo) InvoiceNumberTaken(ctx context.Context, db *gorm.DB, number string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.InvoiceNumberIndex{}).
		Where("invoice_number = ?", number).
		Count(&count).Error
	return count > 0, err
}

// ReserveInvoiceNumber returns false when the number is already reserved.
func (r *repo) ReserveInvoiceNumber(ctx context.Context, db *gorm.DB, number string, invoiceID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "invoice_number"}}, DoNothing: true}).
		Create(&domain.InvoiceNumberIndex{InvoiceNumber: number, InvoiceID: invoiceID, CreatedAt: now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindLoadInvoice(ctx context.Context, db *gorm.DB, loadID string) (snowflake.ID, bool, error) {
	var row domain.InvoiceLoadIndex
	err := db.WithContext(ctx).Where("load_id = ?", loadID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return row.InvoiceID, true, nil
}

// ReserveLoad returns false when the load already has an invoice.
func (r *repo) ReserveLoad(ctx context.Context, db *gorm.DB, loadID string, invoiceID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "load_id"}}, DoNothing: true}).
		Create(&domain.InvoiceLoadIndex{LoadID: loadID, InvoiceID: invoiceID, CreatedAt: now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ReleaseLoad(ctx context.Context, db *gorm.DB, loadID string, invoiceID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("load_id = ? AND invoice_id = ?", loadID, invoiceID).
		Delete(&domain.InvoiceLoadIndex{}).Error
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.PaymentTransaction) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindPaymentByExternalID(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, externalID string) (*domain.PaymentTransaction, error) {
	var payment domain.PaymentTransaction
	err := db.WithContext(ctx).
		Where("invoice_id = ? AND external_id = ?", invoiceID, externalID).
		Take(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.PaymentTransaction, error) {
	var items []domain.PaymentTransaction
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("received_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) InsertSubmission(ctx context.Context, db *gorm.DB, sub *domain.FactoringSubmission) error {
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repo) UpdateSubmission(ctx context.Context, db *gorm.DB, sub *domain.FactoringSubmission) error {
	return db.WithContext(ctx).Model(&domain.FactoringSubmission{}).
		Where("id = ?", sub.ID).
		Select("*").
		Omit("id", "invoice_id", "created_at").
		Updates(sub).Error
}

func (r *repo) FindSubmission(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FactoringSubmission, error) {
	var sub domain.FactoringSubmission
	err := db.WithContext(ctx).Where("id = ?", id).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
