package load

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/freightpay/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var ErrLoadNotFound = errors.New("load_not_found")

// Load is the shipment record owned by the dispatch side of the marketplace.
type Load struct {
	ID                 string    `gorm:"primaryKey;column:id"`
	LoadNumber         string    `gorm:"column:load_number"`
	Status             string    `gorm:"column:status"`
	AssignedCarrierUID string    `gorm:"column:assigned_carrier_uid"`
	PayerUID           string    `gorm:"column:payer_uid"`
	PaymentTerms       string    `gorm:"column:payment_terms"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (Load) TableName() string { return "loads" }

// Reference is the human-facing identifier embedded in invoice numbers.
func (l Load) Reference() string {
	if ref := strings.TrimSpace(l.LoadNumber); ref != "" {
		return ref
	}
	return l.ID
}

// Document is a file stored in the load's document vault.
type Document struct {
	ID        string    `gorm:"primaryKey;column:id"`
	LoadID    string    `gorm:"column:load_id;index"`
	Kind      string    `gorm:"column:kind"`
	URL       string    `gorm:"column:url"`
	Filename  string    `gorm:"column:filename"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Document) TableName() string { return "load_documents" }

type Lookup interface {
	GetLoad(ctx context.Context, loadID string) (*Load, error)
	ListDocuments(ctx context.Context, loadID string) ([]Document, error)
}

type Params struct {
	fx.In

	DB *gorm.DB
}

type lookup struct {
	loads     repository.Repository[Load]
	documents repository.Repository[Document]
}

func NewLookup(p Params) Lookup {
	return &lookup{
		loads:     repository.ProvideStore[Load](p.DB),
		documents: repository.ProvideStore[Document](p.DB),
	}
}

func (l *lookup) GetLoad(ctx context.Context, loadID string) (*Load, error) {
	loadID = strings.TrimSpace(loadID)
	if loadID == "" {
		return nil, ErrLoadNotFound
	}
	row, err := l.loads.FindOne(ctx, &Load{ID: loadID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrLoadNotFound
	}
	return row, nil
}

func (l *lookup) ListDocuments(ctx context.Context, loadID string) ([]Document, error) {
	rows, err := l.documents.Find(ctx, &Document{LoadID: loadID}, repository.OrderBy("created_at ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

var Module = fx.Module("load",
	fx.Provide(NewLookup),
)
