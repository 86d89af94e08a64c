package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository is a thin typed store over a single gorm model.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	BatchCreate(ctx context.Context, resources []*T) error
}

// QueryOption decorates a query before it runs.
type QueryOption func(*gorm.DB) *gorm.DB

func OrderBy(clause string) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Order(clause) }
}

func Limit(n int) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Limit(n) }
}
