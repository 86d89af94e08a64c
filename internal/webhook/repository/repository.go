package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/freightpay/internal/webhook/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// FindEventForUpdate returns nil when the event has not been seen.
func (r *repo) FindEventForUpdate(ctx context.Context, db *gorm.DB, provider, eventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// InsertEvent returns false when (provider, event_id) already exists.
func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) error {
	return db.WithContext(ctx).Model(&domain.EventRecord{}).
		Where("id = ?", event.ID).
		Select("*").
		Omit("id", "provider", "event_id", "created_at").
		Updates(event).Error
}
