package sequence

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/smallbiznis/freightpay/internal/clock"
	"github.com/smallbiznis/freightpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	InvoiceCounterKey = "invoice_number"

	maxIncrementAttempts = 3
	fallbackModulus      = 1_000_000
)

var ErrCounterConflict = errors.New("counter_conflict")

type Service interface {
	// NextSequence atomically increments key and returns the new value.
	// When tx is non-nil the increment joins it through a savepoint.
	NextSequence(ctx context.Context, tx *gorm.DB, key string) (int64, error)
	// AllocateInvoiceNumber composes a new invoice number. fallback is true when
	// the counter could not be used and a random suffix was chosen instead.
	AllocateInvoiceNumber(ctx context.Context, tx *gorm.DB, loadRef, issuerUID, payerUID string) (number string, fallback bool, err error)
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewService(p Params) Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("sequence.service"),
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *service) NextSequence(ctx context.Context, tx *gorm.DB, key string) (int64, error) {
	db := tx
	if db == nil {
		db = s.db
	}

	var value int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for attempt := 0; attempt < maxIncrementAttempts; attempt++ {
			now := s.clock.Now()
			res := tx.Model(&Counter{}).
				Where("counter_key = ?", key).
				Updates(map[string]any{
					"value":      gorm.Expr("value + 1"),
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				var row Counter
				if err := tx.Where("counter_key = ?", key).Take(&row).Error; err != nil {
					return err
				}
				value = row.Value
				return nil
			}

			ins := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&Counter{CounterKey: key, Value: 1, UpdatedAt: now})
			if ins.Error != nil {
				return ins.Error
			}
			if ins.RowsAffected == 1 {
				value = 1
				return nil
			}
		}
		return ErrCounterConflict
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (s *service) AllocateInvoiceNumber(ctx context.Context, tx *gorm.DB, loadRef, issuerUID, payerUID string) (string, bool, error) {
	seq, err := s.NextSequence(ctx, tx, InvoiceCounterKey)
	if err == nil {
		return ComposeInvoiceNumber(loadRef, issuerUID, payerUID, seq), false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", false, ctxErr
	}

	s.log.Warn("invoice counter unavailable, using random suffix",
		zap.String("load_ref", loadRef),
		zap.Error(err),
	)
	s.metrics.RecordSequenceFallback()

	n, randErr := rand.Int(rand.Reader, big.NewInt(fallbackModulus))
	if randErr != nil {
		return "", false, randErr
	}
	return ComposeInvoiceNumber(loadRef, issuerUID, payerUID, n.Int64()), true, nil
}
