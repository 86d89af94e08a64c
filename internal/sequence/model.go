package sequence

import "time"

// Counter is a named monotonically increasing integer.
type Counter struct {
	CounterKey string    `gorm:"primaryKey;size:255;column:counter_key"`
	Value      int64     `gorm:"not null;default:0"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (Counter) TableName() string { return "counters" }
