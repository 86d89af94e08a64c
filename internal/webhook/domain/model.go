// Package domain holds factoring provider callbacks and their processing state.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidEvent = errors.New("invalid_event")

// Outcomes recorded on an event.
const (
	OutcomeApplied = "applied"
	OutcomeIgnored = "ignored"
	OutcomeFailed  = "failed"
)

// EventRecord is one provider callback keyed by (provider, event_id). ProcessedAt
// stays nil until the event applied cleanly; ProcessingError holds the last failure.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"size:64;not null;uniqueIndex:ux_webhook_events_provider_event,priority:1"`
	EventID         string         `json:"event_id" gorm:"size:255;not null;uniqueIndex:ux_webhook_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	InvoiceID       *snowflake.ID  `json:"invoice_id,omitempty" gorm:"index"`
	SubmissionID    *snowflake.ID  `json:"submission_id,omitempty"`
	Payload         datatypes.JSON `json:"payload"`
	OccurredAt      *time.Time     `json:"occurred_at,omitempty"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
	ProcessingError string         `json:"processing_error,omitempty" gorm:"type:text"`
	Outcome         string         `json:"outcome,omitempty" gorm:"type:text"`
	Attempts        int            `json:"attempts" gorm:"not null;default:0"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "webhook_events" }

// Event is the inbound callback body.
type Event struct {
	EventID      string          `json:"event_id" validate:"required"`
	EventType    string          `json:"event_type" validate:"required"`
	OccurredAt   *time.Time      `json:"occurred_at,omitempty"`
	InvoiceID    string          `json:"invoice_id,omitempty"`
	SubmissionID string          `json:"submission_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// PaymentPayload is the payload of payment events. A zero amount settles the outstanding balance.
type PaymentPayload struct {
	Amount     int64      `json:"amount"`
	Method     string     `json:"method"`
	ExternalID string     `json:"external_id"`
	ReceivedAt *time.Time `json:"received_at"`
}

// DecisionPayload is the payload of factoring verdict and funding events.
type DecisionPayload struct {
	ProviderReference string         `json:"provider_reference"`
	AdvanceAmount     int64          `json:"advance_amount"`
	Message           string         `json:"message"`
	FundedAt          *time.Time     `json:"funded_at"`
	Metadata          map[string]any `json:"metadata"`
}

type Repository interface {
	FindEventForUpdate(ctx context.Context, db *gorm.DB, provider, eventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	UpdateEvent(ctx context.Context, db *gorm.DB, event *EventRecord) error
}

type Service interface {
	// Process applies the event at most once and returns the stored record.
	Process(ctx context.Context, provider string, event Event) (*EventRecord, error)
}
