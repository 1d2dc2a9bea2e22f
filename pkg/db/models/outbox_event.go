package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// OutboxEvent is one domain event written in the same transaction as the
// state change it describes. Payload holds the versioned envelope.
//
// A row is pending until the worker sets PublishedAt (delivered) or
// TerminalAt (handed to the DLQ).
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null;index"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	TerminalAt    *time.Time                `gorm:"column:terminal_at"`
}

// Settled reports whether the worker is done with the row.
func (e OutboxEvent) Settled() bool {
	return e.PublishedAt != nil || e.TerminalAt != nil
}

// PendingOutbox scopes a query to rows still owed a delivery attempt.
func PendingOutbox(maxAttempts int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("published_at IS NULL AND terminal_at IS NULL AND attempt_count < ?", maxAttempts)
	}
}
