package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// PaymentIntent records one gateway intent per idempotency key.
type PaymentIntent struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	IdempotencyKey   string             `gorm:"column:idempotency_key;not null;uniqueIndex"`
	ExternalIntentID string             `gorm:"column:external_intent_id;not null;uniqueIndex"`
	AmountCents      int64              `gorm:"column:amount_cents;not null"`
	Currency         enums.Currency     `gorm:"column:currency;not null"`
	Status           enums.IntentStatus `gorm:"column:status;type:text;not null;default:'requires_payment_method'"`
	ClientSecret     *string            `gorm:"column:client_secret"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
