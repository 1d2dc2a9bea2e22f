package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod keeps display-only details of a saved gateway payment method.
type PaymentMethod struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	Provider         string    `gorm:"column:provider;not null;default:'stripe'"`
	ExternalMethodID string    `gorm:"column:external_method_id;not null;uniqueIndex"`
	Brand            *string   `gorm:"column:brand"`
	Last4            *string   `gorm:"column:last4"`
	ExpMonth         *int      `gorm:"column:exp_month"`
	ExpYear          *int      `gorm:"column:exp_year"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}
