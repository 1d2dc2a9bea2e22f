package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// Order is a frozen cart. Items and total never change after creation; only
// the payment side-channel columns are written afterwards.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	CartID          *uuid.UUID          `gorm:"column:cart_id;type:uuid"`
	Status          enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	TotalCents      int64               `gorm:"column:total_cents;not null"`
	Currency        enums.Currency      `gorm:"column:currency;not null;default:'USD'"`
	ShippingAddress types.Address       `gorm:"column:shipping_address;type:jsonb;not null"`
	PaymentID       *string             `gorm:"column:payment_id"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	PaymentMethod   *string             `gorm:"column:payment_method"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	RefundID        *string             `gorm:"column:refund_id"`
	RefundedAt      *time.Time          `gorm:"column:refunded_at"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
