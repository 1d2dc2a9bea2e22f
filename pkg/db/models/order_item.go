package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// OrderItem snapshots a product at order time.
type OrderItem struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID      `gorm:"column:order_id;type:uuid;not null"`
	ProductID      uuid.UUID      `gorm:"column:product_id;type:uuid;not null"`
	Name           string         `gorm:"column:name;not null"`
	SKU            string         `gorm:"column:sku;not null"`
	UnitPriceCents int64          `gorm:"column:unit_price_cents;not null"`
	Quantity       int            `gorm:"column:quantity;not null"`
	Currency       enums.Currency `gorm:"column:currency;not null"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
}

// LineTotalCents is unit price times quantity.
func (i OrderItem) LineTotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}
