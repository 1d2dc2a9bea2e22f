package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Product is the read-only catalog row consulted for prices and stock.
type Product struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string         `gorm:"column:name;not null"`
	Slug         string         `gorm:"column:slug;not null;uniqueIndex"`
	SKU          string         `gorm:"column:sku;not null"`
	PriceCents   int64          `gorm:"column:price_cents;not null"`
	Stock        int            `gorm:"column:stock;not null;default:0"`
	Currency     enums.Currency `gorm:"column:currency;not null;default:'USD'"`
	ThumbnailURL *string        `gorm:"column:thumbnail_url"`
	IsActive     bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
