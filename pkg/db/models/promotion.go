package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Promotion is a redeemable code. Code is always stored upper-cased.
type Promotion struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code                string              `gorm:"column:code;not null;uniqueIndex"`
	Type                enums.PromotionType `gorm:"column:type;type:text;not null"`
	Value               decimal.Decimal     `gorm:"column:value;type:numeric(12,2);not null"`
	MinOrderAmountCents *int64              `gorm:"column:min_order_amount_cents"`
	MaxUsages           *int                `gorm:"column:max_usages"`
	MaxUsagesPerUser    *int                `gorm:"column:max_usages_per_user"`
	CurrentUsages       int                 `gorm:"column:current_usages;not null;default:0"`
	ValidFrom           time.Time           `gorm:"column:valid_from;not null"`
	ValidUntil          time.Time           `gorm:"column:valid_until;not null"`
	IsActive            bool                `gorm:"column:is_active;not null;default:true"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// IsRedeemableAt reports whether the promotion is active, inside its window
// and below its global cap at now.
func (p Promotion) IsRedeemableAt(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if now.Before(p.ValidFrom) || now.After(p.ValidUntil) {
		return false
	}
	return p.MaxUsages == nil || p.CurrentUsages < *p.MaxUsages
}
