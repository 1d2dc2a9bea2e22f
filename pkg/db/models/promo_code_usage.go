package models

import (
	"time"

	"github.com/google/uuid"
)

// PromoCodeUsage is one successful redemption.
type PromoCodeUsage struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PromotionID uuid.UUID  `gorm:"column:promotion_id;type:uuid;not null"`
	UserID      uuid.UUID  `gorm:"column:user_id;type:uuid;not null"`
	OrderID     *uuid.UUID `gorm:"column:order_id;type:uuid"`
	UsedAt      time.Time  `gorm:"column:used_at;not null"`
}
