package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditNote offsets a voided invoice. Rows are insert-only.
type CreditNote struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	InvoiceID        uuid.UUID `gorm:"column:invoice_id;type:uuid;not null;uniqueIndex"`
	CreditNoteNumber string    `gorm:"column:credit_note_number;not null;uniqueIndex"`
	AmountCents      int64     `gorm:"column:amount_cents;not null"`
	Reason           *string   `gorm:"column:reason"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}
