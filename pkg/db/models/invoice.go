package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// Invoice is issued once per order. The number never changes and the history
// column is append-only. Version increases on every write and guards the
// read-modify-write of history.
type Invoice struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID             `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	InvoiceNumber string                `gorm:"column:invoice_number;not null;uniqueIndex"`
	IssuedAt      time.Time             `gorm:"column:issued_at;not null"`
	Status        enums.InvoiceStatus   `gorm:"column:status;type:text;not null;default:'active'"`
	PDFPath       *string               `gorm:"column:pdf_path"`
	DataSnapshot  types.InvoiceSnapshot `gorm:"column:data_snapshot;type:jsonb;not null"`
	History       types.InvoiceHistory  `gorm:"column:history;type:jsonb;not null"`
	VoidedAt      *time.Time            `gorm:"column:voided_at"`
	Version       int                   `gorm:"column:version;not null;default:1"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
