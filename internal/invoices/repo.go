package invoices

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Repository persists invoices and their credit notes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	// FindByOrderIDForUpdate row-locks the invoice for the rest of the
	// transaction. SQLite ignores the lock; the version guard still holds.
	FindByOrderIDForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	// UpdateActive writes updates only while the invoice is active and still
	// at version, and bumps the version. It reports false otherwise.
	UpdateActive(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error)
	// MarkVoided flips an active invoice at version to voided. It reports
	// false when the invoice was voided or changed in the meantime.
	MarkVoided(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error)
	CreateCreditNote(ctx context.Context, note *models.CreditNote) error
	FindCreditNoteByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*models.CreditNote, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByOrderIDForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	if invoice.Status == "" {
		invoice.Status = enums.InvoiceStatusActive
	}
	if invoice.Version == 0 {
		invoice.Version = 1
	}
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) UpdateActive(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	return r.guardedUpdate(ctx, id, version, updates)
}

func (r *repository) MarkVoided(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = enums.InvoiceStatusVoided
	return r.guardedUpdate(ctx, id, version, values)
}

func (r *repository) guardedUpdate(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")

	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND status = ? AND version = ?", id, enums.InvoiceStatusActive, version).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateCreditNote(ctx context.Context, note *models.CreditNote) error {
	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(note).Error
}

func (r *repository) FindCreditNoteByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*models.CreditNote, error) {
	var note models.CreditNote
	if err := r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).First(&note).Error; err != nil {
		return nil, err
	}
	return &note, nil
}
