package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Repository persists payment intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByIdempotencyKey(ctx context.Context, key string) (*models.PaymentIntent, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.PaymentIntent, error)
	Create(ctx context.Context, intent *models.PaymentIntent) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	// UpdateStatus mirrors the gateway status when the stored status is one of
	// from, and reports whether the row changed.
	UpdateStatus(ctx context.Context, externalID string, status enums.IntentStatus, from []enums.IntentStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment intent repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("external_intent_id = ?", externalID).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Model(&models.PaymentIntent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) UpdateStatus(ctx context.Context, externalID string, status enums.IntentStatus, from []enums.IntentStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("external_intent_id = ? AND status IN ?", externalID, from).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}
