package promotions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
)

// Repository persists promotions and their redemptions.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a promotions repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) PromotionRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByCode expects an upper-cased code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Promotion, error) {
	var promo models.Promotion
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&promo).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

// FindByCodeForUpdate locks the promotion row for the rest of the transaction.
func (r *Repository) FindByCodeForUpdate(ctx context.Context, code string) (*models.Promotion, error) {
	var promo models.Promotion
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).
		First(&promo).Error
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *Repository) Create(ctx context.Context, promo *models.Promotion) error {
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(promo).Error
}

// Deactivate flips is_active off and reports whether a row matched.
func (r *Repository) Deactivate(ctx context.Context, code string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("code = ?", code).
		Update("is_active", false)
	return res.RowsAffected > 0, res.Error
}

// IncrementUsage bumps current_usages only while the global cap still has room.
// It returns false when the cap was reached by a concurrent redemption.
func (r *Repository) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id = ? AND (max_usages IS NULL OR current_usages < max_usages)", id).
		Updates(map[string]any{
			"current_usages": gorm.Expr("current_usages + 1"),
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) CountUsages(ctx context.Context, promotionID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PromoCodeUsage{}).
		Where("promotion_id = ? AND user_id = ?", promotionID, userID).
		Count(&count).Error
	return count, err
}

func (r *Repository) CreateUsage(ctx context.Context, usage *models.PromoCodeUsage) error {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(usage).Error
}
