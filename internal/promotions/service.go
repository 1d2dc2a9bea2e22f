// Package promotions validates and redeems promo codes.
package promotions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

// BuyXGetYMessage accompanies the zero discount returned for buy_x_get_y codes.
const BuyXGetYMessage = "buy_x_get_y discount is not computed"

var hundred = decimal.NewFromInt(100)

// PromotionRepository is the persistence surface used by the service.
type PromotionRepository interface {
	WithTx(tx *gorm.DB) PromotionRepository
	FindByCode(ctx context.Context, code string) (*models.Promotion, error)
	FindByCodeForUpdate(ctx context.Context, code string) (*models.Promotion, error)
	Create(ctx context.Context, promo *models.Promotion) error
	Deactivate(ctx context.Context, code string) (bool, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error)
	CountUsages(ctx context.Context, promotionID, userID uuid.UUID) (int64, error)
	CreateUsage(ctx context.Context, usage *models.PromoCodeUsage) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ApplyInput is a single redemption request. OrderTotalCents is in minor units.
type ApplyInput struct {
	Code            string
	OrderTotalCents int64
	UserID          *uuid.UUID
	OrderID         *uuid.UUID
}

// ApplyResult describes a successful redemption.
type ApplyResult struct {
	DiscountCents int64     `json:"discount_cents"`
	PromotionID   uuid.UUID `json:"promotion_id"`
	PromotionCode string    `json:"promotion_code"`
	Message       string    `json:"message"`
}

// CreateInput describes a new promotion. Fixed values are minor units,
// percentage values are whole or fractional percents.
type CreateInput struct {
	Code                string
	Type                enums.PromotionType
	Value               decimal.Decimal
	MinOrderAmountCents *int64
	MaxUsages           *int
	MaxUsagesPerUser    *int
	ValidFrom           time.Time
	ValidUntil          time.Time
}

// Service exposes promotion management and redemption.
type Service interface {
	Apply(ctx context.Context, input ApplyInput) (*ApplyResult, error)
	Create(ctx context.Context, input CreateInput) (*models.Promotion, error)
	Deactivate(ctx context.Context, code string) error
	Get(ctx context.Context, code string) (*models.Promotion, error)
}

type service struct {
	repo PromotionRepository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

// NewService builds a promotions service.
func NewService(repo PromotionRepository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promotion repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo: repo,
		tx:   tx,
		logg: logg,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// NormalizeCode upper-cases and trims a promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *service) Apply(ctx context.Context, input ApplyInput) (*ApplyResult, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	if input.OrderTotalCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_total must be non-negative")
	}

	var result *ApplyResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		promo, err := repo.FindByCodeForUpdate(ctx, code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promotion")
		}

		if !promo.IsRedeemableAt(s.now()) {
			return pkgerrors.New(pkgerrors.CodePromotionInvalid, "promotion is invalid or expired")
		}
		if promo.MinOrderAmountCents != nil && input.OrderTotalCents < *promo.MinOrderAmountCents {
			return pkgerrors.New(
				pkgerrors.CodeBelowMinimum,
				fmt.Sprintf("order total must be at least %d", *promo.MinOrderAmountCents),
			)
		}

		discount, message := computeDiscount(*promo, input.OrderTotalCents)

		ok, err := repo.IncrementUsage(ctx, promo.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment promotion usage")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodePromotionInvalid, "promotion is invalid or expired")
		}

		// The increment holds the promotion row until commit, so the count
		// below sees every redemption by this user that committed before us.
		if input.UserID != nil && promo.MaxUsagesPerUser != nil {
			used, err := repo.CountUsages(ctx, promo.ID, *input.UserID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count promotion usages")
			}
			if used >= int64(*promo.MaxUsagesPerUser) {
				return pkgerrors.New(pkgerrors.CodeUsageLimit, "promotion usage limit reached")
			}
		}

		if input.UserID != nil {
			usage := &models.PromoCodeUsage{
				PromotionID: promo.ID,
				UserID:      *input.UserID,
				OrderID:     input.OrderID,
				UsedAt:      s.now(),
			}
			if err := repo.CreateUsage(ctx, usage); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record promotion usage")
			}
		}

		result = &ApplyResult{
			DiscountCents: discount,
			PromotionID:   promo.ID,
			PromotionCode: promo.Code,
			Message:       message,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"promotion_id":   result.PromotionID.String(),
		"promotion_code": result.PromotionCode,
		"discount_cents": result.DiscountCents,
	})
	s.logg.Info(logCtx, "promotion.applied")
	return result, nil
}

func computeDiscount(promo models.Promotion, totalCents int64) (int64, string) {
	switch promo.Type {
	case enums.PromotionTypePercentage:
		discount := decimal.NewFromInt(totalCents).Mul(promo.Value).Div(hundred).Round(0).IntPart()
		if discount > totalCents {
			discount = totalCents
		}
		return discount, fmt.Sprintf("%s%% off applied", promo.Value.String())
	case enums.PromotionTypeFixed:
		discount := promo.Value.Round(0).IntPart()
		if discount > totalCents {
			discount = totalCents
		}
		return discount, "fixed discount applied"
	default:
		return 0, BuyXGetYMessage
	}
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Promotion, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown promotion type")
	}
	if input.Value.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "value must be non-negative")
	}
	if input.Type == enums.PromotionTypePercentage && input.Value.GreaterThan(hundred) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentage must not exceed 100")
	}
	if !input.ValidUntil.After(input.ValidFrom) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "valid_until must be after valid_from")
	}

	promo := &models.Promotion{
		Code:                code,
		Type:                input.Type,
		Value:               input.Value,
		MinOrderAmountCents: input.MinOrderAmountCents,
		MaxUsages:           input.MaxUsages,
		MaxUsagesPerUser:    input.MaxUsagesPerUser,
		ValidFrom:           input.ValidFrom.UTC(),
		ValidUntil:          input.ValidUntil.UTC(),
		IsActive:            true,
	}
	if err := s.repo.Create(ctx, promo); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "promotion code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create promotion")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"promotion_code": code, "promotion_type": input.Type.String()})
	s.logg.Info(logCtx, "promotion.created")
	return promo, nil
}

func (s *service) Deactivate(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	ok, err := s.repo.Deactivate(ctx, code)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate promotion")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
	}
	s.logg.Info(s.logg.WithField(ctx, "promotion_code", code), "promotion.deactivated")
	return nil
}

func (s *service) Get(ctx context.Context, code string) (*models.Promotion, error) {
	promo, err := s.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promotion")
	}
	return promo, nil
}
