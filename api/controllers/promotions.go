package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	"github.com/angelmondragon/orderflow-backend/internal/promotions"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type applyPromotionRequest struct {
	Code            string     `json:"code" validate:"required,max=64"`
	OrderTotalCents int64      `json:"order_total_cents" validate:"min=0"`
	OrderID         *uuid.UUID `json:"order_id,omitempty"`
}

type createPromotionRequest struct {
	Code                string          `json:"code" validate:"required,max=64"`
	Type                string          `json:"type" validate:"required,oneof=percentage fixed buy_x_get_y"`
	Value               decimal.Decimal `json:"value"`
	MinOrderAmountCents *int64          `json:"min_order_amount_cents,omitempty" validate:"omitempty,min=0"`
	MaxUsages           *int            `json:"max_usages,omitempty" validate:"omitempty,min=1"`
	MaxUsagesPerUser    *int            `json:"max_usages_per_user,omitempty" validate:"omitempty,min=1"`
	ValidFrom           time.Time       `json:"valid_from" validate:"required"`
	ValidUntil          time.Time       `json:"valid_until" validate:"required"`
}

// PromotionDTO is the admin view of a promotion.
type PromotionDTO struct {
	ID                  uuid.UUID           `json:"id"`
	Code                string              `json:"code"`
	Type                enums.PromotionType `json:"type"`
	Value               decimal.Decimal     `json:"value"`
	MinOrderAmountCents *int64              `json:"min_order_amount_cents,omitempty"`
	MaxUsages           *int                `json:"max_usages,omitempty"`
	MaxUsagesPerUser    *int                `json:"max_usages_per_user,omitempty"`
	CurrentUsages       int                 `json:"current_usages"`
	ValidFrom           time.Time           `json:"valid_from"`
	ValidUntil          time.Time           `json:"valid_until"`
	IsActive            bool                `json:"is_active"`
}

func newPromotionDTO(p *models.Promotion) PromotionDTO {
	return PromotionDTO{
		ID:                  p.ID,
		Code:                p.Code,
		Type:                p.Type,
		Value:               p.Value,
		MinOrderAmountCents: p.MinOrderAmountCents,
		MaxUsages:           p.MaxUsages,
		MaxUsagesPerUser:    p.MaxUsagesPerUser,
		CurrentUsages:       p.CurrentUsages,
		ValidFrom:           p.ValidFrom,
		ValidUntil:          p.ValidUntil,
		IsActive:            p.IsActive,
	}
}

// PromotionApply redeems a code for the caller against an order total.
func PromotionApply(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload applyPromotionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Apply(r.Context(), promotions.ApplyInput{
			Code:            payload.Code,
			OrderTotalCents: payload.OrderTotalCents,
			UserID:          &userID,
			OrderID:         payload.OrderID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// AdminPromotionCreate registers a new promotion code.
func AdminPromotionCreate(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}

		var payload createPromotionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		promo, err := svc.Create(r.Context(), promotions.CreateInput{
			Code:                payload.Code,
			Type:                enums.PromotionType(payload.Type),
			Value:               payload.Value,
			MinOrderAmountCents: payload.MinOrderAmountCents,
			MaxUsages:           payload.MaxUsages,
			MaxUsagesPerUser:    payload.MaxUsagesPerUser,
			ValidFrom:           payload.ValidFrom,
			ValidUntil:          payload.ValidUntil,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newPromotionDTO(promo))
	}
}

// AdminPromotionDeactivate switches a promotion off. Past redemptions are kept.
func AdminPromotionDeactivate(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}

		code := strings.TrimSpace(chi.URLParam(r, "code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "code is required"))
			return
		}

		if err := svc.Deactivate(r.Context(), code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		promo, err := svc.Get(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPromotionDTO(promo))
	}
}
