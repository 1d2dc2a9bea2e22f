package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/internal/promotions"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

type stubPromotionService struct {
	result          *promotions.ApplyResult
	promo           *models.Promotion
	err             error
	lastApply       promotions.ApplyInput
	lastCreate      promotions.CreateInput
	deactivatedCode string
}

func (s *stubPromotionService) Apply(ctx context.Context, input promotions.ApplyInput) (*promotions.ApplyResult, error) {
	s.lastApply = input
	return s.result, s.err
}

func (s *stubPromotionService) Create(ctx context.Context, input promotions.CreateInput) (*models.Promotion, error) {
	s.lastCreate = input
	return s.promo, s.err
}

func (s *stubPromotionService) Deactivate(ctx context.Context, code string) error {
	s.deactivatedCode = code
	return s.err
}

func (s *stubPromotionService) Get(ctx context.Context, code string) (*models.Promotion, error) {
	return s.promo, s.err
}

func TestPromotionApplyUsesCaller(t *testing.T) {
	userID := uuid.New()
	svc := &stubPromotionService{result: &promotions.ApplyResult{DiscountCents: 1000, PromotionCode: "SAVE10"}}
	handler := PromotionApply(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/promotions/apply", strings.NewReader(`{"code":"save10","order_total_cents":10000}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.lastApply.UserID == nil || *svc.lastApply.UserID != userID {
		t.Fatalf("expected caller user id on apply input")
	}
	if svc.lastApply.OrderTotalCents != 10000 || svc.lastApply.Code != "save10" {
		t.Fatalf("unexpected apply input %+v", svc.lastApply)
	}

	var envelope struct {
		Data promotions.ApplyResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.DiscountCents != 1000 {
		t.Fatalf("expected discount 1000 got %d", envelope.Data.DiscountCents)
	}
}

func TestPromotionApplyUsageLimit(t *testing.T) {
	svc := &stubPromotionService{err: pkgerrors.New(pkgerrors.CodeUsageLimit, "usage limit reached")}
	handler := PromotionApply(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/promotions/apply", strings.NewReader(`{"code":"SAVE10","order_total_cents":10000}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestPromotionApplyRejectsNegativeTotal(t *testing.T) {
	handler := PromotionApply(&stubPromotionService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/promotions/apply", strings.NewReader(`{"code":"SAVE10","order_total_cents":-1}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminPromotionCreate(t *testing.T) {
	svc := &stubPromotionService{promo: &models.Promotion{ID: uuid.New(), Code: "SPRING", Type: enums.PromotionTypePercentage, Value: decimal.NewFromInt(15), IsActive: true}}
	handler := AdminPromotionCreate(svc, nil)

	body := `{"code":"spring","type":"percentage","value":"15","valid_from":"2026-03-01T00:00:00Z","valid_until":"2026-06-01T00:00:00Z","max_usages":100}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/promotions", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.lastCreate.Type != enums.PromotionTypePercentage || !svc.lastCreate.Value.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("unexpected create input %+v", svc.lastCreate)
	}
	if svc.lastCreate.MaxUsages == nil || *svc.lastCreate.MaxUsages != 100 {
		t.Fatalf("expected max usages 100")
	}
}

func TestAdminPromotionCreateRejectsUnknownType(t *testing.T) {
	handler := AdminPromotionCreate(&stubPromotionService{}, nil)

	body := `{"code":"x","type":"bogus","value":"1","valid_from":"2026-03-01T00:00:00Z","valid_until":"2026-06-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/promotions", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminPromotionCreateDuplicate(t *testing.T) {
	handler := AdminPromotionCreate(&stubPromotionService{err: pkgerrors.New(pkgerrors.CodeConflict, "promotion code already exists")}, nil)

	body := `{"code":"spring","type":"fixed","value":"500","valid_from":"2026-03-01T00:00:00Z","valid_until":"2026-06-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/promotions", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestAdminPromotionDeactivate(t *testing.T) {
	svc := &stubPromotionService{promo: &models.Promotion{ID: uuid.New(), Code: "SPRING", IsActive: false}}
	handler := AdminPromotionDeactivate(svc, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/promotions/spring", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("code", "spring")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.deactivatedCode != "spring" {
		t.Fatalf("expected deactivate of spring, got %q", svc.deactivatedCode)
	}
	if !strings.Contains(resp.Body.String(), fmt.Sprintf(`"is_active":%v`, false)) {
		t.Fatalf("expected inactive promotion in body, got %s", resp.Body.String())
	}
}
