package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/api/middleware"
	internalorders "github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

type stubOrdersService struct {
	detail     *internalorders.OrderDetail
	list       *internalorders.OrderList
	err        error
	lastUser   uuid.UUID
	lastAddr   uuid.UUID
	lastOrder  uuid.UUID
	lastParams pagination.Params
}

func (s *stubOrdersService) CreateOrder(ctx context.Context, userID, addressID uuid.UUID) (*internalorders.OrderDetail, error) {
	s.lastUser, s.lastAddr = userID, addressID
	return s.detail, s.err
}

func (s *stubOrdersService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.OrderDetail, error) {
	s.lastUser, s.lastOrder = userID, orderID
	return s.detail, s.err
}

func (s *stubOrdersService) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	s.lastUser, s.lastParams = userID, params
	return s.list, s.err
}

type stubPaymentsService struct {
	intent    *payments.IntentResult
	refund    *payments.RefundResult
	err       error
	lastActor payments.Actor
	lastKey   string
}

func (s *stubPaymentsService) CreatePaymentIntent(ctx context.Context, actor payments.Actor, orderID uuid.UUID, idempotencyKey string) (*payments.IntentResult, error) {
	s.lastActor, s.lastKey = actor, idempotencyKey
	return s.intent, s.err
}

func (s *stubPaymentsService) RefundPayment(ctx context.Context, actor payments.Actor, orderID uuid.UUID) (*payments.RefundResult, error) {
	s.lastActor = actor
	return s.refund, s.err
}

func authedRequest(method, target string, body string, userID uuid.UUID, role enums.UserRole) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func withOrderParam(req *http.Request, orderID string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestCreateOrder(t *testing.T) {
	userID := uuid.New()
	addressID := uuid.New()
	orderID := uuid.New()
	svc := &stubOrdersService{detail: &internalorders.OrderDetail{ID: orderID, TotalCents: 2500}}
	handler := Create(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/orders", fmt.Sprintf(`{"address_id":"%s"}`, addressID), userID, enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.lastUser != userID || svc.lastAddr != addressID {
		t.Fatalf("unexpected create call user=%s address=%s", svc.lastUser, svc.lastAddr)
	}

	var envelope struct {
		Data internalorders.OrderDetail `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != orderID {
		t.Fatalf("unexpected order id %s", envelope.Data.ID)
	}
}

func TestCreateOrderEmptyCart(t *testing.T) {
	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")}
	handler := Create(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/orders", fmt.Sprintf(`{"address_id":"%s"}`, uuid.New()), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestCreateOrderRequiresAddress(t *testing.T) {
	handler := Create(&stubOrdersService{}, nil)

	req := authedRequest(http.MethodPost, "/api/v1/orders", `{}`, uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListOrdersPassesPaging(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrdersService{list: &internalorders.OrderList{}}
	handler := List(svc, nil)

	cursor := pagination.Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), ID: uuid.New()}.Encode()
	req := authedRequest(http.MethodGet, "/api/v1/orders?limit=10&cursor="+cursor, "", userID, enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastParams.Limit != 10 || svc.lastParams.Cursor != cursor {
		t.Fatalf("unexpected params %+v", svc.lastParams)
	}
}

func TestListOrdersRejectsMalformedCursor(t *testing.T) {
	svc := &stubOrdersService{list: &internalorders.OrderList{}}
	handler := List(svc, nil)

	req := authedRequest(http.MethodGet, "/api/v1/orders?cursor=not-a-cursor", "", uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.lastParams.Limit != 0 {
		t.Fatalf("service should not be called, got %+v", svc.lastParams)
	}
}

func TestListOrdersRejectsBadLimit(t *testing.T) {
	handler := List(&stubOrdersService{}, nil)

	req := authedRequest(http.MethodGet, "/api/v1/orders?limit=5000", "", uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDetailForbiddenForOtherUser(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")}
	handler := Detail(svc, nil)

	req := authedRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), "", uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if svc.lastOrder != orderID {
		t.Fatalf("expected order %s got %s", orderID, svc.lastOrder)
	}
}

func TestDetailInvalidOrderID(t *testing.T) {
	handler := Detail(&stubOrdersService{}, nil)

	req := authedRequest(http.MethodGet, "/api/v1/orders/bad", "", uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, "bad")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreatePaymentIntentForwardsKeyAndRole(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	svc := &stubPaymentsService{intent: &payments.IntentResult{ClientSecret: "pi_secret", ExternalIntentID: "pi_1", Status: enums.IntentStatusRequiresPaymentMethod}}
	handler := CreatePaymentIntent(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/payment-intent", "", userID, enums.UserRoleAdmin)
	req.Header.Set("Idempotency-Key", "  key-1 ")
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.lastKey != "key-1" {
		t.Fatalf("expected trimmed key, got %q", svc.lastKey)
	}
	if svc.lastActor.UserID != userID || svc.lastActor.Role != enums.UserRoleAdmin {
		t.Fatalf("unexpected actor %+v", svc.lastActor)
	}
	if !strings.Contains(resp.Body.String(), "pi_secret") {
		t.Fatalf("expected client secret in response, got %s", resp.Body.String())
	}
}

func TestCreatePaymentIntentOnPaidOrder(t *testing.T) {
	orderID := uuid.New()
	svc := &stubPaymentsService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid")}
	handler := CreatePaymentIntent(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/payment-intent", "", uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestRefundNoPayment(t *testing.T) {
	orderID := uuid.New()
	svc := &stubPaymentsService{err: pkgerrors.New(pkgerrors.CodeNoPayment, "order has no payment")}
	handler := Refund(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/refund", "", uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestRefundSuccess(t *testing.T) {
	orderID := uuid.New()
	svc := &stubPaymentsService{refund: &payments.RefundResult{RefundID: "re_1", Status: "succeeded"}}
	handler := Refund(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/refund", "", uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "re_1") {
		t.Fatalf("expected refund id in response, got %s", resp.Body.String())
	}
}
