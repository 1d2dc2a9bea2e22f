package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/invoices"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

type stubInvoiceService struct {
	pdf        []byte
	invoice    *models.Invoice
	note       *models.CreditNote
	err        error
	lastModify invoices.ModifyInput
	lastReason *string
	voidCalled bool
}

func (s *stubInvoiceService) GenerateInvoicePDF(ctx context.Context, userID, orderID uuid.UUID) ([]byte, *models.Invoice, error) {
	return s.pdf, s.invoice, s.err
}

func (s *stubInvoiceService) ModifyInvoice(ctx context.Context, userID, orderID uuid.UUID, input invoices.ModifyInput) (*models.Invoice, error) {
	s.lastModify = input
	return s.invoice, s.err
}

func (s *stubInvoiceService) VoidInvoice(ctx context.Context, userID, orderID uuid.UUID, reason *string) (*models.CreditNote, error) {
	s.voidCalled = true
	s.lastReason = reason
	return s.note, s.err
}

func TestInvoicePDFStreamsDocument(t *testing.T) {
	orderID := uuid.New()
	svc := &stubInvoiceService{
		pdf:     []byte("%PDF-1.3 test"),
		invoice: &models.Invoice{ID: uuid.New(), OrderID: orderID, InvoiceNumber: "INV-2026-ABCDEF12-000001"},
	}
	handler := InvoicePDF(svc, nil)

	req := authedRequest(http.MethodGet, "/api/v1/orders/"+orderID.String()+"/invoice", "", uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf got %s", ct)
	}
	if !strings.Contains(resp.Header().Get("Content-Disposition"), "INV-2026-ABCDEF12-000001.pdf") {
		t.Fatalf("unexpected disposition %s", resp.Header().Get("Content-Disposition"))
	}
	if resp.Body.String() != "%PDF-1.3 test" {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}

func TestInvoicePDFNotFound(t *testing.T) {
	orderID := uuid.New()
	handler := InvoicePDF(&stubInvoiceService{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}, nil)

	req := authedRequest(http.MethodGet, "/api/v1/orders/"+orderID.String()+"/invoice", "", uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if !strings.HasPrefix(resp.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("expected json error, got %s", resp.Header().Get("Content-Type"))
	}
}

func TestModifyInvoiceDecodesPatch(t *testing.T) {
	orderID := uuid.New()
	svc := &stubInvoiceService{invoice: &models.Invoice{
		ID:            uuid.New(),
		OrderID:       orderID,
		InvoiceNumber: "INV-2026-ABCDEF12-000002",
		Status:        enums.InvoiceStatusActive,
		DataSnapshot:  types.InvoiceSnapshot{Notes: "thanks"},
	}}
	handler := ModifyInvoice(svc, nil)

	body := `{"buyer":{"name":"Ada"},"notes":"thanks"}`
	req := authedRequest(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/invoice", body, uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.lastModify.Buyer["name"] != "Ada" {
		t.Fatalf("expected buyer name patch, got %+v", svc.lastModify.Buyer)
	}
	if svc.lastModify.Notes == nil || *svc.lastModify.Notes != "thanks" {
		t.Fatalf("expected notes patch")
	}

	var envelope struct {
		Data InvoiceDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.InvoiceNumber != "INV-2026-ABCDEF12-000002" {
		t.Fatalf("unexpected invoice number %s", envelope.Data.InvoiceNumber)
	}
}

func TestModifyInvoiceRejectedWhenVoided(t *testing.T) {
	orderID := uuid.New()
	handler := ModifyInvoice(&stubInvoiceService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is voided")}, nil)

	req := authedRequest(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/invoice", `{"notes":"late"}`, uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestVoidInvoiceWithoutBody(t *testing.T) {
	orderID := uuid.New()
	svc := &stubInvoiceService{note: &models.CreditNote{ID: uuid.New(), OrderID: orderID, CreditNoteNumber: "CN-2026-ABCDEF12-000001", AmountCents: 2500}}
	handler := VoidInvoice(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/invoice/void", "", uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
	if !svc.voidCalled || svc.lastReason != nil {
		t.Fatalf("expected void without reason, got %v", svc.lastReason)
	}
	if !strings.Contains(resp.Body.String(), "CN-2026-ABCDEF12-000001") {
		t.Fatalf("expected credit note number in response, got %s", resp.Body.String())
	}
}

func TestVoidInvoiceTrimsReason(t *testing.T) {
	orderID := uuid.New()
	svc := &stubInvoiceService{note: &models.CreditNote{ID: uuid.New(), OrderID: orderID}}
	handler := VoidInvoice(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/invoice/void", `{"reason":"  duplicate order  "}`, uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if svc.lastReason == nil || *svc.lastReason != "duplicate order" {
		t.Fatalf("expected trimmed reason, got %v", svc.lastReason)
	}
}

func TestVoidInvoiceTwiceConflicts(t *testing.T) {
	orderID := uuid.New()
	handler := VoidInvoice(&stubInvoiceService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "invoice already voided")}, nil)

	req := authedRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/invoice/void", "", uuid.New(), enums.UserRoleCustomer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}
