package orders

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	"github.com/angelmondragon/orderflow-backend/internal/invoices"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

const maxVoidReasonLength = 500

// InvoiceDTO is the JSON view of an invoice returned after amendments.
type InvoiceDTO struct {
	ID            uuid.UUID             `json:"id"`
	OrderID       uuid.UUID             `json:"order_id"`
	InvoiceNumber string                `json:"invoice_number"`
	Status        enums.InvoiceStatus   `json:"status"`
	IssuedAt      time.Time             `json:"issued_at"`
	Snapshot      types.InvoiceSnapshot `json:"snapshot"`
	History       types.InvoiceHistory  `json:"history"`
	VoidedAt      *time.Time            `json:"voided_at,omitempty"`
}

// CreditNoteDTO is the JSON view of the credit note issued on void.
type CreditNoteDTO struct {
	ID               uuid.UUID `json:"id"`
	OrderID          uuid.UUID `json:"order_id"`
	InvoiceID        uuid.UUID `json:"invoice_id"`
	CreditNoteNumber string    `json:"credit_note_number"`
	AmountCents      int64     `json:"amount_cents"`
	Reason           *string   `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type voidInvoiceRequest struct {
	Reason *string `json:"reason,omitempty"`
}

func newInvoiceDTO(invoice *models.Invoice) InvoiceDTO {
	return InvoiceDTO{
		ID:            invoice.ID,
		OrderID:       invoice.OrderID,
		InvoiceNumber: invoice.InvoiceNumber,
		Status:        invoice.Status,
		IssuedAt:      invoice.IssuedAt,
		Snapshot:      invoice.DataSnapshot,
		History:       invoice.History,
		VoidedAt:      invoice.VoidedAt,
	}
}

func newCreditNoteDTO(note *models.CreditNote) CreditNoteDTO {
	return CreditNoteDTO{
		ID:               note.ID,
		OrderID:          note.OrderID,
		InvoiceID:        note.InvoiceID,
		CreditNoteNumber: note.CreditNoteNumber,
		AmountCents:      note.AmountCents,
		Reason:           note.Reason,
		CreatedAt:        note.CreatedAt,
	}
}

// InvoicePDF streams the order's invoice PDF, issuing the invoice on first request.
func InvoicePDF(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		userID, orderID, err := callerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pdf, invoice, err := svc.GenerateInvoicePDF(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", invoice.InvoiceNumber+".pdf"))
		w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(pdf); err != nil && logg != nil {
			logg.Warn(r.Context(), "invoice.pdf_write_failed")
		}
	}
}

// ModifyInvoice merges seller, buyer, notes or issue date changes into the invoice.
func ModifyInvoice(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		userID, orderID, err := callerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload invoices.ModifyInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.ModifyInvoice(r.Context(), userID, orderID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newInvoiceDTO(invoice))
	}
}

// VoidInvoice voids the order's invoice and returns the credit note offsetting it.
func VoidInvoice(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}

		userID, orderID, err := callerAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload voidInvoiceRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		note, err := svc.VoidInvoice(r.Context(), userID, orderID, validators.OptionalString(payload.Reason, maxVoidReasonLength))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCreditNoteDTO(note))
	}
}
