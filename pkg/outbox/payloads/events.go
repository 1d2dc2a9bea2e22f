package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// OrderLine is the compact item view carried on order events.
type OrderLine struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
}

// OrderCreatedEvent is emitted in the same transaction that freezes a cart into an order.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID      `json:"order_id"`
	UserID     uuid.UUID      `json:"user_id"`
	TotalCents int64          `json:"total_cents"`
	Currency   enums.Currency `json:"currency"`
	Items      []OrderLine    `json:"items"`
	CreatedAt  time.Time      `json:"created_at"`
}

// OrderPaidEvent is emitted the first time a webhook settles an order.
type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	ExternalIntentID string    `json:"external_intent_id"`
	AmountCents      int64     `json:"amount_cents"`
	PaidAt           time.Time `json:"paid_at"`
}

// PaymentFailedEvent reports a failed payment attempt.
type PaymentFailedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	ExternalIntentID string    `json:"external_intent_id"`
	FailureMessage   string    `json:"failure_message,omitempty"`
}

// OrderRefundedEvent is emitted when the gateway confirms a refund.
type OrderRefundedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	RefundID   string    `json:"refund_id,omitempty"`
	RefundedAt time.Time `json:"refunded_at"`
}

// InvoiceVoidedEvent carries the credit note issued for a voided invoice.
type InvoiceVoidedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	InvoiceID        uuid.UUID `json:"invoice_id"`
	InvoiceNumber    string    `json:"invoice_number"`
	CreditNoteNumber string    `json:"credit_note_number"`
	Reason           string    `json:"reason,omitempty"`
}
