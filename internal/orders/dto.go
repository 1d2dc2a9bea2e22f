package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// OrderItemDTO is a single frozen order line.
type OrderItemDTO struct {
	ProductID      uuid.UUID      `json:"product_id"`
	Name           string         `json:"name"`
	SKU            string         `json:"sku"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	Quantity       int            `json:"quantity"`
	LineTotalCents int64          `json:"line_total_cents"`
	Currency       enums.Currency `json:"currency"`
}

// OrderDetail is the caller-facing order view. Card-like payment fields are masked.
type OrderDetail struct {
	ID              uuid.UUID           `json:"id"`
	Status          enums.OrderStatus   `json:"status"`
	TotalCents      int64               `json:"total_cents"`
	Currency        enums.Currency      `json:"currency"`
	ShippingAddress types.Address       `json:"shipping_address"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	PaymentID       *string             `json:"payment_id,omitempty"`
	PaymentMethod   *string             `json:"payment_method,omitempty"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	RefundID        *string             `json:"refund_id,omitempty"`
	RefundedAt      *time.Time          `json:"refunded_at,omitempty"`
	Items           []OrderItemDTO      `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
}

// OrderSummary is the list row for a user's order history.
type OrderSummary struct {
	ID            uuid.UUID           `json:"id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	TotalCents    int64               `json:"total_cents"`
	Currency      enums.Currency      `json:"currency"`
	TotalItems    int                 `json:"total_items"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OrderList wraps a page of summaries plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// NewOrderDetail maps a persisted order into its masked DTO.
func NewOrderDetail(order models.Order) OrderDetail {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ProductID:      item.ProductID,
			Name:           item.Name,
			SKU:            item.SKU,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: item.LineTotalCents(),
			Currency:       item.Currency,
		})
	}
	return OrderDetail{
		ID:              order.ID,
		Status:          order.Status,
		TotalCents:      order.TotalCents,
		Currency:        order.Currency,
		ShippingAddress: order.ShippingAddress.Clone(),
		PaymentStatus:   order.PaymentStatus,
		PaymentID:       maskPtr(order.PaymentID),
		PaymentMethod:   maskPtr(order.PaymentMethod),
		PaidAt:          order.PaidAt,
		RefundID:        order.RefundID,
		RefundedAt:      order.RefundedAt,
		Items:           items,
		CreatedAt:       order.CreatedAt,
	}
}

func newOrderSummary(order models.Order) OrderSummary {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	return OrderSummary{
		ID:            order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalCents:    order.TotalCents,
		Currency:      order.Currency,
		TotalItems:    count,
		CreatedAt:     order.CreatedAt,
	}
}
