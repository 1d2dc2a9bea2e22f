package cartdto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Cart is the cart snapshot exposed through the API.
type Cart struct {
	ID         uuid.UUID        `json:"id"`
	Status     enums.CartStatus `json:"status"`
	Guest      bool             `json:"guest"`
	Items      []CartItem       `json:"items"`
	TotalCents int64            `json:"total_cents"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// CartItem is a single product line with the price captured when it was added.
type CartItem struct {
	ProductID       uuid.UUID `json:"product_id"`
	Quantity        int       `json:"quantity"`
	PriceAtAddCents int64     `json:"price_at_add_cents"`
	LineTotalCents  int64     `json:"line_total_cents"`
}

// NewCart maps a persisted cart into its API shape.
func NewCart(record *models.Cart) Cart {
	if record == nil {
		return Cart{Items: []CartItem{}}
	}
	items := make([]CartItem, 0, len(record.Items))
	for _, item := range record.Items {
		items = append(items, CartItem{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			PriceAtAddCents: item.PriceAtAddCents,
			LineTotalCents:  item.PriceAtAddCents * int64(item.Quantity),
		})
	}
	return Cart{
		ID:         record.ID,
		Status:     record.Status,
		Guest:      record.UserID == nil,
		Items:      items,
		TotalCents: record.TotalCents(),
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}
