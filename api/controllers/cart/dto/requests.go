package cartdto

import "github.com/google/uuid"

// AddItemRequest adds quantity units of a product to the caller's cart.
type AddItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// UpdateItemRequest sets the quantity of an existing line. Zero removes it.
type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"min=0"`
}

// MergeRequest names the guest cart to fold into the authenticated user's cart.
type MergeRequest struct {
	GuestCartID uuid.UUID `json:"guest_cart_id" validate:"required"`
}
