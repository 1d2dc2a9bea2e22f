package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindActiveByOwner(ctx context.Context, owner Owner) (*models.Cart, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.CartStatus) error
	TransferToUser(ctx context.Context, id, userID uuid.UUID) error
	SaveItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
}

// Owner identifies whose active cart an operation targets. An authenticated
// user always takes precedence over a guest token.
type Owner struct {
	UserID     *uuid.UUID
	GuestToken string
}

// UserOwner builds an Owner for an authenticated user.
func UserOwner(userID uuid.UUID) Owner {
	return Owner{UserID: &userID}
}

// GuestOwner builds an Owner for an anonymous guest token.
func GuestOwner(token string) Owner {
	return Owner{GuestToken: token}
}

// IsZero reports whether neither a user nor a guest token is set.
func (o Owner) IsZero() bool {
	return (o.UserID == nil || *o.UserID == uuid.Nil) && o.GuestToken == ""
}

// IsGuest reports whether the owner is anonymous.
func (o Owner) IsGuest() bool {
	return (o.UserID == nil || *o.UserID == uuid.Nil) && o.GuestToken != ""
}

func (o Owner) logFields() map[string]any {
	if o.IsGuest() {
		return map[string]any{"cart_owner": "guest"}
	}
	if o.UserID != nil {
		return map[string]any{"cart_owner": "user", "user_id": o.UserID.String()}
	}
	return map[string]any{}
}
