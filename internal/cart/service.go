package cart

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/catalog"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes cart mutations for users and guests.
type Service interface {
	GetCart(ctx context.Context, owner Owner) (*models.Cart, error)
	AddItem(ctx context.Context, owner Owner, productID uuid.UUID, quantity int) (*models.Cart, error)
	UpdateItem(ctx context.Context, owner Owner, productID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, owner Owner, productID uuid.UUID) (*models.Cart, error)
	MergeGuestCart(ctx context.Context, userID, guestCartID uuid.UUID, guestToken string) (*models.Cart, error)
}

type service struct {
	repo    CartRepository
	tx      txRunner
	catalog catalog.Gateway
	logg    *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, catalogGateway catalog.Gateway, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalogGateway == nil {
		return nil, fmt.Errorf("catalog gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		catalog: catalogGateway,
		logg:    logg,
	}, nil
}

func (s *service) GetCart(ctx context.Context, owner Owner) (*models.Cart, error) {
	if owner.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user or guest token required")
	}
	cart, err := s.repo.FindActiveByOwner(ctx, owner)
	if err != nil {
		return nil, cartLookupError(err)
	}
	return cart, nil
}

func (s *service) AddItem(ctx context.Context, owner Owner, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if owner.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user or guest token required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var cartID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := s.catalog.WithTx(tx).FindProduct(ctx, productID)
		if err != nil {
			return err
		}

		cart, err := s.activeOrCreate(ctx, repo, owner)
		if err != nil {
			return err
		}
		cartID = cart.ID

		line := cart.Item(productID)
		inCart := 0
		if line != nil {
			inCart = line.Quantity
		}
		if inCart+quantity > product.Stock {
			return insufficientStock(product, inCart)
		}

		if line == nil {
			line = &models.CartItem{CartID: cart.ID, ProductID: productID}
		}
		line.Quantity = inCart + quantity
		line.PriceAtAddCents = product.PriceCents
		if err := repo.SaveItem(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, owner.logFields())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"cart_id":    cartID.String(),
		"product_id": productID.String(),
		"quantity":   quantity,
	})
	s.logg.Info(logCtx, "cart.item_added")

	return s.reload(ctx, cartID)
}

func (s *service) UpdateItem(ctx context.Context, owner Owner, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, owner, productID)
	}
	if owner.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user or guest token required")
	}

	var cartID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindActiveByOwner(ctx, owner)
		if err != nil {
			return cartLookupError(err)
		}
		cartID = cart.ID

		line := cart.Item(productID)
		if line == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}

		product, err := s.catalog.WithTx(tx).FindProduct(ctx, productID)
		if err != nil {
			return err
		}
		if quantity > product.Stock {
			return insufficientStock(product, line.Quantity)
		}

		line.Quantity = quantity
		line.PriceAtAddCents = product.PriceCents
		if err := repo.SaveItem(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"cart_id":    cartID.String(),
		"product_id": productID.String(),
		"quantity":   quantity,
	})
	s.logg.Info(logCtx, "cart.item_updated")

	return s.reload(ctx, cartID)
}

func (s *service) RemoveItem(ctx context.Context, owner Owner, productID uuid.UUID) (*models.Cart, error) {
	if owner.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user or guest token required")
	}

	var cartID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindActiveByOwner(ctx, owner)
		if err != nil {
			return cartLookupError(err)
		}
		cartID = cart.ID

		line := cart.Item(productID)
		if line == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		if err := repo.DeleteItem(ctx, line.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"cart_id":    cartID.String(),
		"product_id": productID.String(),
	})
	s.logg.Info(logCtx, "cart.item_removed")

	return s.reload(ctx, cartID)
}

// MergeGuestCart folds an active guest cart into the user's active cart. The
// caller must present the guest token the cart was created under. Merged
// quantities are not checked against stock.
func (s *service) MergeGuestCart(ctx context.Context, userID, guestCartID uuid.UUID, guestToken string) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if guestCartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest_cart_id is required")
	}
	if guestToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest token is required")
	}

	var (
		resultID    uuid.UUID
		transferred bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		guest, err := repo.FindByID(ctx, guestCartID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "guest cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart")
		}
		if guest.Status != enums.CartStatusActive || guest.UserID != nil || !ownsGuestCart(guest, guestToken) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "guest cart not found")
		}

		target, err := repo.FindActiveByOwner(ctx, UserOwner(userID))
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user cart")
		}
		if target == nil {
			if err := repo.TransferToUser(ctx, guest.ID, userID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transfer guest cart")
			}
			resultID = guest.ID
			transferred = true
			return nil
		}

		for _, guestLine := range guest.Items {
			if existing := target.Item(guestLine.ProductID); existing != nil {
				existing.Quantity += guestLine.Quantity
				if err := repo.SaveItem(ctx, existing); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge cart item")
				}
				continue
			}
			copied := models.CartItem{
				CartID:          target.ID,
				ProductID:       guestLine.ProductID,
				Quantity:        guestLine.Quantity,
				PriceAtAddCents: guestLine.PriceAtAddCents,
			}
			if err := repo.SaveItem(ctx, &copied); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "copy cart item")
			}
			target.Items = append(target.Items, copied)
		}
		if err := repo.UpdateStatus(ctx, guest.ID, enums.CartStatusMerged); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark guest cart merged")
		}
		resultID = target.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":       userID.String(),
		"guest_cart_id": guestCartID.String(),
		"cart_id":       resultID.String(),
		"transferred":   transferred,
	})
	s.logg.Info(logCtx, "cart.guest_merged")

	return s.reload(ctx, resultID)
}

func (s *service) activeOrCreate(ctx context.Context, repo CartRepository, owner Owner) (*models.Cart, error) {
	cart, err := repo.FindActiveByOwner(ctx, owner)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
	}

	cart = &models.Cart{Status: enums.CartStatusActive}
	if owner.IsGuest() {
		token := owner.GuestToken
		cart.GuestToken = &token
	} else {
		userID := *owner.UserID
		cart.UserID = &userID
	}
	if err := repo.Create(ctx, cart); err != nil {
		if db.IsUniqueViolation(err, "") {
			existing, findErr := repo.FindActiveByOwner(ctx, owner)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload active cart")
			}
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return cart, nil
}

func (s *service) reload(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindByID(ctx, cartID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	return cart, nil
}

func insufficientStock(product *models.Product, inCart int) error {
	return pkgerrors.New(
		pkgerrors.CodeInsufficientStock,
		fmt.Sprintf("insufficient stock for %s: %d available, %d already in cart", product.SKU, product.Stock, inCart),
	).WithDetails(map[string]any{
		"product_id": product.ID.String(),
		"available":  product.Stock,
		"in_cart":    inCart,
	})
}

func cartLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
}

// ownsGuestCart reports whether token is the one the guest cart was created
// under. A mismatch reads as not found.
func ownsGuestCart(cart *models.Cart, token string) bool {
	if cart.GuestToken == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*cart.GuestToken), []byte(token)) == 1
}
