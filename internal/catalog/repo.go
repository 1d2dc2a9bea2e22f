// Package catalog is the read-only gateway over products, saved addresses and
// user profiles consulted by the order lifecycle.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// Gateway is the lookup contract consumed by carts, orders and invoices.
type Gateway interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	FindAddress(ctx context.Context, userID, id uuid.UUID) (types.Address, error)
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	WithTx(tx *gorm.DB) Gateway
}

// Repository implements Gateway on the shared GORM connection.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) Gateway {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindProduct returns an active product or NotFound.
func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&product).Error
	if err != nil {
		return nil, notFound(err, "product not found")
	}
	return &product, nil
}

// FindProducts loads several products in one round trip. Missing ids are
// simply absent from the result.
func (r *Repository) FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// FindAddress resolves an address owned by userID into an order snapshot.
// Addresses owned by someone else are reported as NotFound.
func (r *Repository) FindAddress(ctx context.Context, userID, id uuid.UUID) (types.Address, error) {
	var address models.Address
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&address).Error
	if err != nil {
		return types.Address{}, notFound(err, "address not found")
	}
	return address.Snapshot(), nil
}

// FindUser returns the user profile used for notifications and gateway customer lookups.
func (r *Repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err, "user not found")
	}
	return &user, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
