package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/cart"
	"github.com/angelmondragon/orderflow-backend/internal/catalog"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines order creation and read operations.
type Service interface {
	CreateOrder(ctx context.Context, userID, addressID uuid.UUID) (*OrderDetail, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDetail, error)
	ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
}

type service struct {
	repo    Repository
	carts   cart.CartRepository
	catalog catalog.Gateway
	tx      txRunner
	outbox  outbox.Emitter
	logg    *logger.Logger
}

// NewService wires the order service.
func NewService(repo Repository, carts cart.CartRepository, catalogGateway catalog.Gateway, tx txRunner, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogGateway == nil {
		return nil, fmt.Errorf("catalog gateway required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		carts:   carts,
		catalog: catalogGateway,
		tx:      tx,
		outbox:  emitter,
		logg:    logg,
	}, nil
}

// CreateOrder freezes the user's active cart into an order. The order, its
// lines, the cart flip to ordered and the order_created event share one
// transaction. Prices come from the cart snapshot, not the live catalog.
func (s *service) CreateOrder(ctx context.Context, userID, addressID uuid.UUID) (*OrderDetail, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if addressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address_id is required")
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		catalogTx := s.catalog.WithTx(tx)

		active, err := carts.FindActiveByOwner(ctx, cart.UserOwner(userID))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(active.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}

		address, err := catalogTx.FindAddress(ctx, userID, addressID)
		if err != nil {
			return err
		}

		productIDs := make([]uuid.UUID, 0, len(active.Items))
		for _, item := range active.Items {
			productIDs = append(productIDs, item.ProductID)
		}
		products, err := catalogTx.FindProducts(ctx, productIDs)
		if err != nil {
			return err
		}

		order, err := buildOrder(userID, active, address, products)
		if err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := carts.UpdateStatus(ctx, active.ID, enums.CartStatusOrdered); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark cart ordered")
		}

		if err := s.outbox.Emit(ctx, tx, orderCreatedEvent(*order)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order_created")
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, created.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"user_id":     userID.String(),
		"total_cents": created.TotalCents,
		"items":       len(created.Items),
	})
	s.logg.Info(logCtx, "order.created")

	detail := NewOrderDetail(*created)
	return &detail, nil
}

func buildOrder(userID uuid.UUID, source *models.Cart, address types.Address, products map[uuid.UUID]models.Product) (*models.Order, error) {
	orderID := uuid.New()
	cartID := source.ID
	order := &models.Order{
		ID:              orderID,
		UserID:          userID,
		CartID:          &cartID,
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusUnpaid,
		ShippingAddress: address.Clone(),
		Items:           make([]models.OrderItem, 0, len(source.Items)),
	}

	for _, line := range source.Items {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", line.ProductID))
		}
		if order.Currency == "" {
			order.Currency = product.Currency
		} else if order.Currency != product.Currency {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart mixes currencies")
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:             uuid.New(),
			OrderID:        orderID,
			ProductID:      line.ProductID,
			Name:           product.Name,
			SKU:            product.SKU,
			UnitPriceCents: line.PriceAtAddCents,
			Quantity:       line.Quantity,
			Currency:       product.Currency,
		})
		order.TotalCents += line.PriceAtAddCents * int64(line.Quantity)
	}
	return order, nil
}

func orderCreatedEvent(order models.Order) outbox.DomainEvent {
	lines := make([]payloads.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderLine{
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: enums.UserRoleCustomer.String()},
		Data: payloads.OrderCreatedEvent{
			OrderID:    order.ID,
			UserID:     order.UserID,
			TotalCents: order.TotalCents,
			Currency:   order.Currency,
			Items:      lines,
			CreatedAt:  createdAt,
		},
	}
}

// GetOrder returns the order when it belongs to userID. Orders owned by
// someone else are Forbidden; unknown ids are NotFound.
func (s *service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	detail := NewOrderDetail(*order)
	return &detail, nil
}

func (s *service) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	rows, next, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	out := &OrderList{Orders: make([]OrderSummary, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		out.Orders = append(out.Orders, newOrderSummary(row))
	}
	return out, nil
}
