package cart

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/internal/catalog"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(
		NewRepository(client.DB()),
		client,
		catalog.NewRepository(client.DB()),
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	)
	require.NoError(t, err)
	return svc, client
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil)
	require.Error(t, err)
}

func TestAddItemCreatesCartWithPriceSnapshot(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")
	product := dbtest.SeedProduct(t, client.DB(), "P1", 1000, 10)

	cart, err := svc.AddItem(ctx, UserOwner(user.ID), product.ID, 2)
	require.NoError(t, err)
	require.Equal(t, enums.CartStatusActive, cart.Status)
	require.Len(t, cart.Items, 1)
	require.Equal(t, 2, cart.Items[0].Quantity)
	require.Equal(t, int64(1000), cart.Items[0].PriceAtAddCents)

	require.NoError(t, client.DB().Model(&models.Product{}).Where("id = ?", product.ID).Update("price_cents", 1500).Error)

	got, err := svc.GetCart(ctx, UserOwner(user.ID))
	require.NoError(t, err)
	require.Equal(t, int64(1000), got.Items[0].PriceAtAddCents, "snapshot is decoupled from catalog price")
	require.Equal(t, int64(2000), got.TotalCents())
}

func TestAddItemSumsQuantityAndRejectsOverStock(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")
	product := dbtest.SeedProduct(t, client.DB(), "P1", 1000, 4)
	owner := UserOwner(user.ID)

	_, err := svc.AddItem(ctx, owner, product.ID, 3)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, owner, product.ID, 2)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	require.Contains(t, err.Error(), "4 available")
	require.Contains(t, err.Error(), "3 already in cart")

	cart, err := svc.GetCart(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.Equal(t, 3, cart.Items[0].Quantity)

	cart, err = svc.AddItem(ctx, owner, product.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 4, cart.Items[0].Quantity)
}

func TestAddItemUnknownProduct(t *testing.T) {
	svc, client := newTestService(t)
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")

	_, err := svc.AddItem(context.Background(), UserOwner(user.ID), uuid.New(), 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAddItemValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, Owner{}, uuid.New(), 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.AddItem(ctx, GuestOwner("guest-1"), uuid.New(), 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateItem(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	product := dbtest.SeedProduct(t, client.DB(), "P1", 1000, 5)
	owner := GuestOwner("guest-1")

	_, err := svc.UpdateItem(ctx, owner, product.ID, 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "no cart yet")

	_, err = svc.AddItem(ctx, owner, product.ID, 1)
	require.NoError(t, err)

	require.NoError(t, client.DB().Model(&models.Product{}).Where("id = ?", product.ID).Update("price_cents", 1200).Error)
	cart, err := svc.UpdateItem(ctx, owner, product.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 5, cart.Items[0].Quantity)
	require.Equal(t, int64(1200), cart.Items[0].PriceAtAddCents)

	_, err = svc.UpdateItem(ctx, owner, product.ID, 6)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	_, err = svc.UpdateItem(ctx, owner, uuid.New(), 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	cart, err = svc.UpdateItem(ctx, owner, product.ID, 0)
	require.NoError(t, err)
	require.Empty(t, cart.Items)
}

func TestRemoveItem(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	a := dbtest.SeedProduct(t, client.DB(), "A", 100, 5)
	b := dbtest.SeedProduct(t, client.DB(), "B", 200, 5)
	owner := GuestOwner("guest-1")

	_, err := svc.AddItem(ctx, owner, a.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, owner, b.ID, 1)
	require.NoError(t, err)

	cart, err := svc.RemoveItem(ctx, owner, a.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.Equal(t, b.ID, cart.Items[0].ProductID)

	_, err = svc.RemoveItem(ctx, owner, a.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.RemoveItem(ctx, GuestOwner("other"), b.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMergeGuestCartTransfersWhenUserHasNoCart(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")
	product := dbtest.SeedProduct(t, client.DB(), "P1", 1000, 5)

	guest, err := svc.AddItem(ctx, GuestOwner("guest-1"), product.ID, 2)
	require.NoError(t, err)

	merged, err := svc.MergeGuestCart(ctx, user.ID, guest.ID, "guest-1")
	require.NoError(t, err)
	require.Equal(t, guest.ID, merged.ID, "ownership transfer keeps the cart")
	require.NotNil(t, merged.UserID)
	require.Equal(t, user.ID, *merged.UserID)
	require.Nil(t, merged.GuestToken)
	require.Equal(t, enums.CartStatusActive, merged.Status)

	_, err = svc.GetCart(ctx, GuestOwner("guest-1"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMergeGuestCartSumsAndCopiesLines(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")
	shared := dbtest.SeedProduct(t, client.DB(), "SHARED", 1000, 3)
	guestOnly := dbtest.SeedProduct(t, client.DB(), "GUEST", 500, 5)

	userCart, err := svc.AddItem(ctx, UserOwner(user.ID), shared.ID, 2)
	require.NoError(t, err)

	guestOwner := GuestOwner("guest-1")
	_, err = svc.AddItem(ctx, guestOwner, shared.ID, 2)
	require.NoError(t, err)
	guest, err := svc.AddItem(ctx, guestOwner, guestOnly.ID, 1)
	require.NoError(t, err)

	merged, err := svc.MergeGuestCart(ctx, user.ID, guest.ID, "guest-1")
	require.NoError(t, err)
	require.Equal(t, userCart.ID, merged.ID)
	require.Len(t, merged.Items, 2)
	require.Equal(t, 4, merged.Item(shared.ID).Quantity, "merge does not re-check stock")

	copied := merged.Item(guestOnly.ID)
	require.NotNil(t, copied)
	require.Equal(t, int64(500), copied.PriceAtAddCents)
	require.NotEqual(t, guest.Item(guestOnly.ID).ID, copied.ID)

	var stored models.Cart
	require.NoError(t, client.DB().First(&stored, "id = ?", guest.ID).Error)
	require.Equal(t, enums.CartStatusMerged, stored.Status)

	_, err = svc.MergeGuestCart(ctx, user.ID, guest.ID, "guest-1")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "merged carts are terminal")
}

func TestMergeGuestCartRequiresMatchingGuestToken(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")
	product := dbtest.SeedProduct(t, client.DB(), "P1", 1000, 5)

	guest, err := svc.AddItem(ctx, GuestOwner("guest-1"), product.ID, 2)
	require.NoError(t, err)

	_, err = svc.MergeGuestCart(ctx, user.ID, guest.ID, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.MergeGuestCart(ctx, user.ID, guest.ID, "guest-2")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var stored models.Cart
	require.NoError(t, client.DB().First(&stored, "id = ?", guest.ID).Error)
	require.Nil(t, stored.UserID)
	require.Equal(t, enums.CartStatusActive, stored.Status)

	stillGuest, err := svc.GetCart(ctx, GuestOwner("guest-1"))
	require.NoError(t, err)
	require.Equal(t, guest.ID, stillGuest.ID)
}

func TestMergeGuestCartMissing(t *testing.T) {
	svc, client := newTestService(t)
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")

	_, err := svc.MergeGuestCart(context.Background(), user.ID, uuid.New(), "guest-1")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
