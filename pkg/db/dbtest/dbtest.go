// Package dbtest opens isolated in-memory SQLite databases carrying the full
// application schema for repository and service tests.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/migrate"
)

// Open returns a client over a fresh named in-memory database.
func Open(t testing.TB) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
	})
	require.NoError(t, err)
	require.NoError(t, migrate.ApplySQLite(conn))

	client := db.NewFromConn(conn)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// SeedUser inserts a customer.
func SeedUser(t testing.TB, conn *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "Ada",
		LastName:  "Lovelace",
	}
	require.NoError(t, conn.Create(&user).Error)
	return user
}

// SeedProduct inserts an active catalog product.
func SeedProduct(t testing.TB, conn *gorm.DB, sku string, priceCents int64, stock int) models.Product {
	t.Helper()
	product := models.Product{
		ID:         uuid.New(),
		Name:       "Product " + sku,
		Slug:       "product-" + uuid.NewString()[:8],
		SKU:        sku,
		PriceCents: priceCents,
		Stock:      stock,
		Currency:   enums.CurrencyUSD,
		IsActive:   true,
	}
	require.NoError(t, conn.Create(&product).Error)
	return product
}

// SeedAddress inserts an address book entry for userID.
func SeedAddress(t testing.TB, conn *gorm.DB, userID uuid.UUID) models.Address {
	t.Helper()
	address := models.Address{
		ID:         uuid.New(),
		UserID:     userID,
		FullName:   "Ada Lovelace",
		Line1:      "12 St James's Square",
		City:       "London",
		State:      "LDN",
		PostalCode: "SW1Y 4JH",
		Country:    "GB",
	}
	require.NoError(t, conn.Create(&address).Error)
	return address
}

// SeedOrder inserts an order with a single line and returns it with items loaded.
func SeedOrder(t testing.TB, conn *gorm.DB, userID uuid.UUID, totalCents int64) models.Order {
	t.Helper()
	orderID := uuid.New()
	order := models.Order{
		ID:            orderID,
		UserID:        userID,
		Status:        enums.OrderStatusPending,
		TotalCents:    totalCents,
		Currency:      enums.CurrencyUSD,
		PaymentStatus: enums.PaymentStatusUnpaid,
		ShippingAddress: models.Address{
			FullName:   "Ada Lovelace",
			Line1:      "12 St James's Square",
			City:       "London",
			State:      "LDN",
			PostalCode: "SW1Y 4JH",
			Country:    "GB",
		}.Snapshot(),
		Items: []models.OrderItem{{
			ID:             uuid.New(),
			OrderID:        orderID,
			ProductID:      uuid.New(),
			Name:           "Seeded item",
			SKU:            "SEED-1",
			UnitPriceCents: totalCents,
			Quantity:       1,
			Currency:       enums.CurrencyUSD,
		}},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, conn.Create(&order).Error)
	return order
}
