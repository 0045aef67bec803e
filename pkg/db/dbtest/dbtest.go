// Package dbtest opens migrated in-memory sqlite databases for package tests.
package dbtest

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/asbolsyn/mealmarket-backend/pkg/db"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	"github.com/asbolsyn/mealmarket-backend/pkg/migrate"
)

// Open returns a fresh schema-applied database. The pool is pinned to one
// connection so the in-memory database survives for the test's lifetime;
// code under test must therefore use the tx handle inside transactions.
func Open(t testing.TB) *db.Client {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:                 gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.UpEmbedded(context.Background(), sqlDB, migrate.DialectSQLite))
	return db.NewFromGorm(conn)
}

// SeedVendor inserts an approved vendor.
func SeedVendor(t testing.TB, client *db.Client) models.Vendor {
	t.Helper()
	vendor := models.Vendor{
		ID:         uuid.New(),
		TelegramID: int64(uuid.New().ID()),
		Name:       "Dastarkhan Kitchen",
		Status:     enums.VendorStatusApproved,
	}
	require.NoError(t, client.DB().Create(&vendor).Error)
	return vendor
}

// SeedConsumer inserts a consumer.
func SeedConsumer(t testing.TB, client *db.Client) models.Consumer {
	t.Helper()
	consumer := models.Consumer{ID: uuid.New(), TelegramID: int64(uuid.New().ID())}
	require.NoError(t, client.DB().Create(&consumer).Error)
	return consumer
}

// MealOption tweaks a seeded meal before insert.
type MealOption func(*models.Meal)

func WithQuantity(q int) MealOption {
	return func(m *models.Meal) { m.Quantity = q }
}

func WithPrice(p string) MealOption {
	return func(m *models.Meal) { m.Price = decimal.RequireFromString(p) }
}

func WithPickupEnd(end time.Time) MealOption {
	return func(m *models.Meal) {
		m.PickupEndTime = end.UTC()
		if !m.PickupStartTime.Before(m.PickupEndTime) {
			m.PickupStartTime = m.PickupEndTime.Add(-2 * time.Hour)
		}
	}
}

func Inactive() MealOption {
	return func(m *models.Meal) { m.IsActive = false }
}

// SeedMeal inserts an active meal owned by vendorID: 5 portions at 1500.00,
// pickup window ending two hours from now.
func SeedMeal(t testing.TB, client *db.Client, vendorID uuid.UUID, opts ...MealOption) models.Meal {
	t.Helper()
	now := time.Now().UTC()
	meal := models.Meal{
		ID:              uuid.New(),
		VendorID:        vendorID,
		Name:            "Plov",
		Price:           decimal.RequireFromString("1500.00"),
		Quantity:        5,
		PickupStartTime: now.Add(-time.Hour),
		PickupEndTime:   now.Add(2 * time.Hour),
		IsActive:        true,
	}
	for _, opt := range opts {
		opt(&meal)
	}
	require.NoError(t, client.DB().Create(&meal).Error)
	return meal
}

// SeedOrder inserts an order in the given status.
func SeedOrder(t testing.TB, client *db.Client, mealID, consumerID uuid.UUID, quantity int, status enums.OrderStatus) models.Order {
	t.Helper()
	now := time.Now().UTC()
	order := models.Order{
		ID:         uuid.New(),
		MealID:     mealID,
		ConsumerID: consumerID,
		Quantity:   quantity,
		Status:     status,
		CreatedAt:  now,
	}
	switch status {
	case enums.OrderStatusPaid:
		order.PaidAt = &now
	case enums.OrderStatusCompleted:
		order.PaidAt = &now
		order.CompletedAt = &now
	case enums.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	require.NoError(t, client.DB().Create(&order).Error)
	return order
}
