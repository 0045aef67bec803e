package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/pkg/config"
)

type portion struct {
	ID       int
	Name     string
	Quantity int
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.Exec(`CREATE TABLE portions (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		quantity INTEGER NOT NULL CHECK (quantity >= 0)
	)`).Error)
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&portion{Name: "plov", Quantity: 3}).Error
	}))

	var count int64
	require.NoError(t, db.Model(&portion{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&portion{Name: "lagman", Quantity: 1}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	require.NoError(t, db.Model(&portion{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestWithTx_RepanicsAfterRollback(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db)

	require.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			_ = tx.Create(&portion{Name: "manty", Quantity: 2}).Error
			panic("kaboom")
		})
	})

	var count int64
	require.NoError(t, db.Model(&portion{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestWithTx_RetriesSerializationFailures(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db)
	ctx := context.Background()

	attempts := 0
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		attempts++
		if err := tx.Create(&portion{Name: fmt.Sprintf("samsa-%d", attempts), Quantity: 1}).Error; err != nil {
			return err
		}
		if attempts == 1 {
			return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
		}
		return nil
	}))
	require.Equal(t, 2, attempts)

	var names []string
	require.NoError(t, db.Model(&portion{}).Pluck("name", &names).Error)
	require.Equal(t, []string{"samsa-2"}, names)

	attempts = 0
	err := client.WithTx(ctx, func(*gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.True(t, IsSerializationFailure(err))
	require.Equal(t, maxTxAttempts, attempts)

	attempts = 0
	require.Error(t, client.WithTx(ctx, func(*gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: "23505"}
	}))
	require.Equal(t, 1, attempts)
}

func TestPing(t *testing.T) {
	client := NewFromGorm(newTestDB(t))
	require.NoError(t, client.Ping(context.Background()))
}

func TestNew_OpensSQLite(t *testing.T) {
	client, err := New(context.Background(), config.DBConfig{
		Driver: config.DBDriverSQLite,
		DSN:    "file::memory:",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(context.Background()))
	require.NoError(t, client.DB().Exec("SELECT 1").Error)
}

func TestNew_RequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, nil)
	require.Error(t, err)
}

func TestConstraintHelpers(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&portion{Name: "plov", Quantity: 1}).Error)

	dup := db.Create(&portion{Name: "plov", Quantity: 1}).Error
	require.True(t, IsUniqueViolation(dup, ""))
	require.True(t, IsUniqueViolation(dup, "portions.name"))
	require.False(t, IsUniqueViolation(dup, "orders.payment_id"))

	negative := db.Create(&portion{Name: "beshbarmak", Quantity: -1}).Error
	require.True(t, IsCheckViolation(negative))
	require.False(t, IsUniqueViolation(negative, ""))

	require.False(t, IsUniqueViolation(nil, ""))
	require.False(t, IsCheckViolation(errors.New("plain")))
}
