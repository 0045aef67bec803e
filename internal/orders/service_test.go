package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/internal/earnings"
	"github.com/asbolsyn/mealmarket-backend/internal/meals"
	"github.com/asbolsyn/mealmarket-backend/internal/tracking"
	"github.com/asbolsyn/mealmarket-backend/pkg/db"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/dbtest"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox"
)

type flatRate struct{}

func (flatRate) RateAtTx(context.Context, *gorm.DB, time.Time) (decimal.Decimal, error) {
	return decimal.RequireFromString("0.15"), nil
}

type fixture struct {
	client  *db.Client
	svc     Service
	outbox  *outbox.Repository
	metrics tracking.Repository
	vendor  models.Vendor
	buyer   models.Consumer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	metricsRepo := tracking.NewRepository(client.DB())
	tracker, err := tracking.NewService(metricsRepo)
	require.NoError(t, err)
	ledger, err := earnings.NewService(earnings.ServiceParams{
		Repository: earnings.NewRepository(client.DB()),
		Meals:      meals.NewRepository(client.DB()),
		Rates:      flatRate{},
		Tracker:    tracker,
		DB:         client,
	})
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(client.DB())
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(client.DB()),
		Meals:      meals.NewRepository(client.DB()),
		Earnings:   ledger,
		Outbox:     outbox.NewService(outboxRepo, nil),
		Tracker:    tracker,
		DB:         client,
	})
	require.NoError(t, err)
	return &fixture{
		client:  client,
		svc:     svc,
		outbox:  outboxRepo,
		metrics: metricsRepo,
		vendor:  dbtest.SeedVendor(t, client),
		buyer:   dbtest.SeedConsumer(t, client),
	}
}

func (f *fixture) countOrders(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(&models.Order{}).Count(&n).Error)
	return n
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID, dbtest.WithQuantity(3))
	ctx := context.Background()

	order, err := f.svc.Create(ctx, CreateOrderInput{MealID: meal.ID, ConsumerID: f.buyer.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Nil(t, order.PaymentID)

	detail, err := f.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, f.vendor.ID, detail.VendorID)
	assert.Equal(t, "3000.00", detail.Amount.StringFixed(2))

	// Creation does not reserve stock; payment does.
	stored, err := meals.NewRepository(f.client.DB()).Get(ctx, meal.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Quantity)

	count, err := f.metrics.CountByType(ctx, enums.MetricOrderCreated)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestCreateOrderRejections(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	stocked := dbtest.SeedMeal(t, f.client, f.vendor.ID, dbtest.WithQuantity(1))
	inactive := dbtest.SeedMeal(t, f.client, f.vendor.ID, dbtest.Inactive())
	ended := dbtest.SeedMeal(t, f.client, f.vendor.ID, dbtest.WithPickupEnd(now.Add(-time.Minute)))

	tests := []struct {
		name  string
		input CreateOrderInput
		code  pkgerrors.Code
	}{
		{"out of stock", CreateOrderInput{MealID: stocked.ID, ConsumerID: f.buyer.ID, Quantity: 2}, pkgerrors.CodeOutOfStock},
		{"inactive meal", CreateOrderInput{MealID: inactive.ID, ConsumerID: f.buyer.ID, Quantity: 1}, pkgerrors.CodeMealUnavailable},
		{"pickup ended", CreateOrderInput{MealID: ended.ID, ConsumerID: f.buyer.ID, Quantity: 1}, pkgerrors.CodeMealUnavailable},
		{"missing meal", CreateOrderInput{MealID: uuid.New(), ConsumerID: f.buyer.ID, Quantity: 1}, pkgerrors.CodeNotFound},
		{"zero quantity", CreateOrderInput{MealID: stocked.ID, ConsumerID: f.buyer.ID}, pkgerrors.CodeValidation},
		{"missing consumer", CreateOrderInput{MealID: stocked.ID, Quantity: 1}, pkgerrors.CodeValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
	assert.Zero(t, f.countOrders(t))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(enums.OrderStatusPending, enums.OrderStatusPaid))
	assert.True(t, CanTransition(enums.OrderStatusPending, enums.OrderStatusCancelled))
	assert.True(t, CanTransition(enums.OrderStatusPaid, enums.OrderStatusCompleted))
	assert.True(t, CanTransition(enums.OrderStatusPaid, enums.OrderStatusCancelled))
	assert.False(t, CanTransition(enums.OrderStatusPending, enums.OrderStatusCompleted))
	assert.False(t, CanTransition(enums.OrderStatusCompleted, enums.OrderStatusCancelled))
	assert.False(t, CanTransition(enums.OrderStatusCancelled, enums.OrderStatusPending))
}

func TestTransitionEdges(t *testing.T) {
	tests := []struct {
		from enums.OrderStatus
		to   enums.OrderStatus
		ok   bool
	}{
		// paid only through payment confirmation
		{enums.OrderStatusPending, enums.OrderStatusPaid, false},
		{enums.OrderStatusPaid, enums.OrderStatusCompleted, true},
		{enums.OrderStatusPending, enums.OrderStatusCancelled, true},
		{enums.OrderStatusPaid, enums.OrderStatusCancelled, true},
		{enums.OrderStatusPending, enums.OrderStatusCompleted, false},
		{enums.OrderStatusPaid, enums.OrderStatusPaid, false},
		{enums.OrderStatusCompleted, enums.OrderStatusCancelled, false},
		{enums.OrderStatusCompleted, enums.OrderStatusPaid, false},
		{enums.OrderStatusCancelled, enums.OrderStatusPaid, false},
		{enums.OrderStatusCancelled, enums.OrderStatusPending, false},
	}

	f := newFixture(t)
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID)
	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			order := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, tc.from)
			got, err := f.svc.Transition(context.Background(), order.ID, tc.to)
			if !tc.ok {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "got %v", err)
				stored, err := NewRepository(f.client.DB()).Get(context.Background(), order.ID)
				require.NoError(t, err)
				assert.Equal(t, tc.from, stored.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.to, got.Status)
			stored, err := NewRepository(f.client.DB()).Get(context.Background(), order.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.to, stored.Status)
		})
	}

	_, err := f.svc.Transition(context.Background(), uuid.New(), enums.OrderStatusCancelled)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestConcurrentTransitionsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID)
	order := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, enums.OrderStatusPending)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	targets := []enums.OrderStatus{enums.OrderStatusCancelled, enums.OrderStatusCancelled, enums.OrderStatusCancelled, enums.OrderStatusCancelled}
	for _, target := range targets {
		wg.Add(1)
		go func(target enums.OrderStatus) {
			defer wg.Done()
			_, err := f.svc.Transition(context.Background(), order.ID, target)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				losses++
			}
		}(target)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, len(targets)-1, losses)
}

func TestCompleteRecordsEarningsAndEvent(t *testing.T) {
	f := newFixture(t)
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID, dbtest.WithPrice("1500.00"))
	order := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 2, enums.OrderStatusPaid)
	ctx := context.Background()

	result, err := f.svc.Complete(ctx, order.ID, f.vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, result.Order.Status)
	require.NotNil(t, result.Order.CompletedAt)
	assert.Equal(t, "3000.00", result.Earnings.GrossAmount.StringFixed(2))
	assert.Equal(t, "450.00", result.Earnings.CommissionAmount.StringFixed(2))
	assert.Equal(t, "2550.00", result.Earnings.NetAmount.StringFixed(2))

	events, err := f.outbox.ListByAggregate(enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCompleted, events[0].EventType)

	count, err := f.metrics.CountByType(ctx, enums.MetricOrderCompleted)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	_, err = f.svc.Complete(ctx, order.ID, f.vendor.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestCompleteRejectsForeignVendorAndUnpaidOrders(t *testing.T) {
	f := newFixture(t)
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID)
	paid := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, enums.OrderStatusPaid)
	pending := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, enums.OrderStatusPending)
	ctx := context.Background()

	other := dbtest.SeedVendor(t, f.client)
	_, err := f.svc.Complete(ctx, paid.ID, other.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Complete(ctx, pending.ID, f.vendor.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	var earningsRows int64
	require.NoError(t, f.client.DB().Model(&models.VendorEarnings{}).Count(&earningsRows).Error)
	assert.Zero(t, earningsRows)

	stored, err := NewRepository(f.client.DB()).Get(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, stored.Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID)
	ctx := context.Background()

	for _, status := range []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPaid} {
		order := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, status)
		cancelled, err := f.svc.Cancel(ctx, order.ID, "operator")
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancelledAt)

		events, err := f.outbox.ListByAggregate(enums.AggregateOrder, order.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, enums.EventOrderCancelled, events[0].EventType)
	}

	completed := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, enums.OrderStatusCompleted)
	_, err := f.svc.Cancel(ctx, completed.ID, "operator")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	count, err := f.metrics.CountByType(ctx, enums.MetricOrderCancelled)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestAttachPaymentOnlyWhilePending(t *testing.T) {
	f := newFixture(t)
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID)
	pending := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, enums.OrderStatusPending)
	paid := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, enums.OrderStatusPaid)
	ctx := context.Background()

	paymentID := uuid.NewString()
	require.NoError(t, f.svc.AttachPayment(ctx, pending.ID, paymentID, enums.PaymentBackendExternal))

	found, err := f.svc.FindByPaymentID(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, found.ID)
	require.NotNil(t, found.PaymentBackend)
	assert.Equal(t, enums.PaymentBackendExternal, *found.PaymentBackend)

	err = f.svc.AttachPayment(ctx, paid.ID, uuid.NewString(), enums.PaymentBackendExternal)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	err = f.svc.AttachPayment(ctx, uuid.New(), uuid.NewString(), enums.PaymentBackendNative)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.FindByPaymentID(ctx, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
