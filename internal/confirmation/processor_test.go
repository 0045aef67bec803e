package confirmation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asbolsyn/mealmarket-backend/internal/meals"
	"github.com/asbolsyn/mealmarket-backend/internal/orders"
	"github.com/asbolsyn/mealmarket-backend/internal/payments"
	"github.com/asbolsyn/mealmarket-backend/internal/tracking"
	"github.com/asbolsyn/mealmarket-backend/pkg/db"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/dbtest"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/metrics"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox"
)

type fixture struct {
	client   *db.Client
	proc     Processor
	orders   orders.Repository
	meals    meals.Repository
	outbox   *outbox.Repository
	activity tracking.Repository
	registry *prometheus.Registry
	vendor   models.Vendor
	buyer    models.Consumer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	activity := tracking.NewRepository(client.DB())
	tracker, err := tracking.NewService(activity)
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(client.DB())
	reg := prometheus.NewRegistry()
	proc, err := NewProcessor(ProcessorParams{
		Orders:    orders.NewRepository(client.DB()),
		Meals:     meals.NewRepository(client.DB()),
		Inventory: meals.NewInventory(),
		Outbox:    outbox.NewService(outboxRepo, nil),
		Tracker:   tracker,
		DB:        client,
		Metrics:   metrics.NewPaymentMetrics(reg),
	})
	require.NoError(t, err)
	return &fixture{
		client:   client,
		proc:     proc,
		orders:   orders.NewRepository(client.DB()),
		meals:    meals.NewRepository(client.DB()),
		outbox:   outboxRepo,
		activity: activity,
		registry: reg,
		vendor:   dbtest.SeedVendor(t, client),
		buyer:    dbtest.SeedConsumer(t, client),
	}
}

func (f *fixture) attach(t *testing.T, orderID uuid.UUID, paymentID string) {
	t.Helper()
	ok, err := f.orders.AttachPayment(context.Background(), orderID, paymentID, enums.PaymentBackendExternal)
	require.NoError(t, err)
	require.True(t, ok)
}

func (f *fixture) quantity(t *testing.T, mealID uuid.UUID) int {
	t.Helper()
	meal, err := f.meals.Get(context.Background(), mealID)
	require.NoError(t, err)
	return meal.Quantity
}

func TestNewProcessorRequiresDependencies(t *testing.T) {
	_, err := NewProcessor(ProcessorParams{})
	require.Error(t, err)
}

func TestHandleWebhookAppliesPaymentOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID, dbtest.WithQuantity(5))
	order := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 2, enums.OrderStatusPending)
	f.attach(t, order.ID, "pay-1")

	payload := WebhookPayload{PaymentID: "pay-1", Status: "completed", OrderID: order.ID.String()}
	outcome, err := f.proc.HandleWebhook(ctx, payload)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, enums.OrderStatusPaid, outcome.Status)

	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, "pay-1", *stored.PaymentID)
	assert.Equal(t, 3, f.quantity(t, meal.ID))

	again, err := f.proc.HandleWebhook(ctx, payload)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.False(t, again.Applied)
	assert.Equal(t, 3, f.quantity(t, meal.ID))

	events, err := f.outbox.ListByAggregate(enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderPaid, events[0].EventType)

	paid, err := f.activity.CountByType(ctx, enums.MetricOrderPaid)
	require.NoError(t, err)
	assert.EqualValues(t, 1, paid)

	expected := `
# HELP mealmarket_payment_confirmations_total Payment confirmations processed, by source and result.
# TYPE mealmarket_payment_confirmations_total counter
mealmarket_payment_confirmations_total{result="applied",source="webhook"} 1
mealmarket_payment_confirmations_total{result="duplicate",source="webhook"} 1
`
	require.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(expected), "mealmarket_payment_confirmations_total"))
}

func TestHandleWebhookFallsBackToOrderID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID)
	order := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, enums.OrderStatusPending)

	outcome, err := f.proc.HandleWebhook(ctx, WebhookPayload{PaymentID: "pay-late", Status: "completed", OrderID: order.ID.String()})
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	stored, err := f.orders.FindByPaymentID(ctx, "pay-late")
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)
}

func TestHandleWebhookIgnoresNonCompletedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID)
	order := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, enums.OrderStatusPending)

	outcome, err := f.proc.HandleWebhook(ctx, WebhookPayload{PaymentID: "pay-2", Status: "failed", OrderID: order.ID.String()})
	require.NoError(t, err)
	assert.True(t, outcome.Ignored)

	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
	assert.Equal(t, 5, f.quantity(t, meal.ID))
}

func TestHandleWebhookRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID)
	attached := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, enums.OrderStatusPending)
	other := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, enums.OrderStatusPending)
	f.attach(t, attached.ID, "pay-a")

	tests := []struct {
		name    string
		payload WebhookPayload
	}{
		{"missing payment id", WebhookPayload{Status: "completed", OrderID: attached.ID.String()}},
		{"missing status", WebhookPayload{PaymentID: "pay-a", OrderID: attached.ID.String()}},
		{"missing order id", WebhookPayload{PaymentID: "pay-a", Status: "completed"}},
		{"malformed order id", WebhookPayload{PaymentID: "pay-a", Status: "completed", OrderID: "nope"}},
		{"unknown order", WebhookPayload{PaymentID: "pay-x", Status: "completed", OrderID: uuid.NewString()}},
		{"payment of another order", WebhookPayload{PaymentID: "pay-a", Status: "completed", OrderID: other.ID.String()}},
		{"different stored payment", WebhookPayload{PaymentID: "pay-b", Status: "completed", OrderID: attached.ID.String()}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.proc.HandleWebhook(ctx, tc.payload)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidWebhook), "got %v", err)
		})
	}

	for _, id := range []uuid.UUID{attached.ID, other.ID} {
		stored, err := f.orders.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusPending, stored.Status)
	}
	assert.Equal(t, 5, f.quantity(t, meal.ID))
}

func TestHandleWebhookOnCancelledOrderIsDuplicate(t *testing.T) {
	f := newFixture(t)
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID)
	order := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, enums.OrderStatusCancelled)

	outcome, err := f.proc.HandleWebhook(context.Background(), WebhookPayload{PaymentID: "pay-c", Status: "completed", OrderID: order.ID.String()})
	require.NoError(t, err)
	assert.True(t, outcome.Duplicate)
	assert.Equal(t, enums.OrderStatusCancelled, outcome.Status)
	assert.Equal(t, 5, f.quantity(t, meal.ID))
}

func TestConfirmNativeFloorsInventoryAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID, dbtest.WithQuantity(1))
	order := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 3, enums.OrderStatusPending)

	outcome, err := f.proc.ConfirmNative(ctx, payments.InvoicePayload(order.ID), "charge-77")
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, 0, f.quantity(t, meal.ID))

	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, "charge-77", *stored.PaymentID)
	require.NotNil(t, stored.PaymentBackend)
	assert.Equal(t, enums.PaymentBackendNative, *stored.PaymentBackend)
}

func TestConfirmNativeErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proc.ConfirmNative(ctx, "garbage", "charge")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.proc.ConfirmNative(ctx, payments.InvoicePayload(uuid.New()), "charge")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestConcurrentConfirmationsApplyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID, dbtest.WithQuantity(5))
	order := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 2, enums.OrderStatusPending)
	f.attach(t, order.ID, "pay-race")

	const workers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var (
				outcome *Outcome
				err     error
			)
			if i%2 == 0 {
				outcome, err = f.proc.HandleWebhook(ctx, WebhookPayload{PaymentID: "pay-race", Status: "completed", OrderID: order.ID.String()})
			} else {
				outcome, err = f.proc.ConfirmNative(ctx, payments.InvoicePayload(order.ID), "")
			}
			if err != nil {
				return
			}
			if outcome.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 3, f.quantity(t, meal.ID))
	events, err := f.outbox.ListByAggregate(enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestPreCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meal := dbtest.SeedMeal(t, f.client, f.vendor.ID, dbtest.WithQuantity(2))
	ended := dbtest.SeedMeal(t, f.client, f.vendor.ID, dbtest.WithPickupEnd(time.Now().Add(-time.Minute)))

	ok := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 2, enums.OrderStatusPending)
	tooMany := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 3, enums.OrderStatusPending)
	paid := dbtest.SeedOrder(t, f.client, meal.ID, f.buyer.ID, 1, enums.OrderStatusPaid)
	late := dbtest.SeedOrder(t, f.client, ended.ID, f.buyer.ID, 1, enums.OrderStatusPending)

	tests := []struct {
		name    string
		payload string
		ok      bool
		reason  string
	}{
		{"valid", payments.InvoicePayload(ok.ID), true, ""},
		{"sold out", payments.InvoicePayload(tooMany.ID), false, ReasonSoldOut},
		{"already paid", payments.InvoicePayload(paid.ID), false, ReasonOrderNotPending},
		{"pickup over", payments.InvoicePayload(late.ID), false, ReasonMealUnavailable},
		{"unknown order", payments.InvoicePayload(uuid.New()), false, ReasonOrderNotFound},
		{"malformed", "order_x", false, ReasonOrderNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := f.proc.PreCheckout(ctx, tc.payload)
			assert.Equal(t, tc.ok, res.OK)
			assert.Equal(t, tc.reason, res.Reason)
		})
	}

	// read-only
	assert.Equal(t, 2, f.quantity(t, meal.ID))
}
