package payments

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asbolsyn/mealmarket-backend/pkg/config"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
)

func TestGatewayPrefersNativeBackend(t *testing.T) {
	gw := NewGateway(config.PaymentConfig{ProviderToken: "381764678:TEST:67890", Enabled: true})
	orderID := uuid.New()

	payment, err := gw.CreatePayment(context.Background(), orderID, decimal.RequireFromString("3000"))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentBackendNative, payment.Backend)
	assert.Equal(t, "order_"+orderID.String(), payment.InvoicePayload)
	assert.Equal(t, payment.InvoicePayload, payment.ID)
	assert.Empty(t, payment.RedirectURL)
	assert.Equal(t, "KZT", payment.Currency)
	assert.Equal(t, int64(300000), payment.MinorAmount)
}

func TestGatewayExternalRedirect(t *testing.T) {
	gw := NewGateway(config.PaymentConfig{ProviderToken: "not-a-token", Enabled: true})
	gw.newID = func() string { return "pay-123" }
	orderID := uuid.New()

	payment, err := gw.CreatePayment(context.Background(), orderID, decimal.RequireFromString("1500.5"))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentBackendExternal, payment.Backend)
	assert.Equal(t, "pay-123", payment.ID)
	assert.Empty(t, payment.InvoicePayload)

	require.True(t, strings.HasPrefix(payment.RedirectURL, "https://example.com/pay?order_id="+orderID.String()+"&amount=1500.50&payment_id=pay-123&success_url="))
	parsed, err := url.Parse(payment.RedirectURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "https://t.me/as_bolsyn_bot?order_id="+orderID.String()+"&payment_id=pay-123", q.Get("success_url"))
	assert.Equal(t, "https://t.me/as_bolsyn_bot?order_id="+orderID.String()+"&payment_id=pay-123", q.Get("failure_url"))
}

func TestGatewayUsesConfiguredURLs(t *testing.T) {
	gw := NewGateway(config.PaymentConfig{
		Enabled:    true,
		GatewayURL: "https://pay.example.kz/",
		SuccessURL: "https://t.me/bot_ok",
		FailureURL: "https://t.me/bot_fail",
		Currency:   "usd",
	})
	payment, err := gw.CreatePayment(context.Background(), uuid.New(), decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(payment.RedirectURL, "https://pay.example.kz/pay?"))
	parsed, err := url.Parse(payment.RedirectURL)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(parsed.Query().Get("failure_url"), "https://t.me/bot_fail?"))
	assert.Equal(t, "USD", payment.Currency)
}

func TestGatewayDisabled(t *testing.T) {
	gw := NewGateway(config.PaymentConfig{})
	_, ok := gw.Backend()
	assert.False(t, ok)

	_, err := gw.CreatePayment(context.Background(), uuid.New(), decimal.NewFromInt(1))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayDisabled))
}

func TestGatewayValidatesInput(t *testing.T) {
	gw := NewGateway(config.PaymentConfig{Enabled: true})
	_, err := gw.CreatePayment(context.Background(), uuid.Nil, decimal.NewFromInt(1))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = gw.CreatePayment(context.Background(), uuid.New(), decimal.Zero)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestInvoicePayloadRoundTrip(t *testing.T) {
	id := uuid.New()
	got, err := ParseInvoicePayload(InvoicePayload(id))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{"", "order_", "order_nope", id.String(), "meal_" + id.String()} {
		_, err := ParseInvoicePayload(bad)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), bad)
	}
}

func TestVerifier(t *testing.T) {
	body := []byte(`{"payment_id":"p1","status":"completed","order_id":"o1"}`)

	open := NewVerifier("")
	assert.False(t, open.Enabled())
	assert.NoError(t, open.Verify(body, ""))

	v := NewVerifier("whsec")
	sig := v.Sign(body)
	assert.NoError(t, v.Verify(body, sig))
	assert.NoError(t, v.Verify(body, strings.ToUpper(sig)))

	err := v.Verify(body, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidWebhook))
	err = v.Verify(append(body, ' '), sig)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidWebhook))
	err = v.Verify(body, "zz")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidWebhook))
}
