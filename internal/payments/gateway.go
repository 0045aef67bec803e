package payments

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/asbolsyn/mealmarket-backend/pkg/config"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
)

const (
	defaultGatewayURL  = "https://example.com"
	defaultCallbackURL = "https://t.me/as_bolsyn_bot"
)

var providerTokenPattern = regexp.MustCompile(`^\d+:\S+$`)

// Payment is what the gateway hands back for one order.
type Payment struct {
	ID             string               `json:"payment_id"`
	Backend        enums.PaymentBackend `json:"backend"`
	RedirectURL    string               `json:"redirect_url,omitempty"`
	InvoicePayload string               `json:"invoice_payload,omitempty"`
	Amount         decimal.Decimal      `json:"amount"`
	Currency       string               `json:"currency"`
	// MinorAmount is set for native invoices, whose price is sent in the
	// currency's smallest unit.
	MinorAmount int64 `json:"minor_amount,omitempty"`
}

// Gateway issues payments through the in-chat invoice backend when a provider
// token is configured, and through the hosted redirect backend otherwise.
type Gateway struct {
	providerToken string
	enabled       bool
	baseURL       string
	successURL    string
	failureURL    string
	currency      enums.Currency
	newID         func() string
}

func NewGateway(cfg config.PaymentConfig) *Gateway {
	g := &Gateway{
		providerToken: strings.TrimSpace(cfg.ProviderToken),
		enabled:       cfg.Enabled,
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.GatewayURL), "/"),
		successURL:    strings.TrimSpace(cfg.SuccessURL),
		failureURL:    strings.TrimSpace(cfg.FailureURL),
		newID:         uuid.NewString,
	}
	if g.baseURL == "" {
		g.baseURL = defaultGatewayURL
	}
	if g.successURL == "" {
		g.successURL = defaultCallbackURL
	}
	if g.failureURL == "" {
		g.failureURL = defaultCallbackURL
	}
	currency, err := enums.ParseCurrency(cfg.Currency)
	if err != nil {
		currency = enums.CurrencyKZT
	}
	g.currency = currency
	return g
}

// Backend reports which backend CreatePayment would use, and false when
// neither is configured.
func (g *Gateway) Backend() (enums.PaymentBackend, bool) {
	if providerTokenPattern.MatchString(g.providerToken) {
		return enums.PaymentBackendNative, true
	}
	if g.enabled {
		return enums.PaymentBackendExternal, true
	}
	return "", false
}

// ProviderToken is passed to the chat adapter when it renders a native invoice.
func (g *Gateway) ProviderToken() string {
	return g.providerToken
}

func (g *Gateway) Currency() string {
	return g.currency.String()
}

func (g *Gateway) CreatePayment(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*Payment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	backend, ok := g.Backend()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayDisabled, "payment gateway is not configured")
	}

	payment := &Payment{
		Backend:  backend,
		Amount:   amount.Round(2),
		Currency: g.currency.String(),
	}
	switch backend {
	case enums.PaymentBackendNative:
		payload := InvoicePayload(orderID)
		payment.ID = payload
		payment.InvoicePayload = payload
		payment.MinorAmount = g.currency.ToMinor(payment.Amount)
	default:
		payment.ID = g.newID()
		payment.RedirectURL = g.redirectURL(orderID, payment.Amount, payment.ID)
	}
	return payment, nil
}

// redirectURL keeps the hosted page's parameter order: order_id, amount,
// payment_id, success_url, failure_url.
func (g *Gateway) redirectURL(orderID uuid.UUID, amount decimal.Decimal, paymentID string) string {
	callback := "?order_id=" + url.QueryEscape(orderID.String()) + "&payment_id=" + url.QueryEscape(paymentID)
	var b strings.Builder
	b.WriteString(g.baseURL)
	b.WriteString("/pay?order_id=")
	b.WriteString(url.QueryEscape(orderID.String()))
	b.WriteString("&amount=")
	b.WriteString(amount.StringFixed(2))
	b.WriteString("&payment_id=")
	b.WriteString(url.QueryEscape(paymentID))
	b.WriteString("&success_url=")
	b.WriteString(url.QueryEscape(g.successURL + callback))
	b.WriteString("&failure_url=")
	b.WriteString(url.QueryEscape(g.failureURL + callback))
	return b.String()
}
