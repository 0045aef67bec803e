package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	admincontrollers "github.com/asbolsyn/mealmarket-backend/api/controllers/admin"
	healthcontrollers "github.com/asbolsyn/mealmarket-backend/api/controllers/health"
	nativecontrollers "github.com/asbolsyn/mealmarket-backend/api/controllers/native"
	ordercontrollers "github.com/asbolsyn/mealmarket-backend/api/controllers/orders"
	vendorcontrollers "github.com/asbolsyn/mealmarket-backend/api/controllers/vendors"
	webhookcontrollers "github.com/asbolsyn/mealmarket-backend/api/controllers/webhooks"
	"github.com/asbolsyn/mealmarket-backend/api/middleware"
	"github.com/asbolsyn/mealmarket-backend/internal/commission"
	"github.com/asbolsyn/mealmarket-backend/internal/confirmation"
	"github.com/asbolsyn/mealmarket-backend/internal/earnings"
	"github.com/asbolsyn/mealmarket-backend/internal/orders"
	"github.com/asbolsyn/mealmarket-backend/internal/payments"
	"github.com/asbolsyn/mealmarket-backend/internal/payouts"
	"github.com/asbolsyn/mealmarket-backend/internal/webhooks"
	"github.com/asbolsyn/mealmarket-backend/pkg/config"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox"
	"github.com/asbolsyn/mealmarket-backend/pkg/redis"
)

// NewRouter mounts every HTTP surface. idempotencyStore may be nil, which
// disables Idempotency-Key replay. metricsHandler is mounted at /metrics when
// non-nil.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP healthcontrollers.Pinger,
	redisP healthcontrollers.Pinger,
	idempotencyStore redis.IdempotencyStore,
	metricsHandler http.Handler,
	webhookService *webhooks.Service,
	processor confirmation.Processor,
	orderService orders.Service,
	paymentService payments.Service,
	ledger earnings.Ledger,
	payoutService payouts.Service,
	commissionService commission.Resolver,
	deadLetters *outbox.DLQRepository,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	loc := cfg.Commission.Location()

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", healthcontrollers.Live(cfg))
		r.Get("/ready", healthcontrollers.Ready(cfg, map[string]healthcontrollers.Pinger{
			"db":    dbP,
			"redis": redisP,
		}, logg))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	paymentWebhook := webhookcontrollers.PaymentWebhook(webhookService, logg)
	r.Post("/payment-webhook", paymentWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/payment", paymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.ActorRoleService, enums.ActorRoleAdmin))
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Route("/native", func(r chi.Router) {
				r.Post("/pre-checkout", nativecontrollers.PreCheckout(processor, logg))
				r.Post("/successful-payment", nativecontrollers.SuccessfulPayment(processor, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", ordercontrollers.Create(orderService, logg))
				r.Get("/{orderId}", ordercontrollers.Get(orderService, logg))
				r.Post("/{orderId}/payment", ordercontrollers.StartPayment(paymentService, logg))
				r.Post("/{orderId}/complete", ordercontrollers.Complete(orderService, logg))
				r.Post("/{orderId}/cancel", ordercontrollers.Cancel(orderService, logg))
			})
		})

		r.Route("/vendors/{vendorId}/earnings", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.ActorRoleService, enums.ActorRoleAdmin, enums.ActorRoleVendor))
			r.Use(middleware.RequireVendorScope(logg, "vendorId"))

			r.Get("/", vendorcontrollers.MonthlyEarnings(ledger, loc, logg))
			r.Get("/unpaid", vendorcontrollers.UnpaidEarnings(ledger, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/payouts", func(r chi.Router) {
			r.Post("/", admincontrollers.RequestPayout(payoutService, logg))
			r.Post("/mark-paid", admincontrollers.MarkPaid(payoutService, logg))
			r.Get("/pending", admincontrollers.ListPending(payoutService, logg))
			r.Post("/{payoutId}/processing", admincontrollers.MarkProcessing(payoutService, logg))
			r.Post("/{payoutId}/failed", admincontrollers.MarkFailed(payoutService, logg))
		})
		r.Get("/revenue", admincontrollers.Revenue(ledger, loc, logg))
		r.Get("/commission", admincontrollers.GetCommission(commissionService, logg))
		r.Put("/commission", admincontrollers.SetCommission(commissionService, logg))
		r.Route("/outbox/dead-letters", func(r chi.Router) {
			r.Get("/", admincontrollers.ListDeadLetters(deadLetters, logg))
			r.Post("/{eventId}/requeue", admincontrollers.RequeueDeadLetter(deadLetters, logg))
		})
	})

	return r
}
