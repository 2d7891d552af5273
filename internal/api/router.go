package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/remesaops/remesas-backend/internal/api/handler"
	"github.com/remesaops/remesas-backend/internal/api/middleware"
	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/idempotency"
)

// Deps carries everything the router needs from the composition root.
type Deps struct {
	Remittances   *handler.RemittanceHandler
	Payouts       *handler.PayoutHandler
	Balances      *handler.BalanceHandler
	Currencies    *handler.CurrencyHandler
	Notifications *handler.NotificationHandler
	Health        *handler.HealthHandler

	Idempotency        *idempotency.Store
	Logger             *zap.Logger
	PublicRateLimitRPS int
	AuthRateLimitRPS   int
}

// Routes assembles the HTTP surface with the full middleware stack.
func Routes(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(d.Logger))
	r.Use(middleware.LoggingMiddleware(d.Logger))
	r.Use(middleware.MetricsMiddleware)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(d.PublicRateLimitRPS))
		r.Get("/healthz", d.Health.Live)
		r.Get("/readyz", d.Health.Ready)
	})
	r.Handle("/metrics", promhttp.Handler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(d.AuthRateLimitRPS))

		idem := middleware.IdempotencyMiddleware(d.Idempotency, d.Logger)

		// Remittances
		r.With(idem).Post("/v1/remittances", d.Remittances.Create)
		r.Get("/v1/remittances/{id}", d.Remittances.Get)
		r.Get("/v1/remittances/{id}/history", d.Remittances.History)
		r.With(idem).Put("/v1/remittances/{id}", d.Remittances.Edit)
		r.With(idem).Post("/v1/remittances/{id}/confirm", d.Remittances.Confirm)
		r.With(idem).Post("/v1/remittances/{id}/cancel", d.Remittances.Cancel)

		// Payouts
		r.With(idem).Post("/v1/payouts", d.Payouts.Create)
		r.Get("/v1/payouts/{id}", d.Payouts.Get)
		r.Get("/v1/payouts/{id}/history", d.Payouts.History)
		r.With(idem).Put("/v1/payouts/{id}", d.Payouts.Edit)
		r.With(idem).Post("/v1/payouts/{id}/confirm", d.Payouts.Confirm)
		r.With(idem).Post("/v1/payouts/{id}/cancel", d.Payouts.Cancel)

		// Balances
		r.Get("/v1/users/{id}/balance", d.Balances.Get)

		// Currencies and valuation variants
		r.Get("/v1/currencies", d.Currencies.List)
		r.Get("/v1/currencies/{code}", d.Currencies.Get)
		r.Get("/v1/variants", d.Currencies.ListVariants)

		// Inbox
		r.Get("/v1/notifications", d.Notifications.Inbox)
		r.Post("/v1/notifications/{id}/read", d.Notifications.MarkRead)
		r.Get("/v1/notifications/tags", d.Notifications.EventTags)

		// Administrative surface
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))

			r.With(idem).Post("/v1/remittances/{id}/cancel-by-time", d.Remittances.CancelByTime)
			r.With(idem).Post("/v1/remittances/{id}/reactivate", d.Remittances.Reactivate)
			r.With(idem).Delete("/v1/remittances/{id}", d.Remittances.Delete)
			r.With(idem).Post("/v1/payouts/{id}/cancel-by-time", d.Payouts.CancelByTime)
			r.With(idem).Post("/v1/payouts/{id}/reactivate", d.Payouts.Reactivate)
			r.With(idem).Delete("/v1/payouts/{id}", d.Payouts.Delete)

			r.Post("/v1/balances/recalculate", d.Balances.Recalculate)

			r.Put("/v1/currencies", d.Currencies.Upsert)
			r.Put("/v1/currencies/{code}/rates", d.Currencies.UpdateRates)
			r.Put("/v1/variants", d.Currencies.UpsertVariant)

			r.Get("/v1/notifications/external", d.Notifications.ExternalLog)
			r.Post("/v1/notifications/external/{id}/resend", d.Notifications.Resend)
			r.Get("/v1/notifications/recipients", d.Notifications.ListRecipients)
			r.Put("/v1/notifications/recipients", d.Notifications.UpsertRecipient)
			r.Get("/v1/notifications/settings", d.Notifications.GetSettings)
			r.Put("/v1/notifications/settings", d.Notifications.SaveSettings)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusNotFound, "resource/not-found", "route not found")
	})

	return r
}
