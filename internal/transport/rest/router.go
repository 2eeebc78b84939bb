package rest

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	internal "github.com/eventtix/multisafepay-provider/internal"
	"github.com/eventtix/multisafepay-provider/internal/payment"
	"github.com/eventtix/multisafepay-provider/internal/transport/middleware"
)

// RegisterAllRoutes wires the provider's HTTP surface: gateway notification
// webhooks, the payer return URL and the health endpoints. The URLs must
// match what the init envelope hands to the gateway.
func RegisterAllRoutes(router *chi.Mux, db *sql.DB, settings internal.ProviderSettings, webhookHandler *payment.WebhookHandler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db, settings)

	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get("/health", healthHandler.healthCheckHandler)
	router.Get("/ping", healthHandler.pingHandler)

	if webhookHandler != nil {
		router.Post("/webhooks/multisafepay/{payment}/{action}", webhookHandler.HandleWebhook)
		router.Get("/return/{order}/{payment}/{hash}", webhookHandler.HandleReturn)
	}
}
