// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"wallet-topup-service/internal/handler"
	"wallet-topup-service/pkg/jwtutil"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type WebhookRateLimit struct {
	Limiter   RateLimiter
	PerMinute int
}

func SetupRoutes(
	smsHandler *handler.BankSmsHandler,
	topupHandler *handler.TopupHandler,
	adminHandler *handler.AdminHandler,
	healthHandler *handler.HealthHandler,
	verifier *jwtutil.Verifier,
	rateLimit WebhookRateLimit,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handler.HeaderWebhookSecret},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/api/v1/topups/health", healthHandler.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Bank SMS forwarder
		r.With(RateLimitByIP(rateLimit.Limiter, rateLimit.PerMinute, time.Minute, "bank-sms", logger)).
			Post("/webhooks/bank-sms", smsHandler.HandleBankSms)

		// Wallet owner
		r.Route("/wallet", func(r chi.Router) {
			r.Use(RequireAuth(verifier, logger, jwtutil.RoleUser))
			r.Post("/topups", topupHandler.HandleRequestTopup)
			r.Post("/topups/{reference}/initiated", topupHandler.HandlePaymentInitiated)
			r.Get("/balance", topupHandler.HandleGetBalance)
			r.Get("/transactions", topupHandler.HandleListTransactions)
		})

		// Operators
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAuth(verifier, logger, jwtutil.RoleAdmin))
			r.Get("/bank-sms-payments", adminHandler.HandleListPayments)
			r.Get("/topup-locks", adminHandler.HandleListLocks)
			r.Post("/topups/{reference}/verify", adminHandler.HandleVerifyTopup)
		})
	})

	return r
}
