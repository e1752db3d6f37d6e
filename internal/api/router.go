/**
 * @description
 * This file sets up the HTTP router for the donation-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies the middleware stack: CORS for the public donation forms, rate
 * limiting on the submission endpoint, and staff JWT auth on the admin
 * routes.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the browser-facing endpoints.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the router's middleware settings.
type RouterConfig struct {
	StaffJWTSecret        string
	AllowedOrigins        []string
	SubmissionRateLimiter SubmissionRateLimiter
	SubmissionRateLimit   int
	SubmissionRateWindow  time.Duration
}

// DonationRoutes creates and returns a new router for the donation service.
func DonationRoutes(h *DonationHandlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public donor-facing endpoints.
	r.Group(func(r chi.Router) {
		r.With(SubmissionRateLimitMiddleware(cfg.SubmissionRateLimiter, cfg.SubmissionRateLimit, cfg.SubmissionRateWindow)).
			Post("/donations", h.SubmitDonationHandler)

		r.Post("/donations/{donationID}/payment-return", h.PaymentReturnHandler)
		r.Post("/donations/{donationID}/payment-cancel", h.PaymentCancelHandler)
		r.Post("/donations/{donationID}/payment-fail", h.PaymentFailHandler)

		r.Post("/checkout/orders", h.CheckoutOrderHandler)
		r.Post("/rehome", h.RehomeHandler)
	})

	// Staff endpoints behind the intranet JWT.
	r.Group(func(r chi.Router) {
		r.Use(StaffAuthMiddleware(cfg.StaffJWTSecret))

		r.Get("/donations", h.ListDonationsHandler)
		r.Get("/donations/{donationID}", h.GetDonationHandler)
		r.Post("/admin/donations", h.AdminSubmitDonationHandler)
	})

	return r
}
