/**
 * @description
 * This file sets up the HTTP router for the offer-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * middleware for logging, panic recovery, timeouts and authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// OfferRoutes creates and returns the router for the offer service.
func OfferRoutes(h *OfferHandlers, jwksURL, webhookSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Processor notifications authenticate with an HMAC signature, not a JWT.
	r.Post("/webhooks/processor", h.ProcessorWebhookHandler(webhookSecret))

	// Brand and creator surface.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/offers", h.CreateOfferHandler)
		r.Get("/offers", h.ListOffersHandler)
		r.Get("/offers/{offerID}", h.GetOfferHandler)
		r.Put("/offers/{offerID}/pricing", h.UpdateDraftPricingHandler)
		r.Post("/offers/{offerID}/send", h.SendOfferHandler)
		r.Post("/offers/{offerID}/respond", h.RespondToOfferHandler)
		r.Post("/offers/{offerID}/counter-decision", h.DecideCounterHandler)
		r.Post("/offers/{offerID}/cancel", h.CancelOfferHandler)
		r.Post("/offers/{offerID}/start", h.StartWorkHandler)
		r.Post("/offers/{offerID}/submit", h.SubmitWorkHandler)
		r.Post("/offers/{offerID}/approve", h.ApproveWorkHandler)
		r.Post("/offers/{offerID}/request-revision", h.RequestRevisionHandler)

		r.Post("/offers/{offerID}/checkout", h.InitiateCheckoutHandler)
		r.Get("/offers/{offerID}/payment", h.GetPaymentStatusHandler)
		r.Get("/offers/{offerID}/payout", h.GetPayoutHandler)

		// Operator surface.
		r.Group(func(r chi.Router) {
			r.Use(AdminOnly)

			r.Post("/admin/offers/{offerID}/release", h.ReleaseHandler)
			r.Post("/admin/offers/{offerID}/refund", h.RefundHandler)
			r.Post("/admin/offers/{offerID}/hold", h.HoldHandler)
			r.Post("/admin/offers/{offerID}/cancel", h.CancelOverrideHandler)
			r.Post("/admin/offers/{offerID}/reject", h.RejectOverrideHandler)
			r.Get("/admin/offers/{offerID}/audit", h.AuditTrailHandler)
			r.Post("/admin/payouts/{payoutID}/mark-released", h.MarkPayoutReleasedHandler)
		})
	})

	return r
}
