/**
 * @description
 * This file contains the HTTP handlers for the offer-service's API endpoints.
 * Handlers parse incoming requests, call the application service, and map the
 * service's error taxonomy onto HTTP statuses. They act as the bridge between
 * the web layer and the business logic layer.
 *
 * Error mapping:
 * - ValidationError        -> 400
 * - Forbidden              -> 404 (resource existence is never revealed)
 * - InvalidTransition      -> 409
 * - PreconditionFailed     -> 412
 * - ErrRateLimited         -> 429
 * - GatewayError           -> 502
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: service logic, models, errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/collabry/offer-service/internal/app"
	"github.com/collabry/offer-service/internal/domain"
	"github.com/collabry/offer-service/internal/store"
)

// OfferHandlers holds the application service that handlers will use.
type OfferHandlers struct {
	service *app.Service
}

// NewOfferHandlers creates a new instance of OfferHandlers.
func NewOfferHandlers(service *app.Service) *OfferHandlers {
	return &OfferHandlers{service: service}
}

type checkoutInitiationResponse struct {
	PaymentID   string `json:"payment_id"`
	CheckoutURL string `json:"checkout_url"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

// CreateOfferHandler handles brand requests to create a draft offer.
func (h *OfferHandlers) CreateOfferHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get actor from context")
		return
	}

	var req domain.CreateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	offer, err := h.service.CreateOffer(r.Context(), actor, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, offer)
}

// GetOfferHandler returns a single offer visible to the caller.
func (h *OfferHandlers) GetOfferHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, ok := h.actorAndOfferID(w, r)
	if !ok {
		return
	}
	offer, err := h.service.GetOffer(r.Context(), actor, offerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

// ListOffersHandler returns the caller's offers, optionally filtered by status.
func (h *OfferHandlers) ListOffersHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get actor from context")
		return
	}

	opts := domain.OfferListOptions{Limit: 50}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = domain.OfferStatus(status)
	}

	offers, err := h.service.ListOffers(r.Context(), actor, opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if offers == nil {
		offers = []domain.Offer{}
	}
	h.writeJSON(w, http.StatusOK, offers)
}

// SendOfferHandler moves a draft offer to sent.
func (h *OfferHandlers) SendOfferHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(w, r, h.service.SendOffer)
}

// RespondToOfferHandler applies a creator's accept/reject/counter decision.
func (h *OfferHandlers) RespondToOfferHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, ok := h.actorAndOfferID(w, r)
	if !ok {
		return
	}

	var req domain.RespondToOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	offer, err := h.service.RespondToOffer(r.Context(), actor, offerID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

// DecideCounterHandler lets the brand accept or reject a counter proposal.
func (h *OfferHandlers) DecideCounterHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, ok := h.actorAndOfferID(w, r)
	if !ok {
		return
	}

	var req struct {
		Accept bool `json:"accept"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	offer, err := h.service.DecideCounterOffer(r.Context(), actor, offerID, req.Accept)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

// CancelOfferHandler withdraws a draft or sent offer.
func (h *OfferHandlers) CancelOfferHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(w, r, h.service.CancelOffer)
}

// StartWorkHandler authorizes work once funds are escrowed.
func (h *OfferHandlers) StartWorkHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(w, r, h.service.StartWork)
}

// SubmitWorkHandler records the creator's delivery.
func (h *OfferHandlers) SubmitWorkHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(w, r, h.service.SubmitWork)
}

// ApproveWorkHandler accepts submitted deliverables.
func (h *OfferHandlers) ApproveWorkHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(w, r, h.service.ApproveWork)
}

// RequestRevisionHandler sends submitted work back to the creator.
func (h *OfferHandlers) RequestRevisionHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(w, r, h.service.RequestRevision)
}

// UpdateDraftPricingHandler replaces a draft offer's line items. Totals are
// recomputed server side; the request never carries derived amounts.
func (h *OfferHandlers) UpdateDraftPricingHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, ok := h.actorAndOfferID(w, r)
	if !ok {
		return
	}

	var req struct {
		Items          []domain.LineItemInput `json:"items"`
		PlatformFeePct *int                   `json:"platform_fee_pct,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	offer, err := h.service.UpdateDraftPricing(r.Context(), actor, offerID, req.Items, req.PlatformFeePct)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

// InitiateCheckoutHandler opens a processor checkout session for an accepted
// offer and kicks off background reconciliation for the resulting payment.
func (h *OfferHandlers) InitiateCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, ok := h.actorAndOfferID(w, r)
	if !ok {
		return
	}

	payment, err := h.service.InitiateCheckout(r.Context(), actor, offerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	// Poll the processor in the background; webhooks and the sweep job cover
	// the cases where this goroutine never concludes. The request context is
	// not reused, it dies with the response.
	go func(paymentID uuid.UUID) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := h.service.ReconcilePayment(ctx, paymentID); err != nil {
			log.Printf("level=warn component=api msg=\"background reconciliation ended with error\" payment_id=%s err=%v", paymentID, err)
		}
	}(payment.ID)

	h.writeJSON(w, http.StatusCreated, checkoutInitiationResponse{
		PaymentID:   payment.ID.String(),
		CheckoutURL: payment.CheckoutURL,
		AmountCents: payment.AmountCents,
		Currency:    string(payment.Currency),
		Status:      string(payment.Status),
	})
}

// GetPaymentStatusHandler reports the live payment for an offer.
func (h *OfferHandlers) GetPaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, ok := h.actorAndOfferID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.GetOffer(r.Context(), actor, offerID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	payment, err := h.service.GetLivePayment(r.Context(), offerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

// GetPayoutHandler returns the payout ledger row for an offer.
func (h *OfferHandlers) GetPayoutHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, ok := h.actorAndOfferID(w, r)
	if !ok {
		return
	}
	payout, err := h.service.GetPayoutForOffer(r.Context(), actor, offerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

// transitionHandler is the shared wrapper for single-transition endpoints.
func (h *OfferHandlers) transitionHandler(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor domain.Actor, offerID uuid.UUID) (*domain.Offer, error)) {
	actor, offerID, ok := h.actorAndOfferID(w, r)
	if !ok {
		return
	}
	offer, err := op(r.Context(), actor, offerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

func (h *OfferHandlers) actorAndOfferID(w http.ResponseWriter, r *http.Request) (domain.Actor, uuid.UUID, bool) {
	actor, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get actor from context")
		return domain.Actor{}, uuid.Nil, false
	}
	offerID, err := uuid.Parse(chi.URLParam(r, "offerID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid offer id")
		return domain.Actor{}, uuid.Nil, false
	}
	return actor, offerID, true
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (h *OfferHandlers) writeServiceError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var iterr *domain.InvalidTransitionError
	var perr *domain.PreconditionFailedError
	var gerr *domain.GatewayError

	switch {
	case errors.As(err, &verr):
		h.writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, store.ErrOfferNotFound):
		// One answer for "not yours" and "not there".
		h.writeError(w, http.StatusNotFound, "Offer not found")
	case errors.Is(err, store.ErrPaymentNotFound):
		h.writeError(w, http.StatusNotFound, "Payment not found")
	case errors.Is(err, store.ErrPayoutNotFound):
		h.writeError(w, http.StatusNotFound, "Payout not found")
	case errors.As(err, &iterr):
		h.writeError(w, http.StatusConflict, iterr.Error())
	case errors.As(err, &perr):
		h.writeError(w, http.StatusPreconditionFailed, perr.Error())
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &gerr):
		log.Printf("level=error component=api msg=\"payment gateway failure\" err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Payment processor is unavailable, please retry")
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *OfferHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *OfferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
