/**
 * @description
 * HTTP handlers for the operator surface: releasing escrow, refunding,
 * holding, override cancel/reject, marking payouts disbursed and reading the
 * audit trail. All routes sit behind AdminOnly and every mutating call
 * requires a reason in the body.
 */

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/collabry/offer-service/internal/domain"
)

type adminActionRequest struct {
	Reason string `json:"reason"`
}

type markReleasedRequest struct {
	ReferenceNumber string `json:"reference_number"`
}

// ReleaseHandler pays the creator out of escrow.
func (h *OfferHandlers) ReleaseHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, req, ok := h.adminRequest(w, r)
	if !ok {
		return
	}
	payout, err := h.service.Release(r.Context(), actor, offerID, req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

// RefundHandler returns escrowed funds to the brand.
func (h *OfferHandlers) RefundHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, req, ok := h.adminRequest(w, r)
	if !ok {
		return
	}
	offer, err := h.service.Refund(r.Context(), actor, offerID, req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

// HoldHandler pauses automatic progression for an offer.
func (h *OfferHandlers) HoldHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, req, ok := h.adminRequest(w, r)
	if !ok {
		return
	}
	if err := h.service.Hold(r.Context(), actor, offerID, req.Reason); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "held"})
}

// CancelOverrideHandler force-cancels a non-terminal offer.
func (h *OfferHandlers) CancelOverrideHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, req, ok := h.adminRequest(w, r)
	if !ok {
		return
	}
	offer, err := h.service.CancelOverride(r.Context(), actor, offerID, req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

// RejectOverrideHandler force-rejects a sent or accepted offer.
func (h *OfferHandlers) RejectOverrideHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, req, ok := h.adminRequest(w, r)
	if !ok {
		return
	}
	offer, err := h.service.RejectOverride(r.Context(), actor, offerID, req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

// AuditTrailHandler returns the intervention history for an offer.
func (h *OfferHandlers) AuditTrailHandler(w http.ResponseWriter, r *http.Request) {
	actor, offerID, ok := h.actorAndOfferID(w, r)
	if !ok {
		return
	}
	trail, err := h.service.AuditTrail(r.Context(), actor, offerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if trail == nil {
		trail = []domain.AdminAction{}
	}
	h.writeJSON(w, http.StatusOK, trail)
}

// MarkPayoutReleasedHandler records the bank transfer reference for a payout.
func (h *OfferHandlers) MarkPayoutReleasedHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get actor from context")
		return
	}
	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout id")
		return
	}

	var req markReleasedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payout, err := h.service.MarkPayoutReleased(r.Context(), actor, payoutID, req.ReferenceNumber)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

func (h *OfferHandlers) adminRequest(w http.ResponseWriter, r *http.Request) (domain.Actor, uuid.UUID, adminActionRequest, bool) {
	actor, offerID, ok := h.actorAndOfferID(w, r)
	if !ok {
		return domain.Actor{}, uuid.Nil, adminActionRequest{}, false
	}
	var req adminActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return domain.Actor{}, uuid.Nil, adminActionRequest{}, false
	}
	return actor, offerID, req, true
}
