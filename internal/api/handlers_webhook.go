/**
 * @description
 * Webhook intake for payment processor notifications. Deliveries are
 * authenticated with an HMAC-SHA256 signature over the raw body before any
 * parsing happens; unsigned or tampered payloads are dropped with 401.
 *
 * Verified deliveries land on the same reconciliation decision table the
 * poller uses, so a webhook and a concurrent poll can never produce
 * conflicting writes.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/collabry/offer-service/internal/store"
)

const maxWebhookBodyBytes = 1 << 20

// processorWebhookPayload is the notification shape pushed by the payment
// processor when a checkout session changes state.
type processorWebhookPayload struct {
	EventType string `json:"event_type"`
	Data      struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
	} `json:"data"`
}

// ProcessorWebhookHandler verifies and applies a processor delivery.
func (h *OfferHandlers) ProcessorWebhookHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Could not read body")
			return
		}

		signature := r.Header.Get("X-Processor-Signature")
		if !verifyWebhookSignature(secret, body, signature) {
			log.Printf("level=warn component=api msg=\"webhook signature verification failed\" remote=%s", r.RemoteAddr)
			h.writeError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}

		var payload processorWebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid payload")
			return
		}
		if payload.Data.SessionID == "" || payload.Data.Status == "" {
			h.writeError(w, http.StatusBadRequest, "Missing session id or status")
			return
		}

		outcome, err := h.service.ApplyProcessorStatus(r.Context(), payload.Data.SessionID, payload.Data.Status)
		if err != nil {
			if errors.Is(err, store.ErrPaymentNotFound) {
				// Unknown session: acknowledge so the processor stops
				// retrying a delivery we can never apply.
				log.Printf("level=warn component=api msg=\"webhook for unknown session\" session_id=%s", payload.Data.SessionID)
				h.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
				return
			}
			h.writeServiceError(w, err)
			return
		}

		log.Printf("level=info component=api flow=webhook session_id=%s event=%s outcome=%s", payload.Data.SessionID, payload.EventType, outcome)
		h.writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
	}
}

func verifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
