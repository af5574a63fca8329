package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys published to the topic exchange. The moderation pipeline and
// notification surfaces bind to these; this service never consumes them.
const (
	EventOfferCreated    = "offer.created"
	EventOfferSent       = "offer.sent"
	EventOfferAccepted   = "offer.accepted"
	EventOfferRejected   = "offer.rejected"
	EventOfferCountered  = "offer.countered"
	EventOfferCancelled  = "offer.cancelled"
	EventOfferPaidEscrow = "offer.paid_escrow"
	EventOfferInProgress = "offer.in_progress"
	EventOfferSubmitted  = "offer.submitted"
	EventOfferApproved   = "offer.approved"
	EventOfferCompleted  = "offer.completed"
	EventOfferRefunded   = "offer.refunded"
	EventPaymentFailed   = "payment.failed"
	EventPaymentExpired  = "payment.expired"
	EventPayoutPending   = "payout.pending"
	EventPayoutReleased  = "payout.released"
)

// OfferEvent is the payload published for every offer status change.
type OfferEvent struct {
	OfferID    uuid.UUID   `json:"offer_id"`
	CampaignID uuid.UUID   `json:"campaign_id"`
	BrandID    uuid.UUID   `json:"brand_id"`
	CreatorID  uuid.UUID   `json:"creator_id"`
	Status     OfferStatus `json:"status"`
	ActorID    string      `json:"actor_id"`
	ActorRole  Role        `json:"actor_role"`
	TotalCents int64       `json:"total_cents"`
	Currency   Currency    `json:"currency"`
	Timestamp  time.Time   `json:"timestamp"`
}

// PaymentEvent is the payload published when a payment changes state without
// moving the offer (failed or expired checkout sessions).
type PaymentEvent struct {
	PaymentID          uuid.UUID     `json:"payment_id"`
	OfferID            uuid.UUID     `json:"offer_id"`
	ProcessorSessionID string        `json:"processor_session_id"`
	Status             PaymentStatus `json:"status"`
	AmountCents        int64         `json:"amount_cents"`
	Currency           Currency      `json:"currency"`
	Timestamp          time.Time     `json:"timestamp"`
}

// PayoutEvent is the payload published when a payout is created or released.
type PayoutEvent struct {
	PayoutID        uuid.UUID    `json:"payout_id"`
	OfferID         uuid.UUID    `json:"offer_id"`
	CreatorID       uuid.UUID    `json:"creator_id"`
	AmountCents     int64        `json:"amount_cents"`
	Currency        Currency     `json:"currency"`
	Status          PayoutStatus `json:"status"`
	ReferenceNumber *string      `json:"reference_number,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}
