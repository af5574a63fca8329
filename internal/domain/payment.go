package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the closed set of states for an escrow payment.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentExpired  PaymentStatus = "expired"
	PaymentRefunded PaymentStatus = "refunded"
	// PaymentRefundRequired marks funds the processor captured after the
	// offer was force-closed. Only an admin refund resolves it.
	PaymentRefundRequired PaymentStatus = "refund_required"
)

// Live reports whether the payment still represents money held against the
// offer. At most one live payment may exist per offer at any time.
func (s PaymentStatus) Live() bool {
	return s == PaymentUnpaid || s == PaymentPaid || s == PaymentRefundRequired
}

// Payment records one checkout session opened against an offer. Exactly one
// offer per payment; amount and currency must match the offer exactly.
type Payment struct {
	ID                 uuid.UUID     `json:"id"`
	OfferID            uuid.UUID     `json:"offer_id"`
	AmountCents        int64         `json:"amount_cents"`
	Currency           Currency      `json:"currency"`
	ProcessorSessionID string        `json:"processor_session_id"`
	CheckoutURL        string        `json:"checkout_url,omitempty"`
	Status             PaymentStatus `json:"status"`
	FailureReason      *string       `json:"failure_reason,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// PayoutStatus is the closed set of states for a creator payout.
type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutReleased PayoutStatus = "released"
)

// PayoutMethod names the disbursement channel for a payout.
type PayoutMethod string

const (
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
)

// Payout tracks money owed to a creator once an offer's work is approved.
// The amount never includes the platform fee: it is capped at the offer's
// subtotal.
type Payout struct {
	ID              uuid.UUID    `json:"id"`
	CreatorID       uuid.UUID    `json:"creator_id"`
	OfferID         uuid.UUID    `json:"offer_id"`
	AmountCents     int64        `json:"amount_cents"`
	Currency        Currency     `json:"currency"`
	Method          PayoutMethod `json:"method"`
	Status          PayoutStatus `json:"status"`
	ReferenceNumber *string      `json:"reference_number,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// AdminAction is the audit record persisted for every operator intervention.
// Actor identity, timestamp and reason are non-optional.
type AdminAction struct {
	ID        uuid.UUID `json:"id"`
	OfferID   uuid.UUID `json:"offer_id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"` // release | refund | hold | cancel | reject_override
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	AdminActionRelease        = "release"
	AdminActionRefund         = "refund"
	AdminActionHold           = "hold"
	AdminActionCancel         = "cancel"
	AdminActionRejectOverride = "reject_override"
)
