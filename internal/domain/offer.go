/**
 * @description
 * This file defines the core domain models for the offer-service. An Offer is
 * the aggregate root of the escrow payment lifecycle: a priced proposal from a
 * brand to a creator, moving through a fixed set of states from draft to a
 * terminal outcome.
 *
 * @notes
 * - Amounts are stored as `int64` in minor currency units (cents), which
 *   avoids floating-point inaccuracies with financial data.
 * - `SubtotalCents`, `PlatformFeeCents` and `TotalCents` are derived values.
 *   They are only ever written by the pricing engine; callers must never set
 *   them directly.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliverableType identifies the kind of content a line item pays for.
type DeliverableType string

const (
	DeliverableIGReel       DeliverableType = "ig_reel"
	DeliverableIGStory      DeliverableType = "ig_story"
	DeliverableTikTokPost   DeliverableType = "tiktok_post"
	DeliverableYouTubeVideo DeliverableType = "youtube_video"
	DeliverableYouTubeShort DeliverableType = "youtube_short"
	DeliverableBundle       DeliverableType = "bundle"
)

// ValidDeliverableType reports whether t is one of the known deliverable kinds.
func ValidDeliverableType(t DeliverableType) bool {
	switch t {
	case DeliverableIGReel, DeliverableIGStory, DeliverableTikTokPost,
		DeliverableYouTubeVideo, DeliverableYouTubeShort, DeliverableBundle:
		return true
	}
	return false
}

// Currency is the ISO code shared by an offer, its payment and its payout.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyMYR Currency = "MYR"
	CurrencySGD Currency = "SGD"
)

// ValidCurrency reports whether c is a currency the platform settles in.
func ValidCurrency(c Currency) bool {
	switch c {
	case CurrencyUSD, CurrencyMYR, CurrencySGD:
		return true
	}
	return false
}

// LineItem is one priced deliverable inside an offer. The rush fee is a
// percentage surcharge in the range [0, 200].
type LineItem struct {
	DeliverableType DeliverableType `json:"deliverable_type"`
	Quantity        int             `json:"quantity"`
	BasePriceCents  int64           `json:"base_price_cents"`
	RushFeePct      int             `json:"rush_fee_pct"`
}

// Offer represents the central record of a brand-to-creator engagement.
// This struct maps directly to the `offers` table in the database.
type Offer struct {
	ID               uuid.UUID   `json:"id"`
	CampaignID       uuid.UUID   `json:"campaign_id"`
	BrandID          uuid.UUID   `json:"brand_id"`
	CreatorID        uuid.UUID   `json:"creator_id"`
	CounterOfferID   *uuid.UUID  `json:"counter_offer_id,omitempty"` // parent proposal this offer counters
	Items            []LineItem  `json:"items"`
	Currency         Currency    `json:"currency"`
	PlatformFeePct   int         `json:"platform_fee_pct"`
	SubtotalCents    int64       `json:"subtotal_cents"`
	PlatformFeeCents int64       `json:"platform_fee_cents"`
	TotalCents       int64       `json:"total_cents"`
	Status           OfferStatus `json:"status"`
	Deadline         *time.Time  `json:"deadline,omitempty"`
	ExpiresAt        *time.Time  `json:"expires_at,omitempty"`
	Notes            string      `json:"notes"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// RateCardItem is a creator's published default price for a deliverable type.
// Rate cards are owned by the profile surface; this service only reads them
// when a brand builds an offer from published rates.
type RateCardItem struct {
	CreatorID       uuid.UUID       `json:"creator_id"`
	DeliverableType DeliverableType `json:"deliverable_type"`
	BasePriceCents  int64           `json:"base_price_cents"`
	Currency        Currency        `json:"currency"`
}

// CreateOfferRequest is the DTO for incoming offer creation API requests.
// Either Items or FromRateCard must be supplied.
type CreateOfferRequest struct {
	CampaignID     uuid.UUID       `json:"campaign_id"`
	CreatorID      uuid.UUID       `json:"creator_id"`
	Items          []LineItemInput `json:"items,omitempty"`
	FromRateCard   []RateCardPick  `json:"from_rate_card,omitempty"`
	Currency       Currency        `json:"currency"`
	PlatformFeePct *int            `json:"platform_fee_pct,omitempty"`
	Deadline       *time.Time      `json:"deadline,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	Notes          string          `json:"notes"`
}

// LineItemInput is the caller-supplied form of a line item.
type LineItemInput struct {
	DeliverableType DeliverableType `json:"deliverable_type"`
	Quantity        int             `json:"quantity"`
	BasePriceCents  int64           `json:"base_price_cents"`
	RushFeePct      int             `json:"rush_fee_pct"`
}

// RateCardPick selects a published rate-card entry when building an offer
// from a creator's rates instead of manual pricing.
type RateCardPick struct {
	DeliverableType DeliverableType `json:"deliverable_type"`
	Quantity        int             `json:"quantity"`
	RushFeePct      int             `json:"rush_fee_pct"`
}

// RespondToOfferRequest is the DTO for a creator's response to a sent offer.
type RespondToOfferRequest struct {
	Action  string            `json:"action"` // accept | reject | counter
	Counter *CounterOfferData `json:"counter,omitempty"`
}

// CounterOfferData carries the re-priced proposal of a counter-offer.
type CounterOfferData struct {
	Items []LineItemInput `json:"items"`
	Notes string          `json:"notes"`
}

const (
	RespondActionAccept  = "accept"
	RespondActionReject  = "reject"
	RespondActionCounter = "counter"
)

// OfferListOptions controls pagination for offer listings.
type OfferListOptions struct {
	Limit  int
	Offset int
	Status OfferStatus
}
