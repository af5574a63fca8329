/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the offer-service needs. Keeping the business logic behind an
 * interface decouples it from PostgreSQL and lets tests substitute stubs.
 *
 * Status updates are compare-and-swap operations: the write is conditioned on
 * the previously read status still holding, so two concurrent transition
 * attempts on the same row produce exactly one success.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/collabry/offer-service/internal/domain"
)

var (
	ErrOfferNotFound    = errors.New("offer not found")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrPayoutNotFound   = errors.New("payout not found")
	ErrPayoutExists     = errors.New("payout already exists for offer")
	ErrRateCardNotFound = errors.New("rate card entry not found")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Offer methods
	CreateOffer(ctx context.Context, offer *domain.Offer) error
	GetOfferByID(ctx context.Context, offerID uuid.UUID) (*domain.Offer, error)
	ListOffersByBrand(ctx context.Context, brandID uuid.UUID, opts domain.OfferListOptions) ([]domain.Offer, error)
	ListOffersByCreator(ctx context.Context, creatorID uuid.UUID, opts domain.OfferListOptions) ([]domain.Offer, error)
	// SwapOfferStatus updates the status only if the current value still
	// equals `from`; it reports whether the swap happened.
	SwapOfferStatus(ctx context.Context, offerID uuid.UUID, from, to domain.OfferStatus) (bool, error)
	// UpdateOfferPricing persists new items plus the recomputed derived
	// totals as a single write; items and totals are never split. The write
	// only lands while the offer is still a draft.
	UpdateOfferPricing(ctx context.Context, offerID uuid.UUID, items []domain.LineItem, platformFeePct int, totals PricingTotals) error
	ListExpiredSentOffers(ctx context.Context, now time.Time, limit int) ([]domain.Offer, error)

	// Payment methods
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	GetPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	FindLivePaymentByOffer(ctx context.Context, offerID uuid.UUID) (*domain.Payment, error)
	FindPaymentBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error)
	SwapPaymentStatus(ctx context.Context, paymentID uuid.UUID, from, to domain.PaymentStatus, failureReason *string) (bool, error)
	ListStaleUnpaidPayments(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error)

	// Payout methods
	CreatePayout(ctx context.Context, payout *domain.Payout) error
	GetPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error)
	FindPayoutByOffer(ctx context.Context, offerID uuid.UUID) (*domain.Payout, error)
	SwapPayoutStatus(ctx context.Context, payoutID uuid.UUID, from, to domain.PayoutStatus, referenceNumber *string) (bool, error)

	// Admin audit trail
	CreateAdminAction(ctx context.Context, action *domain.AdminAction) error
	// ListAdminActionsByOffer returns the trail newest first.
	ListAdminActionsByOffer(ctx context.Context, offerID uuid.UUID) ([]domain.AdminAction, error)

	// Rate card methods (read-only; owned by the profile surface)
	FindRateCardItem(ctx context.Context, creatorID uuid.UUID, deliverable domain.DeliverableType) (*domain.RateCardItem, error)
}

// PricingTotals carries the derived amounts for an offer pricing update.
type PricingTotals struct {
	SubtotalCents    int64
	PlatformFeeCents int64
	TotalCents       int64
}
