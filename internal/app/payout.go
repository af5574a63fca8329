/**
 * @description
 * Payout ledger operations. A payout is the record of money owed to a creator
 * for one offer: at most one per offer, denominated in the offer's currency,
 * and never exceeding the creator's subtotal (the platform fee stays with the
 * platform).
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/collabry/offer-service/internal/domain"
	"github.com/collabry/offer-service/internal/store"
)

// CreatePayoutForOffer records a pending payout for the offer's creator. The
// amount is validated against the offer subtotal; the platform fee portion of
// escrow is never payable to the creator. Racing creations collapse onto the
// first row via the one-payout-per-offer constraint.
func (s *Service) CreatePayoutForOffer(ctx context.Context, offer *domain.Offer, amountCents int64) (*domain.Payout, error) {
	if amountCents <= 0 {
		return nil, domain.Validation("amount_cents", "payout amount must be positive")
	}
	if amountCents > offer.SubtotalCents {
		return nil, domain.PreconditionFailed(fmt.Sprintf(
			"payout of %d exceeds the creator subtotal of %d", amountCents, offer.SubtotalCents))
	}

	payout := &domain.Payout{
		ID:          uuid.New(),
		CreatorID:   offer.CreatorID,
		OfferID:     offer.ID,
		AmountCents: amountCents,
		Currency:    offer.Currency,
		Method:      domain.PayoutMethodBankTransfer,
		Status:      domain.PayoutPending,
	}
	if err := s.repo.CreatePayout(ctx, payout); err != nil {
		if errors.Is(err, store.ErrPayoutExists) {
			existing, ferr := s.repo.FindPayoutByOffer(ctx, offer.ID)
			if ferr != nil {
				return nil, ferr
			}
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	s.publishPayoutEvent(ctx, domain.EventPayoutPending, payout)
	log.Printf("level=info component=payout flow=create payout_id=%s offer_id=%s creator_id=%s amount_cents=%d", payout.ID, payout.OfferID, payout.CreatorID, payout.AmountCents)
	return payout, nil
}

// MarkPayoutReleased records that the disbursement left the platform, keyed
// by the bank transfer reference. Repeating the call for an already-released
// payout succeeds without rewriting the reference.
func (s *Service) MarkPayoutReleased(ctx context.Context, actor domain.Actor, payoutID uuid.UUID, referenceNumber string) (*domain.Payout, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSystem {
		return nil, domain.ErrForbidden
	}
	if referenceNumber == "" {
		return nil, domain.Validation("reference_number", "is required")
	}

	swapped, err := s.repo.SwapPayoutStatus(ctx, payoutID, domain.PayoutPending, domain.PayoutReleased, &referenceNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to release payout: %w", err)
	}
	payout, err := s.repo.GetPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if !swapped && payout.Status != domain.PayoutReleased {
		return nil, domain.PreconditionFailed(fmt.Sprintf("payout is %s, cannot release", payout.Status))
	}
	if swapped {
		s.publishPayoutEvent(ctx, domain.EventPayoutReleased, payout)
		log.Printf("level=info component=payout flow=release payout_id=%s reference=%s actor_id=%s", payout.ID, referenceNumber, actor.ID)
	}
	return payout, nil
}

// GetPayoutForOffer exposes the payout row for an offer to its creator, the
// brand, or an operator.
func (s *Service) GetPayoutForOffer(ctx context.Context, actor domain.Actor, offerID uuid.UUID) (*domain.Payout, error) {
	offer, err := s.repo.GetOfferByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOfferAccess(actor, offer); err != nil {
		return nil, err
	}
	return s.repo.FindPayoutByOffer(ctx, offerID)
}

func (s *Service) publishPayoutEvent(ctx context.Context, routingKey string, payout *domain.Payout) {
	event := domain.PayoutEvent{
		PayoutID:        payout.ID,
		OfferID:         payout.OfferID,
		CreatorID:       payout.CreatorID,
		AmountCents:     payout.AmountCents,
		Currency:        payout.Currency,
		Status:          payout.Status,
		ReferenceNumber: payout.ReferenceNumber,
		Timestamp:       s.clock.Now(),
	}
	if err := s.eventProducer.Publish(ctx, routingKey, event); err != nil {
		log.Printf("level=warn component=payout msg=\"event publish failed\" routing_key=%s payout_id=%s err=%v", routingKey, payout.ID, err)
	}
}
