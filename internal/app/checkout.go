/**
 * @description
 * Checkout initiation against the payment processor. A checkout session can
 * only be opened for an accepted offer with no live payment, and the session
 * amount is always the offer's stored total; there is no path for a caller to
 * influence the charged amount.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/collabry/offer-service/internal/domain"
	"github.com/collabry/offer-service/internal/store"
	"github.com/collabry/offer-service/pkg/checkoutclient"
)

// ErrRateLimited signals the brand has exceeded the checkout attempt budget.
var ErrRateLimited = errors.New("too many checkout attempts, slow down")

// RateLimiter is a distributed fixed-window counter. Consume returns the
// count within the current window after incrementing.
type RateLimiter interface {
	Consume(ctx context.Context, scope, subject string, window time.Duration) (int64, error)
}

// InitiateCheckout opens a processor checkout session for an accepted offer
// and records the pending payment. The returned payment carries the hosted
// checkout URL the brand is redirected to.
func (s *Service) InitiateCheckout(ctx context.Context, actor domain.Actor, offerID uuid.UUID) (*domain.Payment, error) {
	if actor.Role != domain.RoleBrand {
		return nil, domain.ErrForbidden
	}
	offer, err := s.loadOwnedOffer(ctx, actor, offerID)
	if err != nil {
		return nil, err
	}

	if s.checkoutLimiter != nil && s.checkoutLimitPerMinute > 0 {
		count, err := s.checkoutLimiter.Consume(ctx, "checkout", actor.ID, time.Minute)
		if err != nil {
			// Fail open: an unavailable limiter must not block payments.
			log.Printf("level=warn component=service msg=\"rate limiter unavailable, allowing checkout\" brand_id=%s err=%v", actor.ID, err)
		} else if count > int64(s.checkoutLimitPerMinute) {
			return nil, ErrRateLimited
		}
	}

	if offer.Status != domain.OfferAccepted {
		return nil, domain.PreconditionFailed(fmt.Sprintf("offer must be accepted before checkout, current status is %s", offer.Status))
	}
	live, err := s.repo.FindLivePaymentByOffer(ctx, offerID)
	if err != nil && !errors.Is(err, store.ErrPaymentNotFound) {
		return nil, fmt.Errorf("failed to check for live payments: %w", err)
	}
	if live != nil {
		return nil, domain.PreconditionFailed("a live payment already exists for this offer")
	}

	session, err := s.gateway.CreateSession(ctx, checkoutclient.CreateSessionRequest{
		AmountCents: offer.TotalCents,
		Currency:    string(offer.Currency),
		Reference:   offer.ID.String(),
		Description: fmt.Sprintf("Escrow funding for offer %s", offer.ID),
	})
	if err != nil {
		return nil, &domain.GatewayError{Op: "create checkout session", Err: err}
	}

	// The processor echoes the charged amount. Any discrepancy means the two
	// systems disagree about money, so halt instead of silently correcting.
	if session.AmountCents != offer.TotalCents {
		log.Printf("level=error component=service msg=\"processor amount mismatch\" offer_id=%s expected=%d got=%d session_id=%s", offer.ID, offer.TotalCents, session.AmountCents, session.ID)
		return nil, &domain.GatewayError{
			Op:  "create checkout session",
			Err: fmt.Errorf("processor session amount %d does not match offer total %d", session.AmountCents, offer.TotalCents),
		}
	}

	payment := &domain.Payment{
		ID:                 uuid.New(),
		OfferID:            offer.ID,
		AmountCents:        offer.TotalCents,
		Currency:           offer.Currency,
		ProcessorSessionID: session.ID,
		CheckoutURL:        session.CheckoutURL,
		Status:             domain.PaymentUnpaid,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		// The unique live-payment constraint closes the race between two
		// concurrent initiations; the loser surfaces it as a precondition.
		return nil, err
	}

	log.Printf("level=info component=service flow=checkout_initiate offer_id=%s payment_id=%s session_id=%s amount_cents=%d", offer.ID, payment.ID, session.ID, payment.AmountCents)
	return payment, nil
}

// GetLivePayment returns the payment currently blocking fresh checkouts for
// an offer, if any. Callers are expected to have authorized offer access.
func (s *Service) GetLivePayment(ctx context.Context, offerID uuid.UUID) (*domain.Payment, error) {
	return s.repo.FindLivePaymentByOffer(ctx, offerID)
}
