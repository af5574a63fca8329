/**
 * @description
 * Operator interventions on the payment lifecycle: releasing escrowed funds,
 * refunding, holding automatic progression, and overriding stuck offers.
 * Every intervention requires the admin role and a reason, and writes an
 * audit record before anything else is reported back.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/collabry/offer-service/internal/domain"
	"github.com/collabry/offer-service/internal/store"
)

// Release pays the creator out of escrow. Allowed from paid_escrow (early
// release at operator discretion) or approved (normal completion, after which
// the offer moves to completed). Repeating a release returns the existing
// payout instead of minting a second one.
func (s *Service) Release(ctx context.Context, actor domain.Actor, offerID uuid.UUID, reason string) (*domain.Payout, error) {
	offer, err := s.adminLoad(ctx, actor, offerID, reason)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.FindPayoutByOffer(ctx, offerID); err == nil {
		// The payout may predate the brand's approval (early release), so
		// the completion transition still has to run on the retry path.
		s.completeApprovedOffer(ctx, offer, actor)
		return existing, nil
	} else if !errors.Is(err, store.ErrPayoutNotFound) {
		return nil, fmt.Errorf("failed to check existing payout: %w", err)
	}

	if offer.Status != domain.OfferPaidEscrow && offer.Status != domain.OfferApproved {
		return nil, &domain.InvalidTransitionError{From: offer.Status, To: domain.OfferCompleted, Actor: domain.RoleAdmin}
	}

	// Money must actually be in escrow before any of it can leave.
	payment, err := s.repo.FindLivePaymentByOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return nil, domain.PreconditionFailed("no settled payment exists for this offer")
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment.Status != domain.PaymentPaid {
		return nil, domain.PreconditionFailed(fmt.Sprintf("payment is %s, funds are not in escrow", payment.Status))
	}

	payout, err := s.CreatePayoutForOffer(ctx, offer, offer.SubtotalCents)
	if err != nil {
		return nil, err
	}

	if err := s.recordAdminAction(ctx, actor, offerID, domain.AdminActionRelease, reason); err != nil {
		return nil, err
	}

	s.completeApprovedOffer(ctx, offer, actor)

	log.Printf("level=info component=admin flow=release offer_id=%s payout_id=%s amount_cents=%d actor_id=%s", offerID, payout.ID, payout.AmountCents, actor.ID)
	return payout, nil
}

// completeApprovedOffer drives approved into completed once a payout exists.
// On any other status it does nothing; a lost swap means another writer got
// there first.
func (s *Service) completeApprovedOffer(ctx context.Context, offer *domain.Offer, actor domain.Actor) {
	if offer.Status != domain.OfferApproved {
		return
	}
	system := domain.Actor{ID: actor.ID, Role: domain.RoleSystem}
	if _, err := s.transition(ctx, offer, system, domain.OfferCompleted, domain.EventOfferCompleted); err != nil {
		log.Printf("level=warn component=admin msg=\"payout exists but completion transition lost\" offer_id=%s err=%v", offer.ID, err)
	}
}

// Refund returns escrowed funds to the brand. Only an offer sitting in
// paid_escrow can be refunded; once work has started the dispute flow owns
// the money. A cancelled offer whose checkout settled anyway keeps its status
// and only the captured payment is returned. Refunding an already-refunded
// offer is a no-op.
func (s *Service) Refund(ctx context.Context, actor domain.Actor, offerID uuid.UUID, reason string) (*domain.Offer, error) {
	offer, err := s.adminLoad(ctx, actor, offerID, reason)
	if err != nil {
		return nil, err
	}
	if offer.Status == domain.OfferRefunded {
		return offer, nil
	}
	if offer.Status == domain.OfferCancelled {
		return s.refundCancelledOffer(ctx, actor, offer, reason)
	}
	if !domain.CanTransition(domain.RoleAdmin, offer.Status, domain.OfferRefunded) {
		return nil, &domain.InvalidTransitionError{From: offer.Status, To: domain.OfferRefunded, Actor: domain.RoleAdmin}
	}

	updated, err := s.transition(ctx, offer, actor, domain.OfferRefunded, domain.EventOfferRefunded)
	if err != nil {
		return nil, err
	}

	payment, err := s.repo.FindLivePaymentByOffer(ctx, offerID)
	if err == nil {
		if _, err := s.repo.SwapPaymentStatus(ctx, payment.ID, domain.PaymentPaid, domain.PaymentRefunded, &reason); err != nil {
			log.Printf("level=error component=admin msg=\"offer refunded but payment row not updated\" offer_id=%s payment_id=%s err=%v", offerID, payment.ID, err)
		}
	} else if !errors.Is(err, store.ErrPaymentNotFound) {
		return nil, fmt.Errorf("failed to load payment for refund: %w", err)
	}

	if err := s.recordAdminAction(ctx, actor, offerID, domain.AdminActionRefund, reason); err != nil {
		return nil, err
	}
	log.Printf("level=info component=admin flow=refund offer_id=%s actor_id=%s", offerID, actor.ID)
	return updated, nil
}

// refundCancelledOffer returns funds that the processor captured after the
// offer was force-closed. The offer is terminal and stays cancelled; only the
// payment row changes.
func (s *Service) refundCancelledOffer(ctx context.Context, actor domain.Actor, offer *domain.Offer, reason string) (*domain.Offer, error) {
	payment, err := s.repo.FindLivePaymentByOffer(ctx, offer.ID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			refunded, auditErr := s.hasRefundAction(ctx, offer.ID)
			if auditErr != nil {
				return nil, auditErr
			}
			if refunded {
				return offer, nil
			}
			return nil, domain.PreconditionFailed("no captured funds to return on this offer")
		}
		return nil, fmt.Errorf("failed to load payment for refund: %w", err)
	}
	if payment.Status != domain.PaymentPaid && payment.Status != domain.PaymentRefundRequired {
		return nil, domain.PreconditionFailed(fmt.Sprintf("payment is %s, there is nothing to return", payment.Status))
	}

	if _, err := s.repo.SwapPaymentStatus(ctx, payment.ID, payment.Status, domain.PaymentRefunded, &reason); err != nil {
		return nil, fmt.Errorf("failed to refund payment: %w", err)
	}
	if err := s.recordAdminAction(ctx, actor, offer.ID, domain.AdminActionRefund, reason); err != nil {
		return nil, err
	}
	log.Printf("level=info component=admin flow=refund offer_id=%s payment_id=%s actor_id=%s", offer.ID, payment.ID, actor.ID)
	return offer, nil
}

func (s *Service) hasRefundAction(ctx context.Context, offerID uuid.UUID) (bool, error) {
	actions, err := s.repo.ListAdminActionsByOffer(ctx, offerID)
	if err != nil {
		return false, err
	}
	for _, a := range actions {
		if a.Action == domain.AdminActionRefund {
			return true, nil
		}
	}
	return false, nil
}

// Hold attaches an annotation that pauses automatic progression (expiry
// sweeps and similar) without changing the offer's status.
func (s *Service) Hold(ctx context.Context, actor domain.Actor, offerID uuid.UUID, reason string) error {
	if _, err := s.adminLoad(ctx, actor, offerID, reason); err != nil {
		return err
	}
	if err := s.recordAdminAction(ctx, actor, offerID, domain.AdminActionHold, reason); err != nil {
		return err
	}
	log.Printf("level=info component=admin flow=hold offer_id=%s actor_id=%s", offerID, actor.ID)
	return nil
}

// CancelOverride force-cancels any non-terminal offer. Terminal offers are
// left untouched and the call succeeds as a no-op.
func (s *Service) CancelOverride(ctx context.Context, actor domain.Actor, offerID uuid.UUID, reason string) (*domain.Offer, error) {
	offer, err := s.adminLoad(ctx, actor, offerID, reason)
	if err != nil {
		return nil, err
	}
	if offer.Status.IsTerminal() {
		return offer, nil
	}
	updated, err := s.transition(ctx, offer, actor, domain.OfferCancelled, domain.EventOfferCancelled)
	if err != nil {
		return nil, err
	}
	if err := s.recordAdminAction(ctx, actor, offerID, domain.AdminActionCancel, reason); err != nil {
		return nil, err
	}
	return updated, nil
}

// RejectOverride force-rejects a sent or accepted offer, typically after a
// trust-and-safety takedown of one of the parties.
func (s *Service) RejectOverride(ctx context.Context, actor domain.Actor, offerID uuid.UUID, reason string) (*domain.Offer, error) {
	offer, err := s.adminLoad(ctx, actor, offerID, reason)
	if err != nil {
		return nil, err
	}
	updated, err := s.transition(ctx, offer, actor, domain.OfferRejected, domain.EventOfferRejected)
	if err != nil {
		return nil, err
	}
	if err := s.recordAdminAction(ctx, actor, offerID, domain.AdminActionRejectOverride, reason); err != nil {
		return nil, err
	}
	return updated, nil
}

// AuditTrail returns the intervention history for an offer, newest first.
func (s *Service) AuditTrail(ctx context.Context, actor domain.Actor, offerID uuid.UUID) ([]domain.AdminAction, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}
	return s.repo.ListAdminActionsByOffer(ctx, offerID)
}

func (s *Service) adminLoad(ctx context.Context, actor domain.Actor, offerID uuid.UUID, reason string) (*domain.Offer, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}
	if strings.TrimSpace(reason) == "" {
		return nil, domain.Validation("reason", "a reason is required for admin interventions")
	}
	return s.repo.GetOfferByID(ctx, offerID)
}

func (s *Service) recordAdminAction(ctx context.Context, actor domain.Actor, offerID uuid.UUID, action, reason string) error {
	record := &domain.AdminAction{
		ID:      uuid.New(),
		OfferID: offerID,
		ActorID: actor.ID,
		Action:  action,
		Reason:  reason,
	}
	if err := s.repo.CreateAdminAction(ctx, record); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// hasActiveHold reports whether the most recent intervention on the offer is
// a hold. Any later release, refund or cancel clears it.
func (s *Service) hasActiveHold(ctx context.Context, offerID uuid.UUID) (bool, error) {
	actions, err := s.repo.ListAdminActionsByOffer(ctx, offerID)
	if err != nil {
		return false, err
	}
	if len(actions) == 0 {
		return false, nil
	}
	return actions[0].Action == domain.AdminActionHold, nil
}
