/**
 * @description
 * Payment reconciliation. After a checkout session is opened, the service
 * polls the processor on a bounded schedule until the session settles, closes
 * or the attempt budget runs out. Webhook deliveries land on the same decision
 * table, so polling and push notifications can never disagree about what a
 * processor status means.
 *
 * The reconciler is the only writer of the paid_escrow and refunded offer
 * states outside of admin refunds; user-facing handlers never set them.
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

// RetryPolicy bounds the reconciliation loop. A zero value gets sensible
// production defaults.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.Interval <= 0 {
		p.Interval = 3 * time.Second
	}
	return p
}

// ReconcileOutcome summarizes what a reconciliation pass concluded.
type ReconcileOutcome string

const (
	// ReconcileSettled means funds are captured and the offer is in escrow.
	ReconcileSettled ReconcileOutcome = "settled"
	// ReconcileSessionClosed means the session failed or expired; the offer
	// stays accepted and a fresh checkout may be initiated.
	ReconcileSessionClosed ReconcileOutcome = "session_closed"
	// ReconcilePending means the session is still open after the final poll.
	ReconcilePending ReconcileOutcome = "pending"
	// ReconcileSuperseded means another writer already resolved the payment
	// or moved the offer; this pass changed nothing.
	ReconcileSuperseded ReconcileOutcome = "superseded"
	// ReconcileRefundRequired means the processor captured funds after the
	// offer was force-closed; the payment is parked for an admin refund.
	ReconcileRefundRequired ReconcileOutcome = "refund_required"
)

// ReconcilePayment polls the processor for a payment's session status until it
// resolves or the retry budget is exhausted. Context cancellation stops the
// loop between polls without marking the payment; the sweep job picks such
// payments up later.
//
// When every poll errors out, the payment's true status is unknown and the
// returned error wraps domain.ErrPaymentStatusUnknown. The payment row is
// deliberately left untouched: guessing an outcome here could strand real
// money on either side.
func (s *Service) ReconcilePayment(ctx context.Context, paymentID uuid.UUID) (ReconcileOutcome, error) {
	payment, err := s.repo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if payment.Status != domain.PaymentUnpaid {
		return ReconcileSuperseded, nil
	}

	policy := s.reconcilePolicy
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		session, err := s.gateway.GetSession(ctx, payment.ProcessorSessionID)
		if err != nil {
			lastErr = err
			log.Printf("level=warn component=reconciler msg=\"session poll failed\" payment_id=%s session_id=%s attempt=%d err=%v", payment.ID, payment.ProcessorSessionID, attempt, err)
		} else {
			outcome, err := s.applySessionStatus(ctx, payment, session.Status)
			if err != nil {
				return "", err
			}
			if outcome != ReconcilePending {
				return outcome, nil
			}
			lastErr = nil
		}

		if attempt == policy.MaxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			return ReconcilePending, err
		}
		select {
		case <-ctx.Done():
			return ReconcilePending, ctx.Err()
		case <-s.clock.After(policy.Interval):
		}
	}

	if lastErr != nil {
		log.Printf("level=error component=reconciler msg=\"payment status unknown after retry budget\" payment_id=%s session_id=%s attempts=%d", payment.ID, payment.ProcessorSessionID, policy.MaxAttempts)
		return "", fmt.Errorf("reconciling payment %s: %w: %w", payment.ID, domain.ErrPaymentStatusUnknown, lastErr)
	}
	log.Printf("level=info component=reconciler msg=\"session still open after final poll\" payment_id=%s session_id=%s", payment.ID, payment.ProcessorSessionID)
	return ReconcilePending, nil
}

// ApplyProcessorStatus resolves a payment from a processor push notification.
// The webhook handler calls this after verifying the delivery signature.
func (s *Service) ApplyProcessorStatus(ctx context.Context, sessionID string, status string) (ReconcileOutcome, error) {
	payment, err := s.repo.FindPaymentBySessionID(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return s.applySessionStatus(ctx, payment, status)
}

// applySessionStatus is the single decision table mapping a processor session
// status onto payment and offer state. Both the poller and the webhook intake
// run through it, and every write is a compare-and-swap, so replays and
// concurrent deliveries collapse into no-ops.
func (s *Service) applySessionStatus(ctx context.Context, payment *domain.Payment, sessionStatus string) (ReconcileOutcome, error) {
	switch sessionStatus {
	case checkoutclient.SessionPaid:
		return s.settlePayment(ctx, payment)
	case checkoutclient.SessionExpired:
		return s.closePayment(ctx, payment, domain.PaymentExpired, domain.EventPaymentExpired, "checkout session expired")
	case checkoutclient.SessionFailed:
		return s.closePayment(ctx, payment, domain.PaymentFailed, domain.EventPaymentFailed, "payment failed at processor")
	case checkoutclient.SessionOpen:
		return ReconcilePending, nil
	default:
		return "", &domain.GatewayError{
			Op:  "interpret session status",
			Err: fmt.Errorf("processor returned unknown session status %q", sessionStatus),
		}
	}
}

func (s *Service) settlePayment(ctx context.Context, payment *domain.Payment) (ReconcileOutcome, error) {
	offer, err := s.repo.GetOfferByID(ctx, payment.OfferID)
	if err != nil {
		return "", err
	}
	if offer.Status.IsTerminal() {
		// The offer was force-closed while the session was still open and the
		// processor captured the funds anyway.
		return s.parkCapturedFunds(ctx, payment, domain.PaymentUnpaid)
	}

	swapped, err := s.repo.SwapPaymentStatus(ctx, payment.ID, domain.PaymentUnpaid, domain.PaymentPaid, nil)
	if err != nil {
		return "", fmt.Errorf("failed to mark payment paid: %w", err)
	}
	if !swapped {
		current, err := s.repo.GetPaymentByID(ctx, payment.ID)
		if err != nil {
			return "", err
		}
		if current.Status != domain.PaymentPaid {
			// Admin refunded or the session closed first; respect it.
			return ReconcileSuperseded, nil
		}
		// Payment already settled by a concurrent delivery; fall through to
		// make sure the offer landed in escrow too.
	}

	moved, err := s.repo.SwapOfferStatus(ctx, offer.ID, domain.OfferAccepted, domain.OfferPaidEscrow)
	if err != nil {
		return "", fmt.Errorf("failed to move offer into escrow: %w", err)
	}
	if !moved {
		current, err := s.repo.GetOfferByID(ctx, offer.ID)
		if err != nil {
			return "", err
		}
		if current.Status == domain.OfferAccepted {
			return "", fmt.Errorf("offer %s stayed accepted after settle swap", offer.ID)
		}
		if current.Status.IsTerminal() {
			// A force-close raced between the status check above and the
			// swap; the captured money must not look settled.
			return s.parkCapturedFunds(ctx, payment, domain.PaymentPaid)
		}
		// Already in escrow or further along: an earlier delivery won.
		return ReconcileSuperseded, nil
	}

	offer.Status = domain.OfferPaidEscrow
	s.publishOfferEvent(ctx, domain.EventOfferPaidEscrow, offer, domain.Actor{ID: "reconciler", Role: domain.RoleSystem})
	log.Printf("level=info component=reconciler flow=settle offer_id=%s payment_id=%s amount_cents=%d", offer.ID, payment.ID, payment.AmountCents)
	return ReconcileSettled, nil
}

// parkCapturedFunds moves a payment whose offer closed under it into
// refund_required so the money stays visible until an admin returns it.
func (s *Service) parkCapturedFunds(ctx context.Context, payment *domain.Payment, from domain.PaymentStatus) (ReconcileOutcome, error) {
	reason := "offer closed before settlement; captured funds need an admin refund"
	swapped, err := s.repo.SwapPaymentStatus(ctx, payment.ID, from, domain.PaymentRefundRequired, &reason)
	if err != nil {
		return "", fmt.Errorf("failed to park captured funds: %w", err)
	}
	if !swapped {
		return ReconcileSuperseded, nil
	}
	log.Printf("level=error component=reconciler msg=\"captured funds on a closed offer\" payment_id=%s offer_id=%s amount_cents=%d", payment.ID, payment.OfferID, payment.AmountCents)
	return ReconcileRefundRequired, nil
}

func (s *Service) closePayment(ctx context.Context, payment *domain.Payment, to domain.PaymentStatus, eventKey, reason string) (ReconcileOutcome, error) {
	swapped, err := s.repo.SwapPaymentStatus(ctx, payment.ID, domain.PaymentUnpaid, to, &reason)
	if err != nil {
		return "", fmt.Errorf("failed to close payment: %w", err)
	}
	if !swapped {
		return ReconcileSuperseded, nil
	}

	// The offer stays accepted: a closed session frees the brand to initiate
	// a fresh checkout.
	event := domain.PaymentEvent{
		PaymentID:          payment.ID,
		OfferID:            payment.OfferID,
		ProcessorSessionID: payment.ProcessorSessionID,
		Status:             to,
		AmountCents:        payment.AmountCents,
		Currency:           payment.Currency,
		Timestamp:          s.clock.Now(),
	}
	if err := s.eventProducer.Publish(ctx, eventKey, event); err != nil {
		log.Printf("level=warn component=reconciler msg=\"event publish failed\" routing_key=%s payment_id=%s err=%v", eventKey, payment.ID, err)
	}
	log.Printf("level=info component=reconciler flow=close_payment payment_id=%s offer_id=%s status=%s", payment.ID, payment.OfferID, to)
	return ReconcileSessionClosed, nil
}

// ReconcileStalePayments is the sweep entrypoint used by the scheduler: it
// runs a single poll for every unpaid payment older than the cutoff, covering
// payments whose inline reconciler died with the process.
func (s *Service) ReconcileStalePayments(ctx context.Context, olderThan time.Duration, limit int) error {
	cutoff := s.clock.Now().Add(-olderThan)
	stale, err := s.repo.ListStaleUnpaidPayments(ctx, cutoff, limit)
	if err != nil {
		return fmt.Errorf("failed to list stale payments: %w", err)
	}
	for i := range stale {
		payment := &stale[i]
		session, err := s.gateway.GetSession(ctx, payment.ProcessorSessionID)
		if err != nil {
			log.Printf("level=warn component=reconciler msg=\"stale sweep poll failed\" payment_id=%s err=%v", payment.ID, err)
			continue
		}
		if _, err := s.applySessionStatus(ctx, payment, session.Status); err != nil {
			if errors.Is(err, store.ErrOfferNotFound) || errors.Is(err, store.ErrPaymentNotFound) {
				continue
			}
			log.Printf("level=error component=reconciler msg=\"stale sweep apply failed\" payment_id=%s err=%v", payment.ID, err)
		}
	}
	return nil
}
