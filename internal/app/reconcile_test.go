package app

import (
	"context"
	"errors"
	"testing"

	"github.com/collabry/offer-service/internal/domain"
	"github.com/collabry/offer-service/pkg/checkoutclient"
)

func initiatePayment(t *testing.T, svc *Service, repo *memRepo) (*domain.Offer, *domain.Payment, domain.Actor) {
	t.Helper()
	offer, brand, _ := seedOffer(repo, domain.OfferAccepted)
	payment, err := svc.InitiateCheckout(context.Background(), brand, offer.ID)
	if err != nil {
		t.Fatalf("InitiateCheckout failed: %v", err)
	}
	return offer, payment, brand
}

func TestReconcileSettlesPaidSession(t *testing.T) {
	repo := newMemRepo()
	gateway := &stubGateway{}
	svc := newTestService(repo, gateway)
	offer, payment, _ := initiatePayment(t, svc, repo)

	gateway.getFn = func(sessionID string) (*checkoutclient.Session, error) {
		return &checkoutclient.Session{ID: sessionID, Status: checkoutclient.SessionPaid}, nil
	}

	outcome, err := svc.ReconcilePayment(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("ReconcilePayment failed: %v", err)
	}
	if outcome != ReconcileSettled {
		t.Fatalf("expected settled outcome, got %s", outcome)
	}

	reloaded, _ := repo.GetPaymentByID(context.Background(), payment.ID)
	if reloaded.Status != domain.PaymentPaid {
		t.Errorf("expected payment paid, got %s", reloaded.Status)
	}
	current, _ := repo.GetOfferByID(context.Background(), offer.ID)
	if current.Status != domain.OfferPaidEscrow {
		t.Errorf("expected offer in paid_escrow, got %s", current.Status)
	}
}

func TestReconcileExpiredSessionFreesOfferForRetry(t *testing.T) {
	repo := newMemRepo()
	gateway := &stubGateway{}
	svc := newTestService(repo, gateway)
	offer, payment, brand := initiatePayment(t, svc, repo)

	gateway.getFn = func(sessionID string) (*checkoutclient.Session, error) {
		return &checkoutclient.Session{ID: sessionID, Status: checkoutclient.SessionExpired}, nil
	}

	outcome, err := svc.ReconcilePayment(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("ReconcilePayment failed: %v", err)
	}
	if outcome != ReconcileSessionClosed {
		t.Fatalf("expected session_closed outcome, got %s", outcome)
	}

	reloaded, _ := repo.GetPaymentByID(context.Background(), payment.ID)
	if reloaded.Status != domain.PaymentExpired {
		t.Errorf("expected payment expired, got %s", reloaded.Status)
	}
	current, _ := repo.GetOfferByID(context.Background(), offer.ID)
	if current.Status != domain.OfferAccepted {
		t.Errorf("offer should stay accepted after an expired session, got %s", current.Status)
	}

	// The dead payment no longer blocks a fresh checkout.
	gateway.getFn = nil
	if _, err := svc.InitiateCheckout(context.Background(), brand, offer.ID); err != nil {
		t.Fatalf("fresh checkout after expiry failed: %v", err)
	}
}

func TestReconcileStillOpenAfterBudget(t *testing.T) {
	repo := newMemRepo()
	gateway := &stubGateway{}
	svc := newTestService(repo, gateway)
	_, payment, _ := initiatePayment(t, svc, repo)

	outcome, err := svc.ReconcilePayment(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("expected clean pending outcome, got %v", err)
	}
	if outcome != ReconcilePending {
		t.Fatalf("expected pending outcome, got %s", outcome)
	}
	if gateway.polls() != 3 {
		t.Errorf("expected 3 polls for the configured budget, got %d", gateway.polls())
	}
	reloaded, _ := repo.GetPaymentByID(context.Background(), payment.ID)
	if reloaded.Status != domain.PaymentUnpaid {
		t.Errorf("an open session must leave the payment unpaid, got %s", reloaded.Status)
	}
}

func TestReconcileStatusUnknownWhenEveryPollErrors(t *testing.T) {
	repo := newMemRepo()
	gateway := &stubGateway{
		getFn: func(string) (*checkoutclient.Session, error) {
			return nil, errors.New("processor unreachable")
		},
	}
	svc := newTestService(repo, gateway)
	_, payment, _ := initiatePayment(t, svc, repo)

	_, err := svc.ReconcilePayment(context.Background(), payment.ID)
	if !errors.Is(err, domain.ErrPaymentStatusUnknown) {
		t.Fatalf("expected payment status unknown, got %v", err)
	}
	// The payment row must be left untouched for a later sweep.
	reloaded, _ := repo.GetPaymentByID(context.Background(), payment.ID)
	if reloaded.Status != domain.PaymentUnpaid {
		t.Errorf("payment mutated despite unknown status: %s", reloaded.Status)
	}
}

func TestReconcileCancellationStopsBetweenPolls(t *testing.T) {
	repo := newMemRepo()
	gateway := &stubGateway{}
	svc := newTestService(repo, gateway)
	_, payment, _ := initiatePayment(t, svc, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := svc.ReconcilePayment(ctx, payment.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if outcome != ReconcilePending {
		t.Errorf("cancellation must report pending, got %s", outcome)
	}
	if gateway.polls() != 1 {
		t.Errorf("expected a single poll before cancellation, got %d", gateway.polls())
	}
}

func TestWebhookDeliveryUsesSameDecisionTable(t *testing.T) {
	repo := newMemRepo()
	gateway := &stubGateway{}
	svc := newTestService(repo, gateway)
	offer, payment, _ := initiatePayment(t, svc, repo)

	outcome, err := svc.ApplyProcessorStatus(context.Background(), payment.ProcessorSessionID, checkoutclient.SessionPaid)
	if err != nil {
		t.Fatalf("ApplyProcessorStatus failed: %v", err)
	}
	if outcome != ReconcileSettled {
		t.Fatalf("expected settled outcome, got %s", outcome)
	}

	// Replayed delivery collapses into an idempotent no-op.
	outcome, err = svc.ApplyProcessorStatus(context.Background(), payment.ProcessorSessionID, checkoutclient.SessionPaid)
	if err != nil {
		t.Fatalf("replayed delivery errored: %v", err)
	}
	if outcome != ReconcileSuperseded {
		t.Errorf("expected superseded on replay, got %s", outcome)
	}

	current, _ := repo.GetOfferByID(context.Background(), offer.ID)
	if current.Status != domain.OfferPaidEscrow {
		t.Errorf("expected paid_escrow, got %s", current.Status)
	}
}

func TestReconcileSupersededWhenPaymentAlreadyResolved(t *testing.T) {
	repo := newMemRepo()
	gateway := &stubGateway{}
	svc := newTestService(repo, gateway)
	_, payment, _ := initiatePayment(t, svc, repo)

	reason := "already handled"
	if _, err := repo.SwapPaymentStatus(context.Background(), payment.ID, domain.PaymentUnpaid, domain.PaymentFailed, &reason); err != nil {
		t.Fatalf("seed swap failed: %v", err)
	}

	outcome, err := svc.ReconcilePayment(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("ReconcilePayment failed: %v", err)
	}
	if outcome != ReconcileSuperseded {
		t.Fatalf("expected superseded, got %s", outcome)
	}
	if gateway.polls() != 0 {
		t.Errorf("resolved payment must not be polled, got %d polls", gateway.polls())
	}
}
