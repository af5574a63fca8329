package app

import (
	"context"
	"errors"
	"testing"

	"github.com/collabry/offer-service/internal/domain"
)

func TestPayoutCappedAtCreatorSubtotal(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubGateway{})
	offer, _, _ := seedOffer(repo, domain.OfferApproved)

	// Paying out the gross total would hand the platform fee to the creator.
	_, err := svc.CreatePayoutForOffer(context.Background(), offer, offer.TotalCents)
	var pre *domain.PreconditionFailedError
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition failure for over-subtotal payout, got %v", err)
	}
	if _, err := repo.FindPayoutByOffer(context.Background(), offer.ID); err == nil {
		t.Error("payout row created despite rejected amount")
	}

	payout, err := svc.CreatePayoutForOffer(context.Background(), offer, offer.SubtotalCents)
	if err != nil {
		t.Fatalf("payout at subtotal failed: %v", err)
	}
	if payout.Currency != offer.Currency {
		t.Errorf("payout currency %s differs from offer currency %s", payout.Currency, offer.Currency)
	}
}

func TestOnePayoutPerOffer(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubGateway{})
	offer, _, _ := seedOffer(repo, domain.OfferApproved)

	first, err := svc.CreatePayoutForOffer(context.Background(), offer, offer.SubtotalCents)
	if err != nil {
		t.Fatalf("first payout failed: %v", err)
	}
	second, err := svc.CreatePayoutForOffer(context.Background(), offer, offer.SubtotalCents)
	if err != nil {
		t.Fatalf("duplicate payout should resolve to the existing row: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("two payout rows exist for one offer: %s vs %s", first.ID, second.ID)
	}
}

func TestMarkPayoutReleased(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubGateway{})
	offer, _, _ := seedOffer(repo, domain.OfferApproved)

	payout, err := svc.CreatePayoutForOffer(context.Background(), offer, offer.SubtotalCents)
	if err != nil {
		t.Fatalf("payout failed: %v", err)
	}

	released, err := svc.MarkPayoutReleased(context.Background(), admin, payout.ID, "BT-20260830-001")
	if err != nil {
		t.Fatalf("MarkPayoutReleased failed: %v", err)
	}
	if released.Status != domain.PayoutReleased {
		t.Errorf("expected released, got %s", released.Status)
	}
	if released.ReferenceNumber == nil || *released.ReferenceNumber != "BT-20260830-001" {
		t.Errorf("reference number not recorded: %v", released.ReferenceNumber)
	}

	// Retrying keeps the original reference.
	again, err := svc.MarkPayoutReleased(context.Background(), admin, payout.ID, "BT-20260830-999")
	if err != nil {
		t.Fatalf("repeated release errored: %v", err)
	}
	if *again.ReferenceNumber != "BT-20260830-001" {
		t.Errorf("reference overwritten on retry: %s", *again.ReferenceNumber)
	}

	brandActor := domain.Actor{ID: offer.BrandID.String(), Role: domain.RoleBrand}
	if _, err := svc.MarkPayoutReleased(context.Background(), brandActor, payout.ID, "BT-x"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected forbidden for brand, got %v", err)
	}
}
