package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/collabry/offer-service/internal/domain"
	"github.com/collabry/offer-service/internal/store"
	"github.com/collabry/offer-service/pkg/checkoutclient"
	"github.com/collabry/offer-service/pkg/rabbitmq"
)

// memRepo is an in-memory store.Repository with the same compare-and-swap and
// uniqueness semantics as the Postgres implementation, safe for concurrent
// use so races in the service layer can be exercised directly.
type memRepo struct {
	mu        sync.Mutex
	offers    map[uuid.UUID]*domain.Offer
	payments  map[uuid.UUID]*domain.Payment
	payouts   map[uuid.UUID]*domain.Payout
	actions   []domain.AdminAction
	rateCards map[uuid.UUID]map[domain.DeliverableType]*domain.RateCardItem
}

func newMemRepo() *memRepo {
	return &memRepo{
		offers:    make(map[uuid.UUID]*domain.Offer),
		payments:  make(map[uuid.UUID]*domain.Payment),
		payouts:   make(map[uuid.UUID]*domain.Payout),
		rateCards: make(map[uuid.UUID]map[domain.DeliverableType]*domain.RateCardItem),
	}
}

func (r *memRepo) CreateOffer(_ context.Context, offer *domain.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *offer
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.offers[offer.ID] = &cp
	return nil
}

func (r *memRepo) GetOfferByID(_ context.Context, offerID uuid.UUID) (*domain.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	offer, ok := r.offers[offerID]
	if !ok {
		return nil, store.ErrOfferNotFound
	}
	cp := *offer
	return &cp, nil
}

func (r *memRepo) ListOffersByBrand(_ context.Context, brandID uuid.UUID, opts domain.OfferListOptions) ([]domain.Offer, error) {
	return r.listOffers(func(o *domain.Offer) bool {
		return o.BrandID == brandID && (opts.Status == "" || o.Status == opts.Status)
	})
}

func (r *memRepo) ListOffersByCreator(_ context.Context, creatorID uuid.UUID, opts domain.OfferListOptions) ([]domain.Offer, error) {
	return r.listOffers(func(o *domain.Offer) bool {
		return o.CreatorID == creatorID && (opts.Status == "" || o.Status == opts.Status)
	})
}

func (r *memRepo) listOffers(match func(*domain.Offer) bool) ([]domain.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Offer
	for _, o := range r.offers {
		if match(o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) SwapOfferStatus(_ context.Context, offerID uuid.UUID, from, to domain.OfferStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	offer, ok := r.offers[offerID]
	if !ok {
		return false, store.ErrOfferNotFound
	}
	if offer.Status != from {
		return false, nil
	}
	offer.Status = to
	offer.UpdatedAt = time.Now()
	return true, nil
}

func (r *memRepo) UpdateOfferPricing(_ context.Context, offerID uuid.UUID, items []domain.LineItem, platformFeePct int, totals store.PricingTotals) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	offer, ok := r.offers[offerID]
	if !ok {
		return store.ErrOfferNotFound
	}
	if offer.Status != domain.OfferDraft {
		return domain.PreconditionFailed("pricing can only change while the offer is a draft")
	}
	offer.Items = items
	offer.PlatformFeePct = platformFeePct
	offer.SubtotalCents = totals.SubtotalCents
	offer.PlatformFeeCents = totals.PlatformFeeCents
	offer.TotalCents = totals.TotalCents
	return nil
}

func (r *memRepo) ListExpiredSentOffers(_ context.Context, now time.Time, limit int) ([]domain.Offer, error) {
	out, _ := r.listOffers(func(o *domain.Offer) bool {
		return o.Status == domain.OfferSent && o.ExpiresAt != nil && o.ExpiresAt.Before(now)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) CreatePayment(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.OfferID == payment.OfferID && p.Status.Live() {
			return domain.PreconditionFailed("a live payment already exists for this offer")
		}
	}
	cp := *payment
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.payments[payment.ID] = &cp
	return nil
}

func (r *memRepo) GetPaymentByID(_ context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment, ok := r.payments[paymentID]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	cp := *payment
	return &cp, nil
}

func (r *memRepo) FindLivePaymentByOffer(_ context.Context, offerID uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.OfferID == offerID && p.Status.Live() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrPaymentNotFound
}

func (r *memRepo) FindPaymentBySessionID(_ context.Context, sessionID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ProcessorSessionID == sessionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrPaymentNotFound
}

func (r *memRepo) SwapPaymentStatus(_ context.Context, paymentID uuid.UUID, from, to domain.PaymentStatus, failureReason *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment, ok := r.payments[paymentID]
	if !ok {
		return false, store.ErrPaymentNotFound
	}
	if payment.Status != from {
		return false, nil
	}
	payment.Status = to
	payment.FailureReason = failureReason
	payment.UpdatedAt = time.Now()
	return true, nil
}

func (r *memRepo) ListStaleUnpaidPayments(_ context.Context, cutoff time.Time, limit int) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.payments {
		if p.Status == domain.PaymentUnpaid && p.CreatedAt.Before(cutoff) {
			out = append(out, *p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) CreatePayout(_ context.Context, payout *domain.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payouts {
		if p.OfferID == payout.OfferID {
			return store.ErrPayoutExists
		}
	}
	cp := *payout
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.payouts[payout.ID] = &cp
	return nil
}

func (r *memRepo) GetPayoutByID(_ context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payout, ok := r.payouts[payoutID]
	if !ok {
		return nil, store.ErrPayoutNotFound
	}
	cp := *payout
	return &cp, nil
}

func (r *memRepo) FindPayoutByOffer(_ context.Context, offerID uuid.UUID) (*domain.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payouts {
		if p.OfferID == offerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrPayoutNotFound
}

func (r *memRepo) SwapPayoutStatus(_ context.Context, payoutID uuid.UUID, from, to domain.PayoutStatus, referenceNumber *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payout, ok := r.payouts[payoutID]
	if !ok {
		return false, store.ErrPayoutNotFound
	}
	if payout.Status != from {
		return false, nil
	}
	payout.Status = to
	if referenceNumber != nil {
		payout.ReferenceNumber = referenceNumber
	}
	payout.UpdatedAt = time.Now()
	return true, nil
}

func (r *memRepo) CreateAdminAction(_ context.Context, action *domain.AdminAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *action
	cp.CreatedAt = time.Now()
	r.actions = append(r.actions, cp)
	return nil
}

func (r *memRepo) ListAdminActionsByOffer(_ context.Context, offerID uuid.UUID) ([]domain.AdminAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AdminAction
	for i := len(r.actions) - 1; i >= 0; i-- {
		if r.actions[i].OfferID == offerID {
			out = append(out, r.actions[i])
		}
	}
	return out, nil
}

func (r *memRepo) FindRateCardItem(_ context.Context, creatorID uuid.UUID, deliverable domain.DeliverableType) (*domain.RateCardItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cards, ok := r.rateCards[creatorID]
	if !ok {
		return nil, store.ErrRateCardNotFound
	}
	card, ok := cards[deliverable]
	if !ok {
		return nil, store.ErrRateCardNotFound
	}
	cp := *card
	return &cp, nil
}

func (r *memRepo) addRateCard(card domain.RateCardItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rateCards[card.CreatorID] == nil {
		r.rateCards[card.CreatorID] = make(map[domain.DeliverableType]*domain.RateCardItem)
	}
	cp := card
	r.rateCards[card.CreatorID][card.DeliverableType] = &cp
}

// stubGateway lets each test script the processor's behaviour.
type stubGateway struct {
	mu       sync.Mutex
	createFn func(req checkoutclient.CreateSessionRequest) (*checkoutclient.Session, error)
	getFn    func(sessionID string) (*checkoutclient.Session, error)
	getCalls int
}

func (g *stubGateway) CreateSession(_ context.Context, req checkoutclient.CreateSessionRequest) (*checkoutclient.Session, error) {
	if g.createFn == nil {
		return &checkoutclient.Session{
			ID:          "sess_" + uuid.NewString()[:8],
			CheckoutURL: "https://checkout.example/" + req.Reference,
			Status:      checkoutclient.SessionOpen,
			AmountCents: req.AmountCents,
			Currency:    req.Currency,
		}, nil
	}
	return g.createFn(req)
}

func (g *stubGateway) GetSession(_ context.Context, sessionID string) (*checkoutclient.Session, error) {
	g.mu.Lock()
	g.getCalls++
	g.mu.Unlock()
	if g.getFn == nil {
		return &checkoutclient.Session{ID: sessionID, Status: checkoutclient.SessionOpen}, nil
	}
	return g.getFn(sessionID)
}

func (g *stubGateway) polls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getCalls
}

// immediateClock removes real waiting from the reconciliation loop.
type immediateClock struct {
	now time.Time
}

func (c *immediateClock) Now() time.Time {
	if c.now.IsZero() {
		return time.Now()
	}
	return c.now
}

func (c *immediateClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func newTestService(repo *memRepo, gateway CheckoutGateway) *Service {
	svc := NewService(repo, gateway, &rabbitmq.NoopProducer{}, 20, RetryPolicy{MaxAttempts: 3, Interval: time.Millisecond})
	svc.SetClock(&immediateClock{})
	return svc
}

func seedOffer(repo *memRepo, status domain.OfferStatus) (*domain.Offer, domain.Actor, domain.Actor) {
	brandID := uuid.New()
	creatorID := uuid.New()
	offer := &domain.Offer{
		ID:         uuid.New(),
		CampaignID: uuid.New(),
		BrandID:    brandID,
		CreatorID:  creatorID,
		Items: []domain.LineItem{
			{DeliverableType: domain.DeliverableIGReel, Quantity: 2, BasePriceCents: 7150, RushFeePct: 10},
		},
		Currency:         domain.CurrencyUSD,
		PlatformFeePct:   20,
		SubtotalCents:    15730,
		PlatformFeeCents: 3146,
		TotalCents:       18876,
		Status:           status,
	}
	_ = repo.CreateOffer(context.Background(), offer)
	brand := domain.Actor{ID: brandID.String(), Role: domain.RoleBrand}
	creator := domain.Actor{ID: creatorID.String(), Role: domain.RoleCreator}
	return offer, brand, creator
}
