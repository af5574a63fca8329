/**
 * @description
 * This file contains the core business logic for the offer-service. The
 * `Service` struct orchestrates the offer lifecycle, coordinating between the
 * database repository, the payment processor client and the message broker.
 *
 * Key features:
 * - Implements the brand/creator use cases: create, send, respond, counter,
 *   start work, submit, approve, request revision.
 * - Routes every status change through the central transition table and a
 *   compare-and-swap write, so concurrent attempts can never lose an update.
 * - Recomputes derived totals through the pricing engine on every mutation
 *   of items or fee percentage; stale totals are never persisted.
 * - Publishes lifecycle events to RabbitMQ for asynchronous consumers.
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
	"github.com/collabry/offer-service/internal/pricing"
	"github.com/collabry/offer-service/internal/store"
	"github.com/collabry/offer-service/pkg/checkoutclient"
	"github.com/collabry/offer-service/pkg/rabbitmq"
)

// DefaultPlatformFeePct is the marketplace cut applied when an offer does not
// override it. The value is snapshotted onto the offer at creation time so a
// later platform-wide change never rewrites historical pricing.
const DefaultPlatformFeePct = 20

// CheckoutGateway is the slice of the processor client the service needs.
// *checkoutclient.Client satisfies it; tests substitute stubs.
type CheckoutGateway interface {
	CreateSession(ctx context.Context, req checkoutclient.CreateSessionRequest) (*checkoutclient.Session, error)
	GetSession(ctx context.Context, sessionID string) (*checkoutclient.Session, error)
}

// Clock abstracts time for the reconciliation loop so its schedule can be
// tested without real timers.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Service provides the core business logic for offers, payments and payouts.
type Service struct {
	repo            store.Repository
	gateway         CheckoutGateway
	eventProducer   rabbitmq.Publisher
	clock           Clock
	platformFeePct  int
	reconcilePolicy RetryPolicy

	checkoutLimiter        RateLimiter
	checkoutLimitPerMinute int
}

// NewService creates a new offer service instance.
func NewService(repo store.Repository, gateway CheckoutGateway, producer rabbitmq.Publisher, platformFeePct int, reconcilePolicy RetryPolicy) *Service {
	if platformFeePct <= 0 || platformFeePct > pricing.MaxPlatformFeePct {
		platformFeePct = DefaultPlatformFeePct
	}
	if producer == nil {
		producer = &rabbitmq.NoopProducer{}
	}
	return &Service{
		repo:            repo,
		gateway:         gateway,
		eventProducer:   producer,
		clock:           realClock{},
		platformFeePct:  platformFeePct,
		reconcilePolicy: reconcilePolicy.withDefaults(),
	}
}

// SetClock overrides the wall clock. Tests use this to drive the
// reconciliation loop deterministically.
func (s *Service) SetClock(clock Clock) {
	if clock != nil {
		s.clock = clock
	}
}

// SetCheckoutRateLimiter enables distributed rate limiting on checkout
// initiation. A nil limiter leaves checkout unthrottled.
func (s *Service) SetCheckoutRateLimiter(limiter RateLimiter, perMinute int) {
	s.checkoutLimiter = limiter
	s.checkoutLimitPerMinute = perMinute
}

// CreateOffer builds a draft offer for a brand, pricing it from explicit line
// items or from the creator's published rate card.
func (s *Service) CreateOffer(ctx context.Context, actor domain.Actor, req domain.CreateOfferRequest) (*domain.Offer, error) {
	if actor.Role != domain.RoleBrand {
		return nil, domain.ErrForbidden
	}
	brandID, err := uuid.Parse(actor.ID)
	if err != nil {
		return nil, domain.Validation("actor", "brand id is not a valid uuid")
	}
	if !domain.ValidCurrency(req.Currency) {
		return nil, domain.Validation("currency", fmt.Sprintf("unsupported currency %q", req.Currency))
	}
	if req.CreatorID == uuid.Nil {
		return nil, domain.Validation("creator_id", "is required")
	}
	if req.CampaignID == uuid.Nil {
		return nil, domain.Validation("campaign_id", "is required")
	}
	if len(req.Items) > 0 && len(req.FromRateCard) > 0 {
		return nil, domain.Validation("items", "provide either items or from_rate_card, not both")
	}

	items, err := s.resolveLineItems(ctx, req)
	if err != nil {
		return nil, err
	}

	feePct := s.platformFeePct
	if req.PlatformFeePct != nil {
		feePct = *req.PlatformFeePct
	}

	totals, err := pricing.ComputeTotals(items, feePct)
	if err != nil {
		return nil, err
	}

	offer := &domain.Offer{
		ID:               uuid.New(),
		CampaignID:       req.CampaignID,
		BrandID:          brandID,
		CreatorID:        req.CreatorID,
		Items:            items,
		Currency:         req.Currency,
		PlatformFeePct:   feePct,
		SubtotalCents:    totals.SubtotalCents,
		PlatformFeeCents: totals.PlatformFeeCents,
		TotalCents:       totals.TotalCents,
		Status:           domain.OfferDraft,
		Deadline:         req.Deadline,
		ExpiresAt:        req.ExpiresAt,
		Notes:            req.Notes,
	}

	if err := s.repo.CreateOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	s.publishOfferEvent(ctx, domain.EventOfferCreated, offer, actor)
	log.Printf("level=info component=service flow=offer_create offer_id=%s brand_id=%s creator_id=%s total_cents=%d", offer.ID, offer.BrandID, offer.CreatorID, offer.TotalCents)
	return offer, nil
}

func (s *Service) resolveLineItems(ctx context.Context, req domain.CreateOfferRequest) ([]domain.LineItem, error) {
	if len(req.Items) > 0 {
		items := make([]domain.LineItem, len(req.Items))
		for i, in := range req.Items {
			items[i] = domain.LineItem{
				DeliverableType: in.DeliverableType,
				Quantity:        in.Quantity,
				BasePriceCents:  in.BasePriceCents,
				RushFeePct:      in.RushFeePct,
			}
		}
		return items, nil
	}
	if len(req.FromRateCard) == 0 {
		return nil, domain.Validation("items", "at least one line item is required")
	}

	items := make([]domain.LineItem, len(req.FromRateCard))
	for i, pick := range req.FromRateCard {
		card, err := s.repo.FindRateCardItem(ctx, req.CreatorID, pick.DeliverableType)
		if err != nil {
			if errors.Is(err, store.ErrRateCardNotFound) {
				return nil, domain.Validation(
					fmt.Sprintf("from_rate_card[%d]", i),
					fmt.Sprintf("creator has no published rate for %s", pick.DeliverableType),
				)
			}
			return nil, fmt.Errorf("failed to load rate card: %w", err)
		}
		if card.Currency != req.Currency {
			return nil, domain.Validation(
				fmt.Sprintf("from_rate_card[%d]", i),
				fmt.Sprintf("rate card currency %s does not match offer currency %s", card.Currency, req.Currency),
			)
		}
		items[i] = domain.LineItem{
			DeliverableType: pick.DeliverableType,
			Quantity:        pick.Quantity,
			BasePriceCents:  card.BasePriceCents,
			RushFeePct:      pick.RushFeePct,
		}
	}
	return items, nil
}

// SendOffer moves a draft offer to sent.
func (s *Service) SendOffer(ctx context.Context, actor domain.Actor, offerID uuid.UUID) (*domain.Offer, error) {
	offer, err := s.loadOwnedOffer(ctx, actor, offerID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, offer, actor, domain.OfferSent, domain.EventOfferSent)
}

// RespondToOffer applies a creator's accept, reject or counter decision to a
// sent offer. A counter produces a new priced proposal linked to the original;
// the original's items and totals are never mutated.
func (s *Service) RespondToOffer(ctx context.Context, actor domain.Actor, offerID uuid.UUID, req domain.RespondToOfferRequest) (*domain.Offer, error) {
	if actor.Role != domain.RoleCreator {
		return nil, domain.ErrForbidden
	}
	offer, err := s.loadOwnedOffer(ctx, actor, offerID)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case domain.RespondActionAccept:
		return s.transition(ctx, offer, actor, domain.OfferAccepted, domain.EventOfferAccepted)
	case domain.RespondActionReject:
		return s.transition(ctx, offer, actor, domain.OfferRejected, domain.EventOfferRejected)
	case domain.RespondActionCounter:
		return s.counterOffer(ctx, offer, actor, req.Counter)
	default:
		return nil, domain.Validation("action", fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (s *Service) counterOffer(ctx context.Context, parent *domain.Offer, actor domain.Actor, data *domain.CounterOfferData) (*domain.Offer, error) {
	if data == nil || len(data.Items) == 0 {
		return nil, domain.Validation("counter.items", "a counter offer requires at least one line item")
	}

	items := make([]domain.LineItem, len(data.Items))
	for i, in := range data.Items {
		items[i] = domain.LineItem{
			DeliverableType: in.DeliverableType,
			Quantity:        in.Quantity,
			BasePriceCents:  in.BasePriceCents,
			RushFeePct:      in.RushFeePct,
		}
	}

	// Fee percentage is carried over from the original so a counter cannot
	// renegotiate the platform's cut.
	totals, err := pricing.ComputeTotals(items, parent.PlatformFeePct)
	if err != nil {
		return nil, err
	}

	// Move the parent first; losing this race means the brand cancelled or
	// another response won, and no counter row should exist.
	if _, err := s.transition(ctx, parent, actor, domain.OfferCounterOffer, domain.EventOfferCountered); err != nil {
		return nil, err
	}

	parentID := parent.ID
	counter := &domain.Offer{
		ID:               uuid.New(),
		CampaignID:       parent.CampaignID,
		BrandID:          parent.BrandID,
		CreatorID:        parent.CreatorID,
		CounterOfferID:   &parentID,
		Items:            items,
		Currency:         parent.Currency,
		PlatformFeePct:   parent.PlatformFeePct,
		SubtotalCents:    totals.SubtotalCents,
		PlatformFeeCents: totals.PlatformFeeCents,
		TotalCents:       totals.TotalCents,
		Status:           domain.OfferCounterOffer,
		Deadline:         parent.Deadline,
		ExpiresAt:        parent.ExpiresAt,
		Notes:            data.Notes,
	}
	if err := s.repo.CreateOffer(ctx, counter); err != nil {
		return nil, fmt.Errorf("failed to create counter offer: %w", err)
	}

	s.publishOfferEvent(ctx, domain.EventOfferCountered, counter, actor)
	log.Printf("level=info component=service flow=offer_counter parent_offer_id=%s counter_offer_id=%s total_cents=%d", parent.ID, counter.ID, counter.TotalCents)
	return counter, nil
}

// DecideCounterOffer lets the brand accept or reject a counter proposal. The
// superseded original is rejected in the same operation, so at most one of the
// two linked offers can ever be accepted and funded.
func (s *Service) DecideCounterOffer(ctx context.Context, actor domain.Actor, offerID uuid.UUID, accept bool) (*domain.Offer, error) {
	offer, err := s.loadOwnedOffer(ctx, actor, offerID)
	if err != nil {
		return nil, err
	}
	if offer.CounterOfferID == nil {
		return nil, domain.PreconditionFailed("decision must target the counter proposal, not the countered original")
	}

	to, eventKey := domain.OfferAccepted, domain.EventOfferAccepted
	if !accept {
		to, eventKey = domain.OfferRejected, domain.EventOfferRejected
	}
	decided, err := s.transition(ctx, offer, actor, to, eventKey)
	if err != nil {
		return nil, err
	}
	s.closeCounteredParent(ctx, *offer.CounterOfferID, actor)
	return decided, nil
}

// closeCounteredParent rejects the original once its counter is decided. A
// parent that is already terminal was resolved by another writer.
func (s *Service) closeCounteredParent(ctx context.Context, parentID uuid.UUID, actor domain.Actor) {
	parent, err := s.repo.GetOfferByID(ctx, parentID)
	if err != nil {
		log.Printf("level=error component=service msg=\"countered original not found\" offer_id=%s err=%v", parentID, err)
		return
	}
	if parent.Status.IsTerminal() {
		return
	}
	if _, err := s.transition(ctx, parent, actor, domain.OfferRejected, domain.EventOfferRejected); err != nil {
		log.Printf("level=warn component=service msg=\"countered original not closed\" offer_id=%s err=%v", parentID, err)
	}
}

// CancelOffer lets the brand withdraw a draft or sent offer.
func (s *Service) CancelOffer(ctx context.Context, actor domain.Actor, offerID uuid.UUID) (*domain.Offer, error) {
	offer, err := s.loadOwnedOffer(ctx, actor, offerID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, offer, actor, domain.OfferCancelled, domain.EventOfferCancelled)
}

// StartWork authorizes work to begin once funds are in escrow.
func (s *Service) StartWork(ctx context.Context, actor domain.Actor, offerID uuid.UUID) (*domain.Offer, error) {
	offer, err := s.loadOwnedOffer(ctx, actor, offerID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, offer, actor, domain.OfferInProgress, domain.EventOfferInProgress)
}

// SubmitWork records the creator's delivery for brand review.
func (s *Service) SubmitWork(ctx context.Context, actor domain.Actor, offerID uuid.UUID) (*domain.Offer, error) {
	offer, err := s.loadOwnedOffer(ctx, actor, offerID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, offer, actor, domain.OfferSubmitted, domain.EventOfferSubmitted)
}

// ApproveWork accepts the submitted deliverables.
func (s *Service) ApproveWork(ctx context.Context, actor domain.Actor, offerID uuid.UUID) (*domain.Offer, error) {
	offer, err := s.loadOwnedOffer(ctx, actor, offerID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, offer, actor, domain.OfferApproved, domain.EventOfferApproved)
}

// RequestRevision sends submitted work back to the creator.
func (s *Service) RequestRevision(ctx context.Context, actor domain.Actor, offerID uuid.UUID) (*domain.Offer, error) {
	offer, err := s.loadOwnedOffer(ctx, actor, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != domain.OfferSubmitted {
		return nil, &domain.InvalidTransitionError{From: offer.Status, To: domain.OfferInProgress, Actor: actor.Role}
	}
	return s.transition(ctx, offer, actor, domain.OfferInProgress, domain.EventOfferInProgress)
}

// UpdateDraftPricing replaces a draft offer's line items and recomputes all
// derived totals in the same write.
func (s *Service) UpdateDraftPricing(ctx context.Context, actor domain.Actor, offerID uuid.UUID, inputs []domain.LineItemInput, platformFeePct *int) (*domain.Offer, error) {
	if actor.Role != domain.RoleBrand {
		return nil, domain.ErrForbidden
	}
	offer, err := s.loadOwnedOffer(ctx, actor, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != domain.OfferDraft {
		return nil, domain.PreconditionFailed("pricing can only change while the offer is a draft")
	}

	items := make([]domain.LineItem, len(inputs))
	for i, in := range inputs {
		items[i] = domain.LineItem{
			DeliverableType: in.DeliverableType,
			Quantity:        in.Quantity,
			BasePriceCents:  in.BasePriceCents,
			RushFeePct:      in.RushFeePct,
		}
	}
	feePct := offer.PlatformFeePct
	if platformFeePct != nil {
		feePct = *platformFeePct
	}

	totals, err := pricing.ComputeTotals(items, feePct)
	if err != nil {
		return nil, err
	}

	err = s.repo.UpdateOfferPricing(ctx, offerID, items, feePct, store.PricingTotals{
		SubtotalCents:    totals.SubtotalCents,
		PlatformFeeCents: totals.PlatformFeeCents,
		TotalCents:       totals.TotalCents,
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetOfferByID(ctx, offerID)
}

// GetOffer returns an offer visible to the acting party.
func (s *Service) GetOffer(ctx context.Context, actor domain.Actor, offerID uuid.UUID) (*domain.Offer, error) {
	offer, err := s.repo.GetOfferByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOfferAccess(actor, offer); err != nil {
		return nil, err
	}
	return offer, nil
}

// ListOffers returns the actor's offers, brand or creator side.
func (s *Service) ListOffers(ctx context.Context, actor domain.Actor, opts domain.OfferListOptions) ([]domain.Offer, error) {
	actorID, err := uuid.Parse(actor.ID)
	if err != nil {
		return nil, domain.Validation("actor", "actor id is not a valid uuid")
	}
	switch actor.Role {
	case domain.RoleBrand:
		return s.repo.ListOffersByBrand(ctx, actorID, opts)
	case domain.RoleCreator:
		return s.repo.ListOffersByCreator(ctx, actorID, opts)
	default:
		return nil, domain.ErrForbidden
	}
}

// loadOwnedOffer fetches an offer and verifies the actor participates in it
// with the right role. Failures are reported as Forbidden without revealing
// whether the offer exists.
func (s *Service) loadOwnedOffer(ctx context.Context, actor domain.Actor, offerID uuid.UUID) (*domain.Offer, error) {
	offer, err := s.repo.GetOfferByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOfferAccess(actor, offer); err != nil {
		return nil, err
	}
	return offer, nil
}

func authorizeOfferAccess(actor domain.Actor, offer *domain.Offer) error {
	switch actor.Role {
	case domain.RoleBrand:
		if actor.ID != offer.BrandID.String() {
			return domain.ErrForbidden
		}
	case domain.RoleCreator:
		if actor.ID != offer.CreatorID.String() {
			return domain.ErrForbidden
		}
	case domain.RoleAdmin, domain.RoleSystem:
		// Operators and internal jobs see everything.
	default:
		return domain.ErrForbidden
	}
	return nil
}

// transition is the single path every offer status change takes: check the
// table, compare-and-swap, and on a lost race decide between idempotent
// success and conflict.
func (s *Service) transition(ctx context.Context, offer *domain.Offer, actor domain.Actor, to domain.OfferStatus, eventKey string) (*domain.Offer, error) {
	if offer.Status == to && offer.Status.IsTerminal() {
		// Re-applying a terminal state is a retry of a finished operation.
		return offer, nil
	}
	if !domain.CanTransition(actor.Role, offer.Status, to) {
		return nil, &domain.InvalidTransitionError{From: offer.Status, To: to, Actor: actor.Role}
	}

	swapped, err := s.repo.SwapOfferStatus(ctx, offer.ID, offer.Status, to)
	if err != nil {
		return nil, fmt.Errorf("failed to update offer status: %w", err)
	}
	if !swapped {
		current, err := s.repo.GetOfferByID(ctx, offer.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == to && to.IsTerminal() {
			return current, nil
		}
		return nil, &domain.InvalidTransitionError{From: current.Status, To: to, Actor: actor.Role}
	}

	offer.Status = to
	offer.UpdatedAt = s.clock.Now()
	s.publishOfferEvent(ctx, eventKey, offer, actor)
	log.Printf("level=info component=service flow=offer_transition offer_id=%s status=%s actor_role=%s", offer.ID, to, actor.Role)
	return offer, nil
}

func (s *Service) publishOfferEvent(ctx context.Context, routingKey string, offer *domain.Offer, actor domain.Actor) {
	event := domain.OfferEvent{
		OfferID:    offer.ID,
		CampaignID: offer.CampaignID,
		BrandID:    offer.BrandID,
		CreatorID:  offer.CreatorID,
		Status:     offer.Status,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		TotalCents: offer.TotalCents,
		Currency:   offer.Currency,
		Timestamp:  s.clock.Now(),
	}
	if err := s.eventProducer.Publish(ctx, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed\" routing_key=%s offer_id=%s err=%v", routingKey, offer.ID, err)
	}
}
