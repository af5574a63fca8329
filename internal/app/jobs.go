/**
 * @description
 * Scheduled background jobs, registered on a shared cron runner:
 *
 * 1. Offer expiry sweep: cancels sent offers whose expiry date passed without
 *    a creator response.
 * 2. Stale payment sweep: re-polls unpaid checkout sessions whose inline
 *    reconciler never concluded (process restarts, webhook outages).
 *
 * @dependencies
 * - github.com/robfig/cron/v3: cron scheduling with seconds-precision specs.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/collabry/offer-service/internal/domain"
)

const (
	sweepBatchSize     = 100
	stalePaymentCutoff = 30 * time.Minute
	jobContextTimeout  = 2 * time.Minute
)

// Jobs wires the service's periodic work onto a cron scheduler.
type Jobs struct {
	service *Service
	cron    *cron.Cron
}

// NewJobs creates the scheduler with both sweeps registered. Specs use the
// seconds-precision cron format.
func NewJobs(service *Service, expirySpec, reconcileSpec string) (*Jobs, error) {
	j := &Jobs{
		service: service,
		cron:    cron.New(cron.WithSeconds()),
	}
	if _, err := j.cron.AddFunc(expirySpec, j.runExpirySweep); err != nil {
		return nil, err
	}
	if _, err := j.cron.AddFunc(reconcileSpec, j.runStalePaymentSweep); err != nil {
		return nil, err
	}
	return j, nil
}

// Start launches the scheduler in its own goroutine.
func (j *Jobs) Start() {
	j.cron.Start()
	log.Printf("level=info component=jobs msg=\"schedulers started\"")
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (j *Jobs) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	log.Printf("level=info component=jobs msg=\"schedulers stopped\"")
}

func (j *Jobs) runExpirySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobContextTimeout)
	defer cancel()
	if err := j.service.ExpireSentOffers(ctx, sweepBatchSize); err != nil {
		log.Printf("level=error component=jobs job=offer_expiry err=%v", err)
	}
}

func (j *Jobs) runStalePaymentSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobContextTimeout)
	defer cancel()
	if err := j.service.ReconcileStalePayments(ctx, stalePaymentCutoff, sweepBatchSize); err != nil {
		log.Printf("level=error component=jobs job=stale_payments err=%v", err)
	}
}

// ExpireSentOffers cancels sent offers whose expiry passed. Offers under an
// active admin hold are skipped until the hold is lifted.
func (s *Service) ExpireSentOffers(ctx context.Context, limit int) error {
	expired, err := s.repo.ListExpiredSentOffers(ctx, s.clock.Now(), limit)
	if err != nil {
		return err
	}
	actor := domain.Actor{ID: "expiry-sweep", Role: domain.RoleSystem}
	for i := range expired {
		offer := &expired[i]
		held, err := s.hasActiveHold(ctx, offer.ID)
		if err != nil {
			log.Printf("level=warn component=jobs job=offer_expiry msg=\"hold check failed\" offer_id=%s err=%v", offer.ID, err)
			continue
		}
		if held {
			continue
		}
		if _, err := s.transition(ctx, offer, actor, domain.OfferCancelled, domain.EventOfferCancelled); err != nil {
			// A lost swap means the creator responded in the meantime.
			var invalid *domain.InvalidTransitionError
			if !errors.As(err, &invalid) {
				log.Printf("level=error component=jobs job=offer_expiry offer_id=%s err=%v", offer.ID, err)
			}
		}
	}
	return nil
}
