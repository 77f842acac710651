package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"trip-booking/config"
	"trip-booking/models"
	"trip-booking/monitoring"
)

// Scheduler periodically re-optimizes active trips: requests newer than
// the max-age cutoff with at least one UNLOCKED component. Trips are
// fanned out to a bounded worker pool; one trip's failure never aborts
// the batch. It keeps no job state beyond the opportunities it creates.
type Scheduler struct {
	app       core.App
	optimizer *OptimizationService
	config    *config.Config
}

func NewScheduler(app core.App, optimizer *OptimizationService, cfg *config.Config) *Scheduler {
	return &Scheduler{
		app:       app,
		optimizer: optimizer,
		config:    cfg,
	}
}

// Run loops until the context is cancelled. Selection errors back off
// before the next tick is honored again.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	log.Printf("scheduler started (interval %s, workers %d)", s.config.ScanInterval, s.config.SchedulerWorkers)

	backOff := time.Second
	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler stopped")
			return

		case <-ticker.C:
			if err := s.runBatch(ctx); err != nil {
				log.Printf("scheduler batch failed: %v", err)
				monitoring.TrackSchedulerBatch("error")

				select {
				case <-ctx.Done():
					return
				case <-time.After(backOff):
					if backOff < time.Minute {
						backOff *= 2
					}
				}
				continue
			}

			backOff = time.Second
			monitoring.TrackSchedulerBatch("ok")
		}
	}
}

func (s *Scheduler) runBatch(ctx context.Context) error {
	cutoff := time.Now().Add(-s.config.MaxTripAge).UTC().Format(types.DefaultDateLayout)

	requests, err := s.app.FindAllRecords("trip_requests",
		dbx.NewExp("created >= {:cutoff}", dbx.Params{"cutoff": cutoff}))
	if err != nil {
		return err
	}

	jobs := make(chan string)
	var wg sync.WaitGroup

	workers := s.config.SchedulerWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tripRequestID := range jobs {
				s.processTrip(ctx, tripRequestID)
			}
		}()
	}

	for _, request := range requests {
		if !s.hasUnlockedComponent(request.Id) {
			continue
		}
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		case jobs <- request.Id:
		}
	}

	close(jobs)
	wg.Wait()
	return nil
}

// processTrip isolates one trip: a panic or error is logged and counted,
// never propagated to the batch.
func (s *Scheduler) processTrip(ctx context.Context, tripRequestID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("optimization panicked for trip %s: %v", tripRequestID, r)
			monitoring.TrackSchedulerTripError()
		}
	}()

	_, err := s.optimizer.ReOptimizeTrip(ctx, &models.ReOptimizeRequest{
		TripRequestID: tripRequestID,
		Trigger:       models.TriggerPeriodic,
		RespectLocks:  true,
	})
	if err != nil {
		log.Printf("optimization failed for trip %s: %v", tripRequestID, err)
		monitoring.TrackSchedulerTripError()
	}
}

func (s *Scheduler) hasUnlockedComponent(tripRequestID string) bool {
	options, err := s.app.FindAllRecords("trip_options", dbx.HashExp{"trip_request_id": tripRequestID})
	if err != nil {
		return false
	}

	for _, option := range options {
		components, err := s.app.FindAllRecords("trip_components", dbx.HashExp{
			"trip_option_id": option.Id,
			"lock_status":    string(models.LockUnlocked),
		})
		if err != nil {
			continue
		}
		if len(components) > 0 {
			return true
		}
	}
	return false
}
