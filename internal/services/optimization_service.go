package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"trip-booking/config"
	"trip-booking/models"
	"trip-booking/monitoring"
)

// OptimizationService watches vendor prices and turns significant drops
// into advisory opportunities. It never mutates a component, booking or
// payment: locked and confirmed components are reported as
// non-optimizable with a reason, never silently dropped.
type OptimizationService struct {
	app     core.App
	Redis   *redis.Client
	locks   *LockService
	monitor *PriceMonitor
	PubNub  *pubnub.PubNub
	config  *config.Config
}

func NewOptimizationService(
	app core.App,
	redisClient *redis.Client,
	locks *LockService,
	monitor *PriceMonitor,
	pn *pubnub.PubNub,
	cfg *config.Config,
) *OptimizationService {
	return &OptimizationService{
		app:     app,
		Redis:   redisClient,
		locks:   locks,
		monitor: monitor,
		PubNub:  pn,
		config:  cfg,
	}
}

// MonitorTripPrices polls current prices for every UNLOCKED component
// of a trip and reports deltas at or above the absolute threshold.
func (s *OptimizationService) MonitorTripPrices(ctx context.Context, tripRequestID string) (*models.MonitorResult, error) {
	changes, err := s.collectChanges(ctx, tripRequestID, false, nil)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, c := range changes {
		if savings := c.Savings(); savings.IsPositive() {
			total = total.Add(savings)
		}
	}

	return &models.MonitorResult{
		TripRequestID:           tripRequestID,
		PriceChanges:            changes,
		TotalSavingsOpportunity: total,
		HasSignificantChanges:   len(changes) > 0,
	}, nil
}

// ReOptimizeTrip runs monitoring, groups significant changes by trip
// option and creates an opportunity per option whose best saving clears
// both thresholds and touches at least one optimizable component.
func (s *OptimizationService) ReOptimizeTrip(ctx context.Context, req *models.ReOptimizeRequest) (*models.ReOptimizeResult, error) {
	changes, err := s.collectChanges(ctx, req.TripRequestID, !req.RespectLocks, req.Categories)
	if err != nil {
		return nil, err
	}

	byOption := make(map[string][]models.PriceChange)
	for _, c := range changes {
		byOption[c.TripOptionID] = append(byOption[c.TripOptionID], c)
	}

	result := &models.ReOptimizeResult{
		Success:               true,
		Opportunities:         []models.OptimizationOpportunity{},
		TotalPotentialSavings: decimal.Zero,
	}

	for optionID, optionChanges := range byOption {
		opportunity, ok, err := s.buildOpportunity(ctx, req, optionID, optionChanges)
		if err != nil {
			slog.Error("failed to evaluate trip option", "error", err, "trip_option_id", optionID)
			continue
		}
		if !ok {
			continue
		}

		if err := s.storeOpportunity(ctx, opportunity); err != nil {
			slog.Error("failed to store opportunity", "error", err, "opportunity_id", opportunity.ID)
			continue
		}

		monitoring.TrackOpportunity(string(req.Trigger))
		s.notifyOpportunity(opportunity)

		result.Opportunities = append(result.Opportunities, *opportunity)
		result.TotalPotentialSavings = result.TotalPotentialSavings.Add(opportunity.Recommendation.Savings)
	}

	result.OpportunitiesFound = len(result.Opportunities)
	return result, nil
}

// Opportunities returns the unexpired advisory opportunities for a trip.
func (s *OptimizationService) Opportunities(ctx context.Context, tripRequestID string) ([]models.OptimizationOpportunity, error) {
	indexKey := fmt.Sprintf("opportunities:%s", tripRequestID)
	ids, err := s.Redis.SMembers(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	now := time.Now()
	opportunities := []models.OptimizationOpportunity{}
	for _, id := range ids {
		key := fmt.Sprintf("opportunity:%s:%s", tripRequestID, id)
		data, err := s.Redis.Get(ctx, key).Result()
		if err == redis.Nil {
			// Expired entry, drop it from the index.
			s.Redis.SRem(ctx, indexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}

		var opportunity models.OptimizationOpportunity
		if err := json.Unmarshal([]byte(data), &opportunity); err != nil {
			slog.Error("corrupt opportunity payload", "error", err, "key", key)
			continue
		}
		if opportunity.Expired(now) {
			continue
		}
		opportunities = append(opportunities, opportunity)
	}

	return opportunities, nil
}

// collectChanges polls prices for the trip's components and keeps
// deltas at or above the absolute savings threshold. Only UNLOCKED
// components are polled unless includeLocked is set.
func (s *OptimizationService) collectChanges(ctx context.Context, tripRequestID string, includeLocked bool, categories []models.ComponentType) ([]models.PriceChange, error) {
	options, err := s.app.FindAllRecords("trip_options", dbx.HashExp{"trip_request_id": tripRequestID})
	if err != nil {
		return nil, err
	}

	changes := []models.PriceChange{}
	for _, option := range options {
		components, err := s.locks.ComponentsForOption(ctx, option.Id)
		if err != nil {
			slog.Error("failed to load components", "error", err, "trip_option_id", option.Id)
			continue
		}

		for i := range components {
			c := &components[i]
			if !shouldPoll(c, includeLocked, categories) {
				continue
			}

			quote, err := s.monitor.CurrentPrice(ctx, c)
			if err != nil {
				slog.Warn("price poll failed", "error", err, "component_id", c.ID)
				continue
			}

			delta := quote.Price.Sub(c.Price)
			if delta.Abs().LessThan(s.config.MinSavingsThreshold) {
				continue
			}

			percent := decimal.Zero
			if !c.Price.IsZero() {
				percent = delta.Div(c.Price).Mul(decimal.NewFromInt(100)).Round(2)
			}

			changes = append(changes, models.PriceChange{
				ComponentID:   c.ID,
				TripOptionID:  c.TripOptionID,
				ComponentType: c.Type,
				Vendor:        c.Vendor,
				OldPrice:      c.Price,
				NewPrice:      quote.Price,
				PercentChange: percent,
				DetectedAt:    time.Now(),
			})
		}
	}

	return changes, nil
}

// buildOpportunity evaluates one trip option's changes. Returns ok=false
// when no opportunity should surface.
func (s *OptimizationService) buildOpportunity(ctx context.Context, req *models.ReOptimizeRequest, tripOptionID string, changes []models.PriceChange) (*models.OptimizationOpportunity, bool, error) {
	components, err := s.locks.ComponentsForOption(ctx, tripOptionID)
	if err != nil {
		return nil, false, err
	}

	entities, anyOptimizable := assessEntities(components, req.RespectLocks, req.Categories)
	if !anyOptimizable {
		return nil, false, nil
	}

	best := bestChange(changes)
	if best == nil {
		return nil, false, nil
	}

	savings := best.Savings()
	if savings.LessThan(s.config.MinSavingsThreshold) {
		return nil, false, nil
	}
	if best.PercentChange.Abs().LessThan(s.config.MinPercentageChange) {
		return nil, false, nil
	}

	now := time.Now()
	opportunity := &models.OptimizationOpportunity{
		ID:            uuid.New().String(),
		TripRequestID: req.TripRequestID,
		TripOptionID:  tripOptionID,
		Trigger:       req.Trigger,
		Entities:      entities,
		Recommendation: models.AlternativeRecommendation{
			Description: fmt.Sprintf("%s available for %s instead of %s",
				best.ComponentType, best.NewPrice.StringFixed(2), best.OldPrice.StringFixed(2)),
			Vendor:         best.Vendor,
			Price:          best.NewPrice,
			Savings:        savings,
			SavingsPercent: best.PercentChange.Abs(),
		},
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.OpportunityTTL),
	}

	return opportunity, true, nil
}

func (s *OptimizationService) storeOpportunity(ctx context.Context, o *models.OptimizationOpportunity) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("opportunity:%s:%s", o.TripRequestID, o.ID)
	if err := s.Redis.Set(ctx, key, data, s.config.OpportunityTTL).Err(); err != nil {
		return err
	}

	indexKey := fmt.Sprintf("opportunities:%s", o.TripRequestID)
	if err := s.Redis.SAdd(ctx, indexKey, o.ID).Err(); err != nil {
		return err
	}
	return s.Redis.Expire(ctx, indexKey, s.config.OpportunityTTL).Err()
}

func (s *OptimizationService) notifyOpportunity(o *models.OptimizationOpportunity) {
	if s.PubNub == nil {
		return
	}
	channel := fmt.Sprintf("trip-%s", o.TripRequestID)
	s.PubNub.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":           "optimization_opportunity",
			"opportunity_id": o.ID,
			"trip_option_id": o.TripOptionID,
			"savings":        o.Recommendation.Savings.String(),
		}).
		Execute()
}

// shouldPoll reports whether a component takes part in a monitoring
// pass. Locked and confirmed components are skipped unless the caller
// explicitly opted in.
func shouldPoll(c *models.TripComponent, includeLocked bool, categories []models.ComponentType) bool {
	if !includeLocked && c.LockStatus != models.LockUnlocked {
		return false
	}
	return categoryAllowed(c.Type, categories)
}

// assessEntities classifies every component of an option as optimizable
// or not. Protected components keep an explanatory reason; they are
// reported, never dropped. The second return is true when at least one
// component can be changed.
func assessEntities(components []models.TripComponent, respectLocks bool, categories []models.ComponentType) ([]models.AffectedEntity, bool) {
	entities := make([]models.AffectedEntity, 0, len(components))
	anyOptimizable := false
	for _, c := range components {
		if !categoryAllowed(c.Type, categories) {
			continue
		}

		entity := models.AffectedEntity{
			ComponentID:   c.ID,
			ComponentType: c.Type,
			LockStatus:    c.LockStatus,
		}

		switch {
		case !respectLocks:
			entity.CanOptimize = true
		case c.LockStatus == models.LockUnlocked:
			entity.CanOptimize = true
		case c.LockStatus == models.LockLocked:
			entity.Reason = "component is locked by the user and protected from automated changes"
		case c.LockStatus == models.LockConfirmed:
			entity.Reason = "component is confirmed and paid; only a cancellation flow may change it"
		}
		if entity.CanOptimize {
			anyOptimizable = true
		}

		entities = append(entities, entity)
	}

	return entities, anyOptimizable
}

// bestChange picks the change with the largest savings; nil when no
// change actually saves money.
func bestChange(changes []models.PriceChange) *models.PriceChange {
	var best *models.PriceChange
	for i := range changes {
		c := &changes[i]
		if !c.Savings().IsPositive() {
			continue
		}
		if best == nil || c.Savings().GreaterThan(best.Savings()) {
			best = c
		}
	}
	return best
}

func categoryAllowed(t models.ComponentType, categories []models.ComponentType) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if c == t {
			return true
		}
	}
	return false
}
