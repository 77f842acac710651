package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OptimizationTrigger is what caused a re-optimization run.
type OptimizationTrigger string

const (
	TriggerManual         OptimizationTrigger = "MANUAL"
	TriggerPeriodic       OptimizationTrigger = "PERIODIC"
	TriggerPriceDrop      OptimizationTrigger = "PRICE_DROP"
	TriggerBetterOption   OptimizationTrigger = "BETTER_OPTION"
	TriggerScheduleChange OptimizationTrigger = "SCHEDULE_CHANGE"
)

// PriceChange is a detected delta for one component, the raw input to
// an opportunity.
type PriceChange struct {
	ComponentID   string          `json:"component_id"`
	TripOptionID  string          `json:"trip_option_id"`
	ComponentType ComponentType   `json:"component_type"`
	Vendor        string          `json:"vendor"`
	OldPrice      decimal.Decimal `json:"old_price"`
	NewPrice      decimal.Decimal `json:"new_price"`
	PercentChange decimal.Decimal `json:"percent_change"`
	DetectedAt    time.Time       `json:"detected_at"`
}

// Savings is positive when the new price is cheaper.
func (c PriceChange) Savings() decimal.Decimal {
	return c.OldPrice.Sub(c.NewPrice)
}

// AffectedEntity names a component touched by an opportunity together
// with its lock state and whether the optimizer may act on it.
type AffectedEntity struct {
	ComponentID   string        `json:"component_id"`
	ComponentType ComponentType `json:"component_type"`
	LockStatus    LockStatus    `json:"lock_status"`
	CanOptimize   bool          `json:"can_optimize"`
	Reason        string        `json:"reason,omitempty"`
}

// AlternativeRecommendation describes the candidate replacement and the
// projected savings.
type AlternativeRecommendation struct {
	Description    string          `json:"description"`
	Vendor         string          `json:"vendor"`
	Price          decimal.Decimal `json:"price"`
	Savings        decimal.Decimal `json:"savings"`
	SavingsPercent decimal.Decimal `json:"savings_percent"`
}

// OptimizationOpportunity is an advisory, expiring suggestion. It never
// mutates a component, booking or payment.
type OptimizationOpportunity struct {
	ID             string                    `json:"id"`
	TripRequestID  string                    `json:"trip_request_id"`
	TripOptionID   string                    `json:"trip_option_id"`
	Trigger        OptimizationTrigger       `json:"trigger"`
	Entities       []AffectedEntity          `json:"entities"`
	Recommendation AlternativeRecommendation `json:"recommendation"`
	CreatedAt      time.Time                 `json:"created_at"`
	ExpiresAt      time.Time                 `json:"expires_at"`
}

// Expired reports whether the opportunity window has closed.
func (o OptimizationOpportunity) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// MonitorResult is the outcome of one price-monitoring pass over a trip.
type MonitorResult struct {
	TripRequestID           string          `json:"trip_request_id"`
	PriceChanges            []PriceChange   `json:"price_changes"`
	TotalSavingsOpportunity decimal.Decimal `json:"total_savings_opportunity"`
	HasSignificantChanges   bool            `json:"has_significant_changes"`
}

// ReOptimizeRequest drives one optimization run.
type ReOptimizeRequest struct {
	TripRequestID string              `json:"trip_request_id"`
	Trigger       OptimizationTrigger `json:"trigger"`
	RespectLocks  bool                `json:"respect_locks"`
	Categories    []ComponentType     `json:"categories,omitempty"`
}

// ReOptimizeResult is the optimization run response.
type ReOptimizeResult struct {
	Success               bool                      `json:"success"`
	OpportunitiesFound    int                       `json:"opportunities_found"`
	Opportunities         []OptimizationOpportunity `json:"opportunities"`
	TotalPotentialSavings decimal.Decimal           `json:"total_potential_savings"`
}
