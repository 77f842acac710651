package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	bookingAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_attempts_total",
			Help: "Booking attempts by terminal outcome",
		},
		[]string{"outcome"},
	)

	bookingRollbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_rollbacks_total",
			Help: "Compensation chains executed after partial booking failure",
		},
	)

	bookingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "booking_duration_seconds",
			Help:    "Duration of booking attempts",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	priceQuotes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendor_price_quotes_total",
			Help: "Vendor price quote calls",
		},
		[]string{"vendor", "status"},
	)

	opportunitiesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimization_opportunities_total",
			Help: "Advisory opportunities created, by trigger",
		},
		[]string{"trigger"},
	)

	activeLeases = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "booking_leases_active_total",
			Help: "Booking leases currently held",
		},
	)

	schedulerBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_batches_total",
			Help: "Scheduler batch runs",
		},
		[]string{"status"},
	)

	schedulerTripErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_trip_errors_total",
			Help: "Per-trip optimization failures isolated by the scheduler",
		},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()
		m.collectLeaseMetrics(ctx)
	}
}

func (m *Monitor) collectLeaseMetrics(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "booking:lease:*").Result()
	activeLeases.Set(float64(len(keys)))
}

// TrackBookingAttempt records a terminal booking outcome.
func TrackBookingAttempt(outcome string, duration time.Duration) {
	bookingAttempts.WithLabelValues(outcome).Inc()
	bookingDuration.Observe(duration.Seconds())
}

// TrackRollback records one executed compensation chain.
func TrackRollback() {
	bookingRollbacks.Inc()
}

// TrackPriceQuote records a vendor quote call.
func TrackPriceQuote(vendor, status string) {
	priceQuotes.WithLabelValues(vendor, status).Inc()
}

// TrackOpportunity records a created opportunity.
func TrackOpportunity(trigger string) {
	opportunitiesCreated.WithLabelValues(trigger).Inc()
}

// TrackSchedulerBatch records a scheduler batch outcome.
func TrackSchedulerBatch(status string) {
	schedulerBatches.WithLabelValues(status).Inc()
}

// TrackSchedulerTripError records an isolated per-trip failure.
func TrackSchedulerTripError() {
	schedulerTripErrors.Inc()
}
