package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"trip-booking/config"
	"trip-booking/internal/services/vendor"
	"trip-booking/models"
	"trip-booking/monitoring"
	"trip-booking/utils"
)

// PriceMonitor polls vendor prices for components. Every vendor gets
// its own rate limiter and circuit breaker so one slow or flapping
// provider cannot starve the others. The last quote is cached in Redis
// for delta reporting across restarts.
type PriceMonitor struct {
	Redis   *redis.Client
	vendors *vendor.Registry

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*utils.CircuitBreaker

	pollRate  float64
	pollBurst int
}

func NewPriceMonitor(redisClient *redis.Client, vendors *vendor.Registry, cfg *config.Config) *PriceMonitor {
	return &PriceMonitor{
		Redis:     redisClient,
		vendors:   vendors,
		limiters:  make(map[string]*rate.Limiter),
		breakers:  make(map[string]*utils.CircuitBreaker),
		pollRate:  cfg.VendorPollRate,
		pollBurst: cfg.VendorPollBurst,
	}
}

// CurrentPrice fetches the current quote for a component.
func (m *PriceMonitor) CurrentPrice(ctx context.Context, c *models.TripComponent) (*vendor.Quote, error) {
	booker, err := m.vendors.For(c.Type)
	if err != nil {
		return nil, err
	}

	if err := m.limiter(booker.Name()).Wait(ctx); err != nil {
		return nil, err
	}

	result, err := m.breaker(booker.Name()).Execute(ctx, func() (interface{}, error) {
		return booker.Quote(ctx, &vendor.QuoteRequest{VendorRef: c.VendorRef, LastPrice: c.Price})
	})
	if err != nil {
		monitoring.TrackPriceQuote(booker.Name(), "error")
		return nil, vendor.NewError(booker.Name(), err)
	}
	monitoring.TrackPriceQuote(booker.Name(), "ok")

	quote := result.(*vendor.Quote)
	m.cacheQuote(ctx, booker.Name(), c.ID, quote)

	return quote, nil
}

func (m *PriceMonitor) cacheQuote(ctx context.Context, vendorName, componentID string, quote *vendor.Quote) {
	key := fmt.Sprintf("price:last:%s:%s", vendorName, componentID)
	m.Redis.Set(ctx, key, quote.Price.String(), 24*time.Hour)
}

// LastQuoted returns the cached last quote for a component, if any.
func (m *PriceMonitor) LastQuoted(ctx context.Context, vendorName, componentID string) (string, bool) {
	key := fmt.Sprintf("price:last:%s:%s", vendorName, componentID)
	value, err := m.Redis.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return value, true
}

func (m *PriceMonitor) limiter(vendorName string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.limiters[vendorName]
	if !ok {
		l = rate.NewLimiter(rate.Limit(m.pollRate), m.pollBurst)
		m.limiters[vendorName] = l
	}
	return l
}

func (m *PriceMonitor) breaker(vendorName string) *utils.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.breakers[vendorName]
	if !ok {
		b = utils.NewCircuitBreaker(vendorName)
		m.breakers[vendorName] = b
	}
	return b
}
