package utils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tripBreaker opens after three failed quote calls out of five.
func tripBreaker(timeout time.Duration) *CircuitBreaker {
	cb := NewCircuitBreaker("skyline")
	cb.maxRequests = 5
	cb.failureRatio = 0.6
	cb.timeout = timeout
	return cb
}

func TestCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker("stayhub")

	assert.Equal(t, "stayhub", cb.name)
	assert.Equal(t, uint32(100), cb.maxRequests)
	assert.Equal(t, 60*time.Second, cb.timeout)
	assert.Equal(t, 0.6, cb.failureRatio)
	assert.Equal(t, StateClosed, cb.state)
}

func TestCircuitBreakerPassesResultsThrough(t *testing.T) {
	cb := NewCircuitBreaker("skyline")
	ctx := context.Background()

	result, err := cb.Execute(ctx, func() (any, error) {
		return "quote", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "quote", result)
	assert.Equal(t, StateClosed, cb.state)

	vendorErr := errors.New("upstream unavailable")
	_, err = cb.Execute(ctx, func() (any, error) {
		return nil, vendorErr
	})
	assert.Equal(t, vendorErr, err)
	assert.Equal(t, StateClosed, cb.state)
}

// A vendor failing more than the ratio allows gets cut off: the open
// breaker refuses calls without touching the backend.
func TestCircuitBreakerOpensOnRepeatedVendorFailures(t *testing.T) {
	cb := tripBreaker(time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(ctx, func() (any, error) { return "quote", nil })
		require.NoError(t, err)
	}
	for i := 0; i < 4; i++ {
		cb.Execute(ctx, func() (any, error) { return nil, errors.New("timeout") })
	}

	assert.Equal(t, StateOpen, cb.state)

	called := false
	_, err := cb.Execute(ctx, func() (any, error) {
		called = true
		return nil, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.False(t, called, "an open breaker must not reach the vendor")
}

// After the timeout a trial request goes through; success closes the
// breaker again.
func TestCircuitBreakerRecoversAfterTimeout(t *testing.T) {
	cb := tripBreaker(50 * time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cb.Execute(ctx, func() (any, error) { return nil, errors.New("timeout") })
	}
	require.Equal(t, StateOpen, cb.state)

	time.Sleep(80 * time.Millisecond)

	result, err := cb.Execute(ctx, func() (any, error) {
		return "quote", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "quote", result)
	assert.Equal(t, StateClosed, cb.state)
}

func TestCircuitBreakerConcurrentCalls(t *testing.T) {
	cb := NewCircuitBreaker("cityfun")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.Execute(ctx, func() (any, error) { return "quote", nil })
		}()
	}
	wg.Wait()

	assert.Equal(t, StateClosed, cb.state)
	assert.Equal(t, uint32(20), cb.counts.TotalSuccesses)
}

// A panicking call counts as a failure and is re-raised to the caller.
func TestCircuitBreakerCountsPanicsAsFailures(t *testing.T) {
	cb := NewCircuitBreaker("skyline")
	ctx := context.Background()

	assert.Panics(t, func() {
		cb.Execute(ctx, func() (any, error) {
			panic("vendor client bug")
		})
	})
	assert.Equal(t, uint32(1), cb.counts.TotalFailures)
}

func TestRedisHealthCheck(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectPing().SetVal("PONG")

	assert.NoError(t, RedisHealthCheck(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisHealthCheckReportsFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectPing().SetErr(errors.New("connection refused"))

	err := RedisHealthCheck(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
}
