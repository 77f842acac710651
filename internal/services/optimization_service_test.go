package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-booking/config"
	"trip-booking/models"
)

func TestBestChange(t *testing.T) {
	changes := []models.PriceChange{
		{ComponentID: "f1", OldPrice: decimal.NewFromInt(500), NewPrice: decimal.NewFromInt(470)},
		{ComponentID: "h1", OldPrice: decimal.NewFromInt(1000), NewPrice: decimal.NewFromInt(900)},
		{ComponentID: "a1", OldPrice: decimal.NewFromInt(80), NewPrice: decimal.NewFromInt(95)},
	}

	best := bestChange(changes)
	require.NotNil(t, best)
	assert.Equal(t, "h1", best.ComponentID)
}

func TestBestChangeIgnoresIncreases(t *testing.T) {
	changes := []models.PriceChange{
		{ComponentID: "f1", OldPrice: decimal.NewFromInt(500), NewPrice: decimal.NewFromInt(520)},
		{ComponentID: "h1", OldPrice: decimal.NewFromInt(1000), NewPrice: decimal.NewFromInt(1000)},
	}

	assert.Nil(t, bestChange(changes))
}

func TestCategoryAllowed(t *testing.T) {
	assert.True(t, categoryAllowed(models.ComponentFlight, nil))
	assert.True(t, categoryAllowed(models.ComponentHotel, []models.ComponentType{models.ComponentHotel}))
	assert.False(t, categoryAllowed(models.ComponentFlight, []models.ComponentType{models.ComponentHotel}))
}

func TestStoreOpportunitySetsExpiry(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := &config.Config{OpportunityTTL: 24 * time.Hour}
	svc := NewOptimizationService(nil, db, nil, nil, nil, cfg)

	now := time.Now()
	o := &models.OptimizationOpportunity{
		ID:            "op-1",
		TripRequestID: "trip-1",
		TripOptionID:  "opt-1",
		Trigger:       models.TriggerPriceDrop,
		CreatedAt:     now,
		ExpiresAt:     now.Add(24 * time.Hour),
	}

	mock.Regexp().ExpectSet("opportunity:trip-1:op-1", `.+`, 24*time.Hour).SetVal("OK")
	mock.ExpectSAdd("opportunities:trip-1", "op-1").SetVal(1)
	mock.ExpectExpire("opportunities:trip-1", 24*time.Hour).SetVal(true)

	require.NoError(t, svc.storeOpportunity(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunitiesFiltersExpired(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := &config.Config{OpportunityTTL: 24 * time.Hour}
	svc := NewOptimizationService(nil, db, nil, nil, nil, cfg)

	now := time.Now()
	live := models.OptimizationOpportunity{
		ID:            "live",
		TripRequestID: "trip-1",
		CreatedAt:     now,
		ExpiresAt:     now.Add(12 * time.Hour),
	}
	stale := models.OptimizationOpportunity{
		ID:            "stale",
		TripRequestID: "trip-1",
		CreatedAt:     now.Add(-48 * time.Hour),
		ExpiresAt:     now.Add(-24 * time.Hour),
	}
	liveData, err := json.Marshal(live)
	require.NoError(t, err)
	staleData, err := json.Marshal(stale)
	require.NoError(t, err)

	mock.ExpectSMembers("opportunities:trip-1").SetVal([]string{"live", "evicted", "stale"})
	mock.ExpectGet("opportunity:trip-1:live").SetVal(string(liveData))
	mock.ExpectGet("opportunity:trip-1:evicted").RedisNil()
	mock.ExpectSRem("opportunities:trip-1", "evicted").SetVal(1)
	mock.ExpectGet("opportunity:trip-1:stale").SetVal(string(staleData))

	got, err := svc.Opportunities(context.Background(), "trip-1")

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "live", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunitiesEmptyIndex(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := &config.Config{OpportunityTTL: 24 * time.Hour}
	svc := NewOptimizationService(nil, db, nil, nil, nil, cfg)

	mock.ExpectSMembers("opportunities:trip-9").SetVal([]string{})

	got, err := svc.Opportunities(context.Background(), "trip-9")

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A fully locked trip yields no opportunity: every component is reported
// as protected with a reason and nothing counts as optimizable.
func TestAssessEntitiesAllLockedBlocksOptimization(t *testing.T) {
	components := []models.TripComponent{
		{ID: "f1", Type: models.ComponentFlight, LockStatus: models.LockLocked},
		{ID: "h1", Type: models.ComponentHotel, LockStatus: models.LockConfirmed},
	}

	entities, anyOptimizable := assessEntities(components, true, nil)

	assert.False(t, anyOptimizable)
	require.Len(t, entities, 2)
	for _, e := range entities {
		assert.False(t, e.CanOptimize)
		assert.NotEmpty(t, e.Reason, "protected component %s must carry a reason", e.ComponentID)
	}
	assert.Contains(t, entities[0].Reason, "locked by the user")
	assert.Contains(t, entities[1].Reason, "confirmed and paid")
}

func TestAssessEntitiesUnlockedComponentOptimizable(t *testing.T) {
	components := []models.TripComponent{
		{ID: "f1", Type: models.ComponentFlight, LockStatus: models.LockLocked},
		{ID: "a1", Type: models.ComponentActivity, LockStatus: models.LockUnlocked},
	}

	entities, anyOptimizable := assessEntities(components, true, nil)

	assert.True(t, anyOptimizable)
	require.Len(t, entities, 2)
	assert.False(t, entities[0].CanOptimize)
	assert.True(t, entities[1].CanOptimize)
	assert.Empty(t, entities[1].Reason)
}

// Disabling respectLocks marks every component optimizable, locks
// included. The advisory contract still never mutates anything.
func TestAssessEntitiesOverrideIgnoresLocks(t *testing.T) {
	components := []models.TripComponent{
		{ID: "f1", Type: models.ComponentFlight, LockStatus: models.LockLocked},
		{ID: "h1", Type: models.ComponentHotel, LockStatus: models.LockConfirmed},
	}

	entities, anyOptimizable := assessEntities(components, false, nil)

	assert.True(t, anyOptimizable)
	for _, e := range entities {
		assert.True(t, e.CanOptimize)
	}
}

func TestAssessEntitiesCategoryFilter(t *testing.T) {
	components := []models.TripComponent{
		{ID: "f1", Type: models.ComponentFlight, LockStatus: models.LockUnlocked},
		{ID: "h1", Type: models.ComponentHotel, LockStatus: models.LockUnlocked},
	}

	entities, anyOptimizable := assessEntities(components, true, []models.ComponentType{models.ComponentHotel})

	assert.True(t, anyOptimizable)
	require.Len(t, entities, 1)
	assert.Equal(t, "h1", entities[0].ComponentID)
}

func TestShouldPoll(t *testing.T) {
	tests := []struct {
		name          string
		status        models.LockStatus
		includeLocked bool
		categories    []models.ComponentType
		want          bool
	}{
		{"Unlocked is polled", models.LockUnlocked, false, nil, true},
		{"Locked is skipped", models.LockLocked, false, nil, false},
		{"Confirmed is skipped", models.LockConfirmed, false, nil, false},
		{"Locked polled when included", models.LockLocked, true, nil, true},
		{"Filtered category skipped", models.LockUnlocked, false, []models.ComponentType{models.ComponentHotel}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &models.TripComponent{ID: "f1", Type: models.ComponentFlight, LockStatus: tt.status}
			assert.Equal(t, tt.want, shouldPoll(c, tt.includeLocked, tt.categories))
		})
	}
}
