package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-booking/models"
)

func TestBookingRunHappyPath(t *testing.T) {
	run := newBookingRun()
	assert.Equal(t, models.BookingPending, run.state)

	require.NoError(t, run.advance(models.BookingValidating))
	require.NoError(t, run.advance(models.BookingProcessing))
	require.NoError(t, run.advance(models.BookingConfirmed))
	assert.True(t, run.state.Terminal())
}

func TestBookingRunFailureFromEveryPhase(t *testing.T) {
	run := newBookingRun()
	require.NoError(t, run.advance(models.BookingFailed))

	run = newBookingRun()
	require.NoError(t, run.advance(models.BookingValidating))
	require.NoError(t, run.advance(models.BookingFailed))

	run = newBookingRun()
	require.NoError(t, run.advance(models.BookingValidating))
	require.NoError(t, run.advance(models.BookingProcessing))
	require.NoError(t, run.advance(models.BookingFailed))
}

func TestBookingRunRejectsIllegalTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []models.BookingState
		to   models.BookingState
	}{
		{"Skipping validation", nil, models.BookingProcessing},
		{"Confirming from pending", nil, models.BookingConfirmed},
		{"Confirming from validating", []models.BookingState{models.BookingValidating}, models.BookingConfirmed},
		{"Leaving confirmed", []models.BookingState{models.BookingValidating, models.BookingProcessing, models.BookingConfirmed}, models.BookingFailed},
		{"Leaving failed", []models.BookingState{models.BookingFailed}, models.BookingValidating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := newBookingRun()
			for _, s := range tt.path {
				require.NoError(t, run.advance(s))
			}
			before := run.state

			err := run.advance(tt.to)

			assert.Error(t, err)
			assert.Equal(t, before, run.state, "state must not move on a rejected transition")
		})
	}
}
