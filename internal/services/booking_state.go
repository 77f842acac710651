package services

import (
	"fmt"

	"trip-booking/internal/services/payment"
	"trip-booking/models"
)

// bookingTransitions is the exhaustive transition table for a booking
// attempt. Terminal states have no outgoing edges.
var bookingTransitions = map[models.BookingState][]models.BookingState{
	models.BookingPending:    {models.BookingValidating, models.BookingFailed},
	models.BookingValidating: {models.BookingProcessing, models.BookingFailed},
	models.BookingProcessing: {models.BookingConfirmed, models.BookingFailed},
	models.BookingConfirmed:  {},
	models.BookingFailed:     {},
}

// bookingRun tracks the progress of one attempt, including the captured
// intent so cleanup can refund it from any exit path. An illegal
// transition is a programming error, not a vendor failure.
type bookingRun struct {
	state  models.BookingState
	intent *payment.Intent
}

func newBookingRun() *bookingRun {
	return &bookingRun{state: models.BookingPending}
}

func (r *bookingRun) advance(to models.BookingState) error {
	for _, allowed := range bookingTransitions[r.state] {
		if allowed == to {
			r.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal booking transition %s -> %s", r.state, to)
}
