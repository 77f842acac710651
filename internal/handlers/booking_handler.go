package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"trip-booking/internal/services"
	"trip-booking/internal/status"
	"trip-booking/security"
)

const (
	bookingRateLimit  = 10
	bookingRateWindow = time.Minute
)

type BookingHandler struct {
	app     *pocketbase.PocketBase
	booking *services.BookingService
	limiter *security.RateLimiter
}

func NewBookingHandler(app *pocketbase.PocketBase, booking *services.BookingService, limiter *security.RateLimiter) *BookingHandler {
	return &BookingHandler{
		app:     app,
		booking: booking,
		limiter: limiter,
	}
}

// Book - run one booking attempt for a locked trip option
func (h *BookingHandler) Book(e *core.RequestEvent) error {
	var req services.BookTripRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.TripOptionID == "" {
		return apis.NewBadRequestError("trip_option_id is required", nil)
	}
	if e.Auth != nil {
		req.UserID = e.Auth.Id
	}

	caller := req.UserID
	if caller == "" {
		caller = e.RealIP()
	}
	if !h.limiter.Allow(e.Request.Context(), fmt.Sprintf("booking:%s", caller), bookingRateLimit, bookingRateWindow) {
		return e.JSON(http.StatusTooManyRequests, map[string]any{
			"success": false,
			"error":   "too many booking attempts, try again later",
		})
	}

	result, err := h.booking.BookTrip(e.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, status.ErrBookingInFlight) {
			return e.JSON(http.StatusConflict, map[string]any{
				"success": false,
				"error":   err.Error(),
			})
		}
		if errors.Is(err, status.ErrComponentNotFound) {
			return apis.NewNotFoundError("Trip option not found", err)
		}
		return apis.NewBadRequestError("Booking failed", err)
	}

	return e.JSON(http.StatusOK, result)
}

// Cancel - void one confirmed reservation
func (h *BookingHandler) Cancel(e *core.RequestEvent) error {
	bookingID := e.Request.PathValue("bookingId")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.booking.CancelBooking(e.Request.Context(), bookingID, req.Reason); err != nil {
		if errors.Is(err, status.ErrBookingNotFound) {
			return apis.NewNotFoundError("Booking not found", err)
		}
		return apis.NewBadRequestError("Cancellation failed: "+err.Error(), err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"booking_id": bookingID,
	})
}
