package services

import (
	"context"
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
	"trip-booking/internal/services/payment"
	"trip-booking/internal/services/vendor"
	"trip-booking/internal/services/verify"
	"trip-booking/internal/status"
	"trip-booking/models"
	"trip-booking/monitoring"
)

// BookingService turns a fully locked trip option into paid vendor
// reservations. Steps run strictly in order: payment capture before any
// vendor call, flight and hotel before activities, cancellation before
// refund confirmation. The only observable end states are "payment
// captured + flight + hotel confirmed" or "no payment retained and no
// mandatory booking persisted".
type BookingService struct {
	app      core.App
	Redis    *redis.Client
	locks    *LockService
	vendors  *vendor.Registry
	gateway  payment.Gateway
	verifier verify.EntityVerifier
	PubNub   *pubnub.PubNub
	config   *config.Config
}

func NewBookingService(
	app core.App,
	redisClient *redis.Client,
	locks *LockService,
	vendors *vendor.Registry,
	gateway payment.Gateway,
	verifier verify.EntityVerifier,
	pn *pubnub.PubNub,
	cfg *config.Config,
) *BookingService {
	return &BookingService{
		app:      app,
		Redis:    redisClient,
		locks:    locks,
		vendors:  vendors,
		gateway:  gateway,
		verifier: verifier,
		PubNub:   pn,
		config:   cfg,
	}
}

type BookTripRequest struct {
	TripOptionID string             `json:"trip_option_id"`
	UserID       string             `json:"user_id"`
	Payment      models.PaymentInfo `json:"payment"`
	Contact      models.UserContact `json:"contact"`
}

type bookedComponent struct {
	component    *models.TripComponent
	confirmation *vendor.Confirmation
}

// BookTrip runs one booking attempt to a terminal state. A second
// attempt for the same trip option is rejected while the lease is held.
func (s *BookingService) BookTrip(ctx context.Context, req *BookTripRequest) (res *models.BookingResult, err error) {
	start := time.Now()

	leaseKey := fmt.Sprintf("booking:lease:%s", req.TripOptionID)
	acquired, err := s.Redis.SetNX(ctx, leaseKey, uuid.New().String(), s.config.BookingLeaseTTL).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, status.ErrBookingInFlight
	}
	defer s.Redis.Del(context.Background(), leaseKey)

	components, err := s.locks.ComponentsForOption(ctx, req.TripOptionID)
	if err != nil {
		return nil, err
	}

	run := newBookingRun()
	res = &models.BookingResult{State: run.state}

	defer func() {
		if r := recover(); r != nil {
			// Best-effort refund of any captured payment before
			// returning a generic failure.
			if run.intent != nil {
				if rerr := s.gateway.Refund(context.Background(), run.intent.ID, run.intent.AmountCents); rerr != nil {
					slog.Error("refund after unexpected failure did not go through", "error", rerr, "intent_id", run.intent.ID)
				}
			}
			if !run.state.Terminal() {
				run.state = models.BookingFailed
			}
			res.Success = false
			res.Error = fmt.Sprintf("unexpected error: %v", r)
			err = nil
		}
		res.State = run.state
		s.appendAudit(req.TripOptionID, res)

		outcome := "failed"
		if res.Success {
			outcome = "confirmed"
		}
		monitoring.TrackBookingAttempt(outcome, time.Since(start))
	}()

	return s.attempt(ctx, req, components, run, res)
}

// attempt runs the validation and processing phases to a terminal
// state. The lease and the audit trail belong to BookTrip.
func (s *BookingService) attempt(ctx context.Context, req *BookTripRequest, components []models.TripComponent, run *bookingRun, res *models.BookingResult) (*models.BookingResult, error) {
	// Validate
	if terr := run.advance(models.BookingValidating); terr != nil {
		return s.failRun(run, res, terr)
	}

	agg := mustAggregate(req.TripOptionID, components)
	if !agg.FullyLocked {
		return s.failRun(run, res, &status.ValidationError{
			ComponentID: req.TripOptionID,
			Reason:      "trip option is not fully locked",
		})
	}

	flight, hotel, activities, serr := splitComponents(components)
	if serr != nil {
		return s.failRun(run, res, serr)
	}

	for i := range components {
		c := &components[i]
		if verr := s.checkAvailability(ctx, c); verr != nil {
			return s.failRun(run, res, verr)
		}
	}

	verdict, verr := s.verifier.Verify(ctx, hotel.Name, hotel.Location)
	if verr != nil {
		verdict = verify.Unknown
	}
	switch verdict {
	case verify.Unverified:
		return s.failRun(run, res, &status.ValidationError{
			ComponentID: hotel.ID,
			Reason:      fmt.Sprintf("hotel %q could not be verified at %q", hotel.Name, hotel.Location),
		})
	case verify.Unknown:
		res.Warnings = append(res.Warnings, fmt.Sprintf("hotel %q verification inconclusive", hotel.Name))
	}

	// Process: payment first, then mandatory components, then activities.
	if terr := run.advance(models.BookingProcessing); terr != nil {
		return s.failRun(run, res, terr)
	}

	totalCents := int64(0)
	for _, c := range components {
		totalCents += cents(c.Price)
	}

	currency := req.Payment.Currency
	if currency == "" {
		currency = "USD"
	}

	intent, cerr := s.gateway.CreateIntent(ctx, &payment.CreateIntentRequest{
		TripOptionID: req.TripOptionID,
		AmountCents:  totalCents,
		Currency:     currency,
		Method:       req.Payment.Method,
		Token:        req.Payment.Token,
	})
	if cerr != nil {
		return s.failRun(run, res, &status.PaymentError{Err: cerr})
	}
	run.intent = intent

	booked, confirmations, berr := s.bookVendors(ctx, req, intent, flight, hotel, activities, res)
	if berr != nil {
		return s.failRun(run, res, berr)
	}

	pay, perr := s.persistCommit(ctx, req.TripOptionID, booked, intent, currency)
	if perr != nil {
		// Money already moved: unwind everything booked so the failed
		// terminal state keeps the atomicity guarantee.
		cancelled := make([]string, 0, len(booked))
		for _, b := range booked {
			if cerr := s.cancelComponent(ctx, b.component.Type, b.confirmation.ConfirmationCode, "commit persistence failed"); cerr != nil {
				slog.Error("rollback cancellation failed", "error", cerr, "confirmation", b.confirmation.ConfirmationCode)
				continue
			}
			cancelled = append(cancelled, b.confirmation.ConfirmationCode)
		}
		s.refund(ctx, intent)
		monitoring.TrackRollback()
		res.RollbackInfo = &models.RollbackInfo{
			CancelledBookings: cancelled,
			RefundAmount:      intent.AmountCents,
			Reason:            "commit persistence failed",
		}
		return s.failRun(run, res, fmt.Errorf("persisting commit: %w", perr))
	}

	if terr := run.advance(models.BookingConfirmed); terr != nil {
		return s.failRun(run, res, terr)
	}

	res.Success = true
	res.Confirmations = confirmations
	res.Payment = pay

	s.notifyUser(req.UserID, map[string]any{
		"type":           "booking_confirmed",
		"trip_option_id": req.TripOptionID,
		"confirmations":  confirmations,
	})

	return res, nil
}

// bookVendors books the flight, then the hotel, then each activity.
// A mandatory failure compensates in reverse order, cancellation before
// refund confirmation; an activity failure is recorded as a warning.
func (s *BookingService) bookVendors(ctx context.Context, req *BookTripRequest, intent *payment.Intent, flight, hotel *models.TripComponent, activities []models.TripComponent, res *models.BookingResult) ([]bookedComponent, map[string]string, error) {
	flightConf, berr := s.bookComponent(ctx, flight, &req.Contact)
	if berr != nil {
		s.refund(ctx, intent)
		monitoring.TrackRollback()
		res.RollbackInfo = &models.RollbackInfo{
			RefundAmount: intent.AmountCents,
			Reason:       "flight booking failed",
		}
		return nil, nil, &status.MandatoryVendorError{Component: "Flight", Err: berr}
	}

	hotelConf, berr := s.bookComponent(ctx, hotel, &req.Contact)
	if berr != nil {
		// Cancel the flight before confirming the refund.
		if cerr := s.cancelComponent(ctx, flight.Type, flightConf.ConfirmationCode, "hotel booking failed"); cerr != nil {
			slog.Error("flight cancellation during rollback failed", "error", cerr, "confirmation", flightConf.ConfirmationCode)
		}
		s.refund(ctx, intent)
		monitoring.TrackRollback()
		res.RollbackInfo = &models.RollbackInfo{
			CancelledBookings: []string{flightConf.ConfirmationCode},
			RefundAmount:      intent.AmountCents,
			Reason:            "hotel booking failed",
		}
		return nil, nil, &status.MandatoryVendorError{Component: "Hotel", Err: berr}
	}

	booked := []bookedComponent{
		{component: flight, confirmation: flightConf},
		{component: hotel, confirmation: hotelConf},
	}
	confirmations := map[string]string{
		flight.ID: flightConf.ConfirmationCode,
		hotel.ID:  hotelConf.ConfirmationCode,
	}

	for i := range activities {
		a := &activities[i]
		conf, aerr := s.bookComponent(ctx, a, &req.Contact)
		if aerr != nil {
			warn := (&status.OptionalVendorError{Component: "Activity", Err: aerr}).Error()
			res.Warnings = append(res.Warnings, warn)
			slog.Warn("activity booking failed, continuing", "component_id", a.ID, "error", aerr)
			continue
		}
		booked = append(booked, bookedComponent{component: a, confirmation: conf})
		confirmations[a.ID] = conf.ConfirmationCode
	}

	return booked, confirmations, nil
}

// CancelBooking voids one confirmed reservation: vendor cancellation,
// partial refund of the component amount, booking row marked cancelled
// and the component unlocked through the explicit override, the only
// legal exit from CONFIRMED.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, reason string) error {
	record, err := s.app.FindRecordById("bookings", bookingID)
	if err != nil {
		return fmt.Errorf("booking %s: %w", bookingID, status.ErrBookingNotFound)
	}
	if record.GetString("status") == models.BookingStatusCancelled {
		return fmt.Errorf("booking %s is already cancelled", bookingID)
	}

	componentType := models.ComponentType(record.GetString("component_type"))
	if err := s.cancelComponent(ctx, componentType, record.GetString("confirmation_code"), reason); err != nil {
		return err
	}

	payRecord, err := s.app.FindFirstRecordByFilter(
		"payments",
		"trip_option_id = {:id}",
		dbx.Params{"id": record.GetString("trip_option_id")},
	)
	if err == nil {
		amount := int64(record.GetInt("amount_cents"))
		if rerr := s.gateway.PartialRefund(ctx, payRecord.GetString("intent_id"), amount); rerr != nil {
			slog.Error("partial refund failed", "error", rerr, "booking_id", bookingID)
			return rerr
		}
		payRecord.Set("status", models.PaymentStatusPartiallyRefunded)
		if serr := s.app.Save(payRecord); serr != nil {
			slog.Error("failed to update payment status", "error", serr, "booking_id", bookingID)
		}
	}

	record.Set("status", models.BookingStatusCancelled)
	if err := s.app.Save(record); err != nil {
		return err
	}

	return s.locks.Unlock(ctx, componentType, record.GetString("component_id"), true)
}

func (s *BookingService) checkAvailability(ctx context.Context, c *models.TripComponent) error {
	booker, err := s.vendors.For(c.Type)
	if err != nil {
		return &status.ValidationError{ComponentID: c.ID, Reason: err.Error()}
	}

	quote, err := booker.Quote(ctx, &vendor.QuoteRequest{VendorRef: c.VendorRef, LastPrice: c.Price})
	if err != nil {
		monitoring.TrackPriceQuote(booker.Name(), "error")
		return &status.ValidationError{
			ComponentID: c.ID,
			Reason:      fmt.Sprintf("availability check failed: %v", err),
		}
	}
	monitoring.TrackPriceQuote(booker.Name(), "ok")

	if !quote.Available {
		return &status.ValidationError{ComponentID: c.ID, Reason: "component is no longer available"}
	}
	return nil
}

func (s *BookingService) bookComponent(ctx context.Context, c *models.TripComponent, contact *models.UserContact) (*vendor.Confirmation, error) {
	booker, err := s.vendors.For(c.Type)
	if err != nil {
		return nil, err
	}

	return booker.Book(ctx, &vendor.BookRequest{
		ComponentID: c.ID,
		VendorRef:   c.VendorRef,
		Name:        c.Name,
		AmountCents: cents(c.Price),
		Currency:    c.Currency,
		Contact:     *contact,
		Payload:     c.Payload,
	})
}

func (s *BookingService) cancelComponent(ctx context.Context, componentType models.ComponentType, confirmationCode, reason string) error {
	booker, err := s.vendors.For(componentType)
	if err != nil {
		return err
	}
	return booker.Cancel(ctx, confirmationCode, reason)
}

func (s *BookingService) refund(ctx context.Context, intent *payment.Intent) {
	if err := s.gateway.Refund(ctx, intent.ID, intent.AmountCents); err != nil {
		slog.Error("refund failed", "error", err, "intent_id", intent.ID)
	}
}

func (s *BookingService) persistCommit(ctx context.Context, tripOptionID string, booked []bookedComponent, intent *payment.Intent, currency string) (*models.Payment, error) {
	bookingsCol, err := s.app.FindCollectionByNameOrId("bookings")
	if err != nil {
		return nil, err
	}

	for _, b := range booked {
		record := core.NewRecord(bookingsCol)
		record.Set("trip_option_id", tripOptionID)
		record.Set("component_id", b.component.ID)
		record.Set("component_type", string(b.component.Type))
		record.Set("confirmation_code", b.confirmation.ConfirmationCode)
		record.Set("booking_reference", b.confirmation.BookingReference)
		record.Set("amount_cents", cents(b.component.Price))
		record.Set("currency", b.component.Currency)
		record.Set("status", models.BookingStatusConfirmed)
		record.Set("booked_at", b.confirmation.BookedAt)
		if err := s.app.Save(record); err != nil {
			return nil, err
		}
	}

	paymentsCol, err := s.app.FindCollectionByNameOrId("payments")
	if err != nil {
		return nil, err
	}
	payRecord := core.NewRecord(paymentsCol)
	payRecord.Set("trip_option_id", tripOptionID)
	payRecord.Set("intent_id", intent.ID)
	payRecord.Set("amount_cents", intent.AmountCents)
	payRecord.Set("currency", currency)
	payRecord.Set("status", models.PaymentStatusCaptured)
	if err := s.app.Save(payRecord); err != nil {
		return nil, err
	}

	for _, b := range booked {
		if err := s.locks.Lock(ctx, b.component.Type, b.component.ID, models.LockConfirmed, false); err != nil {
			return nil, err
		}
	}

	if option, err := s.app.FindRecordById("trip_options", tripOptionID); err == nil {
		option.Set("lock_status", string(models.LockConfirmed))
		if serr := s.app.Save(option); serr != nil {
			slog.Error("failed to update trip option roll-up", "error", serr, "trip_option_id", tripOptionID)
		}
	}

	return &models.Payment{
		ID:           payRecord.Id,
		TripOptionID: tripOptionID,
		IntentID:     intent.ID,
		AmountCents:  intent.AmountCents,
		Currency:     currency,
		Status:       models.PaymentStatusCaptured,
	}, nil
}

// appendAudit records one attempt, successful or not, for traceability.
func (s *BookingService) appendAudit(tripOptionID string, res *models.BookingResult) {
	col, err := s.app.FindCollectionByNameOrId("booking_audit")
	if err != nil {
		slog.Error("booking audit collection missing", "error", err)
		return
	}

	record := core.NewRecord(col)
	record.Set("trip_option_id", tripOptionID)
	record.Set("state", string(res.State))
	record.Set("success", res.Success)
	record.Set("error", res.Error)
	record.Set("warnings", res.Warnings)
	record.Set("rollback", res.RollbackInfo)
	if err := s.app.Save(record); err != nil {
		slog.Error("failed to append booking audit entry", "error", err, "trip_option_id", tripOptionID)
	}
}

func (s *BookingService) failRun(run *bookingRun, res *models.BookingResult, cause error) (*models.BookingResult, error) {
	if !run.state.Terminal() {
		if terr := run.advance(models.BookingFailed); terr != nil {
			slog.Error("booking state machine violation", "error", terr)
			run.state = models.BookingFailed
		}
	}
	res.Success = false
	res.Error = cause.Error()
	res.State = run.state
	return res, nil
}

func (s *BookingService) notifyUser(userID string, message map[string]any) {
	if s.PubNub == nil || userID == "" {
		return
	}
	channel := fmt.Sprintf("user-%s", userID)
	s.PubNub.Publish().
		Channel(channel).
		Message(message).
		Execute()
}

func splitComponents(components []models.TripComponent) (flight, hotel *models.TripComponent, activities []models.TripComponent, err error) {
	for i := range components {
		c := &components[i]
		switch c.Type {
		case models.ComponentFlight:
			flight = c
		case models.ComponentHotel:
			hotel = c
		case models.ComponentActivity:
			activities = append(activities, *c)
		}
	}
	if flight == nil || hotel == nil {
		return nil, nil, nil, &status.ValidationError{
			ComponentID: "",
			Reason:      "trip option needs exactly one flight and one hotel",
		}
	}
	return flight, hotel, activities, nil
}

func mustAggregate(tripOptionID string, components []models.TripComponent) *models.AggregateLockState {
	details := make([]models.LockDetail, len(components))
	for i, c := range components {
		details[i] = models.LockDetail{ComponentID: c.ID, Type: c.Type, Status: c.LockStatus}
	}
	agg := models.RollUp(tripOptionID, details)
	return &agg
}

func cents(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
