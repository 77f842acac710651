package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-booking/config"
	"trip-booking/internal/services/payment"
	"trip-booking/internal/services/vendor"
	"trip-booking/internal/services/verify"
	"trip-booking/internal/status"
	"trip-booking/models"
)

func TestCents(t *testing.T) {
	tests := []struct {
		name  string
		price string
		want  int64
	}{
		{"Whole amount", "1500", 150000},
		{"Two decimals", "99.99", 9999},
		{"Rounds half up", "10.005", 1001},
		{"Zero", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := decimal.NewFromString(tt.price)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cents(price))
		})
	}
}

func TestSplitComponents(t *testing.T) {
	flight := models.TripComponent{ID: "f1", Type: models.ComponentFlight}
	hotel := models.TripComponent{ID: "h1", Type: models.ComponentHotel}
	tour := models.TripComponent{ID: "a1", Type: models.ComponentActivity}
	museum := models.TripComponent{ID: "a2", Type: models.ComponentActivity}

	gotFlight, gotHotel, activities, err := splitComponents([]models.TripComponent{tour, flight, museum, hotel})
	require.NoError(t, err)
	assert.Equal(t, "f1", gotFlight.ID)
	assert.Equal(t, "h1", gotHotel.ID)
	assert.Len(t, activities, 2)
}

func TestSplitComponentsRequiresFlightAndHotel(t *testing.T) {
	_, _, _, err := splitComponents([]models.TripComponent{
		{ID: "f1", Type: models.ComponentFlight},
		{ID: "a1", Type: models.ComponentActivity},
	})

	var verr *status.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestMustAggregate(t *testing.T) {
	locked := []models.TripComponent{
		{ID: "f1", Type: models.ComponentFlight, LockStatus: models.LockLocked},
		{ID: "h1", Type: models.ComponentHotel, LockStatus: models.LockConfirmed},
	}
	agg := mustAggregate("opt1", locked)
	assert.True(t, agg.FullyLocked)

	mixed := []models.TripComponent{
		{ID: "f1", Type: models.ComponentFlight, LockStatus: models.LockLocked},
		{ID: "h1", Type: models.ComponentHotel, LockStatus: models.LockUnlocked},
	}
	agg = mustAggregate("opt1", mixed)
	assert.False(t, agg.FullyLocked)
	assert.True(t, agg.PartiallyLocked)
}

// Two concurrent attempts for the same trip option: the second one must
// be refused while the lease is held, before anything else happens.
func TestBookTripRejectsConcurrentAttempt(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := &config.Config{BookingLeaseTTL: 10 * time.Minute}
	svc := NewBookingService(nil, db, nil, nil, nil, nil, nil, cfg)

	mock.Regexp().ExpectSetNX("booking:lease:opt1", `.+`, 10*time.Minute).SetVal(false)

	res, err := svc.BookTrip(context.Background(), &BookTripRequest{TripOptionID: "opt1"})

	assert.Nil(t, res)
	assert.ErrorIs(t, err, status.ErrBookingInFlight)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// stubBooker is a scriptable vendor for orchestration tests.
type stubBooker struct {
	name        string
	category    models.ComponentType
	bookErr     error
	unavailable bool
	booked      []string
	cancelled   []string
}

func (b *stubBooker) Name() string { return b.name }

func (b *stubBooker) Category() models.ComponentType { return b.category }

func (b *stubBooker) Quote(_ context.Context, req *vendor.QuoteRequest) (*vendor.Quote, error) {
	return &vendor.Quote{VendorRef: req.VendorRef, Price: req.LastPrice, Currency: "USD", Available: !b.unavailable}, nil
}

func (b *stubBooker) Book(_ context.Context, req *vendor.BookRequest) (*vendor.Confirmation, error) {
	if b.bookErr != nil {
		return nil, b.bookErr
	}
	b.booked = append(b.booked, req.ComponentID)
	return &vendor.Confirmation{
		ConfirmationCode: "CONF-" + req.ComponentID,
		BookingReference: req.ComponentID,
		BookedAt:         time.Now(),
	}, nil
}

func (b *stubBooker) Cancel(_ context.Context, confirmationCode, _ string) error {
	b.cancelled = append(b.cancelled, confirmationCode)
	return nil
}

func orchestratorFixture(flight, hotel *stubBooker, extras ...*stubBooker) *BookingService {
	reg := vendor.NewRegistry()
	reg.Register(flight)
	reg.Register(hotel)
	for _, b := range extras {
		reg.Register(b)
	}
	return NewBookingService(
		nil, nil, nil, reg,
		payment.NewSimGateway(),
		&verify.StaticVerifier{Result: verify.Verified},
		nil,
		&config.Config{},
	)
}

func lockedPair() []models.TripComponent {
	return []models.TripComponent{
		{ID: "f1", Type: models.ComponentFlight, LockStatus: models.LockLocked, Price: decimal.NewFromInt(500), Currency: "USD", Vendor: "skyline", VendorRef: "FL-77"},
		{ID: "h1", Type: models.ComponentHotel, LockStatus: models.LockLocked, Price: decimal.NewFromInt(1000), Currency: "USD", Vendor: "stayhub", VendorRef: "HT-12", Name: "Grand Plaza", Location: "Rome"},
	}
}

// A hotel failure after the flight is booked must cancel the flight and
// refund the full capture, in that order, leaving nothing behind.
func TestBookingHotelFailureCancelsFlightAndRefunds(t *testing.T) {
	flightBooker := &stubBooker{name: "skyline", category: models.ComponentFlight}
	hotelBooker := &stubBooker{name: "stayhub", category: models.ComponentHotel, bookErr: errors.New("no rooms left")}
	svc := orchestratorFixture(flightBooker, hotelBooker)
	gateway := svc.gateway.(*payment.SimGateway)

	run := newBookingRun()
	res := &models.BookingResult{State: run.state}
	res, err := svc.attempt(context.Background(), &BookTripRequest{TripOptionID: "opt1"}, lockedPair(), run, res)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, models.BookingFailed, res.State)
	assert.Contains(t, res.Error, "Hotel booking failed")

	require.NotNil(t, res.RollbackInfo)
	assert.Equal(t, int64(150000), res.RollbackInfo.RefundAmount)
	assert.Equal(t, "hotel booking failed", res.RollbackInfo.Reason)
	assert.Equal(t, []string{"CONF-f1"}, res.RollbackInfo.CancelledBookings)
	assert.Equal(t, []string{"CONF-f1"}, flightBooker.cancelled)

	require.NotNil(t, run.intent)
	assert.Equal(t, int64(150000), gateway.Refunded(run.intent.ID))
	assert.Equal(t, payment.IntentRefunded, gateway.Intent(run.intent.ID).Status)
}

// A flight failure happens before anything else is booked: full refund,
// no cancellations to issue, the hotel vendor never called.
func TestBookingFlightFailureRefundsWithoutCancellations(t *testing.T) {
	flightBooker := &stubBooker{name: "skyline", category: models.ComponentFlight, bookErr: errors.New("fare expired")}
	hotelBooker := &stubBooker{name: "stayhub", category: models.ComponentHotel}
	svc := orchestratorFixture(flightBooker, hotelBooker)
	gateway := svc.gateway.(*payment.SimGateway)

	run := newBookingRun()
	res := &models.BookingResult{State: run.state}
	res, err := svc.attempt(context.Background(), &BookTripRequest{TripOptionID: "opt1"}, lockedPair(), run, res)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Flight booking failed")
	require.NotNil(t, res.RollbackInfo)
	assert.Equal(t, int64(150000), res.RollbackInfo.RefundAmount)
	assert.Empty(t, res.RollbackInfo.CancelledBookings)
	assert.Empty(t, hotelBooker.booked)

	require.NotNil(t, run.intent)
	assert.Equal(t, int64(150000), gateway.Refunded(run.intent.ID))
}

// An unavailable component fails validation before payment: no intent
// is ever created, so there is nothing to refund.
func TestBookingUnavailableComponentFailsBeforeCapture(t *testing.T) {
	flightBooker := &stubBooker{name: "skyline", category: models.ComponentFlight}
	hotelBooker := &stubBooker{name: "stayhub", category: models.ComponentHotel, unavailable: true}
	svc := orchestratorFixture(flightBooker, hotelBooker)

	run := newBookingRun()
	res := &models.BookingResult{State: run.state}
	res, err := svc.attempt(context.Background(), &BookTripRequest{TripOptionID: "opt1"}, lockedPair(), run, res)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no longer available")
	assert.Nil(t, run.intent)
	assert.Nil(t, res.RollbackInfo)
	assert.Empty(t, flightBooker.booked)
}

// A partially locked option is refused before any vendor or payment
// call is made.
func TestBookingRequiresFullyLockedOption(t *testing.T) {
	flightBooker := &stubBooker{name: "skyline", category: models.ComponentFlight}
	hotelBooker := &stubBooker{name: "stayhub", category: models.ComponentHotel}
	svc := orchestratorFixture(flightBooker, hotelBooker)

	components := lockedPair()
	components[1].LockStatus = models.LockUnlocked

	run := newBookingRun()
	res := &models.BookingResult{State: run.state}
	res, err := svc.attempt(context.Background(), &BookTripRequest{TripOptionID: "opt1"}, components, run, res)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not fully locked")
	assert.Nil(t, run.intent)
	assert.Empty(t, flightBooker.booked)
}

// An activity failure never rolls back the mandatory bookings: the run
// stays successful with a warning and the capture is kept.
func TestBookVendorsActivityFailureIsWarningOnly(t *testing.T) {
	flightBooker := &stubBooker{name: "skyline", category: models.ComponentFlight}
	hotelBooker := &stubBooker{name: "stayhub", category: models.ComponentHotel}
	tourBooker := &stubBooker{name: "cityfun", category: models.ComponentActivity, bookErr: errors.New("tour sold out")}
	svc := orchestratorFixture(flightBooker, hotelBooker, tourBooker)
	gateway := svc.gateway.(*payment.SimGateway)

	intent, err := gateway.CreateIntent(context.Background(), &payment.CreateIntentRequest{
		TripOptionID: "opt1",
		AmountCents:  170000,
		Currency:     "USD",
	})
	require.NoError(t, err)

	components := lockedPair()
	flight, hotel := &components[0], &components[1]
	activities := []models.TripComponent{
		{ID: "a1", Type: models.ComponentActivity, LockStatus: models.LockLocked, Price: decimal.NewFromInt(200), Currency: "USD"},
	}

	res := &models.BookingResult{}
	booked, confirmations, berr := svc.bookVendors(context.Background(), &BookTripRequest{TripOptionID: "opt1"}, intent, flight, hotel, activities, res)
	require.NoError(t, berr)

	assert.Len(t, booked, 2)
	assert.Equal(t, "CONF-f1", confirmations["f1"])
	assert.Equal(t, "CONF-h1", confirmations["h1"])
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Activity booking failed")
	assert.Nil(t, res.RollbackInfo)
	assert.Zero(t, gateway.Refunded(intent.ID))
	assert.Empty(t, flightBooker.cancelled)
	assert.Empty(t, hotelBooker.cancelled)
}
