package models

import "time"

// BookingState is the orchestrator progress for one booking attempt.
type BookingState string

const (
	BookingPending    BookingState = "PENDING"
	BookingValidating BookingState = "VALIDATING"
	BookingProcessing BookingState = "PROCESSING"
	BookingConfirmed  BookingState = "CONFIRMED"
	BookingFailed     BookingState = "FAILED"
)

// Terminal reports whether the state ends a booking attempt.
func (s BookingState) Terminal() bool {
	return s == BookingConfirmed || s == BookingFailed
}

// Booking is the immutable record of one successful vendor reservation.
// A swap supersedes it with a new row; cancellation only flips Status.
type Booking struct {
	ID               string        `db:"id" json:"id"`
	TripOptionID     string        `db:"trip_option_id" json:"trip_option_id"`
	ComponentID      string        `db:"component_id" json:"component_id"`
	ComponentType    ComponentType `db:"component_type" json:"component_type"`
	ConfirmationCode string        `db:"confirmation_code" json:"confirmation_code"`
	BookingReference string        `db:"booking_reference" json:"booking_reference"`
	AmountCents      int64         `db:"amount_cents" json:"amount_cents"`
	Currency         string        `db:"currency" json:"currency"`
	Status           string        `db:"status" json:"status"`
	BookedAt         time.Time     `db:"booked_at" json:"booked_at"`
}

const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)

// Payment is the single captured payment for one committed trip option.
type Payment struct {
	ID           string `db:"id" json:"id"`
	TripOptionID string `db:"trip_option_id" json:"trip_option_id"`
	IntentID     string `db:"intent_id" json:"intent_id"`
	AmountCents  int64  `db:"amount_cents" json:"amount_cents"`
	Currency     string `db:"currency" json:"currency"`
	Status       string `db:"status" json:"status"`
}

const (
	PaymentStatusCaptured          = "captured"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
)

// PaymentInfo is the caller-supplied payment method for a booking request.
type PaymentInfo struct {
	Method   string `json:"method"`
	Token    string `json:"token"`
	Currency string `json:"currency"`
}

// UserContact is forwarded to vendors for the reservation records.
type UserContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// RollbackInfo reports the compensation performed after a partial failure.
type RollbackInfo struct {
	CancelledBookings []string `json:"cancelled_bookings"`
	RefundAmount      int64    `json:"refund_amount"`
	Reason            string   `json:"reason"`
}

// BookingResult is the orchestrator response for one attempt.
type BookingResult struct {
	Success       bool              `json:"success"`
	State         BookingState      `json:"state"`
	Confirmations map[string]string `json:"confirmations,omitempty"`
	Payment       *Payment          `json:"payment,omitempty"`
	RollbackInfo  *RollbackInfo     `json:"rollback_info,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
	Error         string            `json:"error,omitempty"`
}
