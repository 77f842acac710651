package status

import (
	"errors"
	"fmt"
)

var (
	ErrComponentNotFound = errors.New("component: component not found")
	ErrBookingNotFound   = errors.New("booking: booking not found")
	ErrBookingInFlight   = errors.New("booking: another attempt is already processing this trip option")
	ErrFailedPayment     = errors.New("payment: payment failed")
)

// LockValidationError is a rejected lock transition. State is unchanged.
type LockValidationError struct {
	ComponentID string
	Current     string
	Target      string
	Reason      string
}

func (e *LockValidationError) Error() string {
	return fmt.Sprintf("lock: %s (%s -> %s): %s", e.ComponentID, e.Current, e.Target, e.Reason)
}

// ValidationError is a pre-booking availability or verification failure.
// It carries no side effects.
type ValidationError struct {
	ComponentID string
	Reason      string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: component %s: %s", e.ComponentID, e.Reason)
}

// PaymentError is a capture failure before any vendor call. No rollback
// is needed.
type PaymentError struct {
	Err error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment: %v", e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// MandatoryVendorError is a flight or hotel booking failure. It triggers
// the compensation chain.
type MandatoryVendorError struct {
	Component string
	Err       error
}

func (e *MandatoryVendorError) Error() string {
	return fmt.Sprintf("%s booking failed: %v", e.Component, e.Err)
}

func (e *MandatoryVendorError) Unwrap() error { return e.Err }

// OptionalVendorError is an activity booking failure, recorded as a
// warning without rolling anything back.
type OptionalVendorError struct {
	Component string
	Err       error
}

func (e *OptionalVendorError) Error() string {
	return fmt.Sprintf("%s booking failed: %v", e.Component, e.Err)
}

func (e *OptionalVendorError) Unwrap() error { return e.Err }
