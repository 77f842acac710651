package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMandatoryVendorErrorMessage(t *testing.T) {
	cause := errors.New("no rooms left")
	err := &MandatoryVendorError{Component: "Hotel", Err: cause}

	assert.Contains(t, err.Error(), "Hotel booking failed")
	assert.Contains(t, err.Error(), "no rooms left")
	assert.ErrorIs(t, err, cause)
}

func TestOptionalVendorErrorMessage(t *testing.T) {
	cause := errors.New("tour sold out")
	err := &OptionalVendorError{Component: "Activity", Err: cause}

	assert.Contains(t, err.Error(), "Activity")
	assert.ErrorIs(t, err, cause)
}

func TestPaymentErrorUnwrap(t *testing.T) {
	cause := errors.New("card declined")
	err := &PaymentError{Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "card declined")
}

func TestLockValidationError(t *testing.T) {
	err := &LockValidationError{
		ComponentID: "h1",
		Current:     "CONFIRMED",
		Target:      "UNLOCKED",
		Reason:      "confirmed components can only change with an explicit override",
	}

	assert.Contains(t, err.Error(), "h1")
	assert.Contains(t, err.Error(), "override")
}
