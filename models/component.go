package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ComponentType identifies the kind of trip component.
type ComponentType string

const (
	ComponentFlight   ComponentType = "flight"
	ComponentHotel    ComponentType = "hotel"
	ComponentActivity ComponentType = "activity"
)

func ParseComponentType(s string) (ComponentType, error) {
	switch ComponentType(s) {
	case ComponentFlight, ComponentHotel, ComponentActivity:
		return ComponentType(s), nil
	}
	return "", fmt.Errorf("unknown component type: %q", s)
}

// LockStatus is the tri-state protection level of a trip component.
// CONFIRMED is terminal: it is only reachable from LOCKED and only an
// explicit override unlock (cancellation flow) can leave it.
type LockStatus string

const (
	LockUnlocked  LockStatus = "UNLOCKED"
	LockLocked    LockStatus = "LOCKED"
	LockConfirmed LockStatus = "CONFIRMED"
)

func ParseLockStatus(s string) (LockStatus, error) {
	switch LockStatus(s) {
	case LockUnlocked, LockLocked, LockConfirmed:
		return LockStatus(s), nil
	}
	return "", fmt.Errorf("unknown lock status: %q", s)
}

// TripComponent is one bookable piece of a trip option.
type TripComponent struct {
	ID           string          `db:"id" json:"id"`
	TripOptionID string          `db:"trip_option_id" json:"trip_option_id"`
	Type         ComponentType   `db:"type" json:"type"`
	Vendor       string          `db:"vendor" json:"vendor"`
	VendorRef    string          `db:"vendor_ref" json:"vendor_ref"`
	Name         string          `db:"name" json:"name"`
	Location     string          `db:"location" json:"location"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Currency     string          `db:"currency" json:"currency"`
	LockStatus   LockStatus      `db:"lock_status" json:"lock_status"`
	Payload      map[string]any  `db:"payload" json:"payload,omitempty"`
}

// AggregateLockState is the roll-up of the lock statuses of a trip
// option's components. It is derived, never stored authoritatively.
type AggregateLockState struct {
	TripOptionID    string       `json:"trip_option_id"`
	FullyLocked     bool         `json:"fully_locked"`
	PartiallyLocked bool         `json:"partially_locked"`
	Components      []LockDetail `json:"components"`
}

type LockDetail struct {
	ComponentID string        `json:"component_id"`
	Type        ComponentType `json:"type"`
	Status      LockStatus    `json:"status"`
}

// RollUp computes the aggregate state: fully locked iff every component
// is LOCKED or CONFIRMED, partially locked iff at least one is.
func RollUp(tripOptionID string, details []LockDetail) AggregateLockState {
	state := AggregateLockState{
		TripOptionID: tripOptionID,
		FullyLocked:  len(details) > 0,
		Components:   details,
	}
	for _, d := range details {
		if d.Status == LockLocked || d.Status == LockConfirmed {
			state.PartiallyLocked = true
		} else {
			state.FullyLocked = false
		}
	}
	return state
}
