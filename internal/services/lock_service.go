package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"trip-booking/internal/status"
	"trip-booking/models"
)

// LockService is the durable lock registry for trip components. Lock
// status lives on the component row itself; every transition is a
// single-record read-modify-write validated before the write. It gives
// no cross-component atomicity: callers locking N components together
// own the partial-success problem.
type LockService struct {
	app core.App
}

func NewLockService(app core.App) *LockService {
	return &LockService{app: app}
}

// Lock transitions one component to the target status.
func (s *LockService) Lock(ctx context.Context, componentType models.ComponentType, componentID string, target models.LockStatus, override bool) error {
	record, err := s.componentRecord(componentType, componentID)
	if err != nil {
		return err
	}

	current := models.LockStatus(record.GetString("lock_status"))
	if err := validateTransition(componentID, current, target, override); err != nil {
		return err
	}

	record.Set("lock_status", string(target))
	if err := s.app.Save(record); err != nil {
		slog.Error("failed to save lock transition", "error", err, "component_id", componentID, "target", target)
		return err
	}

	return nil
}

// Unlock is a default unlock: a transition back to UNLOCKED. It never
// leaves CONFIRMED unless the override flag is passed (cancellation flow).
func (s *LockService) Unlock(ctx context.Context, componentType models.ComponentType, componentID string, override bool) error {
	return s.Lock(ctx, componentType, componentID, models.LockUnlocked, override)
}

// AggregateState rolls up the lock statuses of a trip option's
// components. The roll-up is derived, not independently authoritative.
func (s *LockService) AggregateState(ctx context.Context, tripOptionID string) (*models.AggregateLockState, error) {
	components, err := s.ComponentsForOption(ctx, tripOptionID)
	if err != nil {
		return nil, err
	}

	details := make([]models.LockDetail, len(components))
	for i, c := range components {
		details[i] = models.LockDetail{
			ComponentID: c.ID,
			Type:        c.Type,
			Status:      c.LockStatus,
		}
	}

	state := models.RollUp(tripOptionID, details)
	return &state, nil
}

// ComponentsForOption loads every component owned by a trip option.
func (s *LockService) ComponentsForOption(_ context.Context, tripOptionID string) ([]models.TripComponent, error) {
	records, err := s.app.FindAllRecords("trip_components", dbx.HashExp{"trip_option_id": tripOptionID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("trip option %s: %w", tripOptionID, status.ErrComponentNotFound)
	}

	components := make([]models.TripComponent, len(records))
	for i, record := range records {
		components[i] = componentFromRecord(record)
	}
	return components, nil
}

// Component loads one component by type and id.
func (s *LockService) Component(_ context.Context, componentType models.ComponentType, componentID string) (*models.TripComponent, error) {
	record, err := s.componentRecord(componentType, componentID)
	if err != nil {
		return nil, err
	}
	component := componentFromRecord(record)
	return &component, nil
}

func (s *LockService) componentRecord(componentType models.ComponentType, componentID string) (*core.Record, error) {
	record, err := s.app.FindRecordById("trip_components", componentID)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", componentType, componentID, status.ErrComponentNotFound)
	}
	if models.ComponentType(record.GetString("type")) != componentType {
		return nil, fmt.Errorf("%s %s: %w", componentType, componentID, status.ErrComponentNotFound)
	}
	return record, nil
}

func validateTransition(componentID string, current, target models.LockStatus, override bool) error {
	if current == models.LockConfirmed && target != models.LockConfirmed && !override {
		return &status.LockValidationError{
			ComponentID: componentID,
			Current:     string(current),
			Target:      string(target),
			Reason:      "confirmed components can only change with an explicit override",
		}
	}

	// Re-confirming is a no-op: the commit path confirms every booked
	// component and must tolerate ones that already are.
	if target == models.LockConfirmed && current != models.LockLocked && current != models.LockConfirmed && !override {
		return &status.LockValidationError{
			ComponentID: componentID,
			Current:     string(current),
			Target:      string(target),
			Reason:      "confirmation requires the component to be locked first",
		}
	}

	return nil
}

func componentFromRecord(record *core.Record) models.TripComponent {
	payload := map[string]any{}
	record.UnmarshalJSONField("payload", &payload)

	return models.TripComponent{
		ID:           record.Id,
		TripOptionID: record.GetString("trip_option_id"),
		Type:         models.ComponentType(record.GetString("type")),
		Vendor:       record.GetString("vendor"),
		VendorRef:    record.GetString("vendor_ref"),
		Name:         record.GetString("name"),
		Location:     record.GetString("location"),
		Price:        decimal.NewFromFloat(record.GetFloat("price")),
		Currency:     record.GetString("currency"),
		LockStatus:   models.LockStatus(record.GetString("lock_status")),
		Payload:      payload,
	}
}
