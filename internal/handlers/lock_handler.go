package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"trip-booking/internal/services"
	"trip-booking/internal/status"
	"trip-booking/models"
)

type LockHandler struct {
	app   *pocketbase.PocketBase
	locks *services.LockService
}

func NewLockHandler(app *pocketbase.PocketBase, locks *services.LockService) *LockHandler {
	return &LockHandler{
		app:   app,
		locks: locks,
	}
}

// Lock - transition one component to a target lock status
func (h *LockHandler) Lock(e *core.RequestEvent) error {
	var req struct {
		ComponentType string `json:"component_type"`
		ComponentID   string `json:"component_id"`
		Status        string `json:"status"`
		Override      bool   `json:"override"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	componentType, err := models.ParseComponentType(req.ComponentType)
	if err != nil {
		return apis.NewBadRequestError(err.Error(), err)
	}
	target, err := models.ParseLockStatus(req.Status)
	if err != nil {
		return apis.NewBadRequestError(err.Error(), err)
	}

	ctx := e.Request.Context()
	if err := h.locks.Lock(ctx, componentType, req.ComponentID, target, req.Override); err != nil {
		return lockErrorResponse(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"component_id": req.ComponentID,
		"status":       target,
	})
}

// Unlock - default unlock back to UNLOCKED
func (h *LockHandler) Unlock(e *core.RequestEvent) error {
	var req struct {
		ComponentType string `json:"component_type"`
		ComponentID   string `json:"component_id"`
		Override      bool   `json:"override"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	componentType, err := models.ParseComponentType(req.ComponentType)
	if err != nil {
		return apis.NewBadRequestError(err.Error(), err)
	}

	ctx := e.Request.Context()
	if err := h.locks.Unlock(ctx, componentType, req.ComponentID, req.Override); err != nil {
		return lockErrorResponse(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"component_id": req.ComponentID,
		"status":       models.LockUnlocked,
	})
}

// GetLockState - aggregate lock state of a trip option
func (h *LockHandler) GetLockState(e *core.RequestEvent) error {
	tripOptionID := e.Request.PathValue("tripOptionId")

	state, err := h.locks.AggregateState(e.Request.Context(), tripOptionID)
	if err != nil {
		if errors.Is(err, status.ErrComponentNotFound) {
			return apis.NewNotFoundError("Trip option not found", err)
		}
		return apis.NewBadRequestError("Failed to get lock state", err)
	}

	return e.JSON(http.StatusOK, state)
}

func lockErrorResponse(e *core.RequestEvent, err error) error {
	if errors.Is(err, status.ErrComponentNotFound) {
		return apis.NewNotFoundError("Component not found", err)
	}

	var lockErr *status.LockValidationError
	if errors.As(err, &lockErr) {
		return e.JSON(http.StatusConflict, map[string]any{
			"success": false,
			"reason":  lockErr.Reason,
		})
	}

	return apis.NewBadRequestError("Lock transition failed", err)
}
