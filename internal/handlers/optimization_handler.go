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

type OptimizationHandler struct {
	app       *pocketbase.PocketBase
	optimizer *services.OptimizationService
}

func NewOptimizationHandler(app *pocketbase.PocketBase, optimizer *services.OptimizationService) *OptimizationHandler {
	return &OptimizationHandler{
		app:       app,
		optimizer: optimizer,
	}
}

// ReOptimize - run one optimization pass for a trip request
func (h *OptimizationHandler) ReOptimize(e *core.RequestEvent) error {
	var req struct {
		TripRequestID string   `json:"trip_request_id"`
		Trigger       string   `json:"trigger"`
		RespectLocks  *bool    `json:"respect_locks"`
		Categories    []string `json:"categories"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.TripRequestID == "" {
		return apis.NewBadRequestError("trip_request_id is required", nil)
	}

	trigger := models.OptimizationTrigger(req.Trigger)
	if trigger == "" {
		trigger = models.TriggerManual
	}

	// respect_locks defaults to true; the caller opts out explicitly.
	respectLocks := true
	if req.RespectLocks != nil {
		respectLocks = *req.RespectLocks
	}

	categories := make([]models.ComponentType, 0, len(req.Categories))
	for _, raw := range req.Categories {
		category, err := models.ParseComponentType(raw)
		if err != nil {
			return apis.NewBadRequestError(err.Error(), err)
		}
		categories = append(categories, category)
	}

	result, err := h.optimizer.ReOptimizeTrip(e.Request.Context(), &models.ReOptimizeRequest{
		TripRequestID: req.TripRequestID,
		Trigger:       trigger,
		RespectLocks:  respectLocks,
		Categories:    categories,
	})
	if err != nil {
		if errors.Is(err, status.ErrComponentNotFound) {
			return apis.NewNotFoundError("Trip request not found", err)
		}
		return apis.NewBadRequestError("Optimization failed", err)
	}

	return e.JSON(http.StatusOK, result)
}

// MonitorPrices - poll current prices for a trip's unlocked components
func (h *OptimizationHandler) MonitorPrices(e *core.RequestEvent) error {
	tripRequestID := e.Request.PathValue("tripRequestId")

	result, err := h.optimizer.MonitorTripPrices(e.Request.Context(), tripRequestID)
	if err != nil {
		return apis.NewBadRequestError("Price monitoring failed", err)
	}

	return e.JSON(http.StatusOK, result)
}

// GetOpportunities - unexpired advisory opportunities for a trip
func (h *OptimizationHandler) GetOpportunities(e *core.RequestEvent) error {
	tripRequestID := e.Request.PathValue("tripRequestId")

	opportunities, err := h.optimizer.Opportunities(e.Request.Context(), tripRequestID)
	if err != nil {
		return apis.NewBadRequestError("Failed to load opportunities", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"trip_request_id": tripRequestID,
		"opportunities":   opportunities,
		"count":           len(opportunities),
	})
}
