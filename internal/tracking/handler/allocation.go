package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/service"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
	"github.com/pharmtrace/pharmtrace-backend/pkg/httputil"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

// AllocateCommand requests allocation for one sales order item.
type AllocateCommand struct {
	SOItemID string `json:"so_item_id" validate:"required,uuid"`
}

// AllocationHandler handles allocation and shipment endpoints
type AllocationHandler struct {
	allocation *service.AllocationService
	logger     *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(allocation *service.AllocationService, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		allocation: allocation,
		logger:     log,
	}
}

// Allocate reserves available inventory for a sales order item
func (h *AllocationHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var cmd AllocateCommand
	if err := httputil.DecodeJSON(r, &cmd); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(cmd); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.allocation.Allocate(r.Context(), cmd.SOItemID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Ship ships every allocated unit of a sales order
func (h *AllocationHandler) Ship(w http.ResponseWriter, r *http.Request) {
	soID := chi.URLParam(r, "id")

	result, err := h.allocation.Ship(r.Context(), soID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Availability reports how many units are available for a GTIN
func (h *AllocationHandler) Availability(w http.ResponseWriter, r *http.Request) {
	gtin := r.URL.Query().Get("gtin")
	if gtin == "" {
		httputil.Error(w, errors.BadRequest("gtin query parameter is required"))
		return
	}

	normalized, err := service.NormalizeGTIN(gtin)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	count, err := h.allocation.Availability(r.Context(), normalized)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"gtin":      normalized,
		"available": count,
	})
}
