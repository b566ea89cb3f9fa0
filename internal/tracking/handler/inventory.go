package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/service"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
	"github.com/pharmtrace/pharmtrace-backend/pkg/httputil"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

// InventoryHandler handles inventory lifecycle endpoints
type InventoryHandler struct {
	ledger *service.LedgerService
	logger *logger.Logger
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(ledger *service.LedgerService, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		ledger: ledger,
		logger: log,
	}
}

// Receive creates a new inventory unit
func (h *InventoryHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var cmd service.ReceiveCommand
	if err := httputil.DecodeJSON(r, &cmd); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(cmd); err != nil {
		httputil.Error(w, err)
		return
	}

	inv, err := h.ledger.Receive(r.Context(), cmd)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, inv)
}

// Get returns one inventory unit
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inv, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, inv)
}

// Lookup returns the inventory unit for a serialized GTIN
func (h *InventoryHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	gtin := r.URL.Query().Get("gtin")
	serial := r.URL.Query().Get("serial")
	if gtin == "" || serial == "" {
		httputil.Error(w, errors.BadRequest("gtin and serial query parameters are required"))
		return
	}

	inv, err := h.ledger.GetBySGTIN(r.Context(), gtin, serial)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, inv)
}

// List lists inventory units by status
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		httputil.Error(w, errors.BadRequest("status query parameter is required"))
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	units, total, err := h.ledger.ListByStatus(r.Context(), status, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	httputil.JSONWithMeta(w, http.StatusOK, units, &httputil.Meta{
		Page:    page,
		PerPage: perPage,
		Total:   total,
	})
}

// ChangeStatus forces a unit to damaged or expired
func (h *InventoryHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var cmd service.StatusChangeCommand
	if err := httputil.DecodeJSON(r, &cmd); err != nil {
		httputil.Error(w, err)
		return
	}
	cmd.InventoryID = chi.URLParam(r, "id")
	if err := httputil.Validate(cmd); err != nil {
		httputil.Error(w, err)
		return
	}

	inv, err := h.ledger.ChangeStatus(r.Context(), cmd)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, inv)
}

// Transfer moves a unit to a new location
func (h *InventoryHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var cmd service.TransferCommand
	if err := httputil.DecodeJSON(r, &cmd); err != nil {
		httputil.Error(w, err)
		return
	}
	cmd.InventoryID = chi.URLParam(r, "id")
	if err := httputil.Validate(cmd); err != nil {
		httputil.Error(w, err)
		return
	}

	inv, err := h.ledger.Transfer(r.Context(), cmd)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, inv)
}

// History returns the transaction ledger of a unit
func (h *InventoryHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	history, err := h.ledger.History(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, history)
}
