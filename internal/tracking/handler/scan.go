package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/service"
	"github.com/pharmtrace/pharmtrace-backend/pkg/httputil"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

// StartSessionCommand opens a validation session, optionally pinned to one
// EPCIS file.
type StartSessionCommand struct {
	PurchaseOrderID string  `json:"purchase_order_id" validate:"required,uuid"`
	FileID          *string `json:"file_id,omitempty" validate:"omitempty,uuid"`
}

// RecordScanCommand submits one raw barcode scan.
type RecordScanCommand struct {
	RawData string `json:"raw_data" validate:"required,max=500"`
}

// ScanHandler handles validation session and scan endpoints
type ScanHandler struct {
	reconciliation *service.ReconciliationService
	logger         *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(reconciliation *service.ReconciliationService, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		reconciliation: reconciliation,
		logger:         log,
	}
}

// StartSession opens a validation session for a purchase order
func (h *ScanHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var cmd StartSessionCommand
	if err := httputil.DecodeJSON(r, &cmd); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(cmd); err != nil {
		httputil.Error(w, err)
		return
	}

	session, err := h.reconciliation.StartSession(r.Context(), cmd.PurchaseOrderID, cmd.FileID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, session)
}

// GetSession returns one validation session
func (h *ScanHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.reconciliation.GetSession(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, session)
}

// RecordScan classifies and stores one scan against a session
func (h *ScanHandler) RecordScan(w http.ResponseWriter, r *http.Request) {
	var cmd RecordScanCommand
	if err := httputil.DecodeJSON(r, &cmd); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(cmd); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.reconciliation.RecordScan(r.Context(), service.ScanCommand{
		SessionID: chi.URLParam(r, "id"),
		RawData:   cmd.RawData,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// CompleteSession closes a validation session
func (h *ScanHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.reconciliation.CompleteSession(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, session)
}

// ListScans returns a session's scans
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	scans, err := h.reconciliation.ListScans(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, scans)
}

// ListSessionsByPO returns the sessions of a purchase order
func (h *ScanHandler) ListSessionsByPO(w http.ResponseWriter, r *http.Request) {
	poID := chi.URLParam(r, "id")

	sessions, err := h.reconciliation.ListSessionsByPO(r.Context(), poID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sessions)
}
