package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/service"
	"github.com/pharmtrace/pharmtrace-backend/pkg/httputil"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

// ConfirmAssociationCommand manually links a file to a purchase order.
type ConfirmAssociationCommand struct {
	PurchaseOrderID string `json:"purchase_order_id" validate:"required,uuid"`
}

// AssociationHandler handles EPCIS file association endpoints
type AssociationHandler struct {
	resolver *service.ResolverService
	logger   *logger.Logger
}

// NewAssociationHandler creates a new association handler
func NewAssociationHandler(resolver *service.ResolverService, log *logger.Logger) *AssociationHandler {
	return &AssociationHandler{
		resolver: resolver,
		logger:   log,
	}
}

// Search returns EPCIS files matching any of the given criteria
func (h *AssociationHandler) Search(w http.ResponseWriter, r *http.Request) {
	var criteria service.SearchCriteria
	if err := httputil.DecodeJSON(r, &criteria); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(criteria); err != nil {
		httputil.Error(w, err)
		return
	}

	matches, err := h.resolver.Search(r.Context(), criteria)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, matches)
}

// Confirm manually associates a file with a purchase order
func (h *AssociationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")

	var cmd ConfirmAssociationCommand
	if err := httputil.DecodeJSON(r, &cmd); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(cmd); err != nil {
		httputil.Error(w, err)
		return
	}

	assoc, err := h.resolver.Confirm(r.Context(), fileID, cmd.PurchaseOrderID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, assoc)
}

// Resolve re-runs automatic association for a file
func (h *AssociationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")

	associations, err := h.resolver.AutoAssociate(r.Context(), fileID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, associations)
}

// ListByFile returns the associations of a file
func (h *AssociationHandler) ListByFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")

	associations, err := h.resolver.ListByFile(r.Context(), fileID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, associations)
}

// ListByPO returns the associations of a purchase order
func (h *AssociationHandler) ListByPO(w http.ResponseWriter, r *http.Request) {
	poID := chi.URLParam(r, "id")

	associations, err := h.resolver.ListByPO(r.Context(), poID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, associations)
}
