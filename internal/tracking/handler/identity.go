package handler

import (
	"net/http"

	"github.com/pharmtrace/pharmtrace-backend/internal/identity/codec"
	"github.com/pharmtrace/pharmtrace-backend/internal/identity/gs1"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/service"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
	"github.com/pharmtrace/pharmtrace-backend/pkg/httputil"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

// ParseBarcodeCommand submits raw DataMatrix content for parsing.
type ParseBarcodeCommand struct {
	RawData string `json:"raw_data" validate:"required,max=500"`
}

// IdentityHandler handles code conversion and product lookup endpoints
type IdentityHandler struct {
	matcher *service.MatcherService
	logger  *logger.Logger
}

// NewIdentityHandler creates a new identity handler
func NewIdentityHandler(matcher *service.MatcherService, log *logger.Logger) *IdentityHandler {
	return &IdentityHandler{
		matcher: matcher,
		logger:  log,
	}
}

// ConvertNDC converts an NDC to its GTIN-14 form
func (h *IdentityHandler) ConvertNDC(w http.ResponseWriter, r *http.Request) {
	ndc := r.URL.Query().Get("ndc")
	if ndc == "" {
		httputil.Error(w, errors.BadRequest("ndc query parameter is required"))
		return
	}

	gtin, err := codec.NDCToGTIN(ndc)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{
		"ndc":  ndc,
		"gtin": gtin,
	})
}

// ConvertGTIN converts a GTIN to its dashed NDC form
func (h *IdentityHandler) ConvertGTIN(w http.ResponseWriter, r *http.Request) {
	gtin := r.URL.Query().Get("gtin")
	if gtin == "" {
		httputil.Error(w, errors.BadRequest("gtin query parameter is required"))
		return
	}

	ndc, err := codec.GTINToNDC(gtin)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{
		"gtin": gtin,
		"ndc":  ndc,
	})
}

// ParseBarcode parses raw GS1 DataMatrix content
func (h *IdentityHandler) ParseBarcode(w http.ResponseWriter, r *http.Request) {
	var cmd ParseBarcodeCommand
	if err := httputil.DecodeJSON(r, &cmd); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(cmd); err != nil {
		httputil.Error(w, err)
		return
	}

	parsed, err := gs1.Parse(cmd.RawData)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, parsed)
}

// FindBySGTIN returns the product item and inventory for a serialized GTIN
func (h *IdentityHandler) FindBySGTIN(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("gtin")
	serial := r.URL.Query().Get("serial")
	if code == "" || serial == "" {
		httputil.Error(w, errors.BadRequest("gtin and serial query parameters are required"))
		return
	}

	match, err := h.matcher.FindBySGTIN(r.Context(), code, serial)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, match)
}

// FindByLot returns the product items of a lot
func (h *IdentityHandler) FindByLot(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("gtin")
	lot := r.URL.Query().Get("lot")
	if code == "" || lot == "" {
		httputil.Error(w, errors.BadRequest("gtin and lot query parameters are required"))
		return
	}

	items, err := h.matcher.FindByLot(r.Context(), code, lot)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, items)
}

// ListByFile returns the product items of an EPCIS file
func (h *IdentityHandler) ListByFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		httputil.Error(w, errors.BadRequest("file_id query parameter is required"))
		return
	}

	items, err := h.matcher.ListByFile(r.Context(), fileID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, items)
}
