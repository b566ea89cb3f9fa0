package handler

import (
	"net/http"

	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/service"
	"github.com/pharmtrace/pharmtrace-backend/pkg/httputil"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

// DashboardHandler handles dashboard statistics endpoints
type DashboardHandler struct {
	stats  *service.StatsService
	logger *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(stats *service.StatsService, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		stats:  stats,
		logger: log,
	}
}

// GetStats returns the warehouse overview counts
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Dashboard(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}
