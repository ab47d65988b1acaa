// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/energy-monitor/backend/internal/dashboard"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	holder  *dashboard.Holder
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, holder *dashboard.Holder) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		holder:  holder,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	ds := h.holder.Get()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  h.version,
		"sensors":  ds.Len(),
		"loadedAt": ds.LoadedAt(),
	})
}
