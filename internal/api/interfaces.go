// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/energy-monitor/backend/internal/dashboard"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// DashboardHandler serves the catalogue and the computed views
type DashboardHandler interface {
	HandleIndicators(c echo.Context) error
	HandleSensors(c echo.Context) error
	HandleDashboard(c echo.Context) error
	HandleReload(c echo.Context) error
}

// HistoryHandler serves raw sensor history
type HistoryHandler interface {
	HandleHistory(c echo.Context) error
	HandleHistoryMsgpack(c echo.Context) error
}

// Broadcaster pushes typed messages to connected dashboards
type Broadcaster interface {
	Broadcast(msgType string, payload any)
}

// DatasetLoader builds a fresh snapshot from disk
type DatasetLoader func(ctx context.Context) (*dashboard.Dataset, error)
