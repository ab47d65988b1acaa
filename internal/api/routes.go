// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/energy-monitor/backend/internal/dashboard"
	"github.com/energy-monitor/backend/internal/registry"
	"github.com/energy-monitor/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store    storage.Store
	Registry *registry.Registry
	Holder   *dashboard.Holder
	Loader   DatasetLoader
	Hub      *Hub
	Interval time.Duration
	Version  string
	Logger   *slog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Dashboard *Handler
	History   HistoryHandler
	Hub       *Hub
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	var notifier Broadcaster
	if deps.Hub != nil {
		notifier = deps.Hub
	}
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Holder),
		Dashboard: NewHandler(deps.Registry, deps.Holder, deps.Loader, notifier, deps.Logger),
		History:   NewHistoryHandler(deps.Store, deps.Registry, deps.Interval),
		Hub:       deps.Hub,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	api := e.Group("/api")

	// Health check
	api.GET("/health", handlers.Health.HandleHealth)

	// Catalogue and computed views
	api.GET("/indicators", handlers.Dashboard.HandleIndicators)
	api.GET("/sensors", handlers.Dashboard.HandleSensors)
	api.GET("/dashboard", handlers.Dashboard.HandleDashboard)
	api.POST("/reload", handlers.Dashboard.HandleReload)

	// Raw history
	api.GET("/history/:sensorId", handlers.History.HandleHistory)
	api.GET("/history/:sensorId/msgpack", handlers.History.HandleHistoryMsgpack)

	RegisterWebSocketRoutes(e, handlers)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	if handlers.Hub == nil {
		return
	}
	e.GET("/api/ws", handlers.Hub.HandleWebSocket)
}

// MiddlewareOptions selects the optional middleware
type MiddlewareOptions struct {
	RequestLogging bool
	Compression    bool
	ShowDetails    bool
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, logger *slog.Logger, opts MiddlewareOptions) {
	e.HTTPErrorHandler = NewErrorHandler(logger, opts.ShowDetails)

	if opts.RequestLogging {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/api/health"
			},
		}))
	}
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if opts.Compression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: 5,
			Skipper: func(c echo.Context) bool {
				// Upgraded connections and binary payloads are left alone
				return c.Path() == "/api/ws" || strings.HasSuffix(c.Path(), "/msgpack")
			},
		}))
	}
}
