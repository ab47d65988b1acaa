package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/energy-monitor/backend/internal/dashboard"
	"github.com/energy-monitor/backend/internal/registry"
)

// MsgTypeDatasetReloaded is broadcast after the dataset has been rebuilt.
const MsgTypeDatasetReloaded = "dataset:reloaded"

// ReloadSummary describes a finished reload.
type ReloadSummary struct {
	Sensors  int       `json:"sensors"`
	Records  int       `json:"records"`
	LoadedAt time.Time `json:"loadedAt"`
	Duration string    `json:"duration"`
}

// Handler serves the dashboard data over the current dataset snapshot.
type Handler struct {
	registry *registry.Registry
	holder   *dashboard.Holder
	loader   DatasetLoader
	notifier Broadcaster
	logger   *slog.Logger

	// reloadMu serialises reloads; readers only touch holder.
	reloadMu sync.Mutex
}

// NewHandler creates a new API handler.
func NewHandler(reg *registry.Registry, holder *dashboard.Holder, loader DatasetLoader, notifier Broadcaster, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: reg,
		holder:   holder,
		loader:   loader,
		notifier: notifier,
		logger:   logger,
	}
}

// Reload rebuilds the dataset, swaps it in and notifies connected clients.
func (h *Handler) Reload(ctx context.Context) (ReloadSummary, error) {
	if h.loader == nil {
		return ReloadSummary{}, fmt.Errorf("reload not configured")
	}

	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	started := time.Now()
	ds, err := h.loader(ctx)
	if err != nil {
		return ReloadSummary{}, fmt.Errorf("reloading dataset: %w", err)
	}
	h.holder.Swap(ds)

	summary := ReloadSummary{
		Sensors:  ds.Len(),
		Records:  ds.Records(),
		LoadedAt: ds.LoadedAt(),
		Duration: time.Since(started).Round(time.Millisecond).String(),
	}
	h.logger.Info("dataset reloaded", "sensors", summary.Sensors, "records", summary.Records, "took", summary.Duration)

	if h.notifier != nil {
		h.notifier.Broadcast(MsgTypeDatasetReloaded, summary)
	}
	return summary, nil
}

// HandleIndicators returns the indicator catalogue.
func (h *Handler) HandleIndicators(c echo.Context) error {
	return c.JSON(http.StatusOK, dashboard.Indicators())
}

type sensorResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ShortName string  `json:"shortName"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	HasData   bool    `json:"hasData"`
}

// HandleSensors returns the registry, flagging sensors present in the
// current dataset.
func (h *Handler) HandleSensors(c echo.Context) error {
	ds := h.holder.Get()
	sensors := h.registry.Sensors()

	out := make([]sensorResponse, len(sensors))
	for i, s := range sensors {
		out[i] = sensorResponse{
			ID:        s.ID,
			Name:      s.Name,
			ShortName: s.ShortName(),
			Lat:       s.Latitude,
			Lon:       s.Longitude,
			HasData:   ds.Has(s.ID),
		}
	}
	return c.JSON(http.StatusOK, out)
}

// HandleDashboard computes the view for ?indicator=<id>&options=a,b.
// The indicator defaults to active power.
func (h *Handler) HandleDashboard(c echo.Context) error {
	ind := dashboard.ActivePower
	if id := c.QueryParam("indicator"); id != "" {
		var ok bool
		ind, ok = dashboard.LookupIndicator(id)
		if !ok {
			return NewValidationError("indicator", fmt.Errorf("unknown indicator: %s", id))
		}
	}

	options, err := dashboard.ParseOptions(c.QueryParam("options"))
	if err != nil {
		return NewValidationError("options", err)
	}

	return c.JSON(http.StatusOK, h.holder.Get().View(ind, options))
}

// HandleReload rebuilds the dataset on demand.
func (h *Handler) HandleReload(c echo.Context) error {
	summary, err := h.Reload(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to reload dataset", err)
	}
	return c.JSON(http.StatusOK, summary)
}

var _ DashboardHandler = (*Handler)(nil)
