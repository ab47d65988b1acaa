// handlers_history.go - Raw sensor history endpoints
package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/energy-monitor/backend/internal/models"
	"github.com/energy-monitor/backend/internal/registry"
	"github.com/energy-monitor/backend/internal/storage"
)

// HistoryHandlerImpl implements the HistoryHandler interface
type HistoryHandlerImpl struct {
	store    storage.Store
	registry *registry.Registry
	interval time.Duration
}

// NewHistoryHandler creates a history handler. interval is the collector
// cadence used to turn ?hours= into a record count.
func NewHistoryHandler(store storage.Store, reg *registry.Registry, interval time.Duration) HistoryHandler {
	return &HistoryHandlerImpl{
		store:    store,
		registry: reg,
		interval: interval,
	}
}

// HandleHistory returns the history file of a sensor as JSON.
func (h *HistoryHandlerImpl) HandleHistory(c echo.Context) error {
	file, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, file)
}

// HandleHistoryMsgpack returns the same data MessagePack-encoded.
func (h *HistoryHandlerImpl) HandleHistoryMsgpack(c echo.Context) error {
	file, err := h.load(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(file)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func (h *HistoryHandlerImpl) load(c echo.Context) (*models.HistoryFile, error) {
	id := c.Param("sensorId")
	if !h.registry.Contains(id) {
		return nil, NewNotFoundError("sensor", id)
	}

	hoursParam := c.QueryParam("hours")
	if hoursParam == "" {
		file, err := h.store.LoadHistory(id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewNotFoundError("history", id)
		}
		if err != nil {
			return nil, NewInternalError("failed to read history", err)
		}
		return file, nil
	}

	hours, err := strconv.ParseFloat(hoursParam, 64)
	if err != nil {
		return nil, NewBadRequestError("hours must be a number", err)
	}
	if hours <= 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return nil, NewValidationError("hours", fmt.Errorf("must be positive, got %v", hours))
	}

	window := time.Duration(hours * float64(time.Hour))
	records, err := h.store.RecentHistory(id, window, h.interval)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, NewNotFoundError("history", id)
	}
	if err != nil {
		return nil, NewInternalError("failed to read history", err)
	}
	return &models.HistoryFile{SensorID: id, Records: records}, nil
}
