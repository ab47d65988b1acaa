package dashboard

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/energy-monitor/backend/internal/models"
	"github.com/energy-monitor/backend/internal/registry"
	"github.com/energy-monitor/backend/internal/storage"
)

const (
	DefaultBinWidth    = 30 * time.Second
	DefaultSeriesLimit = 5
)

// Point is the slice of a history record the dashboard draws.
type Point struct {
	Time               time.Time `json:"time"`
	ActivePower        float64   `json:"activePower"`
	TotalPowerFactor   float64   `json:"totalPowerFactor"`
	RelativeTHDVoltage float64   `json:"relativeTHDVoltage"`
}

func pointFrom(r models.HistoryRecord) Point {
	return Point{
		Time:               r.Timestamp,
		ActivePower:        r.ActivePower,
		TotalPowerFactor:   r.TotalPowerFactor,
		RelativeTHDVoltage: r.RelativeTHDVoltage,
	}
}

// SensorData is one registered sensor with at least one record.
type SensorData struct {
	Sensor models.Sensor
	Latest Point
	Series []Point
}

// Dataset is an immutable snapshot of every displayable sensor, in
// history-file order.
type Dataset struct {
	sensors     []SensorData
	loadedAt    time.Time
	binWidth    time.Duration
	seriesLimit int
}

// LoadOption tunes a Dataset.
type LoadOption func(*Dataset)

// WithBinWidth sets the bar chart bin width.
func WithBinWidth(d time.Duration) LoadOption {
	return func(ds *Dataset) {
		if d > 0 {
			ds.binWidth = d
		}
	}
}

// WithSeriesLimit sets how many sensors the time series chart shows.
func WithSeriesLimit(n int) LoadOption {
	return func(ds *Dataset) {
		if n > 0 {
			ds.seriesLimit = n
		}
	}
}

// WithLoadedAt overrides the snapshot time.
func WithLoadedAt(t time.Time) LoadOption {
	return func(ds *Dataset) { ds.loadedAt = t }
}

// Load reads every history file. Sensors missing from the registry or with
// no records are skipped; unreadable files are logged and skipped.
func Load(store storage.Store, reg *registry.Registry, logger *slog.Logger, opts ...LoadOption) (*Dataset, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := store.ListHistory()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	ds := newDataset(opts...)
	for _, e := range entries {
		if e.Err != nil {
			logger.Warn("❌ history file unreadable", "path", e.Path, "error", e.Err)
			continue
		}

		id := e.File.SensorID
		sensor, ok := reg.Lookup(id)
		if !ok {
			logger.Debug("sensor not in registry, skipped", "sensor", id)
			continue
		}
		if len(e.File.Records) == 0 {
			logger.Debug("sensor has no records, skipped", "sensor", id)
			continue
		}

		series := make([]Point, len(e.File.Records))
		for i, r := range e.File.Records {
			series[i] = pointFrom(r)
		}
		sd := SensorData{Sensor: sensor, Latest: series[len(series)-1], Series: series}
		ds.sensors = append(ds.sensors, sd)

		logger.Debug("✅ sensor loaded", "sensor", id, "records", len(series), "activePower", sd.Latest.ActivePower)
	}

	logger.Info("dataset loaded", "sensors", len(ds.sensors), "files", len(entries))
	return ds, nil
}

// NewDataset builds a snapshot from already loaded sensors.
func NewDataset(sensors []SensorData, opts ...LoadOption) *Dataset {
	ds := newDataset(opts...)
	ds.sensors = append(ds.sensors, sensors...)
	return ds
}

func newDataset(opts ...LoadOption) *Dataset {
	ds := &Dataset{
		sensors:     make([]SensorData, 0),
		loadedAt:    time.Now(),
		binWidth:    DefaultBinWidth,
		seriesLimit: DefaultSeriesLimit,
	}
	for _, opt := range opts {
		opt(ds)
	}
	return ds
}

// Sensors returns the loaded sensors in dataset order.
func (ds *Dataset) Sensors() []SensorData {
	out := make([]SensorData, len(ds.sensors))
	copy(out, ds.sensors)
	return out
}

// Has reports whether a sensor is displayable.
func (ds *Dataset) Has(sensorID string) bool {
	for _, s := range ds.sensors {
		if s.Sensor.ID == sensorID {
			return true
		}
	}
	return false
}

// Len returns the number of sensors.
func (ds *Dataset) Len() int { return len(ds.sensors) }

// Empty reports whether there is nothing to show.
func (ds *Dataset) Empty() bool { return len(ds.sensors) == 0 }

// LoadedAt returns the snapshot time.
func (ds *Dataset) LoadedAt() time.Time { return ds.loadedAt }

// Records returns the total number of points across sensors.
func (ds *Dataset) Records() int {
	n := 0
	for _, s := range ds.sensors {
		n += len(s.Series)
	}
	return n
}

// Holder guards the current snapshot so a reload can swap it while
// requests read it.
type Holder struct {
	mu sync.RWMutex
	ds *Dataset
}

// NewHolder wraps an initial snapshot.
func NewHolder(ds *Dataset) *Holder {
	if ds == nil {
		ds = newDataset()
	}
	return &Holder{ds: ds}
}

// Get returns the current snapshot.
func (h *Holder) Get() *Dataset {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ds
}

// Swap replaces the snapshot and returns the previous one.
func (h *Holder) Swap(ds *Dataset) *Dataset {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.ds
	h.ds = ds
	return old
}
