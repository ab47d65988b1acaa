// Package dashboard reshapes loaded sensor history into the aggregates the
// web dashboard draws: map markers, time series, binned averages and a
// ranking table.
package dashboard

import (
	"fmt"
	"strings"

	"github.com/energy-monitor/backend/internal/models"
)

// ColorStop is one point of a continuous colour scale.
type ColorStop struct {
	Offset float64 `json:"offset"`
	Color  string  `json:"color"`
}

// Indicator describes one selectable metric.
type Indicator struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Icon       string      `json:"icon"`
	Unit       string      `json:"unit"`
	Scale      float64     `json:"scale"`
	Colorscale []ColorStop `json:"colorscale"`
}

var (
	ActivePower = Indicator{
		ID:    models.FieldActivePower,
		Title: "Energy Consumption",
		Icon:  "💡",
		Unit:  "kW",
		Scale: 1,
		Colorscale: []ColorStop{
			{0, "#ffffb2"}, {0.3, "#fecc5c"}, {0.6, "#fd8d3c"}, {1, "#e31a1c"},
		},
	}
	PowerFactor = Indicator{
		ID:    models.FieldTotalPowerFactor,
		Title: "Energy Efficiency",
		Icon:  "⚡",
		Unit:  "%",
		Scale: 100,
		Colorscale: []ColorStop{
			{0, "#d73027"}, {0.5, "#ffffbf"}, {1, "#1a9850"},
		},
	}
	// THD is stored as a percentage already.
	VoltageTHD = Indicator{
		ID:    models.FieldRelativeTHDVoltage,
		Title: "Energy Quality",
		Icon:  "⚙️",
		Unit:  "%",
		Scale: 1,
		Colorscale: []ColorStop{
			{0, "#1a9850"}, {0.5, "#ffffbf"}, {1, "#d73027"},
		},
	}
)

// Indicators returns the catalogue in display order.
func Indicators() []Indicator {
	return []Indicator{ActivePower, PowerFactor, VoltageTHD}
}

// LookupIndicator finds an indicator by ID.
func LookupIndicator(id string) (Indicator, bool) {
	for _, ind := range Indicators() {
		if ind.ID == id {
			return ind, true
		}
	}
	return Indicator{}, false
}

// Raw returns the unscaled indicator value of a point.
func (i Indicator) Raw(p Point) float64 {
	switch i.ID {
	case models.FieldTotalPowerFactor:
		return p.TotalPowerFactor
	case models.FieldRelativeTHDVoltage:
		return p.RelativeTHDVoltage
	default:
		return p.ActivePower
	}
}

// Value returns the display value of a point.
func (i Indicator) Value(p Point) float64 {
	return i.Raw(p) * i.Scale
}

// MapOption is a map layer toggle.
type MapOption string

const (
	OptionHeatmap   MapOption = "heatmap"
	OptionLandmarks MapOption = "landmarks"
	OptionLabels    MapOption = "labels"
)

var optionLabels = map[MapOption]string{
	OptionHeatmap:   "Heat points",
	OptionLandmarks: "Landmarks",
	OptionLabels:    "Labels",
}

// Label is the human name used in the status message.
func (o MapOption) Label() string {
	return optionLabels[o]
}

// ParseOptions parses a comma-separated toggle list. Duplicates collapse and
// the result is in canonical order (heatmap, landmarks, labels).
func ParseOptions(s string) ([]MapOption, error) {
	seen := map[MapOption]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		o := MapOption(part)
		if _, ok := optionLabels[o]; !ok {
			return nil, fmt.Errorf("unknown map option: %q", part)
		}
		seen[o] = true
	}

	out := make([]MapOption, 0, len(seen))
	for _, o := range []MapOption{OptionHeatmap, OptionLandmarks, OptionLabels} {
		if seen[o] {
			out = append(out, o)
		}
	}
	return out, nil
}
