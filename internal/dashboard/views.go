package dashboard

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

const (
	markerMinSize   = 15.0
	markerSizeRange = 25.0
)

// seriesPalette colours the time series lines in dataset order.
var seriesPalette = []string{"#e74c3c", "#3498db", "#27ae60", "#f39c12", "#9b59b6"}

// Tier colours shared by the bar chart and the ranking table.
const (
	colorLow    = "#27ae60"
	colorMedium = "#f39c12"
	colorHigh   = "#e74c3c"
	colorTop    = "#d5f4e6"
	colorBottom = "#fdeaea"
)

// LatLon is a map coordinate.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Marker is one sensor on the map.
type Marker struct {
	SensorID string  `json:"sensorId"`
	Name     string  `json:"name"`
	Label    string  `json:"label"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Value    float64 `json:"value"`
	Display  string  `json:"display"`
	Size     float64 `json:"size"`
}

// MarkerLayer holds the markers and the colour range they span.
type MarkerLayer struct {
	Markers []Marker `json:"markers"`
	Center  LatLon   `json:"center"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
}

// Markers places every sensor at its registry location, sized by its latest
// scaled value within [15, 40]. When all values are equal every marker gets
// the middle size.
func (ds *Dataset) Markers(ind Indicator) MarkerLayer {
	layer := MarkerLayer{Markers: make([]Marker, 0, len(ds.sensors))}
	if len(ds.sensors) == 0 {
		return layer
	}

	values := make([]float64, len(ds.sensors))
	layer.Min, layer.Max = math.Inf(1), math.Inf(-1)
	for i, s := range ds.sensors {
		v := ind.Value(s.Latest)
		values[i] = v
		layer.Min = math.Min(layer.Min, v)
		layer.Max = math.Max(layer.Max, v)
	}

	span := layer.Max - layer.Min
	var sumLat, sumLon float64
	for i, s := range ds.sensors {
		size := markerMinSize + markerSizeRange/2
		if span > 0 {
			size = markerMinSize + markerSizeRange*(values[i]-layer.Min)/span
		}
		layer.Markers = append(layer.Markers, Marker{
			SensorID: s.Sensor.ID,
			Name:     s.Sensor.Name,
			Label:    s.Sensor.ShortName(),
			Lat:      s.Sensor.Latitude,
			Lon:      s.Sensor.Longitude,
			Value:    values[i],
			Display:  fmt.Sprintf("%.2f %s", values[i], ind.Unit),
			Size:     size,
		})
		sumLat += s.Sensor.Latitude
		sumLon += s.Sensor.Longitude
	}

	n := float64(len(ds.sensors))
	layer.Center = LatLon{Lat: sumLat / n, Lon: sumLon / n}
	return layer
}

// SeriesPoint is one sample of a line.
type SeriesPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series is the full retained history of one sensor.
type Series struct {
	SensorID string        `json:"sensorId"`
	Name     string        `json:"name"`
	Color    string        `json:"color"`
	Points   []SeriesPoint `json:"points"`
}

// TimeSeries returns the scaled history of the first limit sensors.
func (ds *Dataset) TimeSeries(ind Indicator, limit int) []Series {
	if limit <= 0 || limit > len(ds.sensors) {
		limit = len(ds.sensors)
	}

	out := make([]Series, 0, limit)
	for i, s := range ds.sensors[:limit] {
		points := make([]SeriesPoint, len(s.Series))
		for j, p := range s.Series {
			points[j] = SeriesPoint{Time: p.Time, Value: ind.Value(p)}
		}
		out = append(out, Series{
			SensorID: s.Sensor.ID,
			Name:     s.Sensor.ShortName(),
			Color:    seriesPalette[i%len(seriesPalette)],
			Points:   points,
		})
	}
	return out
}

// Tier buckets a value against the distribution it belongs to.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
	TierTop    Tier = "top"
	TierBottom Tier = "bottom"
	TierNone   Tier = ""
)

// Bin is the mean of every sample that falls in one time bucket.
type Bin struct {
	Start time.Time `json:"start"`
	Label string    `json:"label"`
	Value float64   `json:"value"`
	Count int       `json:"count"`
	Tier  Tier      `json:"tier"`
	Color string    `json:"color"`
}

// BinnedChart is the averaged bar chart.
type BinnedChart struct {
	Width time.Duration `json:"width"`
	Bins  []Bin         `json:"bins"`
	P33   float64       `json:"p33"`
	P66   float64       `json:"p66"`
}

// BinnedAverage pools every record of every sensor into fixed-width time
// buckets and averages the scaled values. Bins are chronological and tiered
// against the 33rd and 66th percentiles of the bin means.
func (ds *Dataset) BinnedAverage(ind Indicator, width time.Duration) BinnedChart {
	if width <= 0 {
		width = DefaultBinWidth
	}
	chart := BinnedChart{Width: width, Bins: make([]Bin, 0)}

	// Keyed by instant: equal times may carry different locations.
	type acc struct {
		start time.Time
		sum   float64
		count int
	}
	buckets := map[int64]*acc{}
	for _, s := range ds.sensors {
		for _, p := range s.Series {
			start := p.Time.Truncate(width)
			key := start.UnixNano()
			a, ok := buckets[key]
			if !ok {
				a = &acc{start: start}
				buckets[key] = a
			}
			a.sum += ind.Value(p)
			a.count++
		}
	}
	if len(buckets) == 0 {
		return chart
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	means := make([]float64, len(keys))
	for i, k := range keys {
		a := buckets[k]
		means[i] = a.sum / float64(a.count)
		chart.Bins = append(chart.Bins, Bin{
			Start: a.start,
			Label: a.start.Format("15:04:05"),
			Value: means[i],
			Count: a.count,
		})
	}

	chart.P33 = Percentile(means, 33)
	chart.P66 = Percentile(means, 66)
	for i := range chart.Bins {
		v := chart.Bins[i].Value
		switch {
		case v < chart.P33:
			chart.Bins[i].Tier, chart.Bins[i].Color = TierLow, colorLow
		case v < chart.P66:
			chart.Bins[i].Tier, chart.Bins[i].Color = TierMedium, colorMedium
		default:
			chart.Bins[i].Tier, chart.Bins[i].Color = TierHigh, colorHigh
		}
	}
	return chart
}

// Percentile returns the p-th percentile of values using linear
// interpolation between closest ranks.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// RankingRow is one line of the ranking table.
type RankingRow struct {
	Rank        int     `json:"rank"`
	SensorID    string  `json:"sensorId"`
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	ActivePower string  `json:"activePower"`
	PowerFactor string  `json:"powerFactor"`
	VoltageTHD  string  `json:"voltageThd"`
	Tier        Tier    `json:"tier"`
	Color       string  `json:"color"`
}

// Ranking orders sensors by their latest raw indicator value, highest
// first. Ties keep dataset order. The first three rows are top, the last
// three bottom; top wins when the table is short.
func (ds *Dataset) Ranking(ind Indicator) []RankingRow {
	ordered := ds.Sensors()
	sort.SliceStable(ordered, func(i, j int) bool {
		return ind.Raw(ordered[i].Latest) > ind.Raw(ordered[j].Latest)
	})

	rows := make([]RankingRow, 0, len(ordered))
	for i, s := range ordered {
		row := RankingRow{
			Rank:        i + 1,
			SensorID:    s.Sensor.ID,
			Name:        s.Sensor.Name,
			Value:       ind.Raw(s.Latest),
			ActivePower: fmt.Sprintf("%.1f kW", s.Latest.ActivePower),
			PowerFactor: fmt.Sprintf("%.2f%%", s.Latest.TotalPowerFactor*100),
			VoltageTHD:  fmt.Sprintf("%.2f%%", s.Latest.RelativeTHDVoltage),
		}
		switch {
		case i < 3:
			row.Tier, row.Color = TierTop, colorTop
		case i >= len(ordered)-3:
			row.Tier, row.Color = TierBottom, colorBottom
		}
		rows = append(rows, row)
	}
	return rows
}

// View is everything the dashboard draws for one indicator.
type View struct {
	Indicator Indicator    `json:"indicator"`
	Options   []MapOption  `json:"options"`
	Empty     bool         `json:"empty"`
	Message   string       `json:"message"`
	LoadedAt  time.Time    `json:"loadedAt"`
	Markers   MarkerLayer  `json:"markers"`
	Series    []Series     `json:"series"`
	Bins      BinnedChart  `json:"bins"`
	Ranking   []RankingRow `json:"ranking"`
}

// View computes all aggregates for ind. An empty dataset yields a view
// flagged Empty with the message "No data".
func (ds *Dataset) View(ind Indicator, options []MapOption) View {
	if options == nil {
		options = []MapOption{}
	}
	v := View{
		Indicator: ind,
		Options:   options,
		LoadedAt:  ds.loadedAt,
		Markers:   MarkerLayer{Markers: []Marker{}},
		Series:    []Series{},
		Bins:      BinnedChart{Width: ds.binWidth, Bins: []Bin{}},
		Ranking:   []RankingRow{},
	}
	if ds.Empty() {
		v.Empty = true
		v.Message = "No data"
		return v
	}

	v.Markers = ds.Markers(ind)
	v.Series = ds.TimeSeries(ind, ds.seriesLimit)
	v.Bins = ds.BinnedAverage(ind, ds.binWidth)
	v.Ranking = ds.Ranking(ind)
	v.Message = StatusMessage(ind, options)
	return v
}

// StatusMessage summarises the current selection.
func StatusMessage(ind Indicator, options []MapOption) string {
	active := "None"
	if len(options) > 0 {
		labels := make([]string, len(options))
		for i, o := range options {
			labels[i] = o.Label()
		}
		active = strings.Join(labels, ", ")
	}
	return fmt.Sprintf("Showing %s | Options: %s", ind.Title, active)
}
