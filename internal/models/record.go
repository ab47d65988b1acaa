package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Field names shared by upstream payloads and history records.
const (
	FieldActivePower        = "ActivePower"
	FieldTotalPowerFactor   = "TotalPowerFactor"
	FieldRelativeTHDVoltage = "RelativeTHDVoltage"
	FieldFrequency          = "Frequency"
	FieldV1                 = "V1"
	FieldV2                 = "V2"
	FieldV3                 = "V3"
	FieldI1                 = "I1"
	FieldI2                 = "I2"
	FieldI3                 = "I3"
)

// RecordFields lists the numeric record fields in file order.
var RecordFields = []string{
	FieldActivePower,
	FieldTotalPowerFactor,
	FieldRelativeTHDVoltage,
	FieldFrequency,
	FieldV1, FieldV2, FieldV3,
	FieldI1, FieldI2, FieldI3,
}

// PayloadDefaults are used when an upstream payload lacks a field. The grid
// runs at 60 Hz; everything else reads as zero.
var PayloadDefaults = map[string]float64{
	FieldFrequency: 60,
}

// StoredDefaults are used when a stored history record lacks a key. They
// keep hand-edited or partially written files displayable.
var StoredDefaults = map[string]float64{
	FieldTotalPowerFactor:   0.9,
	FieldRelativeTHDVoltage: 2.0,
	FieldFrequency:          60,
}

// timestampLayouts are tried in order when reading a record. The second
// form is the naive local ISO-8601 text written by older collectors.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// HistoryRecord is one derived reading, produced once per poll cycle.
type HistoryRecord struct {
	Timestamp          time.Time `json:"timestamp" msgpack:"timestamp"`
	ActivePower        float64   `json:"ActivePower" msgpack:"ActivePower"`
	TotalPowerFactor   float64   `json:"TotalPowerFactor" msgpack:"TotalPowerFactor"`
	RelativeTHDVoltage float64   `json:"RelativeTHDVoltage" msgpack:"RelativeTHDVoltage"`
	Frequency          float64   `json:"Frequency" msgpack:"Frequency"`
	V1                 float64   `json:"V1" msgpack:"V1"`
	V2                 float64   `json:"V2" msgpack:"V2"`
	V3                 float64   `json:"V3" msgpack:"V3"`
	I1                 float64   `json:"I1" msgpack:"I1"`
	I2                 float64   `json:"I2" msgpack:"I2"`
	I3                 float64   `json:"I3" msgpack:"I3"`

	missing []string
}

// RecordFromPayload derives a history record from a raw payload. The second
// return value lists the fields that fell back to PayloadDefaults.
func RecordFromPayload(p Payload, now time.Time) (HistoryRecord, []string) {
	rec := HistoryRecord{Timestamp: now}
	var missing []string
	for _, name := range RecordFields {
		v, ok := p.Value(name)
		if !ok {
			v = PayloadDefaults[name]
			missing = append(missing, name)
		}
		*rec.field(name) = v
	}
	return rec, missing
}

// Field returns the value of a numeric field by name.
func (r HistoryRecord) Field(name string) (float64, bool) {
	ptr := r.field(name)
	if ptr == nil {
		return 0, false
	}
	return *ptr, true
}

// MissingFields lists the keys that were absent when the record was read
// from disk and were filled from StoredDefaults.
func (r HistoryRecord) MissingFields() []string {
	return r.missing
}

func (r *HistoryRecord) field(name string) *float64 {
	switch name {
	case FieldActivePower:
		return &r.ActivePower
	case FieldTotalPowerFactor:
		return &r.TotalPowerFactor
	case FieldRelativeTHDVoltage:
		return &r.RelativeTHDVoltage
	case FieldFrequency:
		return &r.Frequency
	case FieldV1:
		return &r.V1
	case FieldV2:
		return &r.V2
	case FieldV3:
		return &r.V3
	case FieldI1:
		return &r.I1
	case FieldI2:
		return &r.I2
	case FieldI3:
		return &r.I3
	}
	return nil
}

// UnmarshalJSON reads a stored record, accepting both timestamp layouts and
// filling absent numeric keys from StoredDefaults.
func (r *HistoryRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var ts string
	if err := json.Unmarshal(raw["timestamp"], &ts); err != nil || ts == "" {
		return fmt.Errorf("record timestamp missing or not a string")
	}
	t, err := ParseTimestamp(ts)
	if err != nil {
		return err
	}

	rec := HistoryRecord{Timestamp: t}
	for _, name := range RecordFields {
		v, ok := raw[name]
		if !ok || string(v) == "null" {
			*rec.field(name) = StoredDefaults[name]
			rec.missing = append(rec.missing, name)
			continue
		}
		if err := json.Unmarshal(v, rec.field(name)); err != nil {
			return fmt.Errorf("record field %s: %w", name, err)
		}
	}

	*r = rec
	return nil
}

// ParseTimestamp parses the textual timestamp of a history record.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
