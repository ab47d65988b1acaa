package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadFrom(t *testing.T, s string) Payload {
	t.Helper()
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(s), &p))
	return p
}

func TestPayload_Merge(t *testing.T) {
	old := payloadFrom(t, `{"id":{"value":"SM_B3_RECT"},"ActivePower":{"value":1.5},"Location":{"value":"B3"}}`)
	update := payloadFrom(t, `{"ActivePower":{"value":7.25},"Frequency":{"value":59.9}}`)

	merged := old.Merge(update)

	assert.Len(t, merged, 4)
	assert.JSONEq(t, `{"value":"SM_B3_RECT"}`, string(merged["id"]))
	assert.JSONEq(t, `{"value":"B3"}`, string(merged["Location"]))
	assert.JSONEq(t, `{"value":7.25}`, string(merged["ActivePower"]))
	assert.JSONEq(t, `{"value":59.9}`, string(merged["Frequency"]))

	// inputs untouched
	assert.JSONEq(t, `{"value":1.5}`, string(old["ActivePower"]))
	_, ok := old["Frequency"]
	assert.False(t, ok)
}

func TestPayload_Value(t *testing.T) {
	p := payloadFrom(t, `{
		"num": {"value": 12.5, "type": "Number"},
		"str": {"value": " 0.93 "},
		"bad": {"value": "n/a"},
		"nul": {"value": null},
		"flat": 3,
		"novalue": {"type": "Number"}
	}`)

	tests := []struct {
		field  string
		want   float64
		wantOK bool
	}{
		{"num", 12.5, true},
		{"str", 0.93, true},
		{"bad", 0, false},
		{"nul", 0, false},
		{"flat", 0, false},
		{"novalue", 0, false},
		{"absent", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := p.Value(tt.field)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRecordFromPayload(t *testing.T) {
	now := time.Date(2025, 3, 4, 10, 15, 30, 0, time.UTC)

	t.Run("all fields present", func(t *testing.T) {
		p := payloadFrom(t, `{
			"ActivePower":{"value":42.1},"TotalPowerFactor":{"value":0.91},
			"RelativeTHDVoltage":{"value":2.4},"Frequency":{"value":60.02},
			"V1":{"value":120.1},"V2":{"value":119.8},"V3":{"value":121},
			"I1":{"value":10},"I2":{"value":11},"I3":{"value":12}}`)
		rec, missing := RecordFromPayload(p, now)
		assert.Empty(t, missing)
		assert.Equal(t, now, rec.Timestamp)
		assert.Equal(t, 42.1, rec.ActivePower)
		assert.Equal(t, 0.91, rec.TotalPowerFactor)
		assert.Equal(t, 60.02, rec.Frequency)
		assert.Equal(t, 121.0, rec.V3)
		assert.Equal(t, 12.0, rec.I3)
	})

	t.Run("missing fields use payload defaults", func(t *testing.T) {
		p := payloadFrom(t, `{"ActivePower":{"value":5}}`)
		rec, missing := RecordFromPayload(p, now)
		assert.Len(t, missing, len(RecordFields)-1)
		assert.Equal(t, 5.0, rec.ActivePower)
		assert.Equal(t, 0.0, rec.TotalPowerFactor)
		assert.Equal(t, 0.0, rec.RelativeTHDVoltage)
		assert.Equal(t, 60.0, rec.Frequency)
		assert.Equal(t, 0.0, rec.V1)
		assert.Equal(t, 0.0, rec.I2)
	})
}

func TestHistoryRecord_UnmarshalJSON(t *testing.T) {
	t.Run("naive local timestamp", func(t *testing.T) {
		var rec HistoryRecord
		err := json.Unmarshal([]byte(`{"timestamp":"2025-10-01T14:03:27.512345","ActivePower":3,
			"TotalPowerFactor":0.8,"RelativeTHDVoltage":1.1,"Frequency":60,
			"V1":1,"V2":2,"V3":3,"I1":4,"I2":5,"I3":6}`), &rec)
		require.NoError(t, err)
		want := time.Date(2025, 10, 1, 14, 3, 27, 512345000, time.Local)
		assert.True(t, want.Equal(rec.Timestamp), "got %v", rec.Timestamp)
		assert.Empty(t, rec.MissingFields())
	})

	t.Run("missing keys use stored defaults", func(t *testing.T) {
		var rec HistoryRecord
		err := json.Unmarshal([]byte(`{"timestamp":"2025-10-01T14:03:27Z","ActivePower":3}`), &rec)
		require.NoError(t, err)
		assert.Equal(t, 3.0, rec.ActivePower)
		assert.Equal(t, 0.9, rec.TotalPowerFactor)
		assert.Equal(t, 2.0, rec.RelativeTHDVoltage)
		assert.Equal(t, 60.0, rec.Frequency)
		assert.Equal(t, 0.0, rec.V2)
		assert.Contains(t, rec.MissingFields(), FieldTotalPowerFactor)
		assert.NotContains(t, rec.MissingFields(), FieldActivePower)
	})

	t.Run("bad timestamp", func(t *testing.T) {
		var rec HistoryRecord
		err := json.Unmarshal([]byte(`{"timestamp":"yesterday","ActivePower":3}`), &rec)
		assert.Error(t, err)
	})

	t.Run("missing timestamp", func(t *testing.T) {
		var rec HistoryRecord
		err := json.Unmarshal([]byte(`{"ActivePower":3}`), &rec)
		assert.Error(t, err)
	})
}

func TestHistoryFile_JSONRoundTrip(t *testing.T) {
	base := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)
	h := NewHistoryFile("SM_B4_PRIM")
	for i := 0; i < 3; i++ {
		h.Append(HistoryRecord{
			Timestamp:          base.Add(time.Duration(i) * 30 * time.Second),
			ActivePower:        float64(10 * i),
			TotalPowerFactor:   0.9,
			RelativeTHDVoltage: 1.5,
			Frequency:          60,
			V1:                 120, V2: 121, V3: 122,
			I1: 1, I2: 2, I3: float64(i),
		}, DefaultRetentionCap)
	}

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"registros"`)
	assert.Contains(t, string(data), `"sensor_id":"SM_B4_PRIM"`)

	var back HistoryFile
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Records, 3)
	assert.Equal(t, h.SensorID, back.SensorID)
	for i := range h.Records {
		assert.True(t, h.Records[i].Timestamp.Equal(back.Records[i].Timestamp))
		assert.Equal(t, h.Records[i].ActivePower, back.Records[i].ActivePower)
		assert.Equal(t, h.Records[i].I3, back.Records[i].I3)
	}
}

func TestHistoryFile_Append(t *testing.T) {
	base := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	t.Run("truncates to cap keeping newest", func(t *testing.T) {
		h := NewHistoryFile("SM_B3_RECT")
		dropped := 0
		for i := 0; i < 2885; i++ {
			dropped += h.Append(HistoryRecord{
				Timestamp:   base.Add(time.Duration(i) * 30 * time.Second),
				ActivePower: float64(i),
			}, DefaultRetentionCap)
			assert.LessOrEqual(t, len(h.Records), DefaultRetentionCap)
		}

		require.Len(t, h.Records, 2880)
		assert.Equal(t, 5, dropped)
		assert.Equal(t, 5.0, h.Records[0].ActivePower)
		assert.Equal(t, 2884.0, h.Records[len(h.Records)-1].ActivePower)
		for i := 1; i < len(h.Records); i++ {
			assert.Equal(t, h.Records[i-1].ActivePower+1, h.Records[i].ActivePower)
		}
	})

	t.Run("truncate oversized input", func(t *testing.T) {
		h := NewHistoryFile("x")
		for i := 0; i < 10; i++ {
			h.Records = append(h.Records, HistoryRecord{ActivePower: float64(i)})
		}
		assert.Equal(t, 7, h.Truncate(3))
		require.Len(t, h.Records, 3)
		assert.Equal(t, []float64{7, 8, 9}, []float64{h.Records[0].ActivePower, h.Records[1].ActivePower, h.Records[2].ActivePower})
	})

	t.Run("zero limit disables truncation", func(t *testing.T) {
		h := NewHistoryFile("x")
		for i := 0; i < 5; i++ {
			h.Append(HistoryRecord{}, 0)
		}
		assert.Len(t, h.Records, 5)
	})
}

func TestHistoryFile_LatestAndTail(t *testing.T) {
	h := NewHistoryFile("x")
	_, ok := h.Latest()
	assert.False(t, ok)
	assert.Empty(t, h.Tail(3))

	for i := 0; i < 5; i++ {
		h.Append(HistoryRecord{ActivePower: float64(i)}, 0)
	}
	last, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, 4.0, last.ActivePower)

	tail := h.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, 3.0, tail[0].ActivePower)
	assert.Len(t, h.Tail(100), 5)
}

func TestSensor_ShortName(t *testing.T) {
	assert.Equal(t, "Bloque 03", Sensor{Name: "Bloque 03 - Rectoria"}.ShortName())
	assert.Equal(t, "Ecovilla", Sensor{Name: "Ecovilla"}.ShortName())
	assert.Equal(t, "Laboratorio ", Sensor{Name: "Laboratorio Central"}.ShortName())
}
