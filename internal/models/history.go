package models

// DefaultRetentionCap is 24 hours of readings at one record every 30 seconds.
const DefaultRetentionCap = 2880

// HistoryFile is the bounded, oldest-first record sequence of one sensor.
type HistoryFile struct {
	SensorID string          `json:"sensor_id" msgpack:"sensor_id"`
	Records  []HistoryRecord `json:"registros" msgpack:"registros"`
}

// NewHistoryFile creates an empty history skeleton for a sensor.
func NewHistoryFile(sensorID string) *HistoryFile {
	return &HistoryFile{
		SensorID: sensorID,
		Records:  make([]HistoryRecord, 0),
	}
}

// Append adds a record and, when the sequence exceeds limit, keeps only the
// most recent limit records. A limit <= 0 disables truncation. Returns the
// number of records dropped from the front.
func (h *HistoryFile) Append(rec HistoryRecord, limit int) int {
	h.Records = append(h.Records, rec)
	return h.Truncate(limit)
}

// Truncate drops the oldest records so at most limit remain.
func (h *HistoryFile) Truncate(limit int) int {
	if limit <= 0 || len(h.Records) <= limit {
		return 0
	}
	drop := len(h.Records) - limit
	kept := make([]HistoryRecord, limit)
	copy(kept, h.Records[drop:])
	h.Records = kept
	return drop
}

// Latest returns the most recent record.
func (h *HistoryFile) Latest() (HistoryRecord, bool) {
	if len(h.Records) == 0 {
		return HistoryRecord{}, false
	}
	return h.Records[len(h.Records)-1], true
}

// Tail returns a copy of the last n records (all of them when n exceeds the
// length).
func (h *HistoryFile) Tail(n int) []HistoryRecord {
	if n <= 0 || len(h.Records) == 0 {
		return []HistoryRecord{}
	}
	start := len(h.Records) - n
	if start < 0 {
		start = 0
	}
	out := make([]HistoryRecord, len(h.Records[start:]))
	copy(out, h.Records[start:])
	return out
}
