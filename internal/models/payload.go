package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Payload is a raw reading as returned by the upstream source: field name to
// an object carrying at least a "value" key. Values are kept undecoded so a
// merge never rewrites fields it does not understand.
type Payload map[string]json.RawMessage

// Merge returns a new payload holding every key of p overwritten key-by-key
// by update. Keys only present in p are preserved.
func (p Payload) Merge(update Payload) Payload {
	merged := make(Payload, len(p)+len(update))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}

// Value returns the numeric "value" of a field. Numbers and numeric strings
// are accepted; anything else reports false.
func (p Payload) Value(field string) (float64, bool) {
	raw, ok := p[field]
	if !ok {
		return 0, false
	}

	var attr struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &attr); err != nil || len(attr.Value) == 0 {
		return 0, false
	}

	v := bytes.TrimSpace(attr.Value)
	if bytes.Equal(v, []byte("null")) {
		return 0, false
	}

	var num float64
	if err := json.Unmarshal(v, &num); err == nil {
		return num, true
	}

	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return num, true
}
