package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/energy-monitor/backend/internal/models"
)

// Upstream is a fake meter API serving /<sensor>.json from canned bodies.
// Unknown sensors get 404.
type Upstream struct {
	*httptest.Server

	mu       sync.Mutex
	bodies   map[string]string
	statuses map[string]int
	requests []string
}

// NewUpstream starts a fake upstream that is closed when the test ends.
func NewUpstream(t *testing.T) *Upstream {
	t.Helper()
	u := &Upstream{
		bodies:   make(map[string]string),
		statuses: make(map[string]int),
	}
	u.Server = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.Server.Close)
	return u
}

func (u *Upstream) serve(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".json")

	u.mu.Lock()
	u.requests = append(u.requests, id)
	body, ok := u.bodies[id]
	status := u.statuses[id]
	u.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

// SetBody makes the upstream answer sensorID with body.
func (u *Upstream) SetBody(sensorID, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bodies[sensorID] = body
	delete(u.statuses, sensorID)
}

// SetReading answers sensorID with a payload carrying the given field
// values, each wrapped as {"type":"Number","value":v}.
func (u *Upstream) SetReading(sensorID string, values map[string]float64) {
	parts := make([]string, 0, len(values))
	for _, name := range models.RecordFields {
		if v, ok := values[name]; ok {
			parts = append(parts, fmt.Sprintf(`%q:{"type":"Number","value":%v}`, name, v))
		}
	}
	u.SetBody(sensorID, "{"+strings.Join(parts, ",")+"}")
}

// SetStatus makes the upstream answer sensorID with an empty status reply.
func (u *Upstream) SetStatus(sensorID string, status int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statuses[sensorID] = status
}

// Requests returns the sensor IDs requested so far, in order.
func (u *Upstream) Requests() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.requests))
	copy(out, u.requests)
	return out
}

// FullReading returns a complete set of field values.
func FullReading(power, pf, thd float64) map[string]float64 {
	return map[string]float64{
		models.FieldActivePower:        power,
		models.FieldTotalPowerFactor:   pf,
		models.FieldRelativeTHDVoltage: thd,
		models.FieldFrequency:          60,
		models.FieldV1:                 120,
		models.FieldV2:                 121,
		models.FieldV3:                 119,
		models.FieldI1:                 10,
		models.FieldI2:                 11,
		models.FieldI3:                 12,
	}
}
