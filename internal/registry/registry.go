// Package registry holds the compiled-in table of campus sensors and their
// locations.
package registry

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/energy-monitor/backend/internal/models"
)

//go:embed sensors.yaml
var sensorsYAML []byte

// Registry is an ordered, read-only sensor table.
type Registry struct {
	sensors []models.Sensor
	index   map[string]int
}

type registryFile struct {
	Sensors []models.Sensor `yaml:"sensors"`
}

var defaultRegistry = mustParse(sensorsYAML)

// Default returns the compiled-in campus registry.
func Default() *Registry {
	return defaultRegistry
}

// New builds a registry from an explicit sensor list. Duplicate IDs are
// rejected.
func New(sensors []models.Sensor) (*Registry, error) {
	r := &Registry{
		sensors: make([]models.Sensor, 0, len(sensors)),
		index:   make(map[string]int, len(sensors)),
	}
	for _, s := range sensors {
		if s.ID == "" {
			return nil, fmt.Errorf("sensor with empty id")
		}
		if _, dup := r.index[s.ID]; dup {
			return nil, fmt.Errorf("duplicate sensor id: %s", s.ID)
		}
		r.index[s.ID] = len(r.sensors)
		r.sensors = append(r.sensors, s)
	}
	return r, nil
}

// Parse reads a registry from its YAML form.
func Parse(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing sensor registry: %w", err)
	}
	return New(f.Sensors)
}

func mustParse(data []byte) *Registry {
	r, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the sensor with the given ID.
func (r *Registry) Lookup(id string) (models.Sensor, bool) {
	i, ok := r.index[id]
	if !ok {
		return models.Sensor{}, false
	}
	return r.sensors[i], true
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Sensors returns a copy of the table in registry order.
func (r *Registry) Sensors() []models.Sensor {
	out := make([]models.Sensor, len(r.sensors))
	copy(out, r.sensors)
	return out
}

// IDs returns the sensor IDs in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.sensors))
	for i, s := range r.sensors {
		ids[i] = s.ID
	}
	return ids
}

// Len returns the number of registered sensors.
func (r *Registry) Len() int {
	return len(r.sensors)
}
