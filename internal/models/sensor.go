// Package models contains domain types for the campus energy monitor.
package models

import "strings"

// Sensor is a fixed physical meter and the building it is mounted in.
type Sensor struct {
	ID        string  `json:"id" yaml:"id"`
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lon" yaml:"lon"`
}

// ShortName returns the block part of the display name ("Bloque 03" for
// "Bloque 03 - Rectoria"), or the first 12 characters when there is no
// separator.
func (s Sensor) ShortName() string {
	if i := strings.Index(s.Name, " - "); i >= 0 {
		return s.Name[:i]
	}
	r := []rune(s.Name)
	if len(r) > 12 {
		return string(r[:12])
	}
	return s.Name
}
