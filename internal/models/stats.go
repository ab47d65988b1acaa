package models

import "time"

// RunStats holds the collector counters for one process lifetime. It is
// passed by pointer through the poll cycle and has a single writer.
type RunStats struct {
	RunID     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	Cycles    int       `json:"cycles"`

	RequestsAttempted int `json:"requestsAttempted"`
	RequestsSucceeded int `json:"requestsSucceeded"`
	RequestsFailed    int `json:"requestsFailed"`

	// Failure breakdown; the sum equals RequestsFailed.
	HTTPErrors       int `json:"httpErrors"`
	Timeouts         int `json:"timeouts"`
	ConnectionErrors int `json:"connectionErrors"`
	DecodeErrors     int `json:"decodeErrors"`
	UnexpectedErrors int `json:"unexpectedErrors"`

	WritesAttempted int `json:"writesAttempted"`
	WritesSucceeded int `json:"writesSucceeded"`
	WritesFailed    int `json:"writesFailed"`

	HistorySucceeded int `json:"historySucceeded"`
	HistoryFailed    int `json:"historyFailed"`
}

// NewRunStats creates zeroed counters for a run.
func NewRunStats(runID string, startedAt time.Time) *RunStats {
	return &RunStats{
		RunID:     runID,
		StartedAt: startedAt,
	}
}

// AllRequestsFailed reports whether at least one request was made and none
// succeeded.
func (s *RunStats) AllRequestsFailed() bool {
	return s.RequestsAttempted > 0 && s.RequestsSucceeded == 0
}
