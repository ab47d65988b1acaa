package source

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrDecode marks a response body that is not a JSON object of fields.
var ErrDecode = errors.New("invalid payload")

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	SensorID   string
	StatusCode int
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.SensorID, e.StatusCode)
}

// Outcome classifies the result of one upstream read.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeHTTPStatus
	OutcomeTimeout
	OutcomeConnection
	OutcomeDecode
	OutcomeUnexpected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeHTTPStatus:
		return "http_status"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeConnection:
		return "connection"
	case OutcomeDecode:
		return "decode"
	default:
		return "unexpected"
	}
}

// Symbol is the console marker printed next to the outcome.
func (o Outcome) Symbol() string {
	switch o {
	case OutcomeOK:
		return "✅"
	case OutcomeHTTPStatus:
		return "❌"
	case OutcomeTimeout:
		return "⏱️"
	case OutcomeConnection:
		return "🔌"
	case OutcomeDecode:
		return "🧩"
	default:
		return "💥"
	}
}

// Classify maps an error returned by Client.Fetch to its Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return OutcomeHTTPStatus
	}
	if errors.Is(err, ErrDecode) {
		return OutcomeDecode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return OutcomeConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return OutcomeConnection
	}

	return OutcomeUnexpected
}
