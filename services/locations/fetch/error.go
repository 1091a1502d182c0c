package fetch

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindHttpStatus ErrorKind = "http_status"
	KindConnection ErrorKind = "connection"
)

// Error is a per-page fetch failure. Whether a single failed page is
// fatal for the run is the navigator's call, not ours.
type Error struct {
	URL      string
	Attempts int
	Kind     ErrorKind
	// only set when Kind == KindHttpStatus
	Status int
	cause  error
}

func (e *Error) Error() string {
	if e.Kind == KindHttpStatus {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.Status, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.URL, e.Kind, e.Attempts, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func attributeDelay(attempt int, delay time.Duration) []trace.EventOption {
	return []trace.EventOption{trace.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.String("delay", delay.String()),
	)}
}
