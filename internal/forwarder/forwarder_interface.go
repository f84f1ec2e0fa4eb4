// Package forwarder uploads newline-delimited events to a Splunk HTTP Event Collector.
package forwarder

import (
	"github.com/gzillgi/splunkutils/internal/event"
)

// Uploader defines the operations the command line drives against an HEC endpoint.
// HEC is the production implementation.
type Uploader interface {
	// SendFile uploads every record of the event source at path, one bounded chunk per request.
	// It returns the accumulated result even when the transfer stops at a failed chunk.
	SendFile(path string) (TransferResult, error)

	// SendEvent sends a single raw event unmodified.
	SendEvent(raw string) (Response, error)

	// SendFields sends one event rendered from ordered field/value pairs.
	SendFields(fields event.Fields) (Response, error)

	// SendEvents sends several events in one request, each newline-terminated.
	SendEvents(events []string) (Response, error)

	// HealthCheck verifies that the HEC endpoint is reachable and accepts the token.
	HealthCheck() error

	// Channel returns the correlation id sent with every request.
	Channel() string
}
