// Package splunkutils sends newline-delimited events to a Splunk HTTP Event Collector.
// Large event files are split into bounded payloads that never cut a record in two.
package splunkutils

import (
	"fmt"
)

// AppName is the name of the command-line binary.
const AppName = "splunkutils"

var (
	version string
	build   string
)

// Version returns the application version and build information.
// The version and build values are injected at compile time via ldflags.
func Version() string {
	return fmt.Sprintf("%s (%s)", version, build)
}
