// Package metrics exposes upload counters through expvar.
package metrics

import (
	"expvar"
	"time"
)

var (
	// Transfer metrics
	Transfers       = expvar.NewMap("transfers")
	BytesRead       = expvar.NewInt("bytes_read_total")
	ChunksRead      = expvar.NewInt("chunks_read_total")
	OversizedChunks = expvar.NewInt("oversized_chunks_total")

	// HEC metrics
	HecRequests  = expvar.NewMap("hec_requests")
	HecResponses = expvar.NewMap("hec_responses")
	HecBytesSent = expvar.NewInt("hec_bytes_sent_total")

	// System metrics
	StartTime = expvar.NewInt("start_time_seconds")
	Version   = expvar.NewString("version_info")
)

// Init initialises system metrics that should be set once at startup.
func Init(versionString string) {
	StartTime.Set(time.Now().Unix())
	Version.Set(versionString)
}
