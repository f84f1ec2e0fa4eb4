//go:build integration

package integration

import (
	"testing"

	"github.com/gzillgi/splunkutils/internal/testutil/clitest"
	"github.com/gzillgi/splunkutils/internal/testutil/fixtures"
	"github.com/gzillgi/splunkutils/internal/testutil/hecmock"
)

// TestGzipCompression validates that request bodies are compressed when enabled.
func TestGzipCompression(t *testing.T) {
	hec := hecmock.New("test-token-gzip")
	defer hec.Close()
	host, port := hec.HostPort()

	cli := clitest.New(t,
		clitest.WithHEC(host, port, "test-token-gzip", "", true),
	)

	records := fixtures.Records(20, 64)
	res := cli.Run("send", fixtures.WriteEventFile(t, records))
	if res.ExitCode != 0 {
		t.Fatalf("Expected exit code 0, got %d: stderr=%s", res.ExitCode, res.Stderr)
	}

	requests := hec.Requests()
	if len(requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(requests))
	}
	if !requests[0].Compressed {
		t.Error("Expected request to be gzip compressed")
	}
	if len(requests[0].BodyLines) != len(records) {
		t.Errorf("Expected %d decompressed records, got %d", len(records), len(requests[0].BodyLines))
	}
}

// TestNoGzipCompression validates that bodies are plain text by default.
func TestNoGzipCompression(t *testing.T) {
	hec := hecmock.New("test-token-plain")
	defer hec.Close()
	host, port := hec.HostPort()

	cli := clitest.New(t,
		clitest.WithHEC(host, port, "test-token-plain", "", false),
	)

	res := cli.Run("send", fixtures.WriteEventFile(t, fixtures.Records(5, 64)))
	if res.ExitCode != 0 {
		t.Fatalf("Expected exit code 0, got %d: stderr=%s", res.ExitCode, res.Stderr)
	}

	for i, req := range hec.Requests() {
		if req.Compressed {
			t.Errorf("Request %d should not be compressed", i)
		}
		if got := req.Headers.Get("Content-Type"); got != "text/plain" {
			t.Errorf("Request %d Content-Type = %q", i, got)
		}
	}
}
