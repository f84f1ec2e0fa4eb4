// Package fixtures generates newline-delimited event data for tests.
package fixtures

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Records returns n distinct records of exactly size bytes each, including the
// trailing newline. size must leave room for the record number.
func Records(n, size int) []string {
	records := make([]string, n)
	for i := range records {
		prefix := fmt.Sprintf("%08d ts=2024-01-01T00:00:00Z ", i)
		pad := size - len(prefix) - 1
		if pad < 0 {
			panic(fmt.Sprintf("fixtures: record size %d too small", size))
		}
		records[i] = prefix + strings.Repeat("x", pad)
	}
	return records
}

// Stream joins records into a newline-terminated event stream.
func Stream(records []string) string {
	if len(records) == 0 {
		return ""
	}
	return strings.Join(records, "\n") + "\n"
}

// WriteEventFile writes records to a file in a fresh temporary directory and
// returns its path.
func WriteEventFile(t *testing.T, records []string) string {
	t.Helper()
	return WriteFile(t, "events.log", Stream(records))
}

// WriteFile writes content to name in a fresh temporary directory and returns its path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", name, err)
	}
	return path
}

// ReadLines returns the newline-separated lines of a file without the trailing empty line.
func ReadLines(t *testing.T, path string) []string {
	t.Helper()
	// #nosec G304 -- test fixture path.
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	lines := strings.Split(string(content), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
