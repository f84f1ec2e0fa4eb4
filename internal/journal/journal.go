// Package journal records transfer progress as NDJSON so a partly delivered
// upload can be inspected after the fact.
//
// Files rotate daily and are named journal-YYYY-MM-DD.ndjson. Every sent or
// failed chunk produces one "chunk" entry; the end of every transfer produces
// one "transfer" entry.
package journal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gzillgi/splunkutils/internal/forwarder"
)

// Entry kinds.
const (
	KindChunk    = "chunk"
	KindTransfer = "transfer"
)

// Entry is one journal line.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	Channel   string `json:"channel"`

	Seq   int  `json:"seq,omitempty"`
	Bytes int  `json:"bytes,omitempty"`
	Final bool `json:"final,omitempty"`

	BytesRead int64 `json:"bytes_read,omitempty"`
	BytesSent int64 `json:"bytes_sent,omitempty"`
	Chunks    int64 `json:"chunks,omitempty"`

	StatusCode int    `json:"status_code,omitempty"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Writer appends journal entries to the current day's file.
//
// Writer is safe for concurrent use by multiple goroutines.
type Writer struct {
	baseDir string
	file    *os.File
	curDay  string
	now     func() time.Time
	mu      sync.Mutex
}

var _ forwarder.Sink = (*Writer)(nil)

// New creates a Writer for dir, creating the directory if needed.
func New(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory %s: %w", dir, err)
	}
	return &Writer{baseDir: dir, now: time.Now}, nil
}

// ChunkSent records one chunk outcome.
func (w *Writer) ChunkSent(r forwarder.ChunkReport) error {
	e := Entry{
		Kind:       KindChunk,
		Channel:    r.Channel,
		Seq:        r.Seq,
		Bytes:      r.Bytes,
		Final:      r.Final,
		StatusCode: r.Response.StatusCode,
		Status:     r.Response.Status,
	}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	return w.Write(e)
}

// TransferDone records the aggregate outcome of a transfer.
func (w *Writer) TransferDone(channel string, result forwarder.TransferResult, err error) error {
	e := Entry{
		Kind:       KindTransfer,
		Channel:    channel,
		BytesRead:  result.BytesRead,
		BytesSent:  result.BytesSent,
		Chunks:     result.Chunks,
		StatusCode: result.LastResponse.StatusCode,
		Status:     result.LastResponse.Status,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return w.Write(e)
}

// Write stamps e with the current UTC time and appends it.
func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now().UTC()
	if err := w.rotate(now.Format("2006-01-02")); err != nil {
		return err
	}

	e.Timestamp = now.Format(time.RFC3339Nano)
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	return nil
}

func (w *Writer) rotate(day string) error {
	if day == w.curDay && w.file != nil {
		return nil
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return err
		}
		w.file = nil
	}

	name := filepath.Join(w.baseDir, "journal-"+day+".ndjson")
	// #nosec G304 -- baseDir comes from configuration, day from the clock.
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	slog.Info("opened transfer journal", "path", name)
	w.file = f
	w.curDay = day
	return nil
}

// CurrentFile returns the path of the open journal file, or "" before the first write.
func (w *Writer) CurrentFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

// Close closes the open journal file, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.curDay = ""
	return err
}

// ReadFile decodes every entry in a journal file.
func ReadFile(path string) ([]Entry, error) {
	// #nosec G304 -- path is supplied by the caller.
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	dec := json.NewDecoder(f)
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return entries, fmt.Errorf("decode journal %s: %w", path, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
