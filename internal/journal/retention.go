package journal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Retention bounds how long journal files are kept. Ages are in whole days;
// zero disables the corresponding step.
type Retention struct {
	MaxAge      int
	CompressAge int
}

// Enabled reports whether either step is configured.
func (r Retention) Enabled() bool {
	return r.MaxAge > 0 || r.CompressAge > 0
}

// Sweep is the outcome of one retention pass.
type Sweep struct {
	Deleted    int
	Compressed int
	BytesFreed int64
}

// Apply deletes journal files in dir older than MaxAge days and gzips those
// older than CompressAge days. The file for the current day is never touched.
func (r Retention) Apply(dir string, now time.Time) (Sweep, error) {
	var s Sweep
	if !r.Enabled() {
		return s, nil
	}

	today := dayStart(now)
	var deleteCutoff, compressCutoff time.Time
	if r.MaxAge > 0 {
		deleteCutoff = today.AddDate(0, 0, -r.MaxAge)
	}
	if r.CompressAge > 0 {
		compressCutoff = today.AddDate(0, 0, -r.CompressAge)
	}

	patterns := []string{
		filepath.Join(dir, "journal-????-??-??.ndjson"),
		filepath.Join(dir, "journal-????-??-??.ndjson.gz"),
	}
	for _, pattern := range patterns {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return s, fmt.Errorf("list journal files: %w", err)
		}

		for _, file := range files {
			day := dateFromName(file)
			if day.IsZero() {
				slog.Warn("failed to parse date from journal file name", "file", file)
				continue
			}

			if !deleteCutoff.IsZero() && day.Before(deleteCutoff) {
				size, err := deleteFile(file)
				if err != nil {
					slog.Error("failed to delete old journal file", "file", file, "error", err)
					continue
				}
				s.Deleted++
				s.BytesFreed += size
				slog.Info("deleted old journal file", "file", filepath.Base(file), "size_bytes", size)
				continue
			}

			if !compressCutoff.IsZero() && day.Before(compressCutoff) && !strings.HasSuffix(file, ".gz") {
				orig, compressed, err := compressFile(file)
				if err != nil {
					slog.Error("failed to compress journal file", "file", file, "error", err)
					continue
				}
				s.Compressed++
				s.BytesFreed += orig - compressed
				slog.Info("compressed old journal file",
					"file", filepath.Base(file),
					"original_size", orig,
					"compressed_size", compressed)
			}
		}
	}

	slog.Debug("journal retention complete",
		"dir", dir,
		"files_deleted", s.Deleted,
		"files_compressed", s.Compressed,
		"bytes_freed", s.BytesFreed)
	return s, nil
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dateFromName extracts the day from journal-YYYY-MM-DD.ndjson[.gz].
func dateFromName(path string) time.Time {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, ".ndjson")
	base = strings.TrimPrefix(base, "journal-")

	day, err := time.Parse("2006-01-02", base)
	if err != nil {
		return time.Time{}
	}
	return day
}

func deleteFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return 0, fmt.Errorf("failed to remove file: %w", err)
	}
	return info.Size(), nil
}

// compressFile gzips path to path.gz and removes the original.
func compressFile(path string) (origSize, compressedSize int64, err error) {
	// #nosec G304 -- path matched the journal file pattern.
	in, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer in.Close()

	outputPath := path + ".gz"
	// #nosec G304 -- derived from a journal file name.
	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create gzip file: %w", err)
	}

	zw := gzip.NewWriter(out)
	origSize, err = io.Copy(zw, in)
	if err == nil {
		err = zw.Close()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(outputPath)
		return 0, 0, fmt.Errorf("failed to write compressed data: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stat compressed file: %w", err)
	}

	if err := os.Remove(path); err != nil {
		slog.Warn("compressed journal file but failed to delete original",
			"file", path,
			"compressed", outputPath,
			"error", err)
	}
	return origSize, info.Size(), nil
}
