package forwarder

import (
	"errors"
	"log/slog"

	"github.com/dustin/go-humanize"
)

// ChunkReport describes the outcome of sending one chunk.
type ChunkReport struct {
	Channel  string
	Seq      int
	Bytes    int
	Final    bool
	Response Response
	Err      error
}

// Sink receives the results of a transfer as it progresses.
type Sink interface {
	// ChunkSent is called once per chunk that was sent or failed to send.
	ChunkSent(report ChunkReport) error
	// TransferDone is called once when SendAll returns. err is the transfer error, if any.
	TransferDone(channel string, result TransferResult, err error) error
}

// LogSink reports through the default slog logger.
type LogSink struct{}

// ChunkSent logs the chunk outcome at debug level, or at error level when it failed.
func (LogSink) ChunkSent(r ChunkReport) error {
	if r.Err != nil {
		slog.Error("chunk failed", "channel", r.Channel, "seq", r.Seq, "bytes", r.Bytes, "error", r.Err)
		return nil
	}
	slog.Debug("chunk sent", "channel", r.Channel, "seq", r.Seq, "bytes", r.Bytes, "status", r.Response.Status)
	return nil
}

// TransferDone logs the aggregate transfer statistics.
func (LogSink) TransferDone(channel string, result TransferResult, err error) error {
	attrs := []any{
		"channel", channel,
		"bytes_read", result.BytesRead,
		"bytes_sent", result.BytesSent,
		"chunks", result.Chunks,
		"read", humanize.Bytes(uint64(result.BytesRead)),
		"sent", humanize.Bytes(uint64(result.BytesSent)),
		"response", result.LastResponse.Status,
	}
	if err != nil {
		slog.Error("transfer stopped", append(attrs, "error", err)...)
		return nil
	}
	slog.Info("transfer complete", attrs...)
	return nil
}

// MultiSink fans reports out to several sinks. Every sink is called even when
// an earlier one fails.
type MultiSink []Sink

// ChunkSent forwards the report to every sink.
func (m MultiSink) ChunkSent(r ChunkReport) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.ChunkSent(r))
	}
	return errors.Join(errs...)
}

// TransferDone forwards the result to every sink.
func (m MultiSink) TransferDone(channel string, result TransferResult, err error) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.TransferDone(channel, result, err))
	}
	return errors.Join(errs...)
}
