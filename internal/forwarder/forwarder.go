package forwarder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/gzillgi/splunkutils/internal/chunker"
	"github.com/gzillgi/splunkutils/internal/destination"
	"github.com/gzillgi/splunkutils/internal/event"
	"github.com/gzillgi/splunkutils/internal/metrics"
	"github.com/gzillgi/splunkutils/internal/source"
)

// MaxPayloadBytes is the largest request body sent to HEC: the collector's
// 1,000,000 byte default limit less 16 KiB for headers. The limit applies to the
// uncompressed body including the terminator SendChunk adds to an unterminated chunk.
const MaxPayloadBytes = 1_000_000 - 16*1024

// ChannelHeader carries the per-run correlation id.
const ChannelHeader = "x-splunk-request-channel"

// ErrPayloadTooLarge is returned by SendChunk for a chunk above MaxPayloadBytes.
// Nothing is sent when it is returned.
var ErrPayloadTooLarge = errors.New("payload exceeds maximum HEC request size")

// Config contains configuration for the Splunk HEC uploader
type Config struct {
	Destination destination.Destination
	Token       string
	// Channel is generated when empty.
	Channel string

	// BlockSize is the number of bytes read from the event source per chunk.
	BlockSize int
	// SplitOversized sends a record longer than BlockSize in pieces instead of
	// failing the transfer.
	SplitOversized bool

	UseGzip bool
	// KeepAlive reuses connections across chunks. By default every chunk gets
	// its own connection.
	KeepAlive bool
	// ClientTimeout bounds each request. Zero leaves requests without a timeout.
	ClientTimeout time.Duration

	// Sink receives per-chunk and per-transfer reports. Defaults to LogSink.
	Sink Sink
	// Opener opens event sources for SendFile.
	Opener *source.Opener
}

// Session holds the credentials and correlation id shared by every request of
// one uploader.
type Session struct {
	Token   string
	Channel string
}

// Response is the status line returned by HEC for one request.
type Response struct {
	StatusCode int
	Status     string
}

// OK reports whether the request was accepted.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r Response) String() string {
	return r.Status
}

// StatusError is returned when HEC answers with a non-2xx status.
type StatusError struct {
	Response Response
}

func (e *StatusError) Error() string {
	return "HEC responded " + e.Response.Status
}

// TransferResult accumulates the outcome of one SendAll call.
type TransferResult struct {
	BytesRead    int64
	BytesSent    int64
	Chunks       int64
	LastResponse Response
}

// HEC represents a Splunk HTTP Event Collector uploader
type HEC struct {
	config  Config
	session Session
	url     string
	client  *http.Client
	sink    Sink
	opener  *source.Opener
}

var _ Uploader = (*HEC)(nil)

// New creates a new HEC uploader. The correlation channel is generated here,
// once, unless config supplies one.
func New(config Config) *HEC {
	if config.BlockSize <= 0 {
		config.BlockSize = chunker.DefaultBlockSize
	}
	if config.Channel == "" {
		config.Channel = uuid.NewString()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = !config.KeepAlive

	h := &HEC{
		config:  config,
		session: Session{Token: config.Token, Channel: config.Channel},
		url:     config.Destination.URL(),
		client:  &http.Client{Timeout: config.ClientTimeout, Transport: transport},
		sink:    config.Sink,
		opener:  config.Opener,
	}
	if h.sink == nil {
		h.sink = LogSink{}
	}
	if h.opener == nil {
		h.opener = &source.Opener{}
	}
	return h
}

// Channel returns the correlation id sent with every request.
func (h *HEC) Channel() string {
	return h.session.Channel
}

// URL returns the URL chunks are posted to.
func (h *HEC) URL() string {
	return h.url
}

// SendChunk posts one chunk of newline-delimited events and returns the HEC status line.
// A body above MaxPayloadBytes is rejected with ErrPayloadTooLarge before any I/O.
func (h *HEC) SendChunk(chunk []byte) (Response, error) {
	payload := terminate(chunk)
	if len(payload) > MaxPayloadBytes {
		metrics.OversizedChunks.Add(1)
		return Response{}, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadBytes)
	}

	body, contentEnc, err := h.encodeBody(payload)
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequest(http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Close = !h.config.KeepAlive

	req.Header.Set("Authorization", "Splunk "+h.session.Token)
	req.Header.Set(ChannelHeader, h.session.Channel)
	req.Header.Set("Content-Type", "text/plain")
	if contentEnc != "" {
		req.Header.Set("Content-Encoding", contentEnc)
	}

	slog.Debug("sending chunk to HEC", "channel", h.session.Channel, "url", h.url, "bytes", len(chunk))

	resp, err := h.client.Do(req)
	if err != nil {
		metrics.HecRequests.Add("failure", 1)
		return Response{}, fmt.Errorf("post to HEC: %w", err)
	}
	defer resp.Body.Close()

	// Drain the body; only the status line is reported.
	_, _ = io.Copy(io.Discard, resp.Body)

	result := Response{StatusCode: resp.StatusCode, Status: resp.Status}
	metrics.HecResponses.Add(strconv.Itoa(resp.StatusCode), 1)
	slog.Debug("HEC response", "channel", h.session.Channel, "status", resp.Status)

	if !result.OK() {
		metrics.HecRequests.Add("failure", 1)
		return result, &StatusError{Response: result}
	}

	metrics.HecRequests.Add("success", 1)
	metrics.HecBytesSent.Add(int64(len(chunk)))
	return result, nil
}

// terminate returns chunk with its last record newline-terminated.
func terminate(chunk []byte) []byte {
	if len(chunk) == 0 || chunk[len(chunk)-1] == chunker.RecordTerminator {
		return chunk
	}
	payload := make([]byte, 0, len(chunk)+1)
	payload = append(payload, chunk...)
	return append(payload, chunker.RecordTerminator)
}

// encodeBody compresses payload when gzip is enabled.
func (h *HEC) encodeBody(payload []byte) ([]byte, string, error) {
	if !h.config.UseGzip {
		return payload, "", nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, "", err
	}
	if err := zw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "gzip", nil
}

// SendAll reads r to the end in bounded chunks and posts each one in turn.
//
// The transfer stops at the first read or send failure and returns the result
// accumulated so far; chunks already accepted by HEC stay delivered.
func (h *HEC) SendAll(r io.Reader) (TransferResult, error) {
	cr := chunker.NewReader(r, h.config.BlockSize)
	cr.SplitOversized(h.config.SplitOversized)

	var result TransferResult
	err := h.sendChunks(cr, &result)
	result.BytesRead = cr.BytesRead()
	metrics.BytesRead.Add(result.BytesRead)

	if err != nil {
		metrics.Transfers.Add("failure", 1)
	} else {
		metrics.Transfers.Add("success", 1)
	}

	if sinkErr := h.sink.TransferDone(h.session.Channel, result, err); sinkErr != nil {
		slog.Warn("failed to report transfer result", "channel", h.session.Channel, "error", sinkErr)
	}
	return result, err
}

func (h *HEC) sendChunks(cr *chunker.Reader, result *TransferResult) error {
	for seq := 1; ; seq++ {
		chunk, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read chunk %d: %w", seq, err)
		}
		metrics.ChunksRead.Add(1)

		// The final read can come back empty when the previous block ended the stream exactly.
		if chunk.Len() > 0 {
			resp, err := h.SendChunk(chunk.Data)
			report := ChunkReport{
				Channel:  h.session.Channel,
				Seq:      seq,
				Bytes:    chunk.Len(),
				Final:    chunk.Final,
				Response: resp,
				Err:      err,
			}
			if sinkErr := h.sink.ChunkSent(report); sinkErr != nil {
				slog.Warn("failed to report chunk", "channel", h.session.Channel, "seq", seq, "error", sinkErr)
			}
			if resp.StatusCode != 0 {
				result.LastResponse = resp
			}
			if err != nil {
				return fmt.Errorf("send chunk %d: %w", seq, err)
			}
			result.Chunks++
			result.BytesSent += int64(chunk.Len())
		}

		if chunk.Final {
			return nil
		}
	}
}

// SendFile uploads the event source at path (a local file or s3://bucket/key).
// The stream is closed before SendFile returns, on every path.
func (h *HEC) SendFile(path string) (TransferResult, error) {
	rc, err := h.opener.Open(context.Background(), path)
	if err != nil {
		return TransferResult{}, err
	}
	defer func() {
		if err := rc.Close(); err != nil {
			slog.Warn("failed to close event source", "path", path, "error", err)
		}
	}()

	slog.Debug("sending file of events", "path", path, "uploader", h.String())
	return h.SendAll(rc)
}

// SendEvent sends a single raw event unmodified.
func (h *HEC) SendEvent(raw string) (Response, error) {
	return h.SendChunk([]byte(raw))
}

// SendFields sends one event built from fields, delimited with event.DefaultDelimiter
// and stamped with the current time.
func (h *HEC) SendFields(fields event.Fields) (Response, error) {
	return h.SendEvent(event.NewBuilder(event.DefaultDelimiter).AddFields(fields).String())
}

// SendEvents sends events in a single request, each newline-terminated.
func (h *HEC) SendEvents(events []string) (Response, error) {
	return h.SendChunk([]byte(event.Join(events)))
}

// HealthCheck verifies that the HEC endpoint and token are valid
func (h *HEC) HealthCheck() error {
	if h.session.Token == "" {
		return errors.New("HEC token not configured")
	}

	req, err := http.NewRequest(http.MethodGet, h.config.Destination.HealthURL(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Splunk "+h.session.Token)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusForbidden {
			return errors.New("invalid Splunk HEC token (403 Forbidden)")
		}
		return errors.New("HEC health check failed with status: " + resp.Status)
	}
	return nil
}

// String describes the uploader for diagnostics. The token is not included.
func (h *HEC) String() string {
	d := h.config.Destination
	var src, sourceType, index string
	for _, p := range d.Query {
		switch p.Name {
		case "source":
			src = p.Value
		case "sourcetype":
			sourceType = p.Value
		case "index":
			index = p.Value
		}
	}
	return "source=" + src +
		"; sourcetype=" + sourceType +
		"; index=" + index +
		"; channel=" + h.session.Channel +
		"; url=" + h.url
}
