// Package hecmock provides an in-process Splunk HEC raw endpoint for tests.
package hecmock

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// RawPath is the collector path prefix accepted for uploads. Both
// /services/collector/raw and /services/collector/raw/1.0 match.
const RawPath = "/services/collector/raw"

// HealthPath answers health checks.
const HealthPath = "/services/collector/health"

// ChannelHeader mirrors the header the uploader sends on every request.
const ChannelHeader = "x-splunk-request-channel"

// ResponseMode selects how the server answers upload requests.
type ResponseMode int

const (
	// ResponseOK returns 200 OK
	ResponseOK ResponseMode = iota
	// ResponseBadRequest returns 400 Bad Request
	ResponseBadRequest
	// ResponseUnauthorised returns 401 Unauthorised
	ResponseUnauthorised
	// ResponseForbidden returns 403 Forbidden
	ResponseForbidden
	// ResponseServerError returns 500 Internal Server Error
	ResponseServerError
	// ResponseServiceUnavailable returns 503 Service Unavailable
	ResponseServiceUnavailable
	// ResponseDrop drops the connection without responding
	ResponseDrop
)

func (r ResponseMode) String() string {
	switch r {
	case ResponseOK:
		return "ok"
	case ResponseBadRequest:
		return "bad-request"
	case ResponseUnauthorised:
		return "unauthorised"
	case ResponseForbidden:
		return "forbidden"
	case ResponseServerError:
		return "server-error"
	case ResponseServiceUnavailable:
		return "service-unavailable"
	case ResponseDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// RecordedRequest is one accepted upload.
type RecordedRequest struct {
	Timestamp  time.Time
	Path       string
	Query      url.Values
	RawQuery   string
	Channel    string
	Headers    http.Header
	Body       []byte
	BodyLines  []string
	Compressed bool
	// Close reports whether the client asked for the connection to be closed.
	Close bool
}

// Server simulates a Splunk HEC raw endpoint.
type Server struct {
	Server *httptest.Server
	URL    string
	Token  string

	mu           sync.Mutex
	responseMode ResponseMode
	failAfter    int
	delay        time.Duration
	requests     []RecordedRequest

	logger *slog.Logger
}

// New starts a server expecting token.
func New(token string) *Server {
	m := &Server{
		Token:     token,
		failAfter: -1,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handler))
	m.URL = m.Server.URL
	return m
}

// NewVerbose starts a server that logs every request through the default slog logger.
func NewVerbose(token string) *Server {
	m := New(token)
	m.logger = slog.Default().With("component", "hecmock")
	return m
}

// RawURL returns the versioned raw endpoint URL of the server.
func (m *Server) RawURL() string {
	return m.URL + RawPath + "/1.0"
}

// HostPort returns the host and port the server listens on.
func (m *Server) HostPort() (string, string) {
	u, _ := url.Parse(m.URL)
	return u.Hostname(), u.Port()
}

func (m *Server) handler(w http.ResponseWriter, r *http.Request) {
	m.logger.Info("request received", "method", r.Method, "path", r.URL.Path)

	if d := m.getDelay(); d > 0 {
		time.Sleep(d)
	}

	if r.URL.Path == HealthPath {
		m.health(w, r)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != RawPath && !strings.HasPrefix(r.URL.Path, RawPath+"/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Header.Get("Authorization") != "Splunk "+m.Token {
		m.logger.Warn("auth failed", "received", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	mode := m.nextMode()
	if mode == ResponseDrop {
		m.drop(w)
		return
	}

	var body io.Reader = r.Body
	compressed := r.Header.Get("Content-Encoding") == "gzip"
	if compressed {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, "Invalid gzip content", http.StatusBadRequest)
			return
		}
		defer zr.Close()
		body = zr
	}

	data, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Timestamp:  time.Now(),
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		RawQuery:   r.URL.RawQuery,
		Channel:    r.Header.Get(ChannelHeader),
		Headers:    r.Header.Clone(),
		Body:       data,
		BodyLines:  lines,
		Compressed: compressed,
		Close:      r.Close,
	})
	m.mu.Unlock()

	m.logger.Info("request recorded", "lines", len(lines), "bytes", len(data), "compressed", compressed)
	writeMode(w, mode)
}

func (m *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("Authorization") != "Splunk "+m.Token {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"text":"HEC is healthy","code":17}`)
}

func (m *Server) drop(w http.ResponseWriter) {
	m.logger.Info("connection dropped")
	if hj, ok := w.(http.Hijacker); ok {
		if conn, _, err := hj.Hijack(); err == nil {
			_ = conn.Close()
			return
		}
	}
	w.WriteHeader(http.StatusInternalServerError)
}

func writeMode(w http.ResponseWriter, mode ResponseMode) {
	w.Header().Set("Content-Type", "application/json")
	switch mode {
	case ResponseBadRequest:
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"text":"Invalid request","code":5}`)
	case ResponseUnauthorised:
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"text":"Unauthorised","code":2}`)
	case ResponseForbidden:
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"text":"Forbidden","code":3}`)
	case ResponseServerError:
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"text":"Internal server error","code":8}`)
	case ResponseServiceUnavailable:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"text":"Service unavailable","code":9}`)
	default:
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"text":"Success","code":0}`)
	}
}

// SetResponse sets the response mode for subsequent requests.
func (m *Server) SetResponse(mode ResponseMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseMode = mode
	m.failAfter = -1
}

// FailAfter answers the first n uploads with 200 and every later one with mode.
func (m *Server) FailAfter(n int, mode ResponseMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseMode = mode
	m.failAfter = n
}

// SetDelay sets a delay before responding to requests.
func (m *Server) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Requests returns a copy of the recorded uploads.
func (m *Server) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]RecordedRequest, len(m.requests))
	copy(result, m.requests)
	return result
}

// RequestCount returns the number of recorded uploads.
func (m *Server) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Reset clears recorded uploads and restores the default behaviour.
func (m *Server) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.responseMode = ResponseOK
	m.failAfter = -1
	m.delay = 0
}

// Close shuts down the server.
func (m *Server) Close() {
	m.Server.Close()
}

func (m *Server) getDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delay
}

// nextMode picks the mode for the upload about to be recorded.
func (m *Server) nextMode() ResponseMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter >= 0 && len(m.requests) < m.failAfter {
		return ResponseOK
	}
	return m.responseMode
}
