package forwarder

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzillgi/splunkutils/internal/chunker"
	"github.com/gzillgi/splunkutils/internal/destination"
	"github.com/gzillgi/splunkutils/internal/event"
	"github.com/gzillgi/splunkutils/internal/source"
	"github.com/gzillgi/splunkutils/internal/testutil/fixtures"
	"github.com/gzillgi/splunkutils/internal/testutil/hecmock"
)

const testToken = "00000000-test-token"

type recordingSink struct {
	mu      sync.Mutex
	chunks  []ChunkReport
	done    []TransferResult
	doneErr []error
}

func (s *recordingSink) ChunkSent(r ChunkReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, r)
	return nil
}

func (s *recordingSink) TransferDone(_ string, result TransferResult, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = append(s.done, result)
	s.doneErr = append(s.doneErr, err)
	return nil
}

func newTestHEC(t *testing.T, server *hecmock.Server, mutate func(*Config)) *HEC {
	t.Helper()
	host, port := server.HostPort()
	cfg := Config{
		Destination: destination.Resolve("http:", host, port, "services/collector/raw/1.0", destination.Overrides{}),
		Token:       testToken,
		BlockSize:   chunker.DefaultBlockSize,
		Sink:        &recordingSink{},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func records(n, size int) string {
	return fixtures.Stream(fixtures.Records(n, size))
}

func TestNew_Defaults(t *testing.T) {
	h := New(Config{Token: testToken})

	_, err := uuid.Parse(h.Channel())
	assert.NoError(t, err, "channel is a generated UUID")
	assert.Equal(t, chunker.DefaultBlockSize, h.config.BlockSize)
	assert.IsType(t, LogSink{}, h.sink)
	assert.NotNil(t, h.opener)
	assert.Zero(t, h.client.Timeout)
}

func TestNew_KeepsSuppliedChannel(t *testing.T) {
	h := New(Config{Token: testToken, Channel: "fixed-channel"})
	assert.Equal(t, "fixed-channel", h.Channel())
}

func TestNew_ChannelPerUploader(t *testing.T) {
	a := New(Config{Token: testToken})
	b := New(Config{Token: testToken})
	assert.NotEqual(t, a.Channel(), b.Channel())
}

func TestSendAll_LargeStream(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()

	sink := &recordingSink{}
	h := newTestHEC(t, server, func(c *Config) {
		c.Destination = destination.Resolve("http:", c.Destination.Host, c.Destination.Port,
			"services/collector/raw/1.0", destination.Overrides{Source: "app", SourceType: "app:log"})
		c.Sink = sink
	})

	input := records(1050, 1000)
	require.Len(t, input, 1_050_000)

	result, err := h.SendAll(strings.NewReader(input))
	require.NoError(t, err)

	assert.EqualValues(t, 1_050_000, result.BytesRead)
	assert.Equal(t, result.BytesRead, result.BytesSent)
	assert.EqualValues(t, 3, result.Chunks)
	assert.Equal(t, http.StatusOK, result.LastResponse.StatusCode)

	reqs := server.Requests()
	require.Len(t, reqs, 3)

	var lines int
	for i, r := range reqs {
		assert.Equal(t, "Splunk "+testToken, r.Headers.Get("Authorization"))
		assert.Equal(t, h.Channel(), r.Channel, "request %d", i)
		assert.Equal(t, "source=app&sourcetype=app:log", r.RawQuery)
		assert.Equal(t, "text/plain", r.Headers.Get("Content-Type"))
		assert.True(t, r.Close, "each chunk uses its own connection")
		assert.True(t, strings.HasSuffix(string(r.Body), "\n"))
		lines += len(r.BodyLines)
	}
	assert.Equal(t, 1050, lines)
	assert.Len(t, reqs[0].Body, 524_000)
	assert.Len(t, reqs[2].Body, 2_000)

	require.Len(t, sink.chunks, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{sink.chunks[0].Seq, sink.chunks[1].Seq, sink.chunks[2].Seq})
	assert.True(t, sink.chunks[2].Final)
	require.Len(t, sink.done, 1)
	assert.NoError(t, sink.doneErr[0])
	assert.Equal(t, result, sink.done[0])
}

func TestSendAll_EmptyStream(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	h := newTestHEC(t, server, nil)

	result, err := h.SendAll(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, TransferResult{}, result)
	assert.Zero(t, server.RequestCount())
}

func TestSendAll_StopsOnStatusError(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	server.FailAfter(1, hecmock.ResponseServerError)

	sink := &recordingSink{}
	h := newTestHEC(t, server, func(c *Config) {
		c.BlockSize = 1000
		c.Sink = sink
	})

	result, err := h.SendAll(strings.NewReader(records(10, 500)))
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Response.StatusCode)

	assert.EqualValues(t, 1, result.Chunks)
	assert.EqualValues(t, 1000, result.BytesSent)
	assert.Equal(t, http.StatusInternalServerError, result.LastResponse.StatusCode)
	assert.Equal(t, 2, server.RequestCount(), "no chunk is sent after the failure")

	require.Len(t, sink.chunks, 2)
	assert.Error(t, sink.chunks[1].Err)
	require.Len(t, sink.doneErr, 1)
	assert.ErrorIs(t, sink.doneErr[0], err)
}

func TestSendAll_TransportError(t *testing.T) {
	server := hecmock.New(testToken)
	h := newTestHEC(t, server, nil)
	server.Close()

	result, err := h.SendAll(strings.NewReader("a\nb\n"))
	require.Error(t, err)

	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
	assert.Zero(t, result.Chunks)
	assert.Zero(t, result.LastResponse.StatusCode)
}

func TestSendAll_RecordTooLarge(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	h := newTestHEC(t, server, func(c *Config) { c.BlockSize = 16 })

	_, err := h.SendAll(strings.NewReader(strings.Repeat("z", 40) + "\n"))
	assert.ErrorIs(t, err, chunker.ErrRecordTooLarge)
	assert.Zero(t, server.RequestCount())
}

func TestSendAll_SplitOversized(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	h := newTestHEC(t, server, func(c *Config) {
		c.BlockSize = 16
		c.SplitOversized = true
	})

	input := strings.Repeat("z", 40) + "\n"
	result, err := h.SendAll(strings.NewReader(input))
	require.NoError(t, err)
	assert.EqualValues(t, len(input), result.BytesSent)
	assert.Greater(t, server.RequestCount(), 1)
}

func TestSendAll_ChunksFitOneRequest(t *testing.T) {
	withSizes := func(sizes ...int) string {
		var sb strings.Builder
		for _, size := range sizes {
			sb.WriteString(strings.Repeat("r", size-1))
			sb.WriteByte('\n')
		}
		return sb.String()
	}
	repeat := func(size, n int) []int {
		sizes := make([]int, n)
		for i := range sizes {
			sizes[i] = size
		}
		return sizes
	}

	tests := []struct {
		name      string
		blockSize int
		input     string
	}{
		{"max payload block", MaxPayloadBytes, withSizes(repeat(1000, 2000)...)},
		{"default block with block-sized record", chunker.DefaultBlockSize,
			withSizes(append([]int{10, chunker.DefaultBlockSize}, repeat(1000, 600)...)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := hecmock.New(testToken)
			defer server.Close()
			h := newTestHEC(t, server, func(c *Config) { c.BlockSize = tt.blockSize })

			result, err := h.SendAll(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.EqualValues(t, len(tt.input), result.BytesSent)

			var body strings.Builder
			for _, r := range server.Requests() {
				assert.LessOrEqual(t, len(r.Body), MaxPayloadBytes)
				body.Write(r.Body)
			}
			assert.Equal(t, tt.input, body.String())
		})
	}
}

func TestSendAll_BlockAboveMaxPayload(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	sink := &recordingSink{}
	h := newTestHEC(t, server, func(c *Config) {
		c.BlockSize = MaxPayloadBytes + 1000
		c.Sink = sink
	})

	result, err := h.SendAll(strings.NewReader(records(2000, 1000)))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Zero(t, result.Chunks)
	assert.Zero(t, server.RequestCount())
	require.Len(t, sink.chunks, 1)
	assert.ErrorIs(t, sink.chunks[0].Err, ErrPayloadTooLarge)
}

func TestSendChunk_TooLarge(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	h := newTestHEC(t, server, nil)

	resp, err := h.SendChunk(make([]byte, MaxPayloadBytes+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Zero(t, resp.StatusCode)
	assert.Zero(t, server.RequestCount())

	_, err = h.SendChunk([]byte(strings.Repeat("y", MaxPayloadBytes-1) + "\n"))
	assert.NoError(t, err)
}

func TestSendChunk_AddedTerminatorCountsTowardLimit(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	h := newTestHEC(t, server, nil)

	_, err := h.SendChunk([]byte(strings.Repeat("y", MaxPayloadBytes)))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Zero(t, server.RequestCount())

	_, err = h.SendChunk([]byte(strings.Repeat("y", MaxPayloadBytes-1)))
	require.NoError(t, err)
	reqs := server.Requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Body, MaxPayloadBytes)
}

func TestSendChunk_Gzip(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	h := newTestHEC(t, server, func(c *Config) { c.UseGzip = true })

	_, err := h.SendChunk([]byte("one\ntwo"))
	require.NoError(t, err)

	reqs := server.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Compressed)
	assert.Equal(t, "one\ntwo\n", string(reqs[0].Body))
}

func TestSendChunk_KeepAlive(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	h := newTestHEC(t, server, func(c *Config) { c.KeepAlive = true })

	_, err := h.SendChunk([]byte("x\n"))
	require.NoError(t, err)
	assert.False(t, server.Requests()[0].Close)
}

func TestSendEvent(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	h := newTestHEC(t, server, nil)

	resp, err := h.SendEvent("hello world")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "200 OK", resp.String())

	reqs := server.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "hello world\n", string(reqs[0].Body))
	assert.Equal(t, h.Channel(), reqs[0].Channel)
}

func TestSendEvent_Unauthorised(t *testing.T) {
	server := hecmock.New("other-token")
	defer server.Close()
	h := newTestHEC(t, server, nil)

	resp, err := h.SendEvent("x")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, err.Error(), "401")
}

func TestSendFields(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	h := newTestHEC(t, server, nil)

	_, err := h.SendFields(event.Fields{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}})
	require.NoError(t, err)

	body := string(server.Requests()[0].Body)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}[+-]\d{4}\|a="1"\|b="2"\n$`, body)
}

func TestSendEvents(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	h := newTestHEC(t, server, nil)

	_, err := h.SendEvents([]string{"first", "second"})
	require.NoError(t, err)

	reqs := server.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"first", "second"}, reqs[0].BodyLines)
}

func TestSendFile(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	h := newTestHEC(t, server, nil)

	path := fixtures.WriteFile(t, "events.log", "one\ntwo\nthree")

	result, err := h.SendFile(path)
	require.NoError(t, err)
	assert.EqualValues(t, 13, result.BytesRead)
	assert.EqualValues(t, 1, result.Chunks)
	assert.Equal(t, []string{"one", "two", "three"}, server.Requests()[0].BodyLines)
}

func TestSendFile_Missing(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	h := newTestHEC(t, server, nil)

	_, err := h.SendFile(filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)
	assert.Zero(t, server.RequestCount())
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

type stubS3 struct{ body *trackingBody }

func (s stubS3) GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: s.body}, nil
}

func TestSendFile_ClosesStreamOnFailure(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()
	server.SetResponse(hecmock.ResponseServiceUnavailable)

	body := &trackingBody{Reader: strings.NewReader("x\ny\n")}
	h := newTestHEC(t, server, func(c *Config) {
		c.Opener = &source.Opener{S3: stubS3{body: body}}
	})

	_, err := h.SendFile("s3://logs/app.log")
	require.Error(t, err)
	assert.True(t, body.closed)
}

func TestHealthCheck(t *testing.T) {
	server := hecmock.New(testToken)
	defer server.Close()

	assert.NoError(t, newTestHEC(t, server, nil).HealthCheck())

	bad := newTestHEC(t, server, func(c *Config) { c.Token = "wrong" })
	err := bad.HealthCheck()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	empty := newTestHEC(t, server, func(c *Config) { c.Token = "" })
	assert.Error(t, empty.HealthCheck())
}

func TestString_OmitsToken(t *testing.T) {
	h := New(Config{
		Destination: destination.Resolve("http:", "h", "8088", "p", destination.Overrides{Source: "S", Index: "main"}),
		Token:       testToken,
		Channel:     "c-1",
	})

	s := h.String()
	assert.NotContains(t, s, testToken)
	assert.Equal(t, "source=S; sourcetype=; index=main; channel=c-1; url=http://h:8088/p?source=S&index=main", s)
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := MultiSink{a, LogSink{}, b}

	require.NoError(t, m.ChunkSent(ChunkReport{Seq: 1}))
	require.NoError(t, m.TransferDone("c", TransferResult{Chunks: 1}, nil))

	assert.Len(t, a.chunks, 1)
	assert.Len(t, b.chunks, 1)
	assert.Len(t, b.done, 1)
}
