package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	before := time.Now().Unix()
	Init("test-version-1.2.3")
	after := time.Now().Unix()

	// expvar strings are JSON encoded
	assert.Equal(t, `"test-version-1.2.3"`, Version.String())
	assert.GreaterOrEqual(t, StartTime.Value(), before)
	assert.LessOrEqual(t, StartTime.Value(), after)
}

func TestHandler(t *testing.T) {
	Init("handler-test")
	beforeSent := HecBytesSent.Value()

	HecBytesSent.Add(2048)
	HecResponses.Add("test_200", 3)
	Transfers.Add("test_success", 1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vars))

	assert.Equal(t, float64(beforeSent+2048), vars["hec_bytes_sent_total"])
	assert.Equal(t, "handler-test", vars["version_info"])

	responses, ok := vars["hec_responses"].(map[string]interface{})
	require.True(t, ok, "hec_responses should be a map")
	assert.Equal(t, float64(3), responses["test_200"])

	transfers, ok := vars["transfers"].(map[string]interface{})
	require.True(t, ok, "transfers should be a map")
	assert.Equal(t, float64(1), transfers["test_success"])
}

func TestStartServer(t *testing.T) {
	srv, err := StartServer("127.0.0.1:0")
	require.NoError(t, err)
	require.NotNil(t, srv)
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr + "/debug/vars")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartServerDisabled(t *testing.T) {
	srv, err := StartServer("")
	assert.NoError(t, err)
	assert.Nil(t, srv)
}

func TestStartServerBadAddr(t *testing.T) {
	_, err := StartServer("not-an-address")
	assert.Error(t, err)
}
