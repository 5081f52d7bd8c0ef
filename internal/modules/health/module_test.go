package health

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_bot/internal/modules/health/service"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestReadyzFollowsState(t *testing.T) {
	state := service.NewState()
	mux := NewMux(state)

	code, _ := get(t, mux, "/livez")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	state.SetReady(true)
	code, _ = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code, "ws not connected yet")

	state.SetWSConnected(true)
	code, body := get(t, mux, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body)
}

func TestHealthzReportsLastTick(t *testing.T) {
	state := service.NewState()
	state.TouchTick(time.Unix(1700000000, 0))
	code, body := get(t, NewMux(state), "/healthz")
	require.Equal(t, http.StatusOK, code)

	var resp struct {
		Ready        bool  `json:"ready"`
		LastTickUnix int64 `json:"lastTickUnix"`
	}
	require.NoError(t, sonic.UnmarshalString(body, &resp))
	assert.False(t, resp.Ready)
	assert.EqualValues(t, 1700000000, resp.LastTickUnix)
}

func TestMetricsExposed(t *testing.T) {
	code, body := get(t, NewMux(service.NewState()), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_goroutines")
}
