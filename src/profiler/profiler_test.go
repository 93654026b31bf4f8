package profiler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "hmm_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	h := Handler(reg)
	code, body := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "hmm_test_total 3")

	code, body = get(t, h, "/debug/pprof/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "goroutine")
}

func TestHandlerWithoutMetrics(t *testing.T) {
	code, _ := get(t, Handler(nil), "/metrics")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	addr, err := Start(ctx, "127.0.0.1:0", prometheus.NewRegistry())
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.Eventually(t, func() bool {
		_, err := http.Get("http://" + addr.String() + "/metrics")
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)

	_, err = Start(context.Background(), "not an address", nil)
	assert.Error(t, err)
}
