package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-sync/internal/logging"
	"pattern-sync/internal/metrics"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	t.Cleanup(func() { logging.SetOutput(os.Stderr) })
	return &buf
}

func TestLoggerWritesW3CLine(t *testing.T) {
	buf := captureLog(t)

	h := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/stores?x=1", nil)
	req.Header.Set("User-Agent", "probe agent")
	req.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	assert.Contains(t, line, "10.0.0.9 GET /api/stores x=1 418 5 ")
	assert.Contains(t, line, `"probe agent"`)
}

func TestLoggerSkips(t *testing.T) {
	buf := captureLog(t)

	cfg := DefaultLoggingConfig()
	cfg.LogHealthChecks = false
	h := Logger(cfg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for _, path := range []string{"/metrics", "/healthz", "/readyz"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Empty(t, buf.String())
}

func TestSanitizeLogField(t *testing.T) {
	assert.Equal(t, "a b", sanitizeLogField("a\nb"))
	assert.Equal(t, "ab", sanitizeLogField("a\x1b\x00b"))
	assert.Equal(t, "a\tb", sanitizeLogField("a\tb"))
}

func TestEscapeW3CField(t *testing.T) {
	assert.Equal(t, "plain", escapeW3CField("plain"))
	assert.Equal(t, `"a ""b"""`, escapeW3CField(`a "b"`))
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/stores/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/stores/{name}", "404")
	before := testutil.ToFloat64(counter)

	for _, name := range []string{"patterns", "inputs"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stores/"+name, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.HTTPRequestsInFlight))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(req))
	assert.False(t, strings.Contains(clientIP(req), ":"))
}
