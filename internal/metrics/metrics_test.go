package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.AuthAttempt("login", true)
	m.AuthAttempt("login", false)
	m.AuthAttempt("login", false)
	m.GateRejected("expired")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.authAttempts.WithLabelValues("login", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.authAttempts.WithLabelValues("login", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateRejections.WithLabelValues("expired")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AuthAttempt("login", true)
		m.GateRejected("missing")
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.AuthAttempt("refresh", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tenantcore_auth_attempts_total{event="refresh",outcome="success"} 1`)
}
