package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveIngested("info")
		m.ObserveDeduplicated()
		m.ObservePatched(2)
		m.SetUnread(3)
		m.ObserveEvent("x")
		m.ObserveConnect(nil)
		m.ObserveDisconnect()
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveIngested("info")
	m.ObserveIngested("info")
	m.ObservePatched(3)
	m.ObservePatched(0)
	m.ObserveConnect(nil)
	m.ObserveConnect(errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Ingested.WithLabelValues("info")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Patched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connects.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connected))

	m.ObserveDisconnect()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Connected))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.SetUnread(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ggcraft_notifications_unread 4"))
}
