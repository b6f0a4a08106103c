package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ChangeEvent("sos_alerts", "insert")
		m.SnapshotLoaded("sos_alerts", 3, time.Millisecond)
		m.TrackedMarkers(1)
	})
}

func TestMiddlewareRecords(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	r := gin.New()
	r.Use(MonitorMiddleware(m))
	r.GET("/alerts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/alerts/a1", nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/alerts/:id", "200")))

	m.ChangeEvent("sos_alerts", "update")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.changeEvents.WithLabelValues("sos_alerts", "update")))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rescuedesk_change_events_total")
}
