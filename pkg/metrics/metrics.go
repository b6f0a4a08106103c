package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rescuedesk"

// Metrics 同步链路与 HTTP 指标；nil 接收者上的方法均为空操作，测试中可直接传 nil
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	changeEvents      *prometheus.CounterVec
	snapshotRows      *prometheus.GaugeVec
	snapshotFallbacks *prometheus.CounterVec
	snapshotFailures  *prometheus.CounterVec
	snapshotDuration  *prometheus.HistogramVec
	viewBuild         prometheus.Histogram
	notifications     *prometheus.CounterVec
	trackedMarkers    prometheus.Gauge
	tableSize         *prometheus.GaugeVec
	geoRequests       *prometheus.CounterVec
	rateLimit         *prometheus.CounterVec
}

// NewMetrics 在独立 registry 上注册，避免测试间重复注册
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		changeEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_events_total",
			Help:      "Change events applied by the reconciler",
		}, []string{"table", "kind"}),

		snapshotRows: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_rows",
			Help:      "Rows returned by the last snapshot load",
		}, []string{"table"}),

		snapshotFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_fallbacks_total",
			Help:      "Snapshot loads that switched to a fallback column or table",
		}, []string{"table"}),

		snapshotFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_failures_total",
			Help:      "Snapshot loads degraded to an empty result",
		}, []string{"table", "code"}),

		snapshotDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Snapshot load duration",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"table"}),

		viewBuild: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_build_seconds",
			Help:      "Derived view build duration",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),

		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "New-alert notifications dispatched",
		}, []string{"sink"}),

		trackedMarkers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_markers",
			Help:      "Persistent tracking markers currently on the map",
		}),

		tableSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "table_size",
			Help:      "Entries held by the reconciler per table",
		}, []string{"table"}),

		geoRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_requests_total",
			Help:      "Outbound geo service requests",
		}, []string{"service", "result"}),

		rateLimit: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_total",
			Help:      "Rate limiter decisions on write endpoints",
		}, []string{"route", "result"}),
	}
}

// Handler /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 暴露给测试采集
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordHTTPRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (m *Metrics) ChangeEvent(table, kind string) {
	if m == nil {
		return
	}
	m.changeEvents.WithLabelValues(table, kind).Inc()
}

func (m *Metrics) SnapshotLoaded(table string, rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.snapshotRows.WithLabelValues(table).Set(float64(rows))
	m.snapshotDuration.WithLabelValues(table).Observe(d.Seconds())
}

func (m *Metrics) SnapshotFallback(table string) {
	if m == nil {
		return
	}
	m.snapshotFallbacks.WithLabelValues(table).Inc()
}

func (m *Metrics) SnapshotFailure(table, code string) {
	if m == nil {
		return
	}
	m.snapshotFailures.WithLabelValues(table, code).Inc()
}

func (m *Metrics) ViewBuilt(d time.Duration) {
	if m == nil {
		return
	}
	m.viewBuild.Observe(d.Seconds())
}

func (m *Metrics) Notification(sink string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(sink).Inc()
}

func (m *Metrics) TrackedMarkers(n int) {
	if m == nil {
		return
	}
	m.trackedMarkers.Set(float64(n))
}

func (m *Metrics) TableSize(table string, n int) {
	if m == nil {
		return
	}
	m.tableSize.WithLabelValues(table).Set(float64(n))
}

func (m *Metrics) GeoRequest(service, result string) {
	if m == nil {
		return
	}
	m.geoRequests.WithLabelValues(service, result).Inc()
}

func (m *Metrics) RateLimit(route, result string) {
	if m == nil {
		return
	}
	m.rateLimit.WithLabelValues(route, result).Inc()
}
