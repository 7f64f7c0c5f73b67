package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ent0n29/voicerelay/internal/relay"
	"github.com/ent0n29/voicerelay/internal/reliability"
	"github.com/ent0n29/voicerelay/internal/upstream"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler
	stages   *stageWindow

	HTTPRequests   *prometheus.CounterVec
	UpstreamErrors *prometheus.CounterVec
	StageLatency   *prometheus.HistogramVec
	WSMessages     *prometheus.CounterVec
	UploadBytes    prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		stages:   newStageWindow(256),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Relay HTTP requests by route and response status.",
		}, []string{"route", "status"}),
		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed upstream calls by stage, status and retryability.",
		}, []string{"stage", "status", "retryable"}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Upstream stage latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}, []string{"stage", "outcome"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		UploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_bytes",
			Help:      "Size of uploaded audio clips.",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 7),
		}),
	}
}

// ObserveStage records one upstream stage. It satisfies relay.StageObserver.
func (m *Metrics) ObserveStage(stage relay.Stage, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.ObserveUpstreamError(stage, err)
	}
	ms := float64(d.Microseconds()) / 1000
	m.StageLatency.WithLabelValues(string(stage), outcome).Observe(ms)
	m.stages.Observe(stage, ms, err != nil)
}

// ObserveUpstreamError counts a failed upstream call.
func (m *Metrics) ObserveUpstreamError(stage relay.Stage, err error) {
	if m == nil || err == nil {
		return
	}
	status := 0
	if ue := upstream.AsError(err); ue != nil {
		status = ue.Status
	}
	retryable := reliability.IsRetryableHTTPStatus(status)
	m.UpstreamErrors.WithLabelValues(string(stage), strconv.Itoa(status), strconv.FormatBool(retryable)).Inc()
}

func (m *Metrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveUpload(size int64) {
	if m == nil {
		return
	}
	m.UploadBytes.Observe(float64(size))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SnapshotStages returns rolling latency percentiles per stage.
func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.stages.Snapshot()
}

// Handler serves the Prometheus exposition for this instance.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}
