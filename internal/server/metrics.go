package server

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Metrics holds the service's Prometheus collectors and implements dashboard.Recorder.
type Metrics struct {
	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	chartDuration   prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	refreshResults  *prometheus.CounterVec
	streamClients   prometheus.Gauge
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertcharts",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alertcharts",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		chartDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alertcharts",
			Subsystem: "chart",
			Name:      "build_duration_seconds",
			Help:      "Time spent turning alerts into chart series",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertcharts",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Alert cache lookups by result",
		}, []string{"result"}),
		refreshResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertcharts",
			Subsystem: "watch",
			Name:      "refresh_total",
			Help:      "Background monitor refresh outcomes",
		}, []string{"outcome"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "alertcharts",
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected chart websocket clients",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestDuration,
		m.chartDuration,
		m.cacheLookups,
		m.refreshResults,
		m.streamClients,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// CacheLookup counts a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.With(prometheus.Labels{"result": result}).Inc()
}

// ChartBuilt observes the time spent building one chart payload.
func (m *Metrics) ChartBuilt(took time.Duration) {
	m.chartDuration.Observe(took.Seconds())
}

// RefreshResult counts a background refresh outcome.
func (m *Metrics) RefreshResult(outcome string) {
	m.refreshResults.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func (m *Metrics) recordRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestDuration.With(labels).Observe(duration.Seconds())
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	return rr.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through instrumentation.
func (rr *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if rr.status == 0 {
		rr.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}
