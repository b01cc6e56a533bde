// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic: request
// counts, latencies, in-flight concurrency and response sizes. Labels are the
// method, the registered route (raw path when nothing matched) and the status
// code, which keeps cardinality bounded. Replays flagged by the idempotency
// validator are counted separately so dashboards can tell redelivery storms
// from fresh traffic.
package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics holds the HTTP collectors.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inflight prometheus.Gauge
	respSize *prometheus.HistogramVec
	replays  *prometheus.CounterVec
}

// register registers c, reusing an identical collector that is already
// registered so several routers can share one registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// NewHTTPMetrics creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &HTTPMetrics{
		requests: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		)),
		latency: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		)),
		inflight: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_inflight",
				Help: "Current number of in-flight HTTP requests.",
			},
		)),
		respSize: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "Size of HTTP responses in bytes.",
				Buckets: prometheus.ExponentialBuckets(128, 4, 8), // 128B..2MiB
			},
			[]string{"method", "path"},
		)),
		replays: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_idempotent_replays_total",
				Help: "Requests whose Idempotency-Key was already stored.",
			},
			[]string{"path"},
		)),
	}
}

// Handler returns the instrumenting middleware.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.inflight.Inc()
		defer m.inflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		m.requests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			m.respSize.WithLabelValues(method, path).Observe(float64(size))
		}
		if IsReplay(c) {
			m.replays.WithLabelValues(path).Inc()
		}
	}
}
