/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ServerMetrics interface {
	IncRequestsTotal(route string, status int)
	ObserveRequestDuration(route string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	AddBytesServed(n int64)
	SetReleasesTotal(n int)
}

type serverMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	bytesServed     prometheus.Counter
	releasesTotal   prometheus.Gauge
}

// NewServerMetrics registers the distribution server collectors on reg.
// When disabled a no-op implementation is returned and nothing is registered.
func NewServerMetrics(enabled bool, reg prometheus.Registerer) ServerMetrics {
	if !enabled {
		return NoopServer{}
	}
	f := promauto.With(reg)
	return &serverMetrics{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ota_server_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ota_server_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "ota_server_metadata_cache_hits_total",
			Help: "Total number of metadata cache hits",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "ota_server_metadata_cache_misses_total",
			Help: "Total number of metadata cache misses",
		}),
		bytesServed: f.NewCounter(prometheus.CounterOpts{
			Name: "ota_server_firmware_bytes_served_total",
			Help: "Firmware bytes written to clients before content coding",
		}),
		releasesTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "ota_server_releases",
			Help: "Number of releases in the registry",
		}),
	}
}

func (m *serverMetrics) IncRequestsTotal(route string, status int) {
	m.requestsTotal.WithLabelValues(route, statusBucket(status)).Inc()
}

func (m *serverMetrics) ObserveRequestDuration(route string, duration time.Duration) {
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *serverMetrics) IncCacheHits()          { m.cacheHits.Inc() }
func (m *serverMetrics) IncCacheMisses()        { m.cacheMisses.Inc() }
func (m *serverMetrics) AddBytesServed(n int64) { m.bytesServed.Add(float64(n)) }
func (m *serverMetrics) SetReleasesTotal(n int) { m.releasesTotal.Set(float64(n)) }

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// NoopServer discards every observation.
type NoopServer struct{}

func (NoopServer) IncRequestsTotal(_ string, _ int)                 {}
func (NoopServer) ObserveRequestDuration(_ string, _ time.Duration) {}
func (NoopServer) IncCacheHits()                                    {}
func (NoopServer) IncCacheMisses()                                  {}
func (NoopServer) AddBytesServed(_ int64)                           {}
func (NoopServer) SetReleasesTotal(_ int)                           {}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware records request count and latency under a fixed route label,
// keeping version ids out of label values.
func Middleware(m ServerMetrics, route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.IncRequestsTotal(route, sw.status)
		m.ObserveRequestDuration(route, time.Since(start))
	})
}
