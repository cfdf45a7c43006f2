/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UpdaterMetrics observes update pipeline invocations.
type UpdaterMetrics interface {
	ObserveRun(result, stage string, duration time.Duration)
	SetLastSuccess(t time.Time)
	AddDownloadedBytes(n int64)
	// WriteTextfile dumps the collected series for the node exporter textfile
	// collector. It is a no-op when path is empty.
	WriteTextfile(path string) error
}

type updaterMetrics struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
	downloaded  prometheus.Counter
}

func NewUpdaterMetrics(enabled bool) UpdaterMetrics {
	if !enabled {
		return NoopUpdater{}
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &updaterMetrics{
		registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ota_updater_runs_total",
			Help: "Update pipeline invocations by result and terminal stage",
		}, []string{"result", "stage"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ota_updater_run_duration_seconds",
			Help:    "Duration of update pipeline invocations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "ota_updater_last_success_timestamp_seconds",
			Help: "Unix time of the last invocation that reached DONE",
		}),
		downloaded: f.NewCounter(prometheus.CounterOpts{
			Name: "ota_updater_downloaded_bytes_total",
			Help: "Firmware bytes written to staging",
		}),
	}
}

func (m *updaterMetrics) ObserveRun(result, stage string, duration time.Duration) {
	m.runs.WithLabelValues(result, stage).Inc()
	m.duration.Observe(duration.Seconds())
}

func (m *updaterMetrics) SetLastSuccess(t time.Time) { m.lastSuccess.Set(float64(t.Unix())) }
func (m *updaterMetrics) AddDownloadedBytes(n int64) { m.downloaded.Add(float64(n)) }

func (m *updaterMetrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

type NoopUpdater struct{}

func (NoopUpdater) ObserveRun(_, _ string, _ time.Duration) {}
func (NoopUpdater) SetLastSuccess(_ time.Time)              {}
func (NoopUpdater) AddDownloadedBytes(_ int64)              {}
func (NoopUpdater) WriteTextfile(_ string) error            { return nil }
