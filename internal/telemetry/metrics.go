// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package telemetry sets up the service's observability. This file exposes
// the pipeline metrics in Prometheus format on /metrics, next to the
// OpenTelemetry metrics exported to Cloud Monitoring.
//
// Metrics (namespace video_insights):
//   - pipeline_runs_started_total, pipeline_runs_in_flight
//   - pipeline_runs_finished_total{status}, pipeline_run_duration_seconds{status}
//   - pipeline_stage_duration_seconds{stage}
//   - translation_requests_total{language,result}
//   - http_requests_total{method,route,status}
//
// Go runtime and process collectors are registered as well.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/pipeline"
)

const metricsNamespace = "video_insights"

var _ pipeline.Metrics = (*PipelineMetrics)(nil)

// PipelineMetrics records run, stage and translation metrics in a private
// Prometheus registry served by Handler.
type PipelineMetrics struct {
	registry *prometheus.Registry

	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runsInFlight  prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	translations  *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// NewPipelineMetrics registers every collector in a fresh registry, so
// several instances can coexist in tests.
//
// Inputs:
//   - service: Added to every series as the "service" constant label.
func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	m := &PipelineMetrics{
		registry: registry,
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "pipeline",
			Name:        "runs_started_total",
			Help:        "Total analysis runs started.",
			ConstLabels: constLabels,
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "pipeline",
			Name:        "runs_finished_total",
			Help:        "Total analysis runs finished by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "pipeline",
			Name:        "run_duration_seconds",
			Help:        "Analysis run duration in seconds by status.",
			Buckets:     []float64{5, 10, 20, 30, 60, 90, 120, 180, 300, 600},
			ConstLabels: constLabels,
		}, []string{"status"}),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "pipeline",
			Name:        "runs_in_flight",
			Help:        "Number of analysis runs currently running.",
			ConstLabels: constLabels,
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "pipeline",
			Name:        "stage_duration_seconds",
			Help:        "Duration of completed stages in seconds.",
			Buckets:     []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
			ConstLabels: constLabels,
		}, []string{"stage"}),
		translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "translation",
			Name:        "requests_total",
			Help:        "Transcript translations by language and result.",
			ConstLabels: constLabels,
		}, []string{"language", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP requests processed.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsFinished,
		m.runDuration,
		m.runsInFlight,
		m.stageDuration,
		m.translations,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RunStarted counts a submission and raises the in-flight gauge.
func (m *PipelineMetrics) RunStarted() {
	m.runsStarted.Inc()
	m.runsInFlight.Inc()
}

// RunFinished lowers the in-flight gauge. The machine calls it exactly once
// per started run, also for runs replaced by a reset.
func (m *PipelineMetrics) RunFinished(status model.RunStatus, elapsed time.Duration) {
	m.runsInFlight.Dec()
	m.runsFinished.WithLabelValues(string(status)).Inc()
	m.runDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// StageCompleted observes a stage's latency.
func (m *PipelineMetrics) StageCompleted(stage model.Stage, elapsed time.Duration) {
	if stage == model.StageNone {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// TranslationFinished counts a translation by language and outcome.
func (m *PipelineMetrics) TranslationFinished(code model.LanguageCode, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.translations.WithLabelValues(string(code), result).Inc()
}

// RequestServed counts one HTTP request. route is the matched route
// template, not the raw path, to keep the label set bounded.
func (m *PipelineMetrics) RequestServed(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
