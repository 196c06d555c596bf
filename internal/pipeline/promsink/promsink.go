// Package promsink exports pipeline stage metrics to Prometheus.
package promsink

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "videocreate"

// Sink records stage observations into Prometheus collectors.
type Sink struct {
	stageDuration *prometheus.HistogramVec
	stageTotal    *prometheus.CounterVec
	stageItems    *prometheus.CounterVec
	activeJobs    prometheus.Gauge
}

// New builds a Sink and registers its collectors with reg.
func New(reg prometheus.Registerer) *Sink {
	s := &Sink{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of pipeline stages.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_total",
			Help:      "Count of stage executions by outcome.",
		}, []string{"stage", "status"}),
		stageItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_items_total",
			Help:      "Count of items produced by pipeline stages.",
		}, []string{"stage"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Number of video assembly jobs currently running.",
		}),
	}
	reg.MustRegister(s.stageDuration, s.stageTotal, s.stageItems, s.activeJobs)
	return s
}

// ObserveStage implements pipeline.MetricsSink.
func (s *Sink) ObserveStage(stage string, success bool, duration time.Duration, items int, _ error) {
	s.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "failure"
	}
	s.stageTotal.WithLabelValues(stage, status).Inc()
	if items > 0 {
		s.stageItems.WithLabelValues(stage).Add(float64(items))
	}
}

// JobStarted increments the active-job gauge.
func (s *Sink) JobStarted() { s.activeJobs.Inc() }

// JobFinished decrements the active-job gauge.
func (s *Sink) JobFinished() { s.activeJobs.Dec() }
