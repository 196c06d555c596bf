package promsink

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveStageCountsByOutcome(t *testing.T) {
	s := New(prometheus.NewRegistry())

	s.ObserveStage("render_segments", true, 2*time.Second, 3, nil)
	s.ObserveStage("render_segments", true, 3*time.Second, 2, nil)
	s.ObserveStage("render_segments", false, time.Second, 0, errors.New("boom"))

	assert.InDelta(t, 2, testutil.ToFloat64(
		s.stageTotal.WithLabelValues("render_segments", "success")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(
		s.stageTotal.WithLabelValues("render_segments", "failure")), 1e-9)
	assert.InDelta(t, 5, testutil.ToFloat64(
		s.stageItems.WithLabelValues("render_segments")), 1e-9)
}

func TestJobGauge(t *testing.T) {
	s := New(prometheus.NewRegistry())
	s.JobStarted()
	s.JobStarted()
	s.JobFinished()
	assert.InDelta(t, 1, testutil.ToFloat64(s.activeJobs), 1e-9)
}
