package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	observed []string
	items    map[string]int
	errs     map[string]error
}

func (s *recordingSink) ObserveStage(stage string, success bool, _ time.Duration, items int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := "ok"
	if !success {
		status = "fail"
	}
	s.observed = append(s.observed, stage+":"+status)
	if s.items == nil {
		s.items = make(map[string]int)
		s.errs = make(map[string]error)
	}
	s.items[stage] = items
	s.errs[stage] = err
}

func TestRunnerSequentialOrder(t *testing.T) {
	pc := NewContext("vid", t.TempDir())
	pc.Set("a", 1)

	stages := []Stage{
		NewProcessorStage("double", "a", "b", nil,
			func(_ context.Context, _ *Context, input any) (any, error) {
				return input.(int) * 2, nil
			}),
		NewProcessorStage("stringify", "b", "c", nil,
			func(_ context.Context, _ *Context, input any) (any, error) {
				require.Equal(t, 2, input)
				return "two", nil
			}),
	}

	report, err := NewRunner(stages, nil).Run(t.Context(), pc)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, "two", pc.MustGet("c"))
	for _, sr := range report.Stages {
		assert.Equal(t, StatusCompleted, sr.Status)
	}
}

func TestRunnerMissingInputFailsFast(t *testing.T) {
	pc := NewContext("vid", t.TempDir())
	stages := []Stage{
		NewProcessorStage("needs_input", "absent", "out", nil,
			func(_ context.Context, _ *Context, input any) (any, error) {
				t.Fatal("stage body must not run")
				return nil, nil
			}),
	}

	report, err := NewRunner(stages, nil).Run(t.Context(), pc)
	require.Error(t, err)
	assert.False(t, report.OK)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "needs_input", stageErr.Stage)
	assert.Contains(t, err.Error(), "absent")
}

func TestRunnerStopsAfterFailure(t *testing.T) {
	pc := NewContext("vid", t.TempDir())
	pc.Set("in", "x")
	boom := errors.New("boom")

	ran := false
	stages := []Stage{
		NewProcessorStage("fails", "in", "mid", nil,
			func(_ context.Context, _ *Context, _ any) (any, error) {
				return nil, boom
			}),
		NewFuncStage("never", nil, func(_ context.Context, _ *Context) error {
			ran = true
			return nil
		}),
	}

	report, err := NewRunner(stages, nil).Run(t.Context(), pc)
	require.ErrorIs(t, err, boom)
	assert.False(t, ran)
	assert.Equal(t, StatusFailed, report.Stages[0].Status)
	assert.Equal(t, StatusPending, report.Stages[1].Status)
}

func TestRunnerSkip(t *testing.T) {
	pc := NewContext("vid", t.TempDir())
	pc.Set("in", "x")

	inner := NewProcessorStage("skippable", "in", "out", nil,
		func(_ context.Context, _ *Context, _ any) (any, error) {
			t.Fatal("skipped stage must not run")
			return nil, nil
		})
	stages := []Stage{WithSkip(inner, func(*Context) bool { return true })}

	report, err := NewRunner(stages, nil).Run(t.Context(), pc)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, report.Stages[0].Status)
	assert.False(t, pc.Has("out"))
}

func TestRunnerMetricsSink(t *testing.T) {
	pc := NewContext("vid", t.TempDir())
	pc.Set("in", "x")
	sink := &recordingSink{}

	stages := []Stage{
		NewProcessorStage("first", "in", "a", nil,
			func(_ context.Context, _ *Context, _ any) (any, error) { return 1, nil }),
		NewProcessorStage("second", "a", "b", nil,
			func(_ context.Context, _ *Context, _ any) (any, error) {
				return nil, errors.New("nope")
			}),
	}

	_, err := NewRunner(stages, sink).Run(t.Context(), pc)
	require.Error(t, err)
	assert.Equal(t, []string{"first:ok", "second:fail"}, sink.observed)
	assert.NoError(t, sink.errs["first"])
	assert.EqualError(t, sink.errs["second"], "nope")
}

func TestRunnerMetricsItemCounts(t *testing.T) {
	pc := NewContext("vid", t.TempDir())
	pc.Set("in", "x")
	sink := &recordingSink{}

	stages := []Stage{
		NewProcessorStage("fan_out", "in", "clips", nil,
			func(_ context.Context, _ *Context, _ any) (any, error) {
				return []string{"a.mp4", "b.mp4", "c.mp4"}, nil
			}),
		NewProcessorStage("single", "clips", "final", nil,
			func(_ context.Context, _ *Context, _ any) (any, error) {
				return "out.mp4", nil
			}),
		NewFuncStage("side_effect", nil, func(_ context.Context, _ *Context) error {
			return nil
		}),
	}

	_, err := NewRunner(stages, sink).Run(t.Context(), pc)
	require.NoError(t, err)
	assert.Equal(t, 3, sink.items["fan_out"])
	assert.Equal(t, 1, sink.items["single"])
	assert.Equal(t, 0, sink.items["side_effect"])
}

func TestContextConcurrentAccess(t *testing.T) {
	pc := NewContext("vid", t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			pc.Set("key", n)
			pc.Get("key")
		}(i)
	}
	wg.Wait()
	assert.True(t, pc.Has("key"))
}

func TestMustGetPanicsOnMissing(t *testing.T) {
	pc := NewContext("vid", t.TempDir())
	assert.Panics(t, func() { pc.MustGet("nope") })
}
