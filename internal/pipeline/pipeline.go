// Package pipeline provides the staged execution runtime for video assembly.
//
// A pipeline is an ordered list of stages sharing a keyed context. Each stage
// declares the context keys it requires; the runner checks them before the
// stage runs, records per-stage timing, and aborts on the first failure.
package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/Kira7dn/video-create/internal/logger"
)

// Well-known context keys shared between stages.
const (
	KeyJSONData        = "json_data"
	KeyValidatedSpec   = "validated_spec"
	KeyDownloadResults = "download_results"
	KeyEnrichedSegs    = "enriched_segments"
	KeyAlignedSegs     = "aligned_segments"
	KeySegmentClips    = "segment_clips"
	KeyFinalVideoPath  = "final_video_path"
	KeyResultURL       = "result_url"
)

// Context is the shared state bag for one pipeline execution. It is safe for
// concurrent use; stages that fan out internally may write from goroutines.
type Context struct {
	// VideoID identifies this execution; it names temp artifacts and the
	// final output file.
	VideoID string
	// TempDir is the scoped working directory for this execution.
	TempDir string

	mu     sync.RWMutex
	values map[string]any
}

// NewContext returns an empty execution context.
func NewContext(videoID, tempDir string) *Context {
	return &Context{
		VideoID: videoID,
		TempDir: tempDir,
		values:  make(map[string]any),
	}
}

// Set stores a value under key, replacing any previous value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// MustGet returns the value under key or panics. Use only after the runner
// has verified the key via a stage's required inputs.
func (c *Context) MustGet(key string) any {
	v, ok := c.Get(key)
	if !ok {
		panic(fmt.Sprintf("pipeline context: missing key %q", key))
	}
	return v
}

// Has reports whether key is present.
func (c *Context) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Stage is one unit of pipeline work.
type Stage interface {
	// Name identifies the stage in reports, logs, and metrics.
	Name() string
	// RequiredInputs lists context keys that must exist before Run.
	RequiredInputs() []string
	// Run executes the stage against the shared context.
	Run(ctx context.Context, pc *Context) error
}

// Skipper is implemented by stages that may be bypassed for a given context.
// A skipped stage leaves the context unchanged.
type Skipper interface {
	Skip(pc *Context) bool
}

// Processor transforms one context value into another.
type Processor func(ctx context.Context, pc *Context, input any) (any, error)

type processorStage struct {
	name      string
	inputKey  string
	outputKey string
	required  []string
	process   Processor
}

// NewProcessorStage builds a stage that reads inputKey, applies process, and
// writes the result to outputKey. The input key is implicitly required.
func NewProcessorStage(name, inputKey, outputKey string, required []string, process Processor) Stage {
	all := make([]string, 0, len(required)+1)
	all = append(all, inputKey)
	for _, k := range required {
		if k != inputKey {
			all = append(all, k)
		}
	}
	return &processorStage{
		name:      name,
		inputKey:  inputKey,
		outputKey: outputKey,
		required:  all,
		process:   process,
	}
}

func (s *processorStage) Name() string             { return s.name }
func (s *processorStage) RequiredInputs() []string { return s.required }
func (s *processorStage) OutputKey() string        { return s.outputKey }

func (s *processorStage) Run(ctx context.Context, pc *Context) error {
	input := pc.MustGet(s.inputKey)
	output, err := s.process(ctx, pc, input)
	if err != nil {
		return err
	}
	pc.Set(s.outputKey, output)
	return nil
}

type funcStage struct {
	name     string
	required []string
	fn       func(ctx context.Context, pc *Context) error
}

// NewFuncStage builds a stage from a bare function operating on the whole
// context. Used for stages with multiple outputs or side effects.
func NewFuncStage(name string, required []string, fn func(ctx context.Context, pc *Context) error) Stage {
	return &funcStage{name: name, required: required, fn: fn}
}

func (s *funcStage) Name() string             { return s.name }
func (s *funcStage) RequiredInputs() []string { return s.required }
func (s *funcStage) Run(ctx context.Context, pc *Context) error {
	return s.fn(ctx, pc)
}

type skippableStage struct {
	Stage
	skip func(pc *Context) bool
}

func (s *skippableStage) Skip(pc *Context) bool { return s.skip(pc) }

// WithSkip wraps a stage with a skip predicate. When the predicate returns
// true the runner marks the stage skipped and leaves the context unchanged.
func WithSkip(st Stage, skip func(pc *Context) bool) Stage {
	return &skippableStage{Stage: st, skip: skip}
}

// StageError wraps a stage failure with the stage's name.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Stage execution statuses as recorded in reports.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// StageReport records one stage's outcome.
type StageReport struct {
	Name     string
	Status   string
	Duration time.Duration
	Err      error
}

// Report summarizes a full pipeline execution.
type Report struct {
	OK       bool
	Duration time.Duration
	Stages   []StageReport
}

// MetricsSink receives per-stage observations. Items is the number of items
// the stage produced, zero when unknown; err is nil on success.
// Implementations must be safe for concurrent use.
type MetricsSink interface {
	ObserveStage(stage string, success bool, duration time.Duration, items int, err error)
}

// NopSink discards all observations.
type NopSink struct{}

func (NopSink) ObserveStage(string, bool, time.Duration, int, error) {}

// OutputKeyer is implemented by stages that write a single output key. The
// runner uses it to count the items a completed stage produced.
type OutputKeyer interface {
	OutputKey() string
}

// countItems inspects the output a completed stage wrote to the context.
// Slices and maps count their elements; any other present value counts as one.
func countItems(st Stage, pc *Context) int {
	if sk, ok := st.(*skippableStage); ok {
		st = sk.Stage
	}
	keyed, ok := st.(OutputKeyer)
	if !ok {
		return 0
	}
	v, found := pc.Get(keyed.OutputKey())
	if !found || v == nil {
		return 0
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len()
	default:
		return 1
	}
}

// Runner executes stages sequentially against a shared context.
type Runner struct {
	stages  []Stage
	metrics MetricsSink
}

// NewRunner builds a runner over the given stages. A nil sink means no
// metrics are recorded.
func NewRunner(stages []Stage, metrics MetricsSink) *Runner {
	if metrics == nil {
		metrics = NopSink{}
	}
	return &Runner{stages: stages, metrics: metrics}
}

// Run executes every stage in order. It stops at the first failure, wrapping
// the error as a StageError. The returned report always covers all stages;
// stages after a failure are reported as pending.
func (r *Runner) Run(ctx context.Context, pc *Context) (*Report, error) {
	report := &Report{Stages: make([]StageReport, len(r.stages))}
	for i, st := range r.stages {
		report.Stages[i] = StageReport{Name: st.Name(), Status: StatusPending}
	}

	start := time.Now()
	var failure error
	for i, st := range r.stages {
		if failure != nil {
			break
		}
		sr := &report.Stages[i]

		if skipper, ok := st.(Skipper); ok && skipper.Skip(pc) {
			sr.Status = StatusSkipped
			logger.InfoContext(ctx, "stage skipped", "stage", st.Name(), "video_id", pc.VideoID)
			continue
		}

		if missing := missingInputs(st, pc); len(missing) > 0 {
			sr.Status = StatusFailed
			sr.Err = fmt.Errorf("missing required inputs %v", missing)
			failure = &StageError{Stage: st.Name(), Err: sr.Err}
			break
		}

		sr.Status = StatusRunning
		logger.InfoContext(ctx, "stage starting", "stage", st.Name(), "video_id", pc.VideoID)
		stageStart := time.Now()
		err := st.Run(ctx, pc)
		sr.Duration = time.Since(stageStart)
		items := 0
		if err == nil {
			items = countItems(st, pc)
		}
		r.metrics.ObserveStage(st.Name(), err == nil, sr.Duration, items, err)

		if err != nil {
			sr.Status = StatusFailed
			sr.Err = err
			failure = &StageError{Stage: st.Name(), Err: err}
			logger.ErrorContext(ctx, "stage failed",
				"stage", st.Name(), "video_id", pc.VideoID,
				"duration", sr.Duration, "error", err)
			break
		}
		sr.Status = StatusCompleted
		logger.InfoContext(ctx, "stage completed",
			"stage", st.Name(), "video_id", pc.VideoID, "duration", sr.Duration)
	}

	report.Duration = time.Since(start)
	report.OK = failure == nil
	return report, failure
}

func missingInputs(st Stage, pc *Context) []string {
	var missing []string
	for _, key := range st.RequiredInputs() {
		if !pc.Has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}
