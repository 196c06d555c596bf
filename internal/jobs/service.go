package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/Kira7dn/video-create/internal/agent"
	"github.com/Kira7dn/video-create/internal/aligner"
	"github.com/Kira7dn/video-create/internal/assets"
	"github.com/Kira7dn/video-create/internal/concat"
	"github.com/Kira7dn/video-create/internal/config"
	"github.com/Kira7dn/video-create/internal/ffmpeg"
	"github.com/Kira7dn/video-create/internal/imagesearch"
	"github.com/Kira7dn/video-create/internal/imagesub"
	"github.com/Kira7dn/video-create/internal/logger"
	"github.com/Kira7dn/video-create/internal/pipeline"
	"github.com/Kira7dn/video-create/internal/render"
	"github.com/Kira7dn/video-create/internal/spec"
	"github.com/Kira7dn/video-create/internal/storage"
	"github.com/Kira7dn/video-create/internal/tempdir"
	"github.com/Kira7dn/video-create/internal/validate"
)

// ffmpegTimeout bounds any single toolchain invocation. Long enough for a
// full-length render on slow hardware.
const ffmpegTimeout = 15 * time.Minute

// JobGauge tracks the number of running jobs. Optional; nil disables it.
type JobGauge interface {
	JobStarted()
	JobFinished()
}

// Service accepts specification documents and runs the assembly pipeline for
// each as a background job, persisting terminal state to the store.
type Service struct {
	store    *Store
	settings *config.Settings
	temp     *tempdir.Manager
	metrics  pipeline.MetricsSink
	gauge    JobGauge
	sem      *semaphore.Weighted

	validator    *validate.Validator
	fetcher      *assets.Fetcher
	substituter  *imagesub.Substituter
	aligner      *aligner.Aligner
	renderer     *render.Renderer
	concatenator *concat.Concatenator
	uploader     *storage.Uploader
}

// NewService wires every pipeline component from settings.
func NewService(ctx context.Context, settings *config.Settings, store *Store, temp *tempdir.Manager, metrics pipeline.MetricsSink, gauge JobGauge) (*Service, error) {
	ag := agent.New(settings.AI)

	validator, err := validate.New(ag)
	if err != nil {
		return nil, err
	}
	uploader, err := storage.New(ctx, settings.AWS)
	if err != nil {
		return nil, err
	}

	runner := ffmpeg.NewRunner(ffmpegTimeout)

	maxJobs := settings.Jobs.MaxConcurrent
	if maxJobs < 1 {
		maxJobs = 1
	}

	return &Service{
		store:     store,
		settings:  settings,
		temp:      temp,
		metrics:   metrics,
		gauge:     gauge,
		sem:       semaphore.NewWeighted(maxJobs),
		validator: validator,
		fetcher:   assets.NewFetcher(settings.Download.MaxConcurrent, settings.Download.Timeout),
		substituter: &imagesub.Substituter{
			MinWidth:    settings.Image.MinWidth,
			MinHeight:   settings.Image.MinHeight,
			MaxKeywords: settings.AI.MaxKeywords,
			Agent:       ag,
			Searcher:    imagesearch.NewPixabay(settings.Search.PixabayKey, settings.Search.Timeout),
		},
		aligner: &aligner.Aligner{
			Client: aligner.NewClient(settings.Aligner.URL, settings.Aligner.Timeout,
				settings.Aligner.MaxRetries, settings.Aligner.RetryDelay),
			Agent:           ag,
			MinSuccessRatio: settings.Aligner.MinSuccessRatio,
		},
		renderer: render.New(runner, settings.Render, settings.Text),
		concatenator: &concat.Concatenator{
			FFmpeg:    runner,
			OutputDir: settings.Output.Dir,
		},
		uploader: uploader,
	}, nil
}

// Submit registers a new pending job for the raw specification document and
// starts it in the background. It returns the job id immediately.
func (s *Service) Submit(specJSON []byte) (string, error) {
	jobID := uuid.NewString()
	if err := s.store.Put(jobID, Record{Status: StatusPending}); err != nil {
		return "", err
	}
	go s.runJob(context.Background(), jobID, specJSON)
	return jobID, nil
}

// Status returns the job's current record.
func (s *Service) Status(jobID string) (Record, error) {
	return s.store.Get(jobID)
}

// runJob executes the pipeline for one job and persists its terminal state.
func (s *Service) runJob(ctx context.Context, jobID string, specJSON []byte) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.finish(jobID, "", err)
		return
	}
	defer s.sem.Release(1)

	if s.gauge != nil {
		s.gauge.JobStarted()
		defer s.gauge.JobFinished()
	}

	tempDir, err := s.temp.Create()
	if err != nil {
		s.finish(jobID, "", err)
		return
	}
	defer s.temp.Cleanup(tempDir)

	url, err := s.Execute(ctx, jobID, specJSON, tempDir)
	s.finish(jobID, url, err)
}

// Execute runs the full pipeline synchronously for the given video id and
// returns the result URL. Used by runJob and by the one-shot CLI path.
func (s *Service) Execute(ctx context.Context, videoID string, specJSON []byte, tempDir string) (string, error) {
	pc := pipeline.NewContext(videoID, tempDir)
	pc.Set(pipeline.KeyJSONData, specJSON)

	runner := pipeline.NewRunner(s.buildStages(), s.metrics)
	report, err := runner.Run(ctx, pc)
	logger.InfoContext(ctx, "pipeline finished",
		"video_id", videoID, "ok", report.OK, "duration", report.Duration)
	if err != nil {
		return "", err
	}
	url, _ := pc.Get(pipeline.KeyResultURL)
	result, ok := url.(string)
	if !ok {
		return "", fmt.Errorf("pipeline produced no result url")
	}
	return result, nil
}

func (s *Service) finish(jobID, url string, err error) {
	rec := Record{Status: StatusDone, Result: url}
	if err != nil {
		rec = Record{Status: StatusFailed, Error: err.Error()}
		logger.Error("job failed", "job_id", jobID, "error", err)
	} else {
		logger.Info("job done", "job_id", jobID, "result", url)
	}
	if perr := s.store.Put(jobID, rec); perr != nil {
		logger.Error("persisting job state failed", "job_id", jobID, "error", perr)
	}
}

// buildStages is the static stage table of the assembly pipeline.
func (s *Service) buildStages() []pipeline.Stage {
	return []pipeline.Stage{
		pipeline.NewProcessorStage("validate",
			pipeline.KeyJSONData, pipeline.KeyValidatedSpec, nil,
			func(ctx context.Context, pc *pipeline.Context, input any) (any, error) {
				return s.validator.Validate(ctx, input.([]byte))
			}),

		pipeline.NewProcessorStage("download_assets",
			pipeline.KeyValidatedSpec, pipeline.KeyDownloadResults, nil,
			func(ctx context.Context, pc *pipeline.Context, input any) (any, error) {
				vs := input.(*spec.VideoSpec)
				tasks := assets.BuildTasks(vs, pc.TempDir)
				res, err := s.fetcher.Fetch(ctx, vs, tasks)
				if err != nil {
					return nil, err
				}
				assets.Apply(vs, res)
				return res, nil
			}),

		pipeline.NewProcessorStage("image_auto",
			pipeline.KeyDownloadResults, pipeline.KeyEnrichedSegs,
			[]string{pipeline.KeyValidatedSpec},
			func(ctx context.Context, pc *pipeline.Context, input any) (any, error) {
				res := input.(*assets.Results)
				vs := pc.MustGet(pipeline.KeyValidatedSpec).(*spec.VideoSpec)
				if err := s.substituter.Run(ctx, vs, res.Segments, pc.TempDir); err != nil {
					return nil, err
				}
				return vs.Segments, nil
			}),

		pipeline.WithSkip(
			pipeline.NewProcessorStage("align_text",
				pipeline.KeyEnrichedSegs, pipeline.KeyAlignedSegs,
				[]string{pipeline.KeyValidatedSpec},
				func(ctx context.Context, pc *pipeline.Context, input any) (any, error) {
					vs := pc.MustGet(pipeline.KeyValidatedSpec).(*spec.VideoSpec)
					if err := s.aligner.Run(ctx, vs); err != nil {
						return nil, err
					}
					return vs.Segments, nil
				}),
			func(pc *pipeline.Context) bool {
				vs, ok := pc.Get(pipeline.KeyValidatedSpec)
				if !ok {
					return false
				}
				for _, seg := range vs.(*spec.VideoSpec).Segments {
					if seg.VoiceOver != nil && seg.VoiceOver.Content != "" {
						return false
					}
				}
				return true
			}),

		pipeline.NewProcessorStage("render_segments",
			pipeline.KeyEnrichedSegs, pipeline.KeySegmentClips,
			[]string{pipeline.KeyValidatedSpec},
			func(ctx context.Context, pc *pipeline.Context, input any) (any, error) {
				vs := pc.MustGet(pipeline.KeyValidatedSpec).(*spec.VideoSpec)
				return s.renderer.Run(ctx, vs, pc.TempDir)
			}),

		pipeline.NewProcessorStage("concatenate",
			pipeline.KeySegmentClips, pipeline.KeyFinalVideoPath,
			[]string{pipeline.KeyValidatedSpec},
			func(ctx context.Context, pc *pipeline.Context, input any) (any, error) {
				clips := input.([]spec.Clip)
				vs := pc.MustGet(pipeline.KeyValidatedSpec).(*spec.VideoSpec)
				return s.concatenator.Run(ctx, clips, vs.BackgroundMusic, pc.VideoID, pc.TempDir)
			}),

		pipeline.NewProcessorStage("upload",
			pipeline.KeyFinalVideoPath, pipeline.KeyResultURL, nil,
			func(ctx context.Context, pc *pipeline.Context, input any) (any, error) {
				return s.uploader.Upload(ctx, input.(string), pc.VideoID)
			}),
	}
}
