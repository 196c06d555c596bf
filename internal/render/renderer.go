// Package render produces one MP4 clip per segment: still images get a
// letterboxed canvas, composed narration, fades, and subtitle overlays;
// video segments are normalized to the target resolution and framerate.
package render

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Kira7dn/video-create/internal/config"
	"github.com/Kira7dn/video-create/internal/ffmpeg"
	"github.com/Kira7dn/video-create/internal/logger"
	"github.com/Kira7dn/video-create/internal/spec"
)

// Renderer renders per-segment clips with bounded fan-out.
type Renderer struct {
	FFmpeg *ffmpeg.Runner
	Render config.RenderSettings
	Text   config.TextSettings
	sem    *semaphore.Weighted
}

// New builds a Renderer from settings.
func New(runner *ffmpeg.Runner, render config.RenderSettings, text config.TextSettings) *Renderer {
	width := int64(render.MaxConcurrentSegments)
	if width < 1 {
		width = 1
	}
	return &Renderer{
		FFmpeg: runner,
		Render: render,
		Text:   text,
		sem:    semaphore.NewWeighted(width),
	}
}

// Run renders every segment and returns the clips in input order. Rendering
// fans out under the configured semaphore; the first failure cancels the
// remaining work.
func (r *Renderer) Run(ctx context.Context, vs *spec.VideoSpec, tempDir string) ([]spec.Clip, error) {
	clips := make([]spec.Clip, len(vs.Segments))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, seg := range vs.Segments {
		g.Go(func() error {
			if err := r.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer r.sem.Release(1)

			path, err := r.renderSegment(gctx, seg, tempDir)
			if err != nil {
				return fmt.Errorf("rendering segment %s: %w", seg.ID, err)
			}
			mu.Lock()
			clips[i] = spec.Clip{ID: seg.ID, Path: path}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, nil
}

func (r *Renderer) renderSegment(ctx context.Context, seg *spec.Segment, tempDir string) (string, error) {
	out := filepath.Join(tempDir, fmt.Sprintf("temp_segment_%s.mp4", seg.ID))
	if seg.HasVideo() && seg.Video.LocalPath != "" {
		return out, r.renderVideoMode(ctx, seg, out)
	}
	return out, r.renderImageMode(ctx, seg, tempDir, out)
}

// renderVideoMode re-encodes the source clip at the target resolution and
// framerate, applying boundary fades. Duration is the source's own length.
// Sources without an audio stream are rendered silent.
func (r *Renderer) renderVideoMode(ctx context.Context, seg *spec.Segment, out string) error {
	total, err := r.FFmpeg.ProbeDuration(ctx, seg.Video.LocalPath)
	if err != nil {
		return err
	}
	hasAudio, err := r.FFmpeg.HasAudioStream(ctx, seg.Video.LocalPath)
	if err != nil {
		logger.Warn("audio stream probe failed, rendering without audio",
			"segment", seg.ID, "error", err)
		hasAudio = false
	}
	fadeIn := seg.TransitionIn.FadeDuration()
	fadeOut := seg.TransitionOut.FadeDuration()
	return r.FFmpeg.Run(ctx, r.videoModeArgs(seg, total, fadeIn, fadeOut, hasAudio, out)...)
}

func (r *Renderer) videoModeArgs(seg *spec.Segment, total, fadeIn, fadeOut float64, hasAudio bool, out string) []string {
	args := []string{
		"-y",
		"-i", seg.Video.LocalPath,
		"-vf", r.videoFilters(seg, total, fadeIn, fadeOut, true),
		"-r", fmt.Sprintf("%d", r.Render.FPS),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
	}
	if hasAudio {
		if af := audioFilters(total, fadeIn, fadeOut); af != "" {
			args = append(args, "-af", af)
		}
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	} else {
		args = append(args, "-an")
	}
	return append(args, out)
}

// renderImageMode builds a clip from a preprocessed still plus the composed
// narration track. Total duration is fade_in + audio + fade_out; a segment
// without narration gets a silent clip of the configured default length.
func (r *Renderer) renderImageMode(ctx context.Context, seg *spec.Segment, tempDir, out string) error {
	if seg.Image == nil || seg.Image.LocalPath == "" {
		return fmt.Errorf("segment %s has no usable visual", seg.ID)
	}

	processed := filepath.Join(tempDir, fmt.Sprintf("processed_%s.png", seg.ID))
	if err := PreprocessImage(seg.Image.LocalPath, processed,
		r.Render.Width, r.Render.Height, r.Render.SmartPad, r.Render.AutoEnhance); err != nil {
		return err
	}

	fadeIn := seg.TransitionIn.FadeDuration()
	fadeOut := seg.TransitionOut.FadeDuration()

	var audioPath string
	audioDur := 0.0
	if seg.VoiceOver != nil && seg.VoiceOver.LocalPath != "" {
		var err error
		audioPath, audioDur, err = r.ComposeVoiceAudio(ctx, seg, tempDir)
		if err != nil {
			return err
		}
		audioPath, err = r.ExtendWithSilence(ctx, audioPath, fadeIn, fadeOut, tempDir)
		if err != nil {
			return err
		}
	}

	total := fadeIn + audioDur + fadeOut
	if total <= 0 {
		total = r.Render.DefaultSegmentDuration
	}

	args := []string{
		"-y",
		"-loop", "1",
		"-framerate", fmt.Sprintf("%d", r.Render.FPS),
		"-i", processed,
	}
	if audioPath != "" {
		args = append(args, "-i", audioPath)
	}
	args = append(args,
		"-vf", r.videoFilters(seg, total, fadeIn, fadeOut, false),
		"-t", fmt.Sprintf("%.3f", total),
		"-r", fmt.Sprintf("%d", r.Render.FPS),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
	)
	if audioPath != "" {
		if af := audioFilters(total, fadeIn, fadeOut); af != "" {
			args = append(args, "-af", af)
		}
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	} else {
		args = append(args, "-an")
	}
	args = append(args, out)
	return r.FFmpeg.Run(ctx, args...)
}

// videoFilters assembles the full -vf chain: normalization, fades, and
// subtitle overlays.
func (r *Renderer) videoFilters(seg *spec.Segment, total, fadeIn, fadeOut float64, rescale bool) string {
	var filters []string
	if rescale {
		filters = append(filters,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", r.Render.Width, r.Render.Height),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", r.Render.Width, r.Render.Height),
		)
	}
	filters = append(filters, "format=yuv420p")

	if fadeIn > 0 {
		filters = append(filters, fadeFilter("in", 0, fadeIn, transitionType(seg.TransitionIn)))
	}
	if fadeOut > 0 {
		filters = append(filters, fadeFilter("out", total-fadeOut, fadeOut, transitionType(seg.TransitionOut)))
	}

	delay := fadeIn
	if seg.VoiceOver != nil {
		delay += seg.VoiceOver.StartDelay
	}
	for _, sub := range seg.TextOver {
		filters = append(filters, r.drawtextFilter(sub, delay))
	}
	return strings.Join(filters, ",")
}

// transitionType returns the transition's type, degrading unsupported values
// to a plain fade.
func transitionType(t *spec.Transition) string {
	if t == nil {
		return spec.TransitionFade
	}
	switch t.Type {
	case spec.TransitionFade, spec.TransitionFadeBlack, spec.TransitionFadeWhite:
		return t.Type
	case spec.TransitionCut:
		return spec.TransitionCut
	default:
		logger.Warn("unsupported transition type, using fade", "type", t.Type)
		return spec.TransitionFade
	}
}

func fadeFilter(direction string, start, duration float64, kind string) string {
	f := fmt.Sprintf("fade=t=%s:st=%.3f:d=%.3f", direction, start, duration)
	if kind == spec.TransitionFadeWhite {
		f += ":color=white"
	}
	return f
}

// drawtextFilter renders one subtitle overlay, shifting its window by the
// fade-in and voice start delay.
func (r *Renderer) drawtextFilter(sub spec.TextOver, delay float64) string {
	parts := []string{
		fmt.Sprintf("text='%s'", ffmpeg.EscapeDrawtext(sub.Text)),
		fmt.Sprintf("x=%s", r.Text.PositionX),
		fmt.Sprintf("y=%s", r.Text.PositionY),
		fmt.Sprintf("fontsize=%d", r.Text.FontSize),
		fmt.Sprintf("fontcolor=%s", r.Text.FontColor),
	}
	if r.Text.FontFile != "" {
		parts = append(parts, fmt.Sprintf("fontfile=%s", r.Text.FontFile))
	}
	parts = append(parts, fmt.Sprintf("enable='%s'",
		ffmpeg.FormatEnable(sub.StartTime+delay, sub.End()+delay)))
	return "drawtext=" + strings.Join(parts, ":")
}

// audioFilters builds matching afade in/out filters.
func audioFilters(total, fadeIn, fadeOut float64) string {
	var filters []string
	if fadeIn > 0 {
		filters = append(filters, fmt.Sprintf("afade=t=in:st=0:d=%.3f", fadeIn))
	}
	if fadeOut > 0 {
		filters = append(filters, fmt.Sprintf("afade=t=out:st=%.3f:d=%.3f", total-fadeOut, fadeOut))
	}
	return strings.Join(filters, ",")
}
