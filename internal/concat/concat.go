// Package concat joins rendered segment clips into the final video and mixes
// in the optional background-music bed.
package concat

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Kira7dn/video-create/internal/ffmpeg"
	"github.com/Kira7dn/video-create/internal/logger"
	"github.com/Kira7dn/video-create/internal/spec"
)

// Music gain clamps. The auto-matched factor keeps music audible but under
// the narration; outside this band it is either inaudible or drowns speech.
const (
	MinMusicGain     = 0.1
	MaxMusicGain     = 0.5
	DefaultMusicGain = 0.2
)

// minOutputBytes is the sanity floor for the produced file.
const minOutputBytes = 1024

// Concatenator joins clips and mixes music.
type Concatenator struct {
	FFmpeg    *ffmpeg.Runner
	OutputDir string
}

// Run concatenates the ordered clips, optionally mixing in music, and
// returns the final path under OutputDir: final_video_{videoID}.mp4.
func (c *Concatenator) Run(ctx context.Context, clips []spec.Clip, music *spec.BackgroundMusic, videoID, tempDir string) (string, error) {
	if err := validateClips(clips); err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir %s: %w", c.OutputDir, err)
	}

	listPath, err := writeConcatList(clips, tempDir)
	if err != nil {
		return "", err
	}

	out := filepath.Join(c.OutputDir, fmt.Sprintf("final_video_%s.mp4", videoID))
	if music == nil || music.LocalPath == "" {
		err = c.streamCopyConcat(ctx, listPath, out)
	} else {
		err = c.concatWithMusic(ctx, listPath, clips, music, out)
	}
	if err != nil {
		return "", err
	}

	info, err := os.Stat(out)
	if err != nil {
		return "", fmt.Errorf("final video missing: %w", err)
	}
	if info.Size() <= minOutputBytes {
		return "", fmt.Errorf("final video %s suspiciously small (%d bytes)", out, info.Size())
	}
	return out, nil
}

func validateClips(clips []spec.Clip) error {
	if len(clips) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}
	for _, clip := range clips {
		info, err := os.Stat(clip.Path)
		if err != nil {
			return fmt.Errorf("clip %s: %w", clip.ID, err)
		}
		if info.Size() == 0 {
			return fmt.Errorf("clip %s is empty: %s", clip.ID, clip.Path)
		}
	}
	return nil
}

// writeConcatList produces the concat demuxer's input list.
func writeConcatList(clips []spec.Clip, tempDir string) (string, error) {
	var b strings.Builder
	for _, clip := range clips {
		// Single quotes in paths are escaped per the concat demuxer grammar.
		escaped := strings.ReplaceAll(clip.Path, `'`, `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	listPath := filepath.Join(tempDir, "concat_list.txt")
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing concat list: %w", err)
	}
	return listPath, nil
}

// streamCopyConcat is the fast path: no re-encode.
func (c *Concatenator) streamCopyConcat(ctx context.Context, listPath, out string) error {
	return c.FFmpeg.Run(ctx,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		out,
	)
}

// concatWithMusic concatenates and mixes the music bed in one invocation.
func (c *Concatenator) concatWithMusic(ctx context.Context, listPath string, clips []spec.Clip, music *spec.BackgroundMusic, out string) error {
	gain := c.musicGain(ctx, clips[0].Path, music.LocalPath)

	totalDur := 0.0
	if music.EndDelay > 0 {
		totalDur = c.totalDuration(ctx, clips)
	}
	graph := musicMixGraph(gain, music, totalDur)

	return c.FFmpeg.Run(ctx,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-i", music.LocalPath,
		"-filter_complex", graph,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		out,
	)
}

// musicMixGraph builds the filter graph for the music bed: loop the music,
// trim it to its play window, delay it to start_delay, scale by gain, then
// mix without extending past the video. The play window is the total video
// duration minus start_delay and end_delay; a non-positive totalDur disables
// the trim and amix duration=first still bounds the output.
func musicMixGraph(gain float64, music *spec.BackgroundMusic, totalDur float64) string {
	chain := "aloop=loop=-1:size=2e9"
	if playDur := totalDur - music.StartDelay - music.EndDelay; totalDur > 0 && playDur > 0 {
		chain += fmt.Sprintf(",atrim=duration=%.3f", playDur)
	}
	delayMs := int(music.StartDelay * 1000)
	chain += fmt.Sprintf(",adelay=%d|%d,volume=%.3f", delayMs, delayMs, gain)
	return fmt.Sprintf(
		"[1:a]%s[music];[0:a][music]amix=inputs=2:duration=first:dropout_transition=2[aout]",
		chain)
}

// totalDuration sums the probed clip durations, returning 0 when any probe
// fails so callers fall back to the untrimmed graph.
func (c *Concatenator) totalDuration(ctx context.Context, clips []spec.Clip) float64 {
	total := 0.0
	for _, clip := range clips {
		d, err := c.FFmpeg.ProbeDuration(ctx, clip.Path)
		if err != nil {
			logger.Warn("clip duration probe failed, music trim disabled",
				"clip", clip.ID, "error", err)
			return 0
		}
		total += d
	}
	return total
}

// musicGain probes the loudness of the first clip and of the music and
// auto-matches the music level to sit under the narration.
func (c *Concatenator) musicGain(ctx context.Context, clipPath, musicPath string) float64 {
	videoMean, err := c.FFmpeg.ProbeMeanVolume(ctx, clipPath)
	if err != nil {
		logger.Warn("mean-volume probe failed, using default music gain",
			"path", clipPath, "error", err)
		return DefaultMusicGain
	}
	musicMean, err := c.FFmpeg.ProbeMeanVolume(ctx, musicPath)
	if err != nil {
		logger.Warn("mean-volume probe failed, using default music gain",
			"path", musicPath, "error", err)
		return DefaultMusicGain
	}
	return ClampGain(GainFactor(videoMean, musicMean))
}

// GainFactor converts a loudness difference in dB into a linear volume
// factor.
func GainFactor(videoMeanDB, musicMeanDB float64) float64 {
	return math.Pow(10, (videoMeanDB-musicMeanDB)/20)
}

// ClampGain bounds a music gain factor to the allowed band.
func ClampGain(factor float64) float64 {
	if factor < MinMusicGain {
		return MinMusicGain
	}
	if factor > MaxMusicGain {
		return MaxMusicGain
	}
	return factor
}
