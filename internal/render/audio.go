package render

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Kira7dn/video-create/internal/spec"
)

// AudioError reports a failed audio composition for one segment.
type AudioError struct {
	SegmentID string
	Err       error
}

func (e *AudioError) Error() string {
	return fmt.Sprintf("composing audio for segment %s: %v", e.SegmentID, e.Err)
}

func (e *AudioError) Unwrap() error { return e.Err }

// loudnormFilter normalizes speech to a hot integrated loudness so voice
// stays in front of the later music mix.
const loudnormFilter = "loudnorm=I=-8:TP=-0.5:LRA=5"

// voiceGain is the fixed boost applied after normalization.
const voiceGain = 2.0

// ComposeVoiceAudio renders the segment's voice-over into a stereo 44.1 kHz
// WAV with delays applied: leading silence of start_delay, loudness
// normalization, fixed gain, and trailing silence of end_delay. Returns the
// produced path and its probed duration.
func (r *Renderer) ComposeVoiceAudio(ctx context.Context, seg *spec.Segment, tempDir string) (string, float64, error) {
	vo := seg.VoiceOver
	out := filepath.Join(tempDir, fmt.Sprintf("audio_%s.wav", seg.ID))

	filters := []string{}
	if vo.StartDelay > 0 {
		ms := int(vo.StartDelay * 1000)
		filters = append(filters, fmt.Sprintf("adelay=%d|%d", ms, ms))
	}
	filters = append(filters, loudnormFilter, fmt.Sprintf("volume=%.1f", voiceGain))
	if vo.EndDelay > 0 {
		filters = append(filters, fmt.Sprintf("apad=pad_dur=%.3f", vo.EndDelay))
	}

	args := []string{
		"-y",
		"-i", vo.LocalPath,
		"-af", strings.Join(filters, ","),
		"-ar", "44100",
		"-ac", "2",
		out,
	}
	if err := r.FFmpeg.Run(ctx, args...); err != nil {
		return "", 0, &AudioError{SegmentID: seg.ID, Err: err}
	}

	duration, err := r.FFmpeg.ProbeDuration(ctx, out)
	if err != nil {
		return "", 0, &AudioError{SegmentID: seg.ID, Err: err}
	}
	return out, duration, nil
}

// ExtendWithSilence pads the audio file with lead/tail seconds of silence by
// concatenating generated null sources, keeping the stereo 44.1 kHz layout.
func (r *Renderer) ExtendWithSilence(ctx context.Context, audioPath string, lead, tail float64, tempDir string) (string, error) {
	if lead <= 0 && tail <= 0 {
		return audioPath, nil
	}
	out := filepath.Join(tempDir, "padded_"+filepath.Base(audioPath))

	var args []string
	args = append(args, "-y")
	inputs := 0
	var labels []string
	if lead > 0 {
		args = append(args, "-f", "lavfi", "-t", fmt.Sprintf("%.3f", lead),
			"-i", "anullsrc=r=44100:cl=stereo")
		labels = append(labels, fmt.Sprintf("[%d]", inputs))
		inputs++
	}
	args = append(args, "-i", audioPath)
	labels = append(labels, fmt.Sprintf("[%d]", inputs))
	inputs++
	if tail > 0 {
		args = append(args, "-f", "lavfi", "-t", fmt.Sprintf("%.3f", tail),
			"-i", "anullsrc=r=44100:cl=stereo")
		labels = append(labels, fmt.Sprintf("[%d]", inputs))
		inputs++
	}

	graph := fmt.Sprintf("%sconcat=n=%d:v=0:a=1", strings.Join(labels, ""), inputs)
	args = append(args, "-filter_complex", graph, out)

	if err := r.FFmpeg.Run(ctx, args...); err != nil {
		return "", fmt.Errorf("extending audio with silence: %w", err)
	}
	return out, nil
}
