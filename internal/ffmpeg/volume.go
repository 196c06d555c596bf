package ffmpeg

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

var meanVolumeRe = regexp.MustCompile(`mean_volume:\s*(-?\d+(?:\.\d+)?)\s*dB`)

// ProbeMeanVolume measures the mean loudness of a media file in dBFS using
// the volumedetect filter. The measurement is reported on stderr.
func (r *Runner) ProbeMeanVolume(ctx context.Context, path string) (float64, error) {
	stderr, err := r.RunCaptureStderr(ctx,
		"-i", path,
		"-af", "volumedetect",
		"-vn",
		"-f", "null", "-",
	)
	if err != nil {
		return 0, fmt.Errorf("probing mean volume of %s: %w", path, err)
	}
	m := meanVolumeRe.FindStringSubmatch(stderr)
	if m == nil {
		return 0, fmt.Errorf("no mean_volume in volumedetect output for %s", path)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing mean_volume %q: %w", m[1], err)
	}
	return v, nil
}
