// Package ffmpeg wraps the ffmpeg/ffprobe command-line toolchain: running
// commands with captured stderr, probing media durations and loudness, and
// escaping text for filter arguments.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Kira7dn/video-create/internal/logger"
)

// Sentinel errors for toolchain failures.
var (
	// ErrNotFound indicates the ffmpeg or ffprobe binary is not on PATH.
	ErrNotFound = errors.New("ffmpeg binary not found in PATH")
	// ErrTimeout indicates the command was killed by its deadline.
	ErrTimeout = errors.New("ffmpeg command timed out")
)

// ExitError is returned when a command runs but exits non-zero. It carries
// the captured stderr, which is where ffmpeg reports everything useful.
type ExitError struct {
	Cmd    string
	Args   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Cmd, e.Code, tail(e.Stderr, 512))
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// Runner executes ffmpeg/ffprobe commands.
type Runner struct {
	// FFmpegPath and FFprobePath override binary discovery. Empty means
	// look up "ffmpeg"/"ffprobe" on PATH.
	FFmpegPath  string
	FFprobePath string
	// Timeout bounds each command. Zero means no per-command deadline
	// beyond the caller's context.
	Timeout time.Duration
}

// NewRunner returns a Runner using PATH lookup and the given timeout.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{Timeout: timeout}
}

func (r *Runner) ffmpeg() string {
	if r.FFmpegPath != "" {
		return r.FFmpegPath
	}
	return "ffmpeg"
}

func (r *Runner) ffprobe() string {
	if r.FFprobePath != "" {
		return r.FFprobePath
	}
	return "ffprobe"
}

// Run executes ffmpeg with the given args, capturing stderr. Output of a
// successful run is discarded; callers read the produced files instead.
func (r *Runner) Run(ctx context.Context, args ...string) error {
	_, err := r.exec(ctx, r.ffmpeg(), args)
	return err
}

// RunProbe executes ffprobe with the given args and returns trimmed stdout.
func (r *Runner) RunProbe(ctx context.Context, args ...string) (string, error) {
	out, err := r.exec(ctx, r.ffprobe(), args)
	return strings.TrimSpace(out), err
}

// RunCaptureStderr executes ffmpeg and returns its stderr even on success.
// Used for analysis filters (volumedetect) that report via the log stream.
func (r *Runner) RunCaptureStderr(ctx context.Context, args ...string) (string, error) {
	cmd, cmdCtx, cancel, err := r.command(ctx, r.ffmpeg(), args)
	if err != nil {
		return "", err
	}
	defer cancel()

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if runErr != nil {
		return stderr.String(), r.wrapRunError(cmdCtx, r.ffmpeg(), args, runErr, stderr.String())
	}
	return stderr.String(), nil
}

// command builds the exec.Cmd plus the derived context so callers can tell a
// deadline kill apart from other failures.
func (r *Runner) command(ctx context.Context, bin string, args []string) (*exec.Cmd, context.Context, context.CancelFunc, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrNotFound, bin)
	}
	cancel := context.CancelFunc(func() {})
	if r.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
	}
	cmd := exec.CommandContext(ctx, path, args...)
	return cmd, ctx, cancel, nil
}

func (r *Runner) exec(ctx context.Context, bin string, args []string) (string, error) {
	cmd, cmdCtx, cancel, err := r.command(ctx, bin, args)
	if err != nil {
		return "", err
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("running command", "bin", bin, "args", strings.Join(args, " "))
	start := time.Now()
	runErr := cmd.Run()
	logger.Debug("command finished", "bin", bin, "duration", time.Since(start), "err", runErr)

	if runErr != nil {
		return stdout.String(), r.wrapRunError(cmdCtx, bin, args, runErr, stderr.String())
	}
	return stdout.String(), nil
}

func (r *Runner) wrapRunError(ctx context.Context, bin string, args []string, runErr error, stderr string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w after %s: %s", ErrTimeout, r.Timeout, bin)
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return &ExitError{Cmd: bin, Args: args, Code: exitErr.ExitCode(), Stderr: stderr}
	}
	return fmt.Errorf("running %s: %w", bin, runErr)
}

// ProbeDuration returns the container duration of the media file in seconds.
func (r *Runner) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := r.RunProbe(ctx,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probing duration of %s: %w", path, err)
	}
	d, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q of %s: %w", out, path, err)
	}
	return d, nil
}

// HasAudioStream reports whether the media file carries at least one audio
// stream.
func (r *Runner) HasAudioStream(ctx context.Context, path string) (bool, error) {
	out, err := r.RunProbe(ctx,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return false, fmt.Errorf("probing audio streams of %s: %w", path, err)
	}
	return out != "", nil
}

// EscapeDrawtext escapes text for use as an ffmpeg drawtext text= argument.
// Backslash must go first so later escapes are not double-escaped.
func EscapeDrawtext(text string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
		`{`, `\{`,
		`}`, `\}`,
	)
	return replacer.Replace(text)
}

// FormatEnable renders a drawtext enable expression for a time window.
func FormatEnable(start, end float64) string {
	return fmt.Sprintf("between(t,%.3f,%.3f)", start, end)
}
