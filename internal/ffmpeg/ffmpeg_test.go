package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeDrawtext(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"apostrophe", "it's fine", `it\'s fine`},
		{"colon", "note: this", `note\: this`},
		{"percent", "100% done", `100\% done`},
		{"braces", "{x}", `\{x\}`},
		{"backslash first", `a\'b`, `a\\\'b`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeDrawtext(tt.in))
		})
	}
}

func TestFormatEnable(t *testing.T) {
	assert.Equal(t, "between(t,0.500,2.750)", FormatEnable(0.5, 2.75))
}

func TestMeanVolumeRegex(t *testing.T) {
	stderr := `
[Parsed_volumedetect_0 @ 0x5628] n_samples: 441000
[Parsed_volumedetect_0 @ 0x5628] mean_volume: -23.4 dB
[Parsed_volumedetect_0 @ 0x5628] max_volume: -5.1 dB
`
	m := meanVolumeRe.FindStringSubmatch(stderr)
	assert.NotNil(t, m)
	assert.Equal(t, "-23.4", m[1])
}

func TestExitErrorMessage(t *testing.T) {
	err := &ExitError{Cmd: "ffmpeg", Code: 1, Stderr: "No such file or directory"}
	assert.Contains(t, err.Error(), "code 1")
	assert.Contains(t, err.Error(), "No such file")
}

func TestTailTruncates(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	out := tail(string(long), 100)
	assert.Len(t, out, 103) // "..." prefix plus the last 100 bytes
	assert.Equal(t, "...", out[:3])
}

func TestRunnerBinaryOverrides(t *testing.T) {
	r := &Runner{}
	assert.Equal(t, "ffmpeg", r.ffmpeg())
	assert.Equal(t, "ffprobe", r.ffprobe())
	r.FFmpegPath = "/opt/ffmpeg"
	assert.Equal(t, "/opt/ffmpeg", r.ffmpeg())
}
