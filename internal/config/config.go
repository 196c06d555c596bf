// Package config loads service settings from defaults, an optional YAML file,
// and VIDEOCREATE_-prefixed environment variables, in increasing precedence.
// Settings are decoded once at startup and treated as immutable afterwards.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerSettings configure the HTTP API.
type ServerSettings struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// Addr returns the host:port listen address.
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DownloadSettings bound the asset fetcher.
type DownloadSettings struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// RenderSettings configure per-segment clip rendering.
type RenderSettings struct {
	MaxConcurrentSegments  int     `mapstructure:"max_concurrent_segments"`
	FPS                    int     `mapstructure:"fps"`
	Width                  int     `mapstructure:"width"`
	Height                 int     `mapstructure:"height"`
	AutoEnhance            bool    `mapstructure:"auto_enhance"`
	SmartPad               bool    `mapstructure:"smart_pad"`
	DefaultSegmentDuration float64 `mapstructure:"default_segment_duration"`
}

// ImageSettings set the minimum acceptable still-image resolution.
type ImageSettings struct {
	MinWidth  int `mapstructure:"min_width"`
	MinHeight int `mapstructure:"min_height"`
}

// TextSettings configure subtitle overlay rendering.
type TextSettings struct {
	FontFile  string `mapstructure:"font_file"`
	FontSize  int    `mapstructure:"font_size"`
	FontColor string `mapstructure:"font_color"`
	PositionX string `mapstructure:"position_x"`
	PositionY string `mapstructure:"position_y"`
}

// AlignerSettings configure the forced-aligner client.
type AlignerSettings struct {
	URL             string        `mapstructure:"url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	MinSuccessRatio float64       `mapstructure:"min_success_ratio"`
}

// AISettings configure the structured-output LLM agents. When Enabled is
// false, or APIKey is empty, every agent falls back to its deterministic path.
type AISettings struct {
	Enabled     bool   `mapstructure:"enabled"`
	Model       string `mapstructure:"model"`
	MaxKeywords int    `mapstructure:"max_keywords"`
	APIKey      string `mapstructure:"api_key"`
}

// SearchSettings configure the stock-image search client.
type SearchSettings struct {
	PixabayKey string        `mapstructure:"pixabay_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AWSSettings configure the S3 uploader. If any of the four credentials
// fields is empty the uploader degrades to local paths.
type AWSSettings struct {
	S3Bucket        string `mapstructure:"s3_bucket"`
	S3Region        string `mapstructure:"s3_region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	S3Prefix        string `mapstructure:"s3_prefix"`
}

// Configured reports whether all fields needed for a real upload are set.
func (a AWSSettings) Configured() bool {
	return a.S3Bucket != "" && a.S3Region != "" && a.AccessKeyID != "" && a.SecretAccessKey != ""
}

// TempSettings configure scoped working directories.
type TempSettings struct {
	Prefix         string        `mapstructure:"prefix"`
	DelayedCleanup time.Duration `mapstructure:"delayed_cleanup"`
	SweepAge       time.Duration `mapstructure:"sweep_age"`
}

// JobsSettings configure the async job service.
type JobsSettings struct {
	StorePath     string `mapstructure:"store_path"`
	MaxConcurrent int64  `mapstructure:"max_concurrent"`
}

// OutputSettings configure where finished videos land on disk.
type OutputSettings struct {
	Dir string `mapstructure:"dir"`
}

// Settings is the complete service configuration.
type Settings struct {
	Server   ServerSettings   `mapstructure:"server"`
	Download DownloadSettings `mapstructure:"download"`
	Render   RenderSettings   `mapstructure:"render"`
	Image    ImageSettings    `mapstructure:"image"`
	Text     TextSettings     `mapstructure:"text"`
	Aligner  AlignerSettings  `mapstructure:"aligner"`
	AI       AISettings       `mapstructure:"ai"`
	Search   SearchSettings   `mapstructure:"search"`
	AWS      AWSSettings      `mapstructure:"aws"`
	Temp     TempSettings     `mapstructure:"temp"`
	Jobs     JobsSettings     `mapstructure:"jobs"`
	Output   OutputSettings   `mapstructure:"output"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.max_upload_bytes", int64(100*1024*1024))

	v.SetDefault("download.max_concurrent", 10)
	v.SetDefault("download.timeout", "300s")

	v.SetDefault("render.max_concurrent_segments", 1)
	v.SetDefault("render.fps", 24)
	v.SetDefault("render.width", 1920)
	v.SetDefault("render.height", 1080)
	v.SetDefault("render.auto_enhance", true)
	v.SetDefault("render.smart_pad", true)
	v.SetDefault("render.default_segment_duration", 4.0)

	v.SetDefault("image.min_width", 1024)
	v.SetDefault("image.min_height", 576)

	v.SetDefault("text.font_file", "")
	v.SetDefault("text.font_size", 24)
	v.SetDefault("text.font_color", "white")
	v.SetDefault("text.position_x", "(w-text_w)/2")
	v.SetDefault("text.position_y", "h-th-50")

	v.SetDefault("aligner.url", "http://localhost:8765/transcriptions")
	v.SetDefault("aligner.timeout", "600s")
	v.SetDefault("aligner.max_retries", 3)
	v.SetDefault("aligner.retry_delay", "10s")
	v.SetDefault("aligner.min_success_ratio", 0.8)

	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.max_keywords", 5)
	v.SetDefault("ai.api_key", "")

	v.SetDefault("search.pixabay_key", "")
	v.SetDefault("search.timeout", "10s")

	v.SetDefault("aws.s3_bucket", "")
	v.SetDefault("aws.s3_region", "")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.s3_prefix", "videos/")

	v.SetDefault("temp.prefix", "tmp_create_")
	v.SetDefault("temp.delayed_cleanup", "30s")
	v.SetDefault("temp.sweep_age", "1h")

	v.SetDefault("jobs.store_path", "data/job_store.json")
	v.SetDefault("jobs.max_concurrent", int64(10))

	v.SetDefault("output.dir", "output")
}

// Load reads settings from defaults, the optional config file at path, and
// VIDEOCREATE_* environment variables. An empty path skips the file step;
// a named file that does not exist is an error.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VIDEOCREATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	return &s, nil
}

// Default returns the built-in settings with no file or environment applied.
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		panic(fmt.Sprintf("config: decoding defaults: %v", err))
	}
	return &s
}
