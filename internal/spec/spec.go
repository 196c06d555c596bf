// Package spec defines the input data model for a video assembly request:
// an ordered list of segments, each bundling a visual source, an optional
// narrated voice-over, per-segment transitions, and timed text overlays.
package spec

import "fmt"

// Transition type constants.
const (
	TransitionFade      = "fade"
	TransitionFadeBlack = "fadeblack"
	TransitionFadeWhite = "fadewhite"
	TransitionCut       = "cut"
)

// Asset kind constants.
const (
	KindImage           = "image"
	KindVideo           = "video"
	KindVoiceOver       = "voice_over"
	KindBackgroundMusic = "background_music"
)

// MediaRef is a remote media reference plus, once fetched, its local path.
type MediaRef struct {
	URL       string `json:"url"`
	LocalPath string `json:"local_path,omitempty"`
}

// VoiceOver describes a segment's narration: the audio source, its human
// transcript, and silence padding (seconds) around the spoken audio.
type VoiceOver struct {
	URL        string  `json:"url"`
	LocalPath  string  `json:"local_path,omitempty"`
	Content    string  `json:"content"`
	StartDelay float64 `json:"start_delay,omitempty"`
	EndDelay   float64 `json:"end_delay,omitempty"`
}

// Transition describes a fade applied at a segment boundary.
// A nil Transition or the "cut" type contributes zero-length fade.
type Transition struct {
	Type     string  `json:"type"`
	Duration float64 `json:"duration"`
}

// FadeDuration returns the effective fade length of t. Cut transitions and
// absent transitions contribute zero.
func (t *Transition) FadeDuration() float64 {
	if t == nil || t.Type == TransitionCut || t.Duration <= 0 {
		return 0
	}
	return t.Duration
}

// TextOver is one subtitle: a text span overlaid on the segment's video
// between StartTime and StartTime+Duration (seconds, relative to the
// voice-over audio).
type TextOver struct {
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	Duration   float64 `json:"duration"`
	IsFallback bool    `json:"is_fallback,omitempty"`
}

// End returns the subtitle's end time.
func (t TextOver) End() float64 { return t.StartTime + t.Duration }

// Segment is one atomic unit of the output video: one visual plus optional
// voice, transitions, and subtitles. Video supersedes Image when present.
type Segment struct {
	ID            string      `json:"id"`
	Image         *MediaRef   `json:"image,omitempty"`
	Video         *MediaRef   `json:"video,omitempty"`
	VoiceOver     *VoiceOver  `json:"voice_over,omitempty"`
	TransitionIn  *Transition `json:"transition_in,omitempty"`
	TransitionOut *Transition `json:"transition_out,omitempty"`
	TextOver      []TextOver  `json:"text_over,omitempty"`
}

// HasVideo reports whether the segment's primary visual is a video clip.
func (s *Segment) HasVideo() bool {
	return s.Video != nil && s.Video.URL != ""
}

// BackgroundMusic is the optional global music bed mixed under the
// concatenated output.
type BackgroundMusic struct {
	URL        string  `json:"url"`
	LocalPath  string  `json:"local_path,omitempty"`
	StartDelay float64 `json:"start_delay,omitempty"`
	EndDelay   float64 `json:"end_delay,omitempty"`
}

// VideoSpec is the validated input specification for one assembly job.
type VideoSpec struct {
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Segments        []*Segment       `json:"segments"`
	BackgroundMusic *BackgroundMusic `json:"background_music,omitempty"`
}

// Asset records the result of fetching one referenced URL.
type Asset struct {
	URL       string
	LocalPath string
	Kind      string
}

// SegmentAssets groups the fetched assets for one segment, keyed by kind.
type SegmentAssets struct {
	SegmentID string
	Assets    map[string]*Asset
}

// Get returns the asset of the given kind, or nil.
func (sa *SegmentAssets) Get(kind string) *Asset {
	if sa == nil {
		return nil
	}
	return sa.Assets[kind]
}

// Clip is one rendered per-segment MP4.
type Clip struct {
	ID   string
	Path string
}

// ValidateIDs checks that segment IDs are unique within the spec.
func (v *VideoSpec) ValidateIDs() error {
	seen := make(map[string]int, len(v.Segments))
	for i, seg := range v.Segments {
		if prev, ok := seen[seg.ID]; ok {
			return fmt.Errorf("duplicate segment id %q at indexes %d and %d", seg.ID, prev, i)
		}
		seen[seg.ID] = i
	}
	return nil
}
