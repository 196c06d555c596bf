package aligner

import (
	"context"
	"strings"

	"github.com/Kira7dn/video-create/internal/agent"
	"github.com/Kira7dn/video-create/internal/logger"
	"github.com/Kira7dn/video-create/internal/spec"
)

// Aligner adds timed subtitles to segments that carry a voice-over.
type Aligner struct {
	Client          *Client
	Agent           *agent.Agent
	MinSuccessRatio float64
	MaxLookahead    int
}

// Run processes every segment in place. A segment without voice-over audio or
// with empty content is left untouched. A segment whose alignment quality
// falls below the floor keeps no subtitles; the job continues.
func (a *Aligner) Run(ctx context.Context, vs *spec.VideoSpec) error {
	for _, seg := range vs.Segments {
		if err := a.alignSegment(ctx, seg); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aligner) alignSegment(ctx context.Context, seg *spec.Segment) error {
	vo := seg.VoiceOver
	if vo == nil || vo.LocalPath == "" || strings.TrimSpace(vo.Content) == "" {
		return nil
	}

	phrases := SplitPhrases(ctx, a.Agent, vo.Content)
	if len(phrases) == 0 {
		return nil
	}

	words, err := a.Client.Align(ctx, vo.LocalPath, vo.Content)
	if err != nil {
		return &AlignmentError{SegmentID: seg.ID, Err: err}
	}

	ratio := SuccessRatio(words)
	if ratio < a.MinSuccessRatio {
		logger.Warn("alignment below success floor, dropping subtitles",
			"segment", seg.ID, "ratio", ratio, "floor", a.MinSuccessRatio)
		seg.TextOver = nil
		return nil
	}

	seg.TextOver = MapPhrases(phrases, words, a.MaxLookahead)
	logger.Info("segment aligned",
		"segment", seg.ID, "phrases", len(phrases),
		"subtitles", len(seg.TextOver), "success_ratio", ratio)
	return nil
}
