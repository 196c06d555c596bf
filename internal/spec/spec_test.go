package spec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionFadeDuration(t *testing.T) {
	assert.Zero(t, (*Transition)(nil).FadeDuration())
	assert.Zero(t, (&Transition{Type: TransitionCut, Duration: 2}).FadeDuration())
	assert.Zero(t, (&Transition{Type: TransitionFade, Duration: -1}).FadeDuration())
	assert.InDelta(t, 0.5, (&Transition{Type: TransitionFade, Duration: 0.5}).FadeDuration(), 1e-9)
	assert.InDelta(t, 1.0, (&Transition{Type: TransitionFadeBlack, Duration: 1.0}).FadeDuration(), 1e-9)
}

func TestSegmentHasVideo(t *testing.T) {
	assert.False(t, (&Segment{}).HasVideo())
	assert.False(t, (&Segment{Video: &MediaRef{}}).HasVideo())
	assert.True(t, (&Segment{Video: &MediaRef{URL: "http://x/v.mp4"}}).HasVideo())
}

func TestTextOverEnd(t *testing.T) {
	assert.InDelta(t, 3.5, TextOver{StartTime: 1.5, Duration: 2.0}.End(), 1e-9)
}

func TestValidateIDs(t *testing.T) {
	ok := &VideoSpec{Segments: []*Segment{{ID: "a"}, {ID: "b"}}}
	assert.NoError(t, ok.ValidateIDs())

	dup := &VideoSpec{Segments: []*Segment{{ID: "a"}, {ID: "x"}, {ID: "a"}}}
	err := dup.ValidateIDs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a"`)
}

func TestSegmentAssetsGet(t *testing.T) {
	var nilAssets *SegmentAssets
	assert.Nil(t, nilAssets.Get(KindImage))

	sa := &SegmentAssets{Assets: map[string]*Asset{
		KindImage: {LocalPath: "/tmp/i.png"},
	}}
	require.NotNil(t, sa.Get(KindImage))
	assert.Nil(t, sa.Get(KindVideo))
}

func TestVideoSpecJSONRoundTrip(t *testing.T) {
	doc := []byte(`{
		"title": "demo",
		"description": "d",
		"segments": [{
			"id": "s1",
			"voice_over": {"url": "http://x/a.mp3", "content": "hi", "start_delay": 0.5},
			"text_over": [{"text": "hi", "start_time": 0, "duration": 1.2}]
		}]
	}`)
	var vs VideoSpec
	require.NoError(t, json.Unmarshal(doc, &vs))
	require.Len(t, vs.Segments, 1)
	assert.InDelta(t, 0.5, vs.Segments[0].VoiceOver.StartDelay, 1e-9)
	assert.InDelta(t, 1.2, vs.Segments[0].TextOver[0].Duration, 1e-9)
}
