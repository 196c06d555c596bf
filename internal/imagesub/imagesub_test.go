package imagesub

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kira7dn/video-create/internal/imagesearch"
	"github.com/Kira7dn/video-create/internal/spec"
)

type fakeSearcher struct {
	results map[string]string
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _, _ int) (string, error) {
	f.queries = append(f.queries, query)
	if u, ok := f.results[query]; ok {
		return u, nil
	}
	return "", imagesearch.ErrNoResults
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.SetRGBA(0, 0, color.RGBA{A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func pngServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		img := image.NewRGBA(image.Rect(0, 0, 1280, 720))
		png.Encode(w, img)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQualifiedImagePassesThrough(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	writePNG(t, good, 1280, 720)

	s := &Substituter{MinWidth: 1024, MinHeight: 576, Searcher: &fakeSearcher{}}
	vs := &spec.VideoSpec{Segments: []*spec.Segment{
		{ID: "s1", Image: &spec.MediaRef{URL: "http://x/a.png", LocalPath: good}},
	}}

	require.NoError(t, s.Run(t.Context(), vs, nil, dir))
	assert.Equal(t, good, vs.Segments[0].Image.LocalPath)
}

func TestVideoSegmentAlwaysQualified(t *testing.T) {
	searcher := &fakeSearcher{}
	s := &Substituter{MinWidth: 1024, MinHeight: 576, Searcher: searcher}
	vs := &spec.VideoSpec{Segments: []*spec.Segment{
		{ID: "s1", Video: &spec.MediaRef{URL: "http://x/v.mp4", LocalPath: "/nope"}},
	}}

	require.NoError(t, s.Run(t.Context(), vs, nil, t.TempDir()))
	assert.Empty(t, searcher.queries)
}

func TestUndersizedImageSubstituted(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.png")
	writePNG(t, small, 320, 240)
	srv := pngServer(t)

	searcher := &fakeSearcher{results: map[string]string{
		"a beautiful mountain scene": srv.URL + "/replacement.png",
	}}
	s := &Substituter{
		MinWidth: 1024, MinHeight: 576, MaxKeywords: 5,
		Searcher: searcher,
	}
	vs := &spec.VideoSpec{Segments: []*spec.Segment{
		{
			ID:        "s1",
			Image:     &spec.MediaRef{URL: "http://x/small.png", LocalPath: small},
			VoiceOver: &spec.VoiceOver{Content: "a beautiful mountain scene"},
		},
	}}

	require.NoError(t, s.Run(t.Context(), vs, nil, dir))
	assert.Equal(t, srv.URL+"/replacement.png", vs.Segments[0].Image.URL)
	assert.FileExists(t, vs.Segments[0].Image.LocalPath)
	assert.Contains(t, filepath.Base(vs.Segments[0].Image.LocalPath), "auto_image_")
}

func TestFallbackQueryUsedWhenKeywordsMiss(t *testing.T) {
	dir := t.TempDir()
	srv := pngServer(t)

	searcher := &fakeSearcher{results: map[string]string{
		fallbackQuery: srv.URL + "/abstract.png",
	}}
	s := &Substituter{MinWidth: 1024, MinHeight: 576, MaxKeywords: 5, Searcher: searcher}
	vs := &spec.VideoSpec{Segments: []*spec.Segment{
		{
			ID:        "s1",
			VoiceOver: &spec.VoiceOver{Content: "unfindable gibberish topic"},
		},
	}}

	require.NoError(t, s.Run(t.Context(), vs, nil, dir))
	assert.Equal(t, fallbackQuery, searcher.queries[len(searcher.queries)-1])
	require.NotNil(t, vs.Segments[0].Image)
	assert.FileExists(t, vs.Segments[0].Image.LocalPath)
}

func TestAllSearchesFailNamesSegment(t *testing.T) {
	s := &Substituter{MinWidth: 1024, MinHeight: 576, MaxKeywords: 5, Searcher: &fakeSearcher{}}
	vs := &spec.VideoSpec{Segments: []*spec.Segment{
		{ID: "problem-seg", VoiceOver: &spec.VoiceOver{Content: "some words here"}},
	}}

	err := s.Run(t.Context(), vs, nil, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "problem-seg")
}

func TestFallbackKeywordsUsesRawContent(t *testing.T) {
	kws := fallbackKeywords("  The mountain stood tall.  ")
	assert.Equal(t, []string{"The mountain stood tall."}, kws)
}

func TestFallbackKeywordsEmptyContent(t *testing.T) {
	assert.Equal(t, []string{"nature"}, fallbackKeywords("   "))
	assert.Equal(t, []string{"nature"}, fallbackKeywords(""))
}

func TestContentUsedVerbatimAsSearchQuery(t *testing.T) {
	dir := t.TempDir()
	srv := pngServer(t)

	searcher := &fakeSearcher{results: map[string]string{
		"sunrise over the harbor": srv.URL + "/harbor.png",
	}}
	s := &Substituter{MinWidth: 1024, MinHeight: 576, MaxKeywords: 5, Searcher: searcher}
	vs := &spec.VideoSpec{Segments: []*spec.Segment{
		{ID: "s1", VoiceOver: &spec.VoiceOver{Content: " sunrise over the harbor "}},
	}}

	require.NoError(t, s.Run(t.Context(), vs, nil, dir))
	require.NotEmpty(t, searcher.queries)
	assert.Equal(t, "sunrise over the harbor", searcher.queries[0])
}
