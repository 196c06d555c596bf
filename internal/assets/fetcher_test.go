package assets

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kira7dn/video-create/internal/spec"
)

func twoSegmentSpec(base string) *spec.VideoSpec {
	return &spec.VideoSpec{
		Title: "t",
		Segments: []*spec.Segment{
			{
				ID:        "s1",
				Image:     &spec.MediaRef{URL: base + "/img1.jpg"},
				VoiceOver: &spec.VoiceOver{URL: base + "/voice1.mp3", Content: "hi"},
			},
			{
				ID:    "s2",
				Video: &spec.MediaRef{URL: base + "/clip.mp4"},
			},
		},
		BackgroundMusic: &spec.BackgroundMusic{URL: base + "/music.mp3"},
	}
}

func TestBuildTasks(t *testing.T) {
	dir := t.TempDir()
	vs := twoSegmentSpec("http://example.com")
	tasks := BuildTasks(vs, dir)
	require.Len(t, tasks, 4)

	kinds := map[string]int{}
	for _, task := range tasks {
		kinds[task.Kind]++
		assert.True(t, strings.HasPrefix(task.Dest, dir))
	}
	assert.Equal(t, 1, kinds[spec.KindImage])
	assert.Equal(t, 1, kinds[spec.KindVideo])
	assert.Equal(t, 1, kinds[spec.KindVoiceOver])
	assert.Equal(t, 1, kinds[spec.KindBackgroundMusic])
}

func TestDestNameExtensionFallback(t *testing.T) {
	assert.True(t, strings.HasSuffix(destName("image", "s1", "http://x/y/photo.jpg"), ".jpg"))
	assert.True(t, strings.HasSuffix(destName("image", "s1", "http://x/no-extension"), ".tmp"))
	// Query strings must not leak into the extension.
	assert.True(t, strings.HasSuffix(destName("image", "s1", "http://x/a.png?sig=abc.def"), ".png"))
}

func TestFetchAssemblesInSegmentOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload for " + r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	vs := twoSegmentSpec(srv.URL)
	f := NewFetcher(4, 5*time.Second)

	res, err := f.Fetch(t.Context(), vs, BuildTasks(vs, dir))
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)

	assert.Equal(t, "s1", res.Segments[0].SegmentID)
	assert.NotNil(t, res.Segments[0].Get(spec.KindImage))
	assert.NotNil(t, res.Segments[0].Get(spec.KindVoiceOver))
	assert.Equal(t, "s2", res.Segments[1].SegmentID)
	assert.NotNil(t, res.Segments[1].Get(spec.KindVideo))
	require.NotNil(t, res.Music)

	data, err := os.ReadFile(res.Segments[0].Get(spec.KindImage).LocalPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "img1.jpg")
}

func TestFetchFailureDiscardsPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "voice") {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	vs := twoSegmentSpec(srv.URL)
	f := NewFetcher(4, 5*time.Second)

	_, err := f.Fetch(t.Context(), vs, BuildTasks(vs, dir))
	require.Error(t, err)

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Contains(t, dlErr.URL, "voice")

	// No leftover file for the failed task.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "voice_over")
	}
}

func TestApplyWritesLocalPaths(t *testing.T) {
	vs := twoSegmentSpec("http://example.com")
	res := &Results{
		Segments: []*spec.SegmentAssets{
			{SegmentID: "s1", Assets: map[string]*spec.Asset{
				spec.KindImage:     {LocalPath: "/tmp/i.jpg"},
				spec.KindVoiceOver: {LocalPath: "/tmp/v.mp3"},
			}},
			{SegmentID: "s2", Assets: map[string]*spec.Asset{
				spec.KindVideo: {LocalPath: "/tmp/c.mp4"},
			}},
		},
		Music: &spec.Asset{LocalPath: "/tmp/m.mp3"},
	}

	Apply(vs, res)
	assert.Equal(t, "/tmp/i.jpg", vs.Segments[0].Image.LocalPath)
	assert.Equal(t, "/tmp/v.mp3", vs.Segments[0].VoiceOver.LocalPath)
	assert.Equal(t, "/tmp/c.mp4", vs.Segments[1].Video.LocalPath)
	assert.Equal(t, "/tmp/m.mp3", vs.BackgroundMusic.LocalPath)
}

func TestFetcherMinimumConcurrency(t *testing.T) {
	f := NewFetcher(0, time.Second)
	require.NotNil(t, f)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	vs := &spec.VideoSpec{Segments: []*spec.Segment{
		{ID: "only", Image: &spec.MediaRef{URL: srv.URL + "/a.png"}},
	}}
	res, err := f.Fetch(t.Context(), vs, BuildTasks(vs, t.TempDir()))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Clean(res.Segments[0].Get(spec.KindImage).LocalPath))
}
