// Package assets fetches every media URL referenced by a specification into
// the job's temp directory, fanning out under a bounded semaphore and
// reassembling results into segment order.
package assets

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Kira7dn/video-create/internal/logger"
	"github.com/Kira7dn/video-create/internal/spec"
)

// DownloadError reports a failed fetch of one asset URL.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("downloading %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Task is one pending download.
type Task struct {
	SegmentID string
	Kind      string
	URL       string
	Dest      string
}

// Results groups a fetch pass's output: per-segment asset maps aligned with
// the input segment order, plus the optional global music asset.
type Results struct {
	Segments []*spec.SegmentAssets
	Music    *spec.Asset
}

// Fetcher downloads assets with bounded concurrency.
type Fetcher struct {
	client *http.Client
	sem    *semaphore.Weighted
}

// NewFetcher builds a Fetcher with the given fan-out width and per-request
// timeout.
func NewFetcher(maxConcurrent int, timeout time.Duration) *Fetcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// BuildTasks enumerates the download tasks for vs, assigning each a unique
// destination under tempDir.
func BuildTasks(vs *spec.VideoSpec, tempDir string) []Task {
	var tasks []Task
	add := func(segmentID, kind, rawURL string) {
		if rawURL == "" {
			return
		}
		tasks = append(tasks, Task{
			SegmentID: segmentID,
			Kind:      kind,
			URL:       rawURL,
			Dest:      filepath.Join(tempDir, destName(kind, segmentID, rawURL)),
		})
	}
	for _, seg := range vs.Segments {
		if seg.Image != nil {
			add(seg.ID, spec.KindImage, seg.Image.URL)
		}
		if seg.Video != nil {
			add(seg.ID, spec.KindVideo, seg.Video.URL)
		}
		if seg.VoiceOver != nil {
			add(seg.ID, spec.KindVoiceOver, seg.VoiceOver.URL)
		}
	}
	if vs.BackgroundMusic != nil {
		add("global", spec.KindBackgroundMusic, vs.BackgroundMusic.URL)
	}
	return tasks
}

// destName builds a unique destination filename carrying the URL's extension,
// falling back to .tmp when the URL path has none.
func destName(kind, segmentID, rawURL string) string {
	ext := ".tmp"
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	return fmt.Sprintf("%s_%s_%s%s", kind, segmentID, randHex(4), ext)
}

func randHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// Fetch downloads every task and assembles the results back into the
// specification's segment order. The first failure cancels outstanding
// downloads and discards partial files.
func (f *Fetcher) Fetch(ctx context.Context, vs *spec.VideoSpec, tasks []Task) (*Results, error) {
	results := &Results{Segments: make([]*spec.SegmentAssets, len(vs.Segments))}
	segIndex := make(map[string]int, len(vs.Segments))
	for i, seg := range vs.Segments {
		results.Segments[i] = &spec.SegmentAssets{
			SegmentID: seg.ID,
			Assets:    make(map[string]*spec.Asset),
		}
		segIndex[seg.ID] = i
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			if err := f.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer f.sem.Release(1)

			if err := f.downloadFile(gctx, task.URL, task.Dest); err != nil {
				os.Remove(task.Dest)
				return &DownloadError{URL: task.URL, Err: err}
			}
			asset := &spec.Asset{URL: task.URL, LocalPath: task.Dest, Kind: task.Kind}

			mu.Lock()
			defer mu.Unlock()
			if task.Kind == spec.KindBackgroundMusic {
				results.Music = asset
			} else if i, ok := segIndex[task.SegmentID]; ok {
				results.Segments[i].Assets[task.Kind] = asset
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "assets downloaded", "tasks", len(tasks))
	return results, nil
}

func (f *Fetcher) downloadFile(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	return out.Close()
}

// Apply writes the fetched local paths back onto the specification so later
// stages can read them from the segment records directly.
func Apply(vs *spec.VideoSpec, res *Results) {
	for i, seg := range vs.Segments {
		sa := res.Segments[i]
		if a := sa.Get(spec.KindImage); a != nil && seg.Image != nil {
			seg.Image.LocalPath = a.LocalPath
		}
		if a := sa.Get(spec.KindVideo); a != nil && seg.Video != nil {
			seg.Video.LocalPath = a.LocalPath
		}
		if a := sa.Get(spec.KindVoiceOver); a != nil && seg.VoiceOver != nil {
			seg.VoiceOver.LocalPath = a.LocalPath
		}
	}
	if res.Music != nil && vs.BackgroundMusic != nil {
		vs.BackgroundMusic.LocalPath = res.Music.LocalPath
	}
}
