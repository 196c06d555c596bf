// Package imagesub qualifies each segment's still image against the minimum
// resolution and substitutes failing ones with a keyword-searched replacement.
package imagesub

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/Kira7dn/video-create/internal/agent"
	"github.com/Kira7dn/video-create/internal/imagesearch"
	"github.com/Kira7dn/video-create/internal/logger"
	"github.com/Kira7dn/video-create/internal/spec"
)

// fallbackQuery is the last-resort search term when no keyword matches.
const fallbackQuery = "abstract background"

// Substituter validates and replaces segment images.
type Substituter struct {
	MinWidth    int
	MinHeight   int
	MaxKeywords int
	Agent       *agent.Agent
	Searcher    imagesearch.Searcher
	HTTPClient  *http.Client
}

// Run inspects every segment without a video asset and replaces images that
// fall short of the minimum dimensions. Segment and asset records are updated
// in place; a segment that cannot be given a qualified image fails the stage.
// segAssets is index-aligned with vs.Segments and may be nil.
func (s *Substituter) Run(ctx context.Context, vs *spec.VideoSpec, segAssets []*spec.SegmentAssets, tempDir string) error {
	for i, seg := range vs.Segments {
		if seg.HasVideo() {
			continue
		}
		var sa *spec.SegmentAssets
		if i < len(segAssets) {
			sa = segAssets[i]
		}
		if err := s.qualifySegment(ctx, seg, sa, tempDir); err != nil {
			return fmt.Errorf("segment %s: %w", seg.ID, err)
		}
	}
	return nil
}

func (s *Substituter) qualifySegment(ctx context.Context, seg *spec.Segment, sa *spec.SegmentAssets, tempDir string) error {
	if seg.Image != nil && seg.Image.LocalPath != "" {
		ok, w, h, err := s.qualified(seg.Image.LocalPath)
		if err != nil {
			logger.Warn("image undecodable, substituting",
				"segment", seg.ID, "path", seg.Image.LocalPath, "error", err)
		} else if ok {
			return nil
		} else {
			logger.Info("image below minimum resolution, substituting",
				"segment", seg.ID, "width", w, "height", h,
				"min_width", s.MinWidth, "min_height", s.MinHeight)
		}
	}

	replacementURL, err := s.findReplacement(ctx, seg)
	if err != nil {
		return err
	}
	localPath, err := s.download(ctx, replacementURL, tempDir)
	if err != nil {
		return fmt.Errorf("fetching replacement image: %w", err)
	}

	if seg.Image == nil {
		seg.Image = &spec.MediaRef{}
	}
	seg.Image.URL = replacementURL
	seg.Image.LocalPath = localPath
	if sa != nil {
		sa.Assets[spec.KindImage] = &spec.Asset{URL: replacementURL, LocalPath: localPath, Kind: spec.KindImage}
	}
	logger.Info("image substituted", "segment", seg.ID, "url", replacementURL)
	return nil
}

// qualified decodes only the image header and checks dimensions.
func (s *Substituter) qualified(path string) (ok bool, w, h int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return false, 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return false, 0, 0, err
	}
	return cfg.Width >= s.MinWidth && cfg.Height >= s.MinHeight, cfg.Width, cfg.Height, nil
}

// findReplacement searches each extracted keyword in order, then the literal
// fallback query. All misses fail the segment.
func (s *Substituter) findReplacement(ctx context.Context, seg *spec.Segment) (string, error) {
	for _, query := range append(s.keywords(ctx, seg), fallbackQuery) {
		u, err := s.Searcher.Search(ctx, query, s.MinWidth, s.MinHeight)
		if err != nil {
			logger.Debug("image search miss", "segment", seg.ID, "query", query, "error", err)
			continue
		}
		return u, nil
	}
	return "", fmt.Errorf("no qualified replacement image found")
}

// keywords extracts search terms from the voice-over content, preferring the
// agent and falling back to the raw content itself.
func (s *Substituter) keywords(ctx context.Context, seg *spec.Segment) []string {
	content := ""
	if seg.VoiceOver != nil {
		content = strings.TrimSpace(seg.VoiceOver.Content)
	}
	if s.Agent.Enabled() && content != "" {
		kws, err := s.Agent.ExtractKeywords(ctx, content, s.MaxKeywords)
		if err == nil {
			return kws
		}
		logger.AgentFallback("keywords", err, "segment", seg.ID)
	}
	return fallbackKeywords(content)
}

// fallbackKeywords returns the trimmed content as a single search term, or
// "nature" when there is no content to work with.
func fallbackKeywords(content string) []string {
	if c := strings.TrimSpace(content); c != "" {
		return []string{c}
	}
	return []string{"nature"}
}

func (s *Substituter) download(ctx context.Context, rawURL, tempDir string) (string, error) {
	ext := ".jpg"
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	dest := filepath.Join(tempDir, fmt.Sprintf("auto_image_%s%s", randHex(8), ext))

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, out.Close()
}

func randHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
