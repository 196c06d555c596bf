package aligner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/Kira7dn/video-create/internal/logger"
)

// Word is one aligned token from the forced-aligner response.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Case  string  `json:"case"`
}

// Success reports whether the word received a usable time-stamp.
func (w Word) Success() bool { return w.Case == "success" }

// AlignmentError reports a forced-aligner interaction failure.
type AlignmentError struct {
	SegmentID string
	Err       error
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("aligning segment %s: %v", e.SegmentID, e.Err)
}

func (e *AlignmentError) Unwrap() error { return e.Err }

// Client calls an external forced-aligner service.
type Client struct {
	URL        string
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client
}

// NewClient builds a Client with the given endpoint and retry policy.
func NewClient(url string, timeout time.Duration, maxRetries int, retryDelay time.Duration) *Client {
	return &Client{
		URL:        url,
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type alignResponse struct {
	Words []Word `json:"words"`
}

// Align submits the audio file and transcript and returns per-word timings.
// Transient failures are retried with linearly increasing delay.
func (c *Client) Align(ctx context.Context, audioPath, transcript string) ([]Word, error) {
	var lastErr error
	attempts := c.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		words, err := c.alignOnce(ctx, audioPath, transcript)
		if err == nil {
			return words, nil
		}
		lastErr = err
		logger.Warn("forced aligner attempt failed",
			"attempt", attempt, "max", attempts, "error", err)
		if attempt < attempts {
			select {
			case <-time.After(c.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("forced aligner failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) alignOnce(ctx context.Context, audioPath, transcript string) ([]Word, error) {
	body, contentType, err := buildMultipart(audioPath, transcript)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"?async=false", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("aligner status %d: %s", resp.StatusCode, payload)
	}

	var out alignResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding aligner response: %w", err)
	}
	return out.Words, nil
}

func buildMultipart(audioPath, transcript string) (*bytes.Buffer, string, error) {
	audio, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("opening audio %s: %w", audioPath, err)
	}
	defer audio.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("transcript", transcript); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// SuccessRatio returns the fraction of words with a successful time-stamp.
// An empty word list has ratio 0.
func SuccessRatio(words []Word) float64 {
	if len(words) == 0 {
		return 0
	}
	ok := 0
	for _, w := range words {
		if w.Success() {
			ok++
		}
	}
	return float64(ok) / float64(len(words))
}
