// Package imagesearch finds replacement stock images by keyword.
package imagesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNoResults indicates the query returned no usable image.
var ErrNoResults = errors.New("no image results")

// Searcher returns the URL of the best image match for a query.
type Searcher interface {
	Search(ctx context.Context, query string, minWidth, minHeight int) (string, error)
}

// PixabayClient queries the Pixabay image API.
type PixabayClient struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewPixabay builds a client with the given key and timeout.
func NewPixabay(apiKey string, timeout time.Duration) *PixabayClient {
	return &PixabayClient{
		APIKey:  apiKey,
		BaseURL: "https://pixabay.com/api/",
		client:  &http.Client{Timeout: timeout},
	}
}

type pixabayHit struct {
	LargeImageURL string `json:"largeImageURL"`
	ImageWidth    int    `json:"imageWidth"`
	ImageHeight   int    `json:"imageHeight"`
}

type pixabayResponse struct {
	Hits []pixabayHit `json:"hits"`
}

// Search returns the first hit meeting the minimum dimensions.
func (c *PixabayClient) Search(ctx context.Context, query string, minWidth, minHeight int) (string, error) {
	q := url.Values{}
	q.Set("key", c.APIKey)
	q.Set("q", query)
	q.Set("image_type", "photo")
	q.Set("min_width", strconv.Itoa(minWidth))
	q.Set("min_height", strconv.Itoa(minHeight))
	q.Set("per_page", "10")
	q.Set("safesearch", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("querying image search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image search status %d", resp.StatusCode)
	}

	var body pixabayResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding image search response: %w", err)
	}
	for _, hit := range body.Hits {
		if hit.LargeImageURL != "" && hit.ImageWidth >= minWidth && hit.ImageHeight >= minHeight {
			return hit.LargeImageURL, nil
		}
	}
	return "", ErrNoResults
}
