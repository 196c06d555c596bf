package imagesearch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pixabayTestServer(t *testing.T, hits []pixabayHit) *PixabayClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.NotEmpty(t, r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode(pixabayResponse{Hits: hits})
	}))
	t.Cleanup(srv.Close)

	c := NewPixabay("test-key", 5*time.Second)
	c.BaseURL = srv.URL
	return c
}

func TestSearchReturnsFirstQualifiedHit(t *testing.T) {
	c := pixabayTestServer(t, []pixabayHit{
		{LargeImageURL: "http://img/small.jpg", ImageWidth: 640, ImageHeight: 480},
		{LargeImageURL: "http://img/big.jpg", ImageWidth: 1920, ImageHeight: 1080},
	})

	u, err := c.Search(t.Context(), "mountains", 1024, 576)
	require.NoError(t, err)
	assert.Equal(t, "http://img/big.jpg", u)
}

func TestSearchNoQualifiedHits(t *testing.T) {
	c := pixabayTestServer(t, []pixabayHit{
		{LargeImageURL: "http://img/tiny.jpg", ImageWidth: 100, ImageHeight: 100},
	})

	_, err := c.Search(t.Context(), "mountains", 1024, 576)
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewPixabay("k", time.Second)
	c.BaseURL = srv.URL
	_, err := c.Search(t.Context(), "q", 10, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
