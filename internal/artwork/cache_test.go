// ABOUTME: Tests for the artwork cache
// ABOUTME: Tests HTTP download, caching, eviction and error handling
package artwork

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Sendspin/hubremote/pkg/protocol"
)

func newTestCache(t *testing.T, capacity int) *Cache {
	t.Helper()
	c, err := New(Config{Dir: t.TempDir(), Capacity: capacity, Token: func() string { return "tok" }})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}

func TestFetchSuccess(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte("fake image data"))
	}))
	defer server.Close()

	c := newTestCache(t, 0)

	path, err := c.Fetch(context.Background(), "/art/cover.png", server.URL)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !strings.HasSuffix(path, ".png") {
		t.Errorf("expected .png file, got %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read artwork file: %v", err)
	}
	if string(content) != "fake image data" {
		t.Errorf("expected content 'fake image data', got '%s'", string(content))
	}
	if auth != "Bearer tok" {
		t.Errorf("expected bearer header, got %q", auth)
	}

	if got, ok := c.Get("/art/cover.png"); !ok || got != path {
		t.Errorf("expected cached path %s, got %s (%v)", path, got, ok)
	}
}

func TestFetchCaching(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("fake image data"))
	}))
	defer server.Close()

	c := newTestCache(t, 0)

	path1, _ := c.Fetch(context.Background(), "/art/a.jpg", server.URL)
	path2, _ := c.Fetch(context.Background(), "/art/a.jpg", server.URL)

	if requests.Load() != 1 {
		t.Errorf("expected cached fetch to not hit server, got %d requests", requests.Load())
	}
	if path1 != path2 {
		t.Errorf("expected same path for cached fetch, got %s and %s", path1, path2)
	}
}

func TestConcurrentFetchSharesDownload(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("img"))
	}))
	defer server.Close()

	c := newTestCache(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Fetch(context.Background(), "/art/shared.jpg", server.URL); err != nil {
				t.Errorf("fetch failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if requests.Load() != 1 {
		t.Errorf("expected one download, got %d", requests.Load())
	}
}

func TestEvictionRemovesFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	}))
	defer server.Close()

	c := newTestCache(t, 2)

	var paths []string
	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("/art/%d.jpg", i)
		path, err := c.Fetch(context.Background(), key, server.URL+key)
		if err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
		paths = append(paths, path)
	}

	if c.entries.Len() != 2 {
		t.Errorf("expected 2 cached images, got %d", c.entries.Len())
	}
	if _, ok := c.Get("/art/0.jpg"); ok {
		t.Error("expected oldest entry evicted")
	}
	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Error("expected evicted file removed")
	}
	if _, err := os.Stat(paths[2]); err != nil {
		t.Errorf("expected newest file kept: %v", err)
	}
}

func TestFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestCache(t, 0)

	_, err := c.Fetch(context.Background(), "/art/missing.jpg", server.URL)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("expected error to mention 404, got: %v", err)
	}
	if c.entries.Len() != 0 {
		t.Error("failed fetch must not be cached")
	}
}

func TestFetchEmptyKey(t *testing.T) {
	c := newTestCache(t, 0)

	path, err := c.Fetch(context.Background(), "", "")
	if err != nil || path != "" {
		t.Errorf("expected no-op for empty key, got %q, %v", path, err)
	}
}

func TestGetExtension(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"http://example.com/image.jpg", ".jpg"},
		{"http://example.com/image.png", ".png"},
		{"http://example.com/image.webp", ".webp"},
		{"http://example.com/image.jpg?size=large", ".jpg"},
		{"http://example.com/image", ".jpg"}, // Default
		{"http://example.com/path/to/image.jpeg", ".jpeg"},
		{"spotify:image:ab67616d0000b273", ".jpg"},
	}

	for _, tt := range tests {
		result := getExtension(tt.url)
		if result != tt.expected {
			t.Errorf("getExtension(%q) = %q, expected %q", tt.url, result, tt.expected)
		}
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		img  protocol.MediaImage
		want string
	}{
		{protocol.MediaImage{}, ""},
		{protocol.MediaImage{Path: "https://cdn.example.com/a.jpg", Provider: "spotify"}, "https://cdn.example.com/a.jpg"},
		{protocol.MediaImage{Path: "/music/a/cover.jpg", Provider: "filesystem"}, "http://hub/imageproxy?path=%2Fmusic%2Fa%2Fcover.jpg&provider=filesystem&size=512"},
	}

	for _, tt := range tests {
		if got := URL("http://hub", tt.img); got != tt.want {
			t.Errorf("URL(%+v) = %q, expected %q", tt.img, got, tt.want)
		}
	}
}

func TestCleanup(t *testing.T) {
	c := newTestCache(t, 0)
	dir := c.dir

	if err := c.Cleanup(); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("cache directory still exists after cleanup")
	}
}
