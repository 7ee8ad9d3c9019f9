// ABOUTME: Bounded artwork cache for the now-playing surface
// ABOUTME: Downloads images into a temp directory and evicts the oldest entries
package artwork

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Sendspin/hubremote/internal/version"
	"github.com/Sendspin/hubremote/pkg/protocol"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// DefaultCapacity is the number of images kept on disk
const DefaultCapacity = 50

// Config holds cache configuration
type Config struct {
	// Dir holds the cached files (default: $TMPDIR/hubremote-artwork)
	Dir string

	// Capacity bounds the number of cached images (default: 50)
	Capacity int

	HTTPClient *http.Client

	// Token returns the bearer token sent with hub-hosted images
	Token func() string

	Logger logrus.FieldLogger
}

// Cache maps artwork paths to downloaded files
type Cache struct {
	dir    string
	client *http.Client
	token  func() string
	log    logrus.FieldLogger

	entries *lru.Cache[string, string]

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// New creates a cache and its directory
func New(config Config) (*Cache, error) {
	if config.Dir == "" {
		config.Dir = filepath.Join(os.TempDir(), "hubremote-artwork")
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.Token == nil {
		config.Token = func() string { return "" }
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		dir:      config.Dir,
		client:   config.HTTPClient,
		token:    config.Token,
		log:      config.Logger.WithField("component", "artwork"),
		inflight: make(map[string]chan struct{}),
	}

	entries, err := lru.NewWithEvict(config.Capacity, func(key, path string) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.log.WithError(err).WithField("path", path).Debug("Failed to remove evicted artwork")
		}
	})
	if err != nil {
		return nil, err
	}
	c.entries = entries
	return c, nil
}

// URL returns where an image can be fetched from. Hub-relative paths go
// through the hub's image proxy.
func URL(base string, img protocol.MediaImage) string {
	if img.Path == "" {
		return ""
	}
	if strings.HasPrefix(img.Path, "http://") || strings.HasPrefix(img.Path, "https://") {
		return img.Path
	}
	q := url.Values{}
	q.Set("path", img.Path)
	if img.Provider != "" {
		q.Set("provider", img.Provider)
	}
	q.Set("size", "512")
	return base + "/imageproxy?" + q.Encode()
}

// Get returns the cached file for key
func (c *Cache) Get(key string) (string, bool) {
	return c.entries.Get(key)
}

// Fetch returns the file for key, downloading src on a miss.
// Concurrent fetches of the same key share one download.
func (c *Cache) Fetch(ctx context.Context, key, src string) (string, error) {
	if key == "" || src == "" {
		return "", nil
	}

	for {
		if path, ok := c.entries.Get(key); ok {
			return path, nil
		}

		c.mu.Lock()
		wait, busy := c.inflight[key]
		if !busy {
			done := make(chan struct{})
			c.inflight[key] = done
			c.mu.Unlock()

			path, err := c.download(ctx, key, src)

			c.mu.Lock()
			delete(c.inflight, key)
			c.mu.Unlock()
			close(done)
			return path, err
		}
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (c *Cache) download(ctx context.Context, key, src string) (string, error) {
	hash := sha256.Sum256([]byte(key))
	cachePath := filepath.Join(c.dir, fmt.Sprintf("%x%s", hash[:8], getExtension(key)))

	c.log.WithField("url", src).Debug("Downloading artwork")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("failed to download artwork: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artwork download failed: HTTP %d", resp.StatusCode)
	}

	f, err := os.Create(cachePath)
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(cachePath)
		return "", fmt.Errorf("failed to save artwork: %w", err)
	}

	c.entries.Add(key, cachePath)
	c.log.WithField("path", cachePath).Debug("Artwork saved")
	return cachePath, nil
}

// getExtension extracts file extension from a path or URL
func getExtension(raw string) string {
	// Remove query string
	raw = strings.Split(raw, "?")[0]

	ext := filepath.Ext(raw)
	if ext == "" || len(ext) > 5 {
		ext = ".jpg" // Default to JPEG
	}

	return ext
}

// Cleanup removes every cached file
func (c *Cache) Cleanup() error {
	c.entries.Purge()
	return os.RemoveAll(c.dir)
}
