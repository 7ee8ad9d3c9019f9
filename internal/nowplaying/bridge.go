// ABOUTME: Now-playing bridge between the coordinator and the OS surface
// ABOUTME: Pushes track metadata, relays transport commands and loads artwork in the background
package nowplaying

import (
	"context"
	"sync"

	"github.com/Sendspin/hubremote/internal/artwork"
	"github.com/Sendspin/hubremote/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// Config holds bridge configuration
type Config struct {
	Surface Surface

	// Artwork caches cover images; nil disables artwork
	Artwork *artwork.Cache

	// BaseURL returns the hub address used for relative image paths
	BaseURL func() string

	Logger logrus.FieldLogger
}

// Bridge mirrors the active queue onto a Surface
type Bridge struct {
	surface Surface
	art     *artwork.Cache
	base    func() string
	log     logrus.FieldLogger

	mu        sync.Mutex
	active    bool
	last      Metadata
	artKey    string
	artCancel context.CancelFunc
}

// NewBridge creates an inactive bridge
func NewBridge(config Config) *Bridge {
	if config.Surface == nil {
		config.Surface = NopSurface{}
	}
	if config.BaseURL == nil {
		config.BaseURL = func() string { return "" }
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &Bridge{
		surface: config.Surface,
		art:     config.Artwork,
		base:    config.BaseURL,
		log:     config.Logger.WithField("component", "nowplaying"),
	}
}

// Activate registers h with the surface; no-op when already active
func (b *Bridge) Activate(h Handlers) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active {
		return
	}
	if err := b.surface.Register(h); err != nil {
		b.log.WithError(err).Warn("Failed to register transport handlers")
	}
	b.active = true
}

// Deactivate unregisters handlers and clears the display; no-op when inactive
func (b *Bridge) Deactivate() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		return
	}
	b.active = false
	b.cancelArtworkLocked()
	b.artKey = ""
	b.last = Metadata{}
	b.surface.Unregister()
	b.surface.Clear()
}

// Update publishes the current item of q. A nil queue or empty queue
// clears the display.
func (b *Bridge) Update(q *protocol.PlayerQueue) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		return
	}
	if q == nil || q.CurrentItem == nil {
		if b.last != (Metadata{}) {
			b.cancelArtworkLocked()
			b.artKey = ""
			b.last = Metadata{}
			b.surface.Clear()
		}
		return
	}

	m := metadataFor(q)

	img := q.CurrentItem.Artwork()
	key := ""
	if img != nil {
		key = img.Path
	}

	switch {
	case key == "" || b.art == nil:
		b.cancelArtworkLocked()
		b.artKey = key
	case key == b.artKey:
		m.ArtworkPath = b.last.ArtworkPath
	default:
		b.cancelArtworkLocked()
		b.artKey = key
		if path, ok := b.art.Get(key); ok {
			m.ArtworkPath = path
		} else {
			b.fetchArtworkLocked(key, artwork.URL(b.base(), *img))
		}
	}

	b.last = m
	b.surface.Publish(m)
}

// fetchArtworkLocked downloads key and republishes when it is still current
func (b *Bridge) fetchArtworkLocked(key, src string) {
	ctx, cancel := context.WithCancel(context.Background())
	b.artCancel = cancel

	go func() {
		defer cancel()
		path, err := b.art.Fetch(ctx, key, src)
		if err != nil {
			b.log.WithError(err).WithField("key", key).Debug("Artwork fetch failed")
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.active || b.artKey != key || path == "" {
			return
		}
		b.last.ArtworkPath = path
		b.surface.Publish(b.last)
	}()
}

func (b *Bridge) cancelArtworkLocked() {
	if b.artCancel != nil {
		b.artCancel()
		b.artCancel = nil
	}
}

// metadataFor builds display metadata from the queue's current item
func metadataFor(q *protocol.PlayerQueue) Metadata {
	item := q.CurrentItem
	m := Metadata{
		TrackID: item.QueueItemID,
		Title:   item.Name,
		Elapsed: q.ElapsedTime,
		State:   q.State,
	}
	if item.Duration != nil {
		m.Duration = *item.Duration
	}
	if q.State == protocol.PlaybackPlaying {
		m.Rate = 1
	}

	if mi := item.MediaItem; mi != nil {
		if mi.Name != "" {
			m.Title = mi.Name
		}
		m.Artist = mi.ArtistNames()
		if mi.Album != nil {
			m.Album = mi.Album.Name
		}
		if m.Duration == 0 && mi.Duration != nil {
			m.Duration = *mi.Duration
		}
	}
	return m
}
