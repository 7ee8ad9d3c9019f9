// ABOUTME: OS media-remote surface abstraction
// ABOUTME: Defines transport handlers, displayed metadata and a no-op surface
package nowplaying

import "github.com/Sendspin/hubremote/pkg/protocol"

// Handlers receive hardware transport commands
type Handlers struct {
	Play     func()
	Pause    func()
	Toggle   func()
	Next     func()
	Previous func()
	Seek     func(seconds float64)
}

// Metadata is what the surface displays
type Metadata struct {
	TrackID     string
	Title       string
	Artist      string
	Album       string
	Duration    float64 // seconds, 0 when unknown
	Elapsed     float64
	Rate        float64 // 1 while playing
	State       protocol.PlaybackState
	ArtworkPath string // local file
}

// Surface is an OS-level now-playing and remote-control endpoint
type Surface interface {
	// Register routes transport commands to h
	Register(h Handlers) error

	// Unregister drops the handlers
	Unregister()

	// Publish replaces the displayed metadata
	Publish(m Metadata)

	// Clear removes the displayed metadata
	Clear()

	Close() error
}

// NopSurface is used when no OS surface is available
type NopSurface struct{}

func (NopSurface) Register(Handlers) error { return nil }
func (NopSurface) Unregister()             {}
func (NopSurface) Publish(Metadata)        {}
func (NopSurface) Clear()                  {}
func (NopSurface) Close() error            { return nil }
