// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for audio playback backends and their voices
package output

import (
	"io"

	"github.com/Sendspin/hubremote/pkg/audio"
)

// Voice plays one PCM source. *oto.Player satisfies it.
type Voice interface {
	Play()
	Pause()
	IsPlaying() bool

	// Seek forwards to the source and drops buffered audio
	Seek(offset int64, whence int) (int64, error)

	// BufferedSize is the number of bytes read from the source but not yet heard
	BufferedSize() int

	// Err returns the error that stopped playback, if any
	Err() error
}

// Output represents an audio output device
type Output interface {
	// Format is the PCM format voices must be fed with
	Format() audio.Format

	// Acquire opens or resumes the device
	Acquire() error

	// NewVoice creates a paused voice reading from src
	NewVoice(src io.Reader) (Voice, error)

	// Release suspends the device
	Release() error
}
