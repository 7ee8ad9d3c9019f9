// ABOUTME: Oto-based audio output implementation
// ABOUTME: Owns the process-wide oto context and hands out players as voices
package output

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Sendspin/hubremote/pkg/audio"
	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
)

// ErrNotAcquired is returned by NewVoice before a successful Acquire
var ErrNotAcquired = errors.New("audio output not acquired")

// oto only allows one context per process
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// Oto output implementation using oto library
type Oto struct {
	format audio.Format
	log    logrus.FieldLogger

	mu        sync.Mutex
	acquired  bool
	suspended bool
}

// NewOto creates a new Oto output playing 16-bit stereo at 44.1kHz
func NewOto(logger logrus.FieldLogger) *Oto {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Oto{
		format: audio.Format{
			Codec:      "pcm",
			SampleRate: 44100,
			Channels:   2,
			BitDepth:   16,
		},
		log: logger.WithField("component", "output"),
	}
}

// Format returns the device format
func (o *Oto) Format() audio.Format {
	return o.format
}

// Acquire creates the oto context on first use and resumes it afterwards
func (o *Oto) Acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   o.format.SampleRate,
			ChannelCount: o.format.Channels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-readyChan
		otoCtx = ctx

		o.log.WithFields(logrus.Fields{
			"sample_rate": o.format.SampleRate,
			"channels":    o.format.Channels,
		}).Info("Audio output initialized")
	})
	if otoErr != nil {
		return otoErr
	}

	if o.suspended {
		if err := otoCtx.Resume(); err != nil {
			return fmt.Errorf("failed to resume audio output: %w", err)
		}
		o.suspended = false
	}
	o.acquired = true
	return nil
}

// NewVoice creates a paused player over src
func (o *Oto) NewVoice(src io.Reader) (Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.acquired || otoCtx == nil {
		return nil, ErrNotAcquired
	}
	return otoCtx.NewPlayer(src), nil
}

// Release suspends the context; it stays allocated for the next Acquire
func (o *Oto) Release() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.acquired || otoCtx == nil {
		return nil
	}
	o.acquired = false
	if err := otoCtx.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend audio output: %w", err)
	}
	o.suspended = true
	return nil
}
