// ABOUTME: Local playback engine acting as the device's own player
// ABOUTME: Owns the single output session, one media load at a time, and publishes progress
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Sendspin/hubremote/pkg/audio/decode"
	"github.com/Sendspin/hubremote/pkg/audio/output"
	"github.com/Sendspin/hubremote/pkg/audio/resample"
	"github.com/Sendspin/hubremote/pkg/protocol"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotLoaded is returned by Seek when nothing is loaded
	ErrNotLoaded = errors.New("no media loaded")

	// ErrNotSeekable is returned by Seek on live streams
	ErrNotSeekable = errors.New("media is not seekable")
)

const defaultTickInterval = 250 * time.Millisecond

// Tags is embedded track metadata
type Tags struct {
	Title  string
	Artist string
	Album  string
}

// Snapshot is the engine's published state
type Snapshot struct {
	State    protocol.PlaybackState
	Elapsed  float64  // seconds
	Duration *float64 // nil while unknown or for live streams
	URL      string
	Tags     *Tags
}

// Media is a decoded source ready to play
type Media struct {
	Stream decode.Stream
	Tags   *Tags
}

// Loader fetches and opens media by URL
type Loader interface {
	Load(ctx context.Context, url string) (*Media, error)
}

// Config holds engine configuration
type Config struct {
	Output output.Output
	Loader Loader

	// TickInterval is the progress publishing period (default: 250ms)
	TickInterval time.Duration

	Logger logrus.FieldLogger
}

// activeLoad is everything owned by one Play call
type activeLoad struct {
	media    *Media
	conv     *resample.Converter
	voice    output.Voice
	cancel   context.CancelFunc
	stop     chan struct{}
	finished bool
}

// Engine plays one URL at a time on the local audio output
type Engine struct {
	out    output.Output
	loader Loader
	tick   time.Duration
	log    logrus.FieldLogger

	mu   sync.Mutex
	snap Snapshot
	load *activeLoad
	seq  uint64

	// notifyMu keeps subscriber delivery in commit order
	notifyMu   sync.Mutex
	subMu      sync.Mutex
	nextSub    int
	changeSubs map[int]func(Snapshot)
	finishSubs map[int]func()
}

// NewEngine creates an idle engine
func NewEngine(config Config) *Engine {
	if config.TickInterval <= 0 {
		config.TickInterval = defaultTickInterval
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	return &Engine{
		out:        config.Output,
		loader:     config.Loader,
		tick:       config.TickInterval,
		log:        config.Logger.WithField("component", "engine"),
		snap:       Snapshot{State: protocol.PlaybackIdle},
		changeSubs: make(map[int]func(Snapshot)),
		finishSubs: make(map[int]func()),
	}
}

// Snapshot returns the current state
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// OnChange registers fn for every published snapshot.
// fn must not call the engine's mutating methods.
func (e *Engine) OnChange(fn func(Snapshot)) (dispose func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.changeSubs[id] = fn
	return func() {
		e.subMu.Lock()
		delete(e.changeSubs, id)
		e.subMu.Unlock()
	}
}

// OnFinish registers fn for items that play to the end.
// fn runs on its own goroutine.
func (e *Engine) OnFinish(fn func()) (dispose func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.finishSubs[id] = fn
	return func() {
		e.subMu.Lock()
		delete(e.finishSubs, id)
		e.subMu.Unlock()
	}
}

// Play replaces whatever is loaded with url and starts playing it.
// A Play superseded by a newer Play returns nil without touching state.
func (e *Engine) Play(ctx context.Context, url string) error {
	e.mu.Lock()
	e.teardownLocked()
	e.seq++
	seq := e.seq
	e.snap = Snapshot{State: protocol.PlaybackPlaying, URL: url}
	e.publishLocked()

	if err := e.out.Acquire(); err != nil {
		e.log.WithError(err).Warn("Failed to acquire audio output, trying playback anyway")
	}

	// The load context outlives ctx so live bodies keep streaming
	loadCtx, cancel := context.WithCancel(context.Background())
	stopAfter := context.AfterFunc(ctx, cancel)
	defer stopAfter()

	media, err := e.loader.Load(loadCtx, url)
	if err != nil {
		cancel()
		return e.failLoad(seq, url, fmt.Errorf("failed to load %s: %w", url, err))
	}

	conv := resample.NewConverter(media.Stream, e.out.Format())
	voice, err := e.out.NewVoice(conv)
	if err != nil {
		cancel()
		media.Stream.Close()
		return e.failLoad(seq, url, fmt.Errorf("failed to open voice: %w", err))
	}

	e.mu.Lock()
	if seq != e.seq {
		e.mu.Unlock()
		cancel()
		media.Stream.Close()
		return nil
	}

	load := &activeLoad{
		media:  media,
		conv:   conv,
		voice:  voice,
		cancel: cancel,
		stop:   make(chan struct{}),
	}
	e.load = load
	e.snap.Duration = streamDuration(media.Stream)
	e.snap.Tags = media.Tags
	voice.Play()

	e.log.WithFields(logrus.Fields{
		"url":    url,
		"codec":  media.Stream.Format().Codec,
		"rate":   media.Stream.Format().SampleRate,
		"length": media.Stream.Length(),
	}).Info("Playback started")

	e.publishLocked()
	go e.watch(load)
	return nil
}

// failLoad returns the engine to idle if seq is still current
func (e *Engine) failLoad(seq uint64, url string, err error) error {
	e.mu.Lock()
	if seq != e.seq {
		e.mu.Unlock()
		return nil
	}
	e.log.WithError(err).WithField("url", url).Warn("Playback failed")
	e.snap = Snapshot{State: protocol.PlaybackIdle}
	e.publishLocked()
	return err
}

// Resume continues a paused load; no-op when idle or already playing
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.load == nil || e.snap.State != protocol.PlaybackPaused {
		e.mu.Unlock()
		return
	}

	l := e.load
	if l.finished {
		// replay from the top
		if _, err := l.voice.Seek(0, io.SeekStart); err != nil {
			e.log.WithError(err).Debug("Failed to rewind finished item")
		}
		l.finished = false
		e.snap.Elapsed = 0
	}
	l.voice.Play()
	e.snap.State = protocol.PlaybackPlaying
	e.publishLocked()
}

// Pause pauses a playing load; no-op otherwise
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.load == nil || e.snap.State != protocol.PlaybackPlaying {
		e.mu.Unlock()
		return
	}

	e.load.voice.Pause()
	e.snap.Elapsed = e.elapsedLocked(e.load)
	e.snap.State = protocol.PlaybackPaused
	e.publishLocked()
}

// Toggle pauses when playing and resumes otherwise
func (e *Engine) Toggle() {
	if e.Snapshot().State == protocol.PlaybackPlaying {
		e.Pause()
		return
	}
	e.Resume()
}

// Seek jumps to seconds without changing the playback state.
// The published elapsed time reflects the target immediately.
func (e *Engine) Seek(seconds float64) error {
	e.mu.Lock()

	l := e.load
	if l == nil || e.snap.State == protocol.PlaybackIdle {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	if !l.media.Stream.Seekable() {
		e.mu.Unlock()
		return ErrNotSeekable
	}

	if seconds < 0 {
		seconds = 0
	}
	if d := e.snap.Duration; d != nil && seconds > *d {
		seconds = *d
	}

	offset := e.out.Format().Offset(time.Duration(seconds * float64(time.Second)))
	if _, err := l.voice.Seek(offset, io.SeekStart); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("seek failed: %w", err)
	}

	l.finished = false
	e.snap.Elapsed = seconds
	e.publishLocked()
	return nil
}

// Stop unloads media and returns to idle
func (e *Engine) Stop() {
	e.mu.Lock()
	e.teardownLocked()
	e.seq++
	if e.snap.State == protocol.PlaybackIdle && e.snap.URL == "" {
		e.mu.Unlock()
		return
	}
	e.snap = Snapshot{State: protocol.PlaybackIdle}
	e.publishLocked()
}

// Close stops playback and releases the audio output
func (e *Engine) Close() error {
	e.Stop()
	return e.out.Release()
}

// teardownLocked stops the active load's voice, ticker and source
func (e *Engine) teardownLocked() {
	l := e.load
	if l == nil {
		return
	}
	e.load = nil

	close(l.stop)
	l.voice.Pause()
	l.cancel()
	if err := l.media.Stream.Close(); err != nil {
		e.log.WithError(err).Debug("Failed to close media stream")
	}
}

// watch publishes progress and detects the end of the item
func (e *Engine) watch(l *activeLoad) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			e.poll(l)
		}
	}
}

func (e *Engine) poll(l *activeLoad) {
	e.mu.Lock()
	if e.load != l {
		e.mu.Unlock()
		return
	}

	finished := false
	if e.snap.State == protocol.PlaybackPlaying {
		e.snap.Elapsed = e.elapsedLocked(l)
		if !l.voice.IsPlaying() {
			if err := l.voice.Err(); err != nil {
				e.log.WithError(err).Warn("Playback stopped with error")
			}
			l.finished = true
			e.snap.State = protocol.PlaybackPaused
			finished = true
		}
	}

	e.publishLocked()

	if finished {
		e.log.WithField("url", e.Snapshot().URL).Debug("Item finished")
		e.subMu.Lock()
		for _, fn := range e.finishSubs {
			go fn()
		}
		e.subMu.Unlock()
	}
}

// elapsedLocked derives the heard position from the converter and output buffer
func (e *Engine) elapsedLocked(l *activeLoad) float64 {
	heard := l.conv.Position() - int64(l.voice.BufferedSize())
	if heard < 0 {
		heard = 0
	}
	elapsed := e.out.Format().Duration(heard).Seconds()
	if d := e.snap.Duration; d != nil && elapsed > *d {
		elapsed = *d
	}
	return elapsed
}

// publishLocked releases e.mu and delivers the snapshot in commit order
func (e *Engine) publishLocked() {
	snap := e.snap
	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()

	e.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(e.changeSubs))
	for _, fn := range e.changeSubs {
		subs = append(subs, fn)
	}
	e.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// streamDuration returns the stream length in seconds, nil when indefinite
func streamDuration(s decode.Stream) *float64 {
	if s.Length() < 0 {
		return nil
	}
	d := s.Format().Duration(s.Length()).Seconds()
	return &d
}
