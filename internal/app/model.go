// ABOUTME: Coordinator that keeps the hub, the local engine and the UI in sync
// ABOUTME: Owns the session, the poll loop and every registered callback
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sendspin/hubremote/internal/nowplaying"
	"github.com/Sendspin/hubremote/internal/player"
	"github.com/Sendspin/hubremote/pkg/protocol"
	"github.com/sirupsen/logrus"
)

const defaultPollInterval = 2 * time.Second

var (
	// ErrLocalPlayerUnsupported rejects operations the local player cannot perform
	ErrLocalPlayerUnsupported = errors.New("not supported for this device")

	// ErrCannotStartPlayback is returned when the local engine could not be started
	ErrCannotStartPlayback = errors.New("could not start playback")

	// ErrNotSignedIn is returned when no server address or token is configured
	ErrNotSignedIn = errors.New("not signed in")

	// ErrLoginFailed is returned when the hub refused the credentials
	ErrLoginFailed = errors.New("login failed")

	// ErrNoServer is returned when signing in without a server address
	ErrNoServer = errors.New("no server address configured")

	// ErrUnknownPlayer is returned when selecting a player that is not listed
	ErrUnknownPlayer = errors.New("unknown player")

	// ErrNoMediaURI is returned for items that carry no playable URI
	ErrNoMediaURI = errors.New("item has no media uri")
)

// Settings persists the server address
type Settings interface {
	ServerURL() string
	SetServerURL(url string) error
}

// TokenStore persists the bearer token; an empty token deletes it
type TokenStore interface {
	Token() (string, error)
	SetToken(token string) error
}

// LocalPlayer is the playback engine behind the local virtual player
type LocalPlayer interface {
	Play(ctx context.Context, url string) error
	Resume()
	Pause()
	Toggle()
	Seek(seconds float64) error
	Stop()
	Snapshot() player.Snapshot
	OnChange(fn func(player.Snapshot)) (dispose func())
	OnFinish(fn func()) (dispose func())
}

// StreamResolver finds a playable URL for a queue item
type StreamResolver interface {
	Resolve(ctx context.Context, item protocol.QueueItem) (string, error)
}

// NowPlaying mirrors the active queue on the OS media controls
type NowPlaying interface {
	Activate(h nowplaying.Handlers)
	Deactivate()
	Update(q *protocol.PlayerQueue)
}

// ConnFactory opens a command connection to endpoint
type ConnFactory func(endpoint protocol.Endpoint) protocol.Conn

// Config holds coordinator collaborators
type Config struct {
	Settings   Settings
	Tokens     TokenStore
	Connect    ConnFactory
	Engine     LocalPlayer
	Resolver   StreamResolver
	NowPlaying NowPlaying

	// PollInterval is the delay between refreshes (default: 2s)
	PollInterval time.Duration

	// LocalName is the display name of the local virtual player
	LocalName string

	Logger logrus.FieldLogger
}

// Model coordinates the hub session, the local engine and the published state
type Model struct {
	settings   Settings
	tokens     TokenStore
	connect    ConnFactory
	engine     LocalPlayer
	resolver   StreamResolver
	nowPlaying NowPlaying
	interval   time.Duration
	localName  string
	log        logrus.FieldLogger

	store *Store

	ctx    context.Context
	cancel context.CancelFunc

	connMu   sync.Mutex
	conn     protocol.Conn
	endpoint protocol.Endpoint

	// loopMu serializes session restarts so at most one poll loop runs
	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	// activeLoops and peakLoops count running poll loops; only the
	// loop-singularity test reads them
	activeLoops atomic.Int32
	peakLoops   atomic.Int32

	lifeMu       sync.Mutex
	wasConnected bool

	disposeMu sync.Mutex
	disposers []func()
	started   bool
}

// NewModel creates a coordinator; call Start to begin syncing
func NewModel(config Config) *Model {
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.LocalName == "" {
		config.LocalName = "This Device"
	}
	if config.NowPlaying == nil {
		config.NowPlaying = noNowPlaying{}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Model{
		settings:   config.Settings,
		tokens:     config.Tokens,
		connect:    config.Connect,
		engine:     config.Engine,
		resolver:   config.Resolver,
		nowPlaying: config.NowPlaying,
		interval:   config.PollInterval,
		localName:  config.LocalName,
		log:        config.Logger.WithField("component", "app"),
		store: NewStore(State{
			Connection: Disconnected,
			Local:      player.Snapshot{State: protocol.PlaybackIdle},
		}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the current published state
func (m *Model) State() State {
	return m.store.Snapshot()
}

// Subscribe registers fn for every published state
func (m *Model) Subscribe(fn func(State)) (dispose func()) {
	return m.store.Subscribe(fn)
}

// Endpoint returns the hub address and token of the current session
func (m *Model) Endpoint() protocol.Endpoint {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return m.endpoint
}

// Start registers engine callbacks and opens the session when signed in
func (m *Model) Start() {
	m.disposeMu.Lock()
	if m.started {
		m.disposeMu.Unlock()
		return
	}
	m.started = true
	m.disposers = append(m.disposers,
		m.engine.OnChange(m.onEngineChange),
		m.engine.OnFinish(m.onTrackFinished),
	)
	m.disposeMu.Unlock()

	snap := m.engine.Snapshot()
	m.store.Mutate(func(s *State) {
		s.Local = snap
	})

	m.restartSession(false)
}

// Close stops the poll loop and releases every registration
func (m *Model) Close() error {
	m.loopMu.Lock()
	m.stopLoopLocked()
	m.loopMu.Unlock()

	m.cancel()

	m.disposeMu.Lock()
	for _, dispose := range m.disposers {
		dispose()
	}
	m.disposers = nil
	m.disposeMu.Unlock()

	m.nowPlaying.Deactivate()
	m.swapConn(protocol.Endpoint{})
	return nil
}

// loadEndpoint reads the persisted server address and token
func (m *Model) loadEndpoint() protocol.Endpoint {
	ep := protocol.Endpoint{BaseURL: m.settings.ServerURL()}
	token, err := m.tokens.Token()
	if err != nil {
		m.log.WithError(err).Warn("Failed to read token")
	}
	ep.Token = token
	return ep
}

// swapConn replaces the session connection, closing the previous one
func (m *Model) swapConn(ep protocol.Endpoint) {
	var conn protocol.Conn
	if ep.SignedIn() {
		conn = m.connect(ep)
	}

	m.connMu.Lock()
	old := m.conn
	m.conn = conn
	m.endpoint = ep
	m.connMu.Unlock()

	if old != nil {
		old.Close()
	}
}

func (m *Model) currentConn() protocol.Conn {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return m.conn
}

// restartSession cancels the running poll loop and, when signed in, starts
// exactly one new loop on a fresh epoch
func (m *Model) restartSession(clearLists bool) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	m.stopLoopLocked()

	ep := m.loadEndpoint()
	m.swapConn(ep)
	signedIn := ep.SignedIn()

	epoch := m.store.Reset(func(s *State) {
		s.SignedIn = signedIn
		s.ServerURL = ep.BaseURL
		s.LastError = nil
		if clearLists || !signedIn {
			s.Players = nil
			s.SelectedPlayerID = ""
			s.ActiveQueue = nil
			s.LocalQueue = nil
			s.serverLocalQueue = nil
		}
		switch {
		case !signedIn:
			s.Connection = Disconnected
		case s.Connection == Disconnected:
			s.Connection = Connecting
		case s.Connection == Connected:
			s.Connection = Reconnecting
		}
	})

	if !signedIn {
		m.nowPlaying.Deactivate()
		m.log.Info("Session idle, not signed in")
		return
	}

	m.nowPlaying.Activate(m.handlers())
	m.startLoopLocked(epoch)
	m.log.WithField("server", ep.BaseURL).Info("Session started")
}

// startLoopLocked must be called with loopMu held
func (m *Model) startLoopLocked(epoch uint64) {
	ctx, cancel := context.WithCancel(m.ctx)
	done := make(chan struct{})
	m.loopCancel = cancel
	m.loopDone = done

	go m.pollLoop(ctx, epoch, done)
}

// stopLoopLocked cancels the running loop and waits for it to exit
func (m *Model) stopLoopLocked() {
	if m.loopCancel == nil {
		return
	}
	m.loopCancel()
	<-m.loopDone
	m.loopCancel = nil
	m.loopDone = nil
}

// pollLoop refreshes until ctx is cancelled; failures never end the loop
func (m *Model) pollLoop(ctx context.Context, epoch uint64, done chan struct{}) {
	defer close(done)

	n := m.activeLoops.Add(1)
	defer m.activeLoops.Add(-1)
	for {
		peak := m.peakLoops.Load()
		if n <= peak || m.peakLoops.CompareAndSwap(peak, n) {
			break
		}
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := m.refresh(ctx, epoch); err != nil && !protocol.IsCancelled(err) {
			m.log.WithError(err).Debug("Poll refresh failed")
		}
		timer.Reset(m.interval)
	}
}

// handlers routes OS media-control commands into the coordinator
func (m *Model) handlers() nowplaying.Handlers {
	return nowplaying.Handlers{
		Play:     func() { m.Play(m.ctx) },
		Pause:    func() { m.Pause(m.ctx) },
		Toggle:   func() { m.TogglePlayPause(m.ctx) },
		Next:     func() { m.NextTrack(m.ctx) },
		Previous: func() { m.PreviousTrack(m.ctx) },
		Seek:     func(seconds float64) { m.Seek(m.ctx, seconds) },
	}
}

// report records err as the last error of the session at epoch.
// Cancellations are expected and never recorded.
func (m *Model) report(epoch uint64, err error) error {
	if err == nil || protocol.IsCancelled(err) {
		return err
	}
	m.store.Update(epoch, func(s *State) {
		s.LastError = err
	})
	return err
}

type noNowPlaying struct{}

func (noNowPlaying) Activate(nowplaying.Handlers) {}
func (noNowPlaying) Deactivate()                  {}
func (noNowPlaying) Update(*protocol.PlayerQueue) {}
