// ABOUTME: In-memory collaborators for coordinator tests
// ABOUTME: A scripted hub, settings, token store, engine, resolver and media controls
package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sendspin/hubremote/internal/nowplaying"
	"github.com/Sendspin/hubremote/internal/player"
	"github.com/Sendspin/hubremote/pkg/protocol"
	"github.com/sirupsen/logrus"
)

type hubCall struct {
	command string
	args    protocol.Args
}

// fakeHub answers commands from in-memory players and queues
type fakeHub struct {
	mu      sync.Mutex
	players []protocol.Player
	queues  map[string]*protocol.PlayerQueue
	calls   []hubCall
	fail    map[string]error
	token   string

	// onCommand runs with mu held before the answer is built
	onCommand func(h *fakeHub, command string, args protocol.Args)
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		queues: make(map[string]*protocol.PlayerQueue),
		fail:   make(map[string]error),
		token:  "tok-1",
	}
}

func (h *fakeHub) Call(ctx context.Context, command string, args protocol.Args) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hubCall{command: command, args: args})
	if err := h.fail[command]; err != nil {
		return nil, err
	}
	if h.onCommand != nil {
		h.onCommand(h, command, args)
	}

	var result any
	switch command {
	case protocol.CmdPlayersAll:
		result = append([]protocol.Player{}, h.players...)
	case protocol.CmdQueueGet:
		result = h.queues[args["queue_id"].(string)]
	case protocol.CmdQueueGetActive:
		result = h.queues[args["player_id"].(string)]
	}
	return json.Marshal(result)
}

func (h *fakeHub) ListAuthProviders(ctx context.Context) ([]protocol.AuthProvider, error) {
	return []protocol.AuthProvider{{ID: "builtin"}}, nil
}

func (h *fakeHub) Login(ctx context.Context, providerID, username, password string) (*protocol.LoginResult, error) {
	if password != "pw" {
		no := false
		return &protocol.LoginResult{Success: &no, Error: "invalid credentials"}, nil
	}
	return &protocol.LoginResult{Token: h.token}, nil
}

func (h *fakeHub) Close() error { return nil }

func (h *fakeHub) setPlayers(players ...protocol.Player) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.players = players
}

func (h *fakeHub) setQueue(id string, q *protocol.PlayerQueue) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queues[id] = q
}

func (h *fakeHub) setFail(command string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fail[command] = err
}

func (h *fakeHub) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

// commands returns the recorded calls of command
func (h *fakeHub) commands(command string) []hubCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []hubCall
	for _, c := range h.calls {
		if c.command == command {
			out = append(out, c)
		}
	}
	return out
}

type memSettings struct {
	mu  sync.Mutex
	url string
}

func (s *memSettings) ServerURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *memSettings) SetServerURL(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
	return nil
}

type memTokens struct {
	mu    sync.Mutex
	token string
}

func (s *memTokens) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *memTokens) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// fakeEngine is a synchronous stand-in for the playback engine
type fakeEngine struct {
	mu      sync.Mutex
	snap    player.Snapshot
	plays   []string
	playErr error
	// onPlay runs inside Play before the engine reports playing
	onPlay  func()

	subMu    sync.Mutex
	changes  map[int]func(player.Snapshot)
	finishes map[int]func()
	nextID   int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		snap:     player.Snapshot{State: protocol.PlaybackIdle},
		changes:  make(map[int]func(player.Snapshot)),
		finishes: make(map[int]func()),
	}
}

func (e *fakeEngine) Snapshot() player.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

func (e *fakeEngine) OnChange(fn func(player.Snapshot)) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextID
	e.nextID++
	e.changes[id] = fn
	return func() {
		e.subMu.Lock()
		delete(e.changes, id)
		e.subMu.Unlock()
	}
}

func (e *fakeEngine) OnFinish(fn func()) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextID
	e.nextID++
	e.finishes[id] = fn
	return func() {
		e.subMu.Lock()
		delete(e.finishes, id)
		e.subMu.Unlock()
	}
}

// update mutates the snapshot and notifies subscribers
func (e *fakeEngine) update(fn func(s *player.Snapshot)) {
	e.mu.Lock()
	fn(&e.snap)
	snap := e.snap
	e.mu.Unlock()

	e.subMu.Lock()
	fns := make([]func(player.Snapshot), 0, len(e.changes))
	for _, fn := range e.changes {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (e *fakeEngine) Play(ctx context.Context, url string) error {
	e.mu.Lock()
	e.plays = append(e.plays, url)
	err := e.playErr
	onPlay := e.onPlay
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if onPlay != nil {
		onPlay()
	}
	e.update(func(s *player.Snapshot) {
		*s = player.Snapshot{State: protocol.PlaybackPlaying, URL: url}
	})
	return nil
}

func (e *fakeEngine) Resume() {
	e.update(func(s *player.Snapshot) {
		if s.State == protocol.PlaybackPaused {
			s.State = protocol.PlaybackPlaying
		}
	})
}

func (e *fakeEngine) Pause() {
	e.update(func(s *player.Snapshot) {
		if s.State == protocol.PlaybackPlaying {
			s.State = protocol.PlaybackPaused
		}
	})
}

func (e *fakeEngine) Toggle() {
	e.update(func(s *player.Snapshot) {
		switch s.State {
		case protocol.PlaybackPlaying:
			s.State = protocol.PlaybackPaused
		case protocol.PlaybackPaused:
			s.State = protocol.PlaybackPlaying
		}
	})
}

func (e *fakeEngine) Seek(seconds float64) error {
	if e.Snapshot().State == protocol.PlaybackIdle {
		return player.ErrNotLoaded
	}
	e.update(func(s *player.Snapshot) {
		s.Elapsed = seconds
	})
	return nil
}

func (e *fakeEngine) Stop() {
	e.update(func(s *player.Snapshot) {
		*s = player.Snapshot{State: protocol.PlaybackIdle}
	})
}

// finish simulates the end of the loaded item
func (e *fakeEngine) finish() {
	e.update(func(s *player.Snapshot) {
		s.State = protocol.PlaybackPaused
	})
	e.subMu.Lock()
	fns := make([]func(), 0, len(e.finishes))
	for _, fn := range e.finishes {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()
	for _, fn := range fns {
		go fn()
	}
}

func (e *fakeEngine) played() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.plays...)
}

type fakeResolver struct {
	mu    sync.Mutex
	items []protocol.QueueItem
	err   error
}

func (r *fakeResolver) Resolve(ctx context.Context, item protocol.QueueItem) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	if r.err != nil {
		return "", r.err
	}
	return "http://hub.test/stream/" + item.QueueID + "/" + item.QueueItemID, nil
}

type recordingNowPlaying struct {
	mu      sync.Mutex
	active  bool
	updates []*protocol.PlayerQueue
}

func (n *recordingNowPlaying) Activate(nowplaying.Handlers) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.active = true
}

func (n *recordingNowPlaying) Deactivate() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.active = false
}

func (n *recordingNowPlaying) Update(q *protocol.PlayerQueue) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, q)
}

func (n *recordingNowPlaying) isActive() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// harness bundles a model with its fakes
type harness struct {
	model    *Model
	hub      *fakeHub
	settings *memSettings
	tokens   *memTokens
	engine   *fakeEngine
	resolver *fakeResolver
	np       *recordingNowPlaying
}

// newHarness builds a model; signedIn seeds a server URL and token
func newHarness(t *testing.T, signedIn bool, interval time.Duration) *harness {
	t.Helper()

	h := &harness{
		hub:      newFakeHub(),
		settings: &memSettings{url: "http://hub.test"},
		tokens:   &memTokens{},
		engine:   newFakeEngine(),
		resolver: &fakeResolver{},
		np:       &recordingNowPlaying{},
	}
	if signedIn {
		h.tokens.token = "tok-1"
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	h.model = NewModel(Config{
		Settings:     h.settings,
		Tokens:       h.tokens,
		Connect:      func(protocol.Endpoint) protocol.Conn { return h.hub },
		Engine:       h.engine,
		Resolver:     h.resolver,
		NowPlaying:   h.np,
		PollInterval: interval,
		Logger:       logger,
	})
	t.Cleanup(func() { h.model.Close() })
	return h
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitConnected(t *testing.T) {
	t.Helper()
	waitFor(t, "connected", func() bool {
		return h.model.State().Connection == Connected
	})
}

var errHubDown = errors.New("connection refused")

func remotePlayer(id, name string, state protocol.PlaybackState) protocol.Player {
	return protocol.Player{PlayerID: id, Name: name, Available: true, PlaybackState: state}
}
