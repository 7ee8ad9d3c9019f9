// ABOUTME: Published application state and its single-writer store
// ABOUTME: Commits are tagged with a session epoch so superseded sessions cannot write
package app

import (
	"sync"

	"github.com/Sendspin/hubremote/internal/player"
	"github.com/Sendspin/hubremote/pkg/protocol"
)

// LocalPlayerID is the id of the virtual player backed by this device
const LocalPlayerID = "local-device"

// ConnectionState describes the health of the hub session
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
	Reconnecting ConnectionState = "reconnecting"
)

// State is an immutable snapshot of everything the presentation layer shows.
// Slices and pointers are replaced on commit, never mutated in place.
type State struct {
	Connection       ConnectionState
	SignedIn         bool
	ServerURL        string
	Players          []protocol.Player
	SelectedPlayerID string
	ActiveQueue      *protocol.PlayerQueue
	LocalQueue       *protocol.PlayerQueue
	LastError        error

	// Local is the latest engine snapshot
	Local player.Snapshot

	// serverLocalQueue is the hub's own view of the local queue, kept so
	// engine events can re-merge without a network round trip
	serverLocalQueue *protocol.PlayerQueue
}

// ShowsConnectionBanner reports whether a connection problem should be shown
func (s State) ShowsConnectionBanner() bool {
	return s.Connection == Connecting || s.Connection == Reconnecting
}

// SelectedPlayer returns the selected player, or nil
func (s State) SelectedPlayer() *protocol.Player {
	for i := range s.Players {
		if s.Players[i].PlayerID == s.SelectedPlayerID {
			return &s.Players[i]
		}
	}
	return nil
}

// LocalSelected reports whether the local virtual player is selected
func (s State) LocalSelected() bool {
	return s.SelectedPlayerID == LocalPlayerID
}

// Store serializes every mutation of State and notifies subscribers in commit order
type Store struct {
	mu    sync.Mutex
	state State
	epoch uint64

	// notifyMu is taken before mu is released so notifications keep commit order
	notifyMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// NewStore creates a store holding initial
func NewStore(initial State) *Store {
	return &Store{
		state: initial,
		subs:  make(map[int]func(State)),
	}
}

// Snapshot returns the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Epoch returns the current session epoch
func (s *Store) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Update applies fn if epoch is still current and reports whether it committed
func (s *Store) Update(epoch uint64, fn func(*State)) bool {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	fn(&s.state)
	s.publishLocked()
	return true
}

// Mutate applies fn regardless of the session epoch
func (s *Store) Mutate(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	s.publishLocked()
}

// Reset starts a new session epoch, applies fn and returns the new epoch
func (s *Store) Reset(fn func(*State)) uint64 {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	fn(&s.state)
	s.publishLocked()
	return epoch
}

// Subscribe registers fn for every committed state. Subscribers must not
// commit to the store from inside fn.
func (s *Store) Subscribe(fn func(State)) (dispose func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// publishLocked must be called with mu held; it releases mu
func (s *Store) publishLocked() {
	snap := s.state
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
