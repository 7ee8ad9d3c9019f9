// ABOUTME: Hub resync and the merge of live engine values into the local queue
// ABOUTME: Engine elapsed time and state always win over the hub snapshot
package app

import (
	"context"
	"slices"

	"github.com/Sendspin/hubremote/internal/player"
	"github.com/Sendspin/hubremote/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// Refresh resyncs players and the active queue with the hub
func (m *Model) Refresh(ctx context.Context) error {
	return m.refresh(ctx, m.store.Epoch())
}

// refresh fetches the hub state and commits it for the session at epoch
func (m *Model) refresh(ctx context.Context, epoch uint64) error {
	conn := m.currentConn()
	if conn == nil {
		return ErrNotSignedIn
	}

	var selected string
	m.store.Update(epoch, func(s *State) {
		if s.Connection == Disconnected {
			s.Connection = Connecting
		}
		selected = s.SelectedPlayerID
	})

	players, err := protocol.Execute[[]protocol.Player](ctx, conn, protocol.CmdPlayersAll, nil)
	if err != nil {
		return m.refreshFailed(epoch, err)
	}

	// The hub may or may not track this device's queue
	serverLocal, err := protocol.ExecuteOptional[protocol.PlayerQueue](ctx, conn, protocol.CmdQueueGet,
		protocol.Args{"queue_id": LocalPlayerID})
	if err != nil {
		if !protocol.IsRejected(err) {
			return m.refreshFailed(epoch, err)
		}
		serverLocal = nil
	}

	remote := make([]protocol.Player, 0, len(players))
	for _, p := range players {
		if p.PlayerID != LocalPlayerID {
			remote = append(remote, p)
		}
	}

	if selected != "" && selected != LocalPlayerID && !containsPlayer(remote, selected) {
		m.log.WithField("player", selected).Info("Selected player vanished, falling back to this device")
		selected = ""
	}

	var remoteQueue *protocol.PlayerQueue
	if selected != "" && selected != LocalPlayerID {
		remoteQueue, err = protocol.ExecuteOptional[protocol.PlayerQueue](ctx, conn, protocol.CmdQueueGetActive,
			protocol.Args{"player_id": selected})
		if err != nil {
			return m.refreshFailed(epoch, err)
		}
	}

	var active *protocol.PlayerQueue
	committed := m.store.Update(epoch, func(s *State) {
		localQueue := mergeLocalQueue(serverLocal, s.Local, m.localName)
		all := make([]protocol.Player, 0, len(remote)+1)
		all = append(all, m.localPlayer(s.Local, localQueue))
		all = append(all, remote...)

		s.serverLocalQueue = serverLocal
		s.LocalQueue = localQueue
		s.Players = all

		// A selection made while this refresh was in flight wins
		current := s.SelectedPlayerID
		switch {
		case current != "" && current != selected && containsPlayer(all, current):
			if current == LocalPlayerID {
				s.ActiveQueue = localQueue
			}
		case selected == "" || selected == LocalPlayerID:
			s.SelectedPlayerID = LocalPlayerID
			s.ActiveQueue = localQueue
		default:
			s.SelectedPlayerID = selected
			s.ActiveQueue = remoteQueue
		}

		s.LastError = nil
		s.Connection = Connected
		active = s.ActiveQueue
	})
	if !committed {
		return nil
	}

	m.nowPlaying.Update(active)
	m.log.WithFields(logrus.Fields{
		"players":  len(remote) + 1,
		"selected": selected,
	}).Debug("Refresh committed")
	return nil
}

// refreshFailed downgrades the connection state. Cancellations are not
// recorded as errors but still count as a hiccup.
func (m *Model) refreshFailed(epoch uint64, err error) error {
	cancelled := protocol.IsCancelled(err)
	m.store.Update(epoch, func(s *State) {
		if !cancelled {
			s.LastError = err
		}
		switch s.Connection {
		case Connected:
			s.Connection = Reconnecting
		case Disconnected:
			s.Connection = Connecting
		}
	})
	if !cancelled {
		m.log.WithError(err).Warn("Refresh failed")
	}
	return err
}

// onEngineChange re-merges the local queue with the latest engine values
func (m *Model) onEngineChange(snap player.Snapshot) {
	var push bool
	var active *protocol.PlayerQueue

	m.store.Mutate(func(s *State) {
		s.Local = snap
		if len(s.Players) == 0 || s.Players[0].PlayerID != LocalPlayerID {
			return
		}

		localQueue := mergeLocalQueue(s.serverLocalQueue, snap, m.localName)
		players := slices.Clone(s.Players)
		players[0] = m.localPlayer(snap, localQueue)
		s.Players = players
		s.LocalQueue = localQueue
		if s.LocalSelected() {
			s.ActiveQueue = localQueue
			active = localQueue
			push = true
		}
	})

	if push {
		m.nowPlaying.Update(active)
	}
}

// mergeLocalQueue overlays the engine's elapsed time and state on the hub's
// view of the local queue; every other field comes from the hub
func mergeLocalQueue(server *protocol.PlayerQueue, snap player.Snapshot, name string) *protocol.PlayerQueue {
	q := protocol.PlayerQueue{
		QueueID:     LocalPlayerID,
		Active:      true,
		Available:   true,
		DisplayName: name,
		RepeatMode:  protocol.RepeatOff,
	}
	if server != nil {
		q = *server
	}

	q.ElapsedTime = snap.Elapsed
	q.State = snap.State
	if q.State == "" {
		q.State = protocol.PlaybackIdle
	}
	return &q
}

// localPlayer synthesizes the local virtual player from engine state
func (m *Model) localPlayer(snap player.Snapshot, q *protocol.PlayerQueue) protocol.Player {
	state := snap.State
	if state == "" {
		state = protocol.PlaybackIdle
	}

	p := protocol.Player{
		PlayerID:      LocalPlayerID,
		Type:          protocol.PlayerTypeLocal,
		Name:          m.localName,
		Available:     true,
		PlaybackState: state,
	}

	if q != nil && q.CurrentItem != nil {
		item := q.CurrentItem
		media := &protocol.CurrentMedia{
			Title:       item.Name,
			Duration:    item.Duration,
			QueueID:     LocalPlayerID,
			QueueItemID: item.QueueItemID,
		}
		if item.MediaItem != nil {
			media.URI = item.MediaItem.ResolveURI()
			media.MediaType = item.MediaItem.MediaType
			media.Artist = item.MediaItem.ArtistNames()
			if item.MediaItem.Album != nil {
				media.Album = item.MediaItem.Album.Name
			}
		}
		if media.Duration == nil {
			media.Duration = snap.Duration
		}
		p.CurrentMedia = media
	} else if snap.URL != "" {
		media := &protocol.CurrentMedia{URI: snap.URL, Duration: snap.Duration}
		if snap.Tags != nil {
			media.Title = snap.Tags.Title
			media.Artist = snap.Tags.Artist
			media.Album = snap.Tags.Album
		}
		p.CurrentMedia = media
	}
	return p
}

func containsPlayer(players []protocol.Player, id string) bool {
	for _, p := range players {
		if p.PlayerID == id {
			return true
		}
	}
	return false
}
