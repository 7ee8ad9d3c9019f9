// ABOUTME: User intents routed to the local engine or the hub
// ABOUTME: Queue mutations always go through the hub, even for this device
package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/Sendspin/hubremote/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// PlayOptions tune PlayMedia
type PlayOptions struct {
	Shuffle bool
	Radio   bool

	// Option is the queue option: replace (default), next, add or replace_next
	Option string
}

// target is the session and player a command acts on
type target struct {
	conn    protocol.Conn
	epoch   uint64
	state   State
	local   bool
	queueID string
}

// selection resolves the selected player for a command
func (m *Model) selection() (target, error) {
	epoch := m.store.Epoch()
	st := m.store.Snapshot()
	conn := m.currentConn()
	if conn == nil || !st.SignedIn {
		return target{}, ErrNotSignedIn
	}

	t := target{conn: conn, epoch: epoch, state: st}
	switch {
	case st.SelectedPlayerID == "" || st.LocalSelected():
		t.local = true
		t.queueID = LocalPlayerID
	case st.ActiveQueue != nil && st.ActiveQueue.QueueID != "":
		t.queueID = st.ActiveQueue.QueueID
	default:
		t.queueID = st.SelectedPlayerID
	}
	return t, nil
}

// SelectPlayer makes id the target of playback commands and resyncs
func (m *Model) SelectPlayer(ctx context.Context, id string) error {
	epoch := m.store.Epoch()
	found := false
	m.store.Update(epoch, func(s *State) {
		if !containsPlayer(s.Players, id) {
			return
		}
		found = true
		s.SelectedPlayerID = id
		s.ActiveQueue = nil
		if id == LocalPlayerID {
			s.ActiveQueue = s.LocalQueue
		}
	})
	if !found {
		return m.report(epoch, fmt.Errorf("%w: %s", ErrUnknownPlayer, id))
	}

	m.log.WithField("player", id).Info("Player selected")
	return m.refresh(ctx, epoch)
}

// TogglePlayPause toggles playback of the selected player
func (m *Model) TogglePlayPause(ctx context.Context) error {
	t, err := m.selection()
	if err != nil {
		return err
	}
	if t.local {
		if t.state.Local.State == protocol.PlaybackIdle || t.state.Local.State == "" {
			return m.report(t.epoch, m.playLocalCurrent(ctx, t))
		}
		m.engine.Toggle()
		return nil
	}
	return m.remote(ctx, t, protocol.CmdQueuePlayPause, protocol.Args{"queue_id": t.queueID})
}

// Play starts or resumes the selected player
func (m *Model) Play(ctx context.Context) error {
	t, err := m.selection()
	if err != nil {
		return err
	}
	if t.local {
		switch t.state.Local.State {
		case protocol.PlaybackPlaying:
			return nil
		case protocol.PlaybackPaused:
			m.engine.Resume()
			return nil
		default:
			return m.report(t.epoch, m.playLocalCurrent(ctx, t))
		}
	}
	if remoteState(t.state) == protocol.PlaybackPlaying {
		return nil
	}
	return m.remote(ctx, t, protocol.CmdQueuePlayPause, protocol.Args{"queue_id": t.queueID})
}

// Pause pauses the selected player
func (m *Model) Pause(ctx context.Context) error {
	t, err := m.selection()
	if err != nil {
		return err
	}
	if t.local {
		m.engine.Pause()
		return nil
	}
	if remoteState(t.state) != protocol.PlaybackPlaying {
		return nil
	}
	return m.remote(ctx, t, protocol.CmdQueuePlayPause, protocol.Args{"queue_id": t.queueID})
}

// Seek moves playback of the selected player to seconds
func (m *Model) Seek(ctx context.Context, seconds float64) error {
	t, err := m.selection()
	if err != nil {
		return err
	}
	if t.local {
		return m.report(t.epoch, m.engine.Seek(seconds))
	}
	return m.remote(ctx, t, protocol.CmdQueueSeek, protocol.Args{
		"queue_id": t.queueID,
		"position": int(seconds),
	})
}

// NextTrack advances the selected queue
func (m *Model) NextTrack(ctx context.Context) error {
	return m.step(ctx, protocol.CmdQueueNext)
}

// PreviousTrack moves the selected queue back
func (m *Model) PreviousTrack(ctx context.Context) error {
	return m.step(ctx, protocol.CmdQueuePrevious)
}

func (m *Model) step(ctx context.Context, command string) error {
	t, err := m.selection()
	if err != nil {
		return err
	}
	if !t.local {
		return m.remote(ctx, t, command, protocol.Args{"queue_id": t.queueID})
	}

	if err := protocol.ExecuteVoid(ctx, t.conn, command, protocol.Args{"queue_id": LocalPlayerID}); err != nil {
		return m.report(t.epoch, err)
	}
	if err := m.playLocalCurrent(ctx, t); err != nil {
		return m.report(t.epoch, err)
	}
	return m.refresh(ctx, t.epoch)
}

// SetShuffle enables or disables shuffle on the selected queue
func (m *Model) SetShuffle(ctx context.Context, enabled bool) error {
	t, err := m.selection()
	if err != nil {
		return err
	}
	return m.remote(ctx, t, protocol.CmdQueueShuffle, protocol.Args{
		"queue_id":        t.queueID,
		"shuffle_enabled": enabled,
	})
}

// CycleRepeatMode moves the selected queue to the next repeat mode
func (m *Model) CycleRepeatMode(ctx context.Context) error {
	t, err := m.selection()
	if err != nil {
		return err
	}
	current := protocol.RepeatOff
	if q := queueFor(t); q != nil {
		current = q.RepeatMode
	}
	return m.remote(ctx, t, protocol.CmdQueueRepeat, protocol.Args{
		"queue_id":    t.queueID,
		"repeat_mode": current.Next(),
	})
}

// SetVolume sets the volume of a remote player
func (m *Model) SetVolume(ctx context.Context, playerID string, level int) error {
	if playerID == LocalPlayerID {
		return m.report(m.store.Epoch(), fmt.Errorf("volume: %w", ErrLocalPlayerUnsupported))
	}
	t, err := m.selection()
	if err != nil {
		return err
	}
	level = max(0, min(100, level))
	return m.remote(ctx, t, protocol.CmdPlayersVolumeSet, protocol.Args{
		"player_id":    playerID,
		"volume_level": level,
	})
}

// GroupPlayers syncs children to the target player
func (m *Model) GroupPlayers(ctx context.Context, targetID string, childIDs []string) error {
	if targetID == LocalPlayerID || slices.Contains(childIDs, LocalPlayerID) {
		return m.report(m.store.Epoch(), fmt.Errorf("group: %w", ErrLocalPlayerUnsupported))
	}
	t, err := m.selection()
	if err != nil {
		return err
	}
	return m.remote(ctx, t, protocol.CmdPlayersGroupMany, protocol.Args{
		"target_player":    targetID,
		"child_player_ids": childIDs,
	})
}

// UngroupPlayers removes players from their groups
func (m *Model) UngroupPlayers(ctx context.Context, playerIDs []string) error {
	if slices.Contains(playerIDs, LocalPlayerID) {
		return m.report(m.store.Epoch(), fmt.Errorf("ungroup: %w", ErrLocalPlayerUnsupported))
	}
	t, err := m.selection()
	if err != nil {
		return err
	}
	return m.remote(ctx, t, protocol.CmdPlayersUngroupMany, protocol.Args{"player_ids": playerIDs})
}

// PlayMedia loads uri into the selected queue. With the default replace
// option playback starts at once, on this device when it is selected.
func (m *Model) PlayMedia(ctx context.Context, uri string, opts PlayOptions) error {
	t, err := m.selection()
	if err != nil {
		return err
	}
	if uri == "" {
		return m.report(t.epoch, ErrNoMediaURI)
	}
	if opts.Option == "" {
		opts.Option = protocol.QueueOptionReplace
	}

	args := protocol.Args{
		"queue_id": t.queueID,
		"media":    uri,
		"option":   opts.Option,
	}
	if opts.Radio {
		args["radio_mode"] = true
	}
	if err := protocol.ExecuteVoid(ctx, t.conn, protocol.CmdQueuePlayMedia, args); err != nil {
		return m.report(t.epoch, err)
	}
	if opts.Shuffle {
		err := protocol.ExecuteVoid(ctx, t.conn, protocol.CmdQueueShuffle, protocol.Args{
			"queue_id":        t.queueID,
			"shuffle_enabled": true,
		})
		if err != nil {
			return m.report(t.epoch, err)
		}
	}

	m.log.WithFields(logrus.Fields{"queue": t.queueID, "uri": uri}).Info("Playing media")

	if err := m.refresh(ctx, t.epoch); err != nil {
		return err
	}
	if !t.local || opts.Option != protocol.QueueOptionReplace {
		return nil
	}
	return m.report(t.epoch, m.playLocalCurrent(ctx, t))
}

// PlayTrack plays a single track
func (m *Model) PlayTrack(ctx context.Context, item protocol.MediaItem) error {
	return m.PlayMedia(ctx, item.ResolveURI(), PlayOptions{})
}

// PlayAlbum plays an album, optionally shuffled
func (m *Model) PlayAlbum(ctx context.Context, item protocol.MediaItem, shuffle bool) error {
	return m.PlayMedia(ctx, item.ResolveURI(), PlayOptions{Shuffle: shuffle})
}

// PlayPlaylist plays a playlist, optionally shuffled
func (m *Model) PlayPlaylist(ctx context.Context, item protocol.MediaItem, shuffle bool) error {
	return m.PlayMedia(ctx, item.ResolveURI(), PlayOptions{Shuffle: shuffle})
}

// PlayRadio starts a radio station or a radio built from item
func (m *Model) PlayRadio(ctx context.Context, item protocol.MediaItem) error {
	return m.PlayMedia(ctx, item.ResolveURI(), PlayOptions{Radio: item.MediaType != protocol.MediaRadio})
}

// Enqueue adds item to the selected queue without interrupting playback
func (m *Model) Enqueue(ctx context.Context, item protocol.MediaItem, next bool) error {
	option := protocol.QueueOptionAddToQueue
	if next {
		option = protocol.QueueOptionPlayNext
	}
	return m.PlayMedia(ctx, item.ResolveURI(), PlayOptions{Option: option})
}

// PlayBrowseItem plays an entry found while browsing
func (m *Model) PlayBrowseItem(ctx context.Context, item protocol.BrowseItem) error {
	uri := item.URI
	if uri == "" && item.Provider != "" && item.ItemID != "" {
		uri = item.Provider + "://" + string(item.MediaType) + "/" + item.ItemID
	}
	return m.PlayMedia(ctx, uri, PlayOptions{})
}

// remote runs a queue or player command on the hub and resyncs
func (m *Model) remote(ctx context.Context, t target, command string, args protocol.Args) error {
	if err := protocol.ExecuteVoid(ctx, t.conn, command, args); err != nil {
		return m.report(t.epoch, err)
	}
	return m.refresh(ctx, t.epoch)
}

// playLocalCurrent asks the hub for the local queue's current item and
// starts it on the engine
func (m *Model) playLocalCurrent(ctx context.Context, t target) error {
	q, err := protocol.ExecuteOptional[protocol.PlayerQueue](ctx, t.conn, protocol.CmdQueueGet,
		protocol.Args{"queue_id": LocalPlayerID})
	if err != nil {
		return err
	}
	if q == nil || q.CurrentItem == nil {
		return fmt.Errorf("%w: queue is empty", ErrCannotStartPlayback)
	}
	return m.startLocal(ctx, t.epoch, *q.CurrentItem)
}

// startLocal resolves item to a stream URL and hands it to the engine
func (m *Model) startLocal(ctx context.Context, epoch uint64, item protocol.QueueItem) error {
	url, err := m.resolver.Resolve(ctx, item)
	if err != nil {
		if protocol.IsCancelled(err) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrCannotStartPlayback, err)
	}
	if m.store.Epoch() != epoch {
		return protocol.ErrCancelled
	}

	m.log.WithFields(logrus.Fields{"item": item.QueueItemID, "name": item.Name}).Info("Starting local playback")
	if err := m.engine.Play(ctx, url); err != nil {
		return fmt.Errorf("%w: %v", ErrCannotStartPlayback, err)
	}
	// A sign-out or server change may have stopped the engine while Play ran
	if m.store.Epoch() != epoch {
		m.engine.Stop()
		return protocol.ErrCancelled
	}
	return nil
}

// queueFor returns the queue commands on t act on
func queueFor(t target) *protocol.PlayerQueue {
	if t.local {
		return t.state.LocalQueue
	}
	return t.state.ActiveQueue
}

// remoteState is the playback state of the selected remote player
func remoteState(s State) protocol.PlaybackState {
	if s.ActiveQueue != nil {
		return s.ActiveQueue.State
	}
	if p := s.SelectedPlayer(); p != nil {
		return p.PlaybackState
	}
	return protocol.PlaybackUnknown
}
