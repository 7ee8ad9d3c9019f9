// ABOUTME: Sign-in, sign-out, settings changes and app lifecycle hooks
// ABOUTME: Also advances the local queue when the engine finishes an item
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Sendspin/hubremote/pkg/protocol"
	"github.com/sirupsen/logrus"
)

const finishTimeout = 30 * time.Second

// ListAuthProviders returns the login methods of the configured hub
func (m *Model) ListAuthProviders(ctx context.Context) ([]protocol.AuthProvider, error) {
	base := m.settings.ServerURL()
	if base == "" {
		return nil, ErrNoServer
	}
	conn := m.connect(protocol.Endpoint{BaseURL: base})
	defer conn.Close()

	providers, err := conn.ListAuthProviders(ctx)
	if err != nil {
		return nil, m.report(m.store.Epoch(), err)
	}
	return providers, nil
}

// SignIn exchanges credentials for a token and starts a session
func (m *Model) SignIn(ctx context.Context, providerID, username, password string) error {
	base := m.settings.ServerURL()
	if base == "" {
		return m.report(m.store.Epoch(), ErrNoServer)
	}

	conn := m.connect(protocol.Endpoint{BaseURL: base})
	res, err := conn.Login(ctx, providerID, username, password)
	conn.Close()
	if err != nil {
		return m.report(m.store.Epoch(), err)
	}
	if !res.OK() {
		err := ErrLoginFailed
		if res.Error != "" {
			err = fmt.Errorf("%w: %s", ErrLoginFailed, res.Error)
		}
		return m.report(m.store.Epoch(), err)
	}

	if err := m.tokens.SetToken(res.Token); err != nil {
		return m.report(m.store.Epoch(), fmt.Errorf("failed to store token: %w", err))
	}

	m.log.WithFields(logrus.Fields{"server": base, "provider": providerID}).Info("Signed in")
	m.restartSession(false)
	return nil
}

// SignOut ends the session in one step: the loop is cancelled, the published
// state cleared, playback stopped and the media controls released.
// Signing out while signed out is a no-op.
func (m *Model) SignOut() error {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	m.stopLoopLocked()
	m.swapConn(protocol.Endpoint{})

	m.store.Reset(func(s *State) {
		*s = State{
			Connection: Disconnected,
			ServerURL:  s.ServerURL,
			Local:      s.Local,
		}
	})

	m.engine.Stop()
	m.nowPlaying.Deactivate()

	if err := m.tokens.SetToken(""); err != nil {
		m.log.WithError(err).Warn("Failed to delete token")
		return err
	}
	m.log.Info("Signed out")
	return nil
}

// SetServerURL persists a new hub address and restarts the session
func (m *Model) SetServerURL(raw string) error {
	url, err := protocol.NormalizeBaseURL(raw)
	if err != nil {
		return m.report(m.store.Epoch(), err)
	}
	if url == m.settings.ServerURL() {
		return nil
	}
	if err := m.settings.SetServerURL(url); err != nil {
		return m.report(m.store.Epoch(), fmt.Errorf("failed to save server address: %w", err))
	}

	m.log.WithField("server", url).Info("Server address changed")
	m.engine.Stop()
	m.restartSession(true)
	return nil
}

// SetToken persists a new bearer token and restarts the session
func (m *Model) SetToken(token string) error {
	if err := m.tokens.SetToken(token); err != nil {
		return m.report(m.store.Epoch(), fmt.Errorf("failed to store token: %w", err))
	}
	m.restartSession(false)
	return nil
}

// EnterBackground remembers whether the session was connected
func (m *Model) EnterBackground() {
	st := m.store.Snapshot()

	m.lifeMu.Lock()
	m.wasConnected = st.Connection == Connected
	m.lifeMu.Unlock()

	m.log.WithField("connected", st.Connection == Connected).Debug("Entered background")
}

// EnterForeground marks the session as reconnecting and resyncs immediately
func (m *Model) EnterForeground(ctx context.Context) error {
	m.lifeMu.Lock()
	wasConnected := m.wasConnected
	m.wasConnected = false
	m.lifeMu.Unlock()

	epoch := m.store.Epoch()
	m.store.Update(epoch, func(s *State) {
		switch {
		case !s.SignedIn:
		case wasConnected:
			s.Connection = Reconnecting
		case s.Connection == Disconnected:
			s.Connection = Connecting
		}
	})

	if !m.store.Snapshot().SignedIn {
		return nil
	}
	return m.refresh(ctx, epoch)
}

// NetworkChanged resyncs immediately after a network change
func (m *Model) NetworkChanged(ctx context.Context) error {
	epoch := m.store.Epoch()
	if !m.store.Snapshot().SignedIn {
		return nil
	}
	m.log.Debug("Network changed, resyncing")
	return m.refresh(ctx, epoch)
}

// onTrackFinished advances the local queue after the engine finished an item.
// Playback ends when the hub keeps the same item and repeat is not one.
func (m *Model) onTrackFinished() {
	t, err := m.selection()
	if err != nil {
		return
	}

	var previous string
	repeat := protocol.RepeatOff
	if q := t.state.LocalQueue; q != nil {
		repeat = q.RepeatMode
		if q.CurrentItem != nil {
			previous = q.CurrentItem.QueueItemID
		}
	}

	ctx, cancel := context.WithTimeout(m.ctx, finishTimeout)
	defer cancel()

	log := m.log.WithField("previous", previous)
	if err := protocol.ExecuteVoid(ctx, t.conn, protocol.CmdQueueNext, protocol.Args{"queue_id": LocalPlayerID}); err != nil {
		log.WithError(err).Warn("Failed to advance local queue")
		m.report(t.epoch, err)
		return
	}

	q, err := protocol.ExecuteOptional[protocol.PlayerQueue](ctx, t.conn, protocol.CmdQueueGet,
		protocol.Args{"queue_id": LocalPlayerID})
	if err != nil {
		m.report(t.epoch, err)
		return
	}
	if q == nil || q.CurrentItem == nil {
		log.Info("Local queue ended")
		m.stopIfFinished(t.epoch)
		return
	}
	if q.CurrentItem.QueueItemID == previous && repeat == protocol.RepeatOff {
		log.Info("Local queue ended")
		m.stopIfFinished(t.epoch)
		return
	}

	if err := m.startLocal(ctx, t.epoch, *q.CurrentItem); err != nil {
		m.report(t.epoch, err)
		return
	}
	m.refresh(ctx, t.epoch)
}

// stopIfFinished leaves the finished item loaded so Resume can replay it,
// unless the session ended meanwhile
func (m *Model) stopIfFinished(epoch uint64) {
	if m.store.Epoch() != epoch {
		m.engine.Stop()
		return
	}
	m.refresh(m.ctx, epoch)
}

