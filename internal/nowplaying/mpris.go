// ABOUTME: MPRIS now-playing surface on the D-Bus session bus
// ABOUTME: Exports org.mpris.MediaPlayer2 and relays its Player methods to the handlers
package nowplaying

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/Sendspin/hubremote/internal/version"
	"github.com/Sendspin/hubremote/pkg/protocol"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/sirupsen/logrus"
)

const (
	mprisPath       = "/org/mpris/MediaPlayer2"
	mprisInterface  = "org.mpris.MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
	mprisBusName    = "org.mpris.MediaPlayer2.hubremote"
	trackPathPrefix = "/org/hubremote/track/"
	noTrackPath     = "/org/mpris/MediaPlayer2/TrackList/NoTrack"
	microsPerSecond = 1e6
)

var unsafeTrackChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// MPRIS is a Surface backed by the session bus
type MPRIS struct {
	conn  *dbus.Conn
	props *prop.Properties
	log   logrus.FieldLogger

	mu       sync.Mutex
	handlers *Handlers
	owned    bool
	last     Metadata
}

// mprisRoot implements org.mpris.MediaPlayer2
type mprisRoot struct{}

func (mprisRoot) Raise() *dbus.Error { return nil }
func (mprisRoot) Quit() *dbus.Error  { return nil }

// mprisPlayer implements org.mpris.MediaPlayer2.Player
type mprisPlayer struct {
	m *MPRIS
}

func (p mprisPlayer) Play() *dbus.Error      { return p.relay(func(h *Handlers) func() { return h.Play }) }
func (p mprisPlayer) Pause() *dbus.Error     { return p.relay(func(h *Handlers) func() { return h.Pause }) }
func (p mprisPlayer) PlayPause() *dbus.Error { return p.relay(func(h *Handlers) func() { return h.Toggle }) }
func (p mprisPlayer) Stop() *dbus.Error      { return p.relay(func(h *Handlers) func() { return h.Pause }) }
func (p mprisPlayer) Next() *dbus.Error      { return p.relay(func(h *Handlers) func() { return h.Next }) }
func (p mprisPlayer) Previous() *dbus.Error  { return p.relay(func(h *Handlers) func() { return h.Previous }) }

func (p mprisPlayer) relay(pick func(h *Handlers) func()) *dbus.Error {
	p.m.dispatch(func(h *Handlers) {
		if fn := pick(h); fn != nil {
			fn()
		}
	})
	return nil
}

// Seek is relative, in microseconds
func (p mprisPlayer) Seek(offset int64) *dbus.Error {
	p.m.mu.Lock()
	target := p.m.last.Elapsed + float64(offset)/microsPerSecond
	p.m.mu.Unlock()
	if target < 0 {
		target = 0
	}
	p.m.dispatch(func(h *Handlers) {
		if h.Seek != nil {
			h.Seek(target)
		}
	})
	return nil
}

// SetPosition is absolute, in microseconds
func (p mprisPlayer) SetPosition(track dbus.ObjectPath, position int64) *dbus.Error {
	p.m.mu.Lock()
	current := trackPath(p.m.last.TrackID)
	p.m.mu.Unlock()
	if track != current || position < 0 {
		return nil
	}
	p.m.dispatch(func(h *Handlers) {
		if h.Seek != nil {
			h.Seek(float64(position) / microsPerSecond)
		}
	})
	return nil
}

func (p mprisPlayer) OpenUri(string) *dbus.Error {
	return dbus.MakeFailedError(fmt.Errorf("opening URIs is not supported"))
}

// NewMPRIS connects to the session bus and exports the MPRIS objects.
// The bus name is only claimed by Register.
func NewMPRIS(logger logrus.FieldLogger) (*MPRIS, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	m := &MPRIS{
		conn: conn,
		log:  logger.WithField("component", "mpris"),
	}

	if err := conn.Export(mprisRoot{}, mprisPath, mprisInterface); err != nil {
		conn.Close()
		return nil, err
	}
	player := mprisPlayer{m: m}
	if err := conn.Export(player, mprisPath, playerInterface); err != nil {
		conn.Close()
		return nil, err
	}

	props, err := prop.Export(conn, mprisPath, prop.Map{
		mprisInterface: {
			"CanQuit":             {Value: false, Emit: prop.EmitTrue},
			"CanRaise":            {Value: false, Emit: prop.EmitTrue},
			"HasTrackList":        {Value: false, Emit: prop.EmitTrue},
			"Identity":            {Value: version.Product, Emit: prop.EmitTrue},
			"SupportedUriSchemes": {Value: []string{}, Emit: prop.EmitTrue},
			"SupportedMimeTypes":  {Value: []string{}, Emit: prop.EmitTrue},
		},
		playerInterface: {
			"PlaybackStatus": {Value: "Stopped", Emit: prop.EmitTrue},
			"Rate":           {Value: 1.0, Emit: prop.EmitTrue},
			"Metadata":       {Value: map[string]dbus.Variant{}, Emit: prop.EmitTrue},
			"Volume":         {Value: 1.0, Emit: prop.EmitTrue},
			"Position":       {Value: int64(0), Emit: prop.EmitFalse},
			"MinimumRate":    {Value: 1.0, Emit: prop.EmitTrue},
			"MaximumRate":    {Value: 1.0, Emit: prop.EmitTrue},
			"CanGoNext":      {Value: false, Emit: prop.EmitTrue},
			"CanGoPrevious":  {Value: false, Emit: prop.EmitTrue},
			"CanPlay":        {Value: false, Emit: prop.EmitTrue},
			"CanPause":       {Value: false, Emit: prop.EmitTrue},
			"CanSeek":        {Value: false, Emit: prop.EmitTrue},
			"CanControl":     {Value: true, Emit: prop.EmitFalse},
		},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to export properties: %w", err)
	}
	m.props = props

	node := &introspect.Node{
		Name: mprisPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       mprisInterface,
				Methods:    introspect.Methods(mprisRoot{}),
				Properties: props.Introspection(mprisInterface),
			},
			{
				Name:       playerInterface,
				Methods:    introspect.Methods(player),
				Properties: props.Introspection(playerInterface),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), mprisPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return nil, err
	}

	return m, nil
}

// Register claims the MPRIS bus name and routes methods to h
func (m *MPRIS) Register(h Handlers) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers = &h
	if m.owned {
		return nil
	}

	reply, err := m.conn.RequestName(mprisBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request %s: %w", mprisBusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", mprisBusName)
	}
	m.owned = true
	m.setControls(true)
	m.log.WithField("name", mprisBusName).Info("MPRIS surface registered")
	return nil
}

// Unregister releases the bus name and drops the handlers
func (m *MPRIS) Unregister() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers = nil
	m.setControls(false)
	if !m.owned {
		return
	}
	if _, err := m.conn.ReleaseName(mprisBusName); err != nil {
		m.log.WithError(err).Debug("Failed to release bus name")
	}
	m.owned = false
}

// Publish updates the Player properties
func (m *MPRIS) Publish(md Metadata) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.last = md
	m.props.SetMust(playerInterface, "Metadata", metadataMap(md))
	m.props.SetMust(playerInterface, "PlaybackStatus", playbackStatus(md.State))
	m.props.SetMust(playerInterface, "Position", int64(md.Elapsed*microsPerSecond))
	m.props.SetMust(playerInterface, "CanSeek", md.Duration > 0)
}

// Clear resets the displayed track
func (m *MPRIS) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.last = Metadata{}
	m.props.SetMust(playerInterface, "Metadata", map[string]dbus.Variant{})
	m.props.SetMust(playerInterface, "PlaybackStatus", "Stopped")
	m.props.SetMust(playerInterface, "Position", int64(0))
	m.props.SetMust(playerInterface, "CanSeek", false)
}

// Close releases the bus name and the connection
func (m *MPRIS) Close() error {
	m.Unregister()
	return m.conn.Close()
}

func (m *MPRIS) setControls(enabled bool) {
	for _, name := range []string{"CanGoNext", "CanGoPrevious", "CanPlay", "CanPause"} {
		m.props.SetMust(playerInterface, name, enabled)
	}
}

// dispatch runs fn against the registered handlers off the D-Bus goroutine
func (m *MPRIS) dispatch(fn func(h *Handlers)) {
	m.mu.Lock()
	h := m.handlers
	m.mu.Unlock()
	if h == nil {
		return
	}
	go fn(h)
}

func playbackStatus(state protocol.PlaybackState) string {
	switch state {
	case protocol.PlaybackPlaying:
		return "Playing"
	case protocol.PlaybackPaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

func trackPath(id string) dbus.ObjectPath {
	if id == "" {
		return noTrackPath
	}
	return dbus.ObjectPath(trackPathPrefix + unsafeTrackChars.ReplaceAllString(id, "_"))
}

func metadataMap(md Metadata) map[string]dbus.Variant {
	out := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackPath(md.TrackID)),
	}
	if md.Title != "" {
		out["xesam:title"] = dbus.MakeVariant(md.Title)
	}
	if md.Artist != "" {
		out["xesam:artist"] = dbus.MakeVariant([]string{md.Artist})
	}
	if md.Album != "" {
		out["xesam:album"] = dbus.MakeVariant(md.Album)
	}
	if md.Duration > 0 {
		out["mpris:length"] = dbus.MakeVariant(int64(md.Duration * microsPerSecond))
	}
	if md.ArtworkPath != "" {
		out["mpris:artUrl"] = dbus.MakeVariant("file://" + md.ArtworkPath)
	}
	return out
}
