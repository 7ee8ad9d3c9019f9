// ABOUTME: Tests for TUI model and state rendering
// ABOUTME: Tests state updates, key dispatch and helper formatting
package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Sendspin/hubremote/internal/app"
	"github.com/Sendspin/hubremote/pkg/protocol"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
	err   error
	seek  float64
	vol   int
	sel   string
	shuf  bool
}

func (c *fakeController) record(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	return c.err
}

func (c *fakeController) Refresh(context.Context) error         { return c.record("refresh") }
func (c *fakeController) TogglePlayPause(context.Context) error { return c.record("toggle") }
func (c *fakeController) NextTrack(context.Context) error       { return c.record("next") }
func (c *fakeController) PreviousTrack(context.Context) error   { return c.record("previous") }
func (c *fakeController) CycleRepeatMode(context.Context) error { return c.record("repeat") }

func (c *fakeController) SelectPlayer(_ context.Context, id string) error {
	c.sel = id
	return c.record("select")
}

func (c *fakeController) Seek(_ context.Context, seconds float64) error {
	c.seek = seconds
	return c.record("seek")
}

func (c *fakeController) SetShuffle(_ context.Context, enabled bool) error {
	c.shuf = enabled
	return c.record("shuffle")
}

func (c *fakeController) SetVolume(_ context.Context, _ string, level int) error {
	c.vol = level
	return c.record("volume")
}

func (c *fakeController) EnterBackground() { c.record("background") }

func (c *fakeController) EnterForeground(context.Context) error { return c.record("foreground") }

func ptr[T any](v T) *T { return &v }

func sampleState() app.State {
	duration := 200.0
	return app.State{
		Connection: app.Connected,
		SignedIn:   true,
		ServerURL:  "http://hub:8095",
		Players: []protocol.Player{
			{PlayerID: app.LocalPlayerID, Name: "This Device", Available: true, PlaybackState: protocol.PlaybackIdle},
			{PlayerID: "kitchen", Name: "Kitchen", Available: true, PlaybackState: protocol.PlaybackPlaying, VolumeLevel: ptr(40)},
		},
		SelectedPlayerID: "kitchen",
		ActiveQueue: &protocol.PlayerQueue{
			QueueID:     "kitchen",
			State:       protocol.PlaybackPlaying,
			ElapsedTime: 195,
			RepeatMode:  protocol.RepeatOff,
			CurrentItem: &protocol.QueueItem{
				QueueItemID: "qi-1",
				Name:        "Song",
				Duration:    &duration,
				MediaItem: &protocol.MediaItem{
					Name:    "Song",
					Artists: []protocol.ItemMapping{{Name: "Band"}},
					Album:   &protocol.ItemMapping{Name: "Record"},
				},
			},
		},
	}
}

// exec runs the command returned by a key press and feeds its result back
func exec(t *testing.T, m Model, key tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(key)
	m = next.(Model)
	if cmd != nil {
		next, _ = m.Update(cmd())
		m = next.(Model)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModelPlacesCursorOnSelection(t *testing.T) {
	m := NewModel(context.Background(), nil, sampleState(), nil)

	if m.cursor != 1 {
		t.Errorf("expected cursor on the selected player, got %d", m.cursor)
	}
}

func TestApplyStateKeepsCursorOnSamePlayer(t *testing.T) {
	m := NewModel(context.Background(), nil, sampleState(), nil)

	st := sampleState()
	st.Players = append([]protocol.Player{st.Players[0], {PlayerID: "bedroom", Name: "Bedroom"}}, st.Players[1:]...)
	m.applyState(st)

	if m.state.Players[m.cursor].PlayerID != "kitchen" {
		t.Errorf("expected cursor to follow kitchen, got %s", m.state.Players[m.cursor].PlayerID)
	}
}

func TestViewShowsBannerWhileReconnecting(t *testing.T) {
	st := sampleState()
	st.Connection = app.Reconnecting
	m := NewModel(context.Background(), nil, st, nil)

	if !strings.Contains(m.View(), "reconnecting") {
		t.Error("expected reconnecting banner")
	}

	st.Connection = app.Connected
	m.applyState(st)
	if strings.Contains(m.View(), "reconnecting") {
		t.Error("expected no banner while connected")
	}
}

func TestViewRendersNowPlaying(t *testing.T) {
	view := NewModel(context.Background(), nil, sampleState(), nil).View()

	for _, want := range []string{"Kitchen", "Song", "Band", "Record", "3:15 / 3:20"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestViewShowsLastError(t *testing.T) {
	st := sampleState()
	st.LastError = errors.New("hub unreachable")

	if !strings.Contains(NewModel(context.Background(), nil, st, nil).View(), "hub unreachable") {
		t.Error("expected last error in view")
	}
}

func TestKeysDispatchCommands(t *testing.T) {
	tests := []struct {
		key  tea.KeyMsg
		want string
	}{
		{runes(" "), "toggle"},
		{runes("n"), "next"},
		{runes("p"), "previous"},
		{runes("r"), "repeat"},
		{runes("R"), "refresh"},
		{runes("s"), "shuffle"},
		{tea.KeyMsg{Type: tea.KeyEnter}, "select"},
	}

	for _, tt := range tests {
		ctrl := &fakeController{}
		m := NewModel(context.Background(), ctrl, sampleState(), nil)
		exec(t, m, tt.key)

		if len(ctrl.calls) != 1 || ctrl.calls[0] != tt.want {
			t.Errorf("%q: expected %s, got %v", tt.key.String(), tt.want, ctrl.calls)
		}
	}
}

func TestSeekClampsToDuration(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl, sampleState(), nil)

	exec(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if ctrl.seek != 200 {
		t.Errorf("expected seek clamped to 200, got %v", ctrl.seek)
	}

	exec(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	if ctrl.seek != 185 {
		t.Errorf("expected seek back to 185, got %v", ctrl.seek)
	}
}

func TestVolumeStepsFromPlayerLevel(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl, sampleState(), nil)

	exec(t, m, runes("+"))
	if ctrl.vol != 45 {
		t.Errorf("expected 45, got %d", ctrl.vol)
	}
	exec(t, m, runes("-"))
	if ctrl.vol != 35 {
		t.Errorf("expected 35, got %d", ctrl.vol)
	}
}

func TestCursorMovesAndSelects(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl, sampleState(), nil)

	m = exec(t, m, tea.KeyMsg{Type: tea.KeyUp})
	m = exec(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if m.cursor != 0 {
		t.Errorf("expected cursor clamped at 0, got %d", m.cursor)
	}

	exec(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if ctrl.sel != app.LocalPlayerID {
		t.Errorf("expected local player selected, got %q", ctrl.sel)
	}
}

func TestCommandErrorIsShown(t *testing.T) {
	ctrl := &fakeController{err: app.ErrLocalPlayerUnsupported}
	m := NewModel(context.Background(), ctrl, sampleState(), nil)

	m = exec(t, m, runes("+"))
	if !errors.Is(m.commandErr, app.ErrLocalPlayerUnsupported) {
		t.Errorf("expected command error recorded, got %v", m.commandErr)
	}
	if !strings.Contains(m.View(), "Volume failed") {
		t.Error("expected failed command in view")
	}
}

func TestSuspendEntersBackground(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl, sampleState(), nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlZ})
	if len(ctrl.calls) != 1 || ctrl.calls[0] != "background" {
		t.Errorf("expected background before suspending, got %v", ctrl.calls)
	}
	if cmd == nil {
		t.Fatal("expected suspend command")
	}
	if _, ok := cmd().(tea.SuspendMsg); !ok {
		t.Error("expected the program to be suspended")
	}
}

func TestResumeEntersForeground(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl, sampleState(), nil)

	next, cmd := m.Update(tea.ResumeMsg{})
	if cmd == nil {
		t.Fatal("expected a foreground command")
	}
	m = next.(Model)
	next, _ = m.Update(cmd())
	m = next.(Model)

	if len(ctrl.calls) != 1 || ctrl.calls[0] != "foreground" {
		t.Errorf("expected foreground on resume, got %v", ctrl.calls)
	}
	if m.lastCommand != "Resume" {
		t.Errorf("expected resume recorded, got %q", m.lastCommand)
	}
}

func TestQuitSignals(t *testing.T) {
	quit := make(chan struct{}, 1)
	m := NewModel(context.Background(), nil, sampleState(), quit)

	next, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Error("expected quit command")
	}
	if !next.(Model).quitting {
		t.Error("expected quitting")
	}
	select {
	case <-quit:
	default:
		t.Error("expected quit signal")
	}
}

func TestTUIUpdateKeepsNewest(t *testing.T) {
	// The program never runs here, so only the forwarder context is cancelled
	tui := New(nil, app.State{})
	defer tui.cancel()

	tui.Update(app.State{ServerURL: "first"})
	tui.Update(app.State{ServerURL: "second"})

	st := <-tui.updates
	if st.ServerURL != "second" {
		t.Errorf("expected newest state, got %q", st.ServerURL)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatTime(125.7); got != "2:05" {
		t.Errorf("expected 2:05, got %s", got)
	}
	if got := renderBar(50, 100, 10); got != "█████░░░░░" {
		t.Errorf("unexpected bar %q", got)
	}
	if got := renderBar(150, 100, 4); got != "████" {
		t.Errorf("expected full bar when over max, got %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("unexpected truncation %q", got)
	}
	if got := progress(12, nil); got != "0:12" {
		t.Errorf("expected elapsed only for live streams, got %q", got)
	}
}
