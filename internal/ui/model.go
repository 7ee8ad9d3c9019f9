// ABOUTME: Bubbletea model for the remote control TUI
// ABOUTME: Renders published app state and dispatches key presses as commands
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sendspin/hubremote/internal/app"
	"github.com/Sendspin/hubremote/pkg/protocol"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	seekStep       = 10.0
	volumeStep     = 5
	commandTimeout = 15 * time.Second
)

// Controller is the part of the app model the TUI drives
type Controller interface {
	Refresh(ctx context.Context) error
	SelectPlayer(ctx context.Context, id string) error
	TogglePlayPause(ctx context.Context) error
	NextTrack(ctx context.Context) error
	PreviousTrack(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetShuffle(ctx context.Context, enabled bool) error
	CycleRepeatMode(ctx context.Context) error
	SetVolume(ctx context.Context, playerID string, level int) error
	EnterBackground()
	EnterForeground(ctx context.Context) error
}

// StateMsg carries a new published state into the TUI
type StateMsg app.State

type commandDoneMsg struct {
	name string
	err  error
}

// Model represents the TUI state
type Model struct {
	state app.State
	ctrl  Controller
	ctx   context.Context

	// Player list cursor
	cursor int

	// Result of the last command
	lastCommand string
	commandErr  error

	showDebug bool
	quitting  bool
	quitChan  chan struct{}

	// Dimensions
	width  int
	height int
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("214")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StateMsg:
		m.applyState(app.State(msg))
	case tea.ResumeMsg:
		if m.ctrl != nil {
			return m, m.run("Resume", m.ctrl.EnterForeground)
		}
	case commandDoneMsg:
		m.lastCommand = msg.name
		m.commandErr = msg.err
	}

	return m, nil
}

// applyState keeps the cursor on the same player when the list changes
func (m *Model) applyState(st app.State) {
	var cursorID string
	if m.cursor < len(m.state.Players) {
		cursorID = m.state.Players[m.cursor].PlayerID
	}

	m.state = st
	m.cursor = 0
	for i, p := range st.Players {
		if p.PlayerID == cursorID {
			m.cursor = i
			return
		}
	}
	for i, p := range st.Players {
		if p.PlayerID == st.SelectedPlayerID {
			m.cursor = i
			return
		}
	}
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Hub Remote"))
	b.WriteString("\n")

	if m.state.ShowsConnectionBanner() {
		b.WriteString(bannerStyle.Render(bannerText(m.state.Connection)))
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderPlayers())
	b.WriteString("\n")
	b.WriteString(m.renderNowPlaying())

	if err := m.errorLine(); err != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(err))
		b.WriteString("\n")
	}

	if m.showDebug {
		b.WriteString("\n")
		b.WriteString(m.renderDebug())
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space:Play/Pause  n/p:Next/Prev  ←/→:Seek  s:Shuffle  r:Repeat  +/-:Volume  ↑/↓/enter:Select  R:Refresh  ctrl+z:Suspend  q:Quit"))
	return b.String()
}

func bannerText(c app.ConnectionState) string {
	if c == app.Reconnecting {
		return "Connection lost, reconnecting..."
	}
	return "Connecting..."
}

// renderHeader renders the server and connection status
func (m Model) renderHeader() string {
	server := m.state.ServerURL
	if server == "" {
		server = "(not configured)"
	}
	status := string(m.state.Connection)
	if !m.state.SignedIn {
		status = "signed out"
	}

	return fmt.Sprintf("%s %s\n%s %s\n",
		headerStyle.Render("Server:"), valueStyle.Render(server),
		headerStyle.Render("Status:"), valueStyle.Render(status))
}

// renderPlayers renders the player list with cursor and selection marks
func (m Model) renderPlayers() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Players"))
	b.WriteString("\n")

	if len(m.state.Players) == 0 {
		b.WriteString(valueStyle.Render("  (none)"))
		b.WriteString("\n")
		return b.String()
	}

	for i, p := range m.state.Players {
		cursor := " "
		if i == m.cursor {
			cursor = ">"
		}
		mark := " "
		if p.PlayerID == m.state.SelectedPlayerID {
			mark = "*"
		}

		line := fmt.Sprintf("%s%s %-24s %-8s", cursor, mark, truncate(p.Label(), 24), p.PlaybackState)
		if p.VolumeLevel != nil {
			line += fmt.Sprintf(" vol %3d%%", *p.VolumeLevel)
		}
		if !p.Available {
			line += " (unavailable)"
		}

		if p.PlayerID == m.state.SelectedPlayerID {
			b.WriteString(selectedStyle.Render(line))
		} else {
			b.WriteString(valueStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderNowPlaying renders the active queue's current item and progress
func (m Model) renderNowPlaying() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Now Playing"))
	b.WriteString("\n")

	q := m.state.ActiveQueue
	if q == nil || q.CurrentItem == nil {
		b.WriteString(valueStyle.Render("  Nothing playing"))
		b.WriteString("\n")
		return b.String()
	}

	item := q.CurrentItem
	title, artist, album := item.Name, "", ""
	if mi := item.MediaItem; mi != nil {
		if mi.Name != "" {
			title = mi.Name
		}
		artist = mi.ArtistNames()
		if mi.Album != nil {
			album = mi.Album.Name
		}
	}

	fmt.Fprintf(&b, "  Track:  %s\n", valueStyle.Render(truncate(title, 48)))
	if artist != "" {
		fmt.Fprintf(&b, "  Artist: %s\n", valueStyle.Render(truncate(artist, 48)))
	}
	if album != "" {
		fmt.Fprintf(&b, "  Album:  %s\n", valueStyle.Render(truncate(album, 48)))
	}

	fmt.Fprintf(&b, "  %s %s\n", stateIcon(q.State), progress(q.ElapsedTime, item.Duration))

	shuffle := "off"
	if q.ShuffleEnabled {
		shuffle = "on"
	}
	fmt.Fprintf(&b, "  Shuffle: %s  Repeat: %s\n", shuffle, q.RepeatMode)
	return b.String()
}

func (m Model) errorLine() string {
	if m.commandErr != nil {
		return fmt.Sprintf("%s failed: %v", m.lastCommand, m.commandErr)
	}
	if m.state.LastError != nil {
		return fmt.Sprintf("Error: %v", m.state.LastError)
	}
	return ""
}

// renderDebug renders internal state useful when diagnosing sync issues
func (m Model) renderDebug() string {
	local := m.state.Local
	return fmt.Sprintf("DEBUG: selected=%q local=%s elapsed=%.1fs url=%s\n",
		m.state.SelectedPlayerID, local.State, local.Elapsed, local.URL)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		select {
		case m.quitChan <- struct{}{}:
		default:
		}
		return m, tea.Quit
	case "ctrl+z":
		// Raw mode swallows SIGTSTP, so job control goes through the key
		if m.ctrl != nil {
			m.ctrl.EnterBackground()
		}
		return m, tea.Suspend
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.state.Players)-1 {
			m.cursor++
		}
	case "d":
		m.showDebug = !m.showDebug
	default:
		if m.ctrl == nil {
			return m, nil
		}
		return m, m.command(msg.String())
	}

	return m, nil
}

// command maps a key to a controller call
func (m Model) command(key string) tea.Cmd {
	switch key {
	case "enter":
		if m.cursor < len(m.state.Players) {
			id := m.state.Players[m.cursor].PlayerID
			return m.run("Select", func(ctx context.Context) error { return m.ctrl.SelectPlayer(ctx, id) })
		}
	case " ":
		return m.run("Play/Pause", m.ctrl.TogglePlayPause)
	case "n":
		return m.run("Next", m.ctrl.NextTrack)
	case "p":
		return m.run("Previous", m.ctrl.PreviousTrack)
	case "left", "right":
		target, ok := m.seekTarget(key == "right")
		if ok {
			return m.run("Seek", func(ctx context.Context) error { return m.ctrl.Seek(ctx, target) })
		}
	case "s":
		if q := m.state.ActiveQueue; q != nil {
			enabled := !q.ShuffleEnabled
			return m.run("Shuffle", func(ctx context.Context) error { return m.ctrl.SetShuffle(ctx, enabled) })
		}
	case "r":
		return m.run("Repeat", m.ctrl.CycleRepeatMode)
	case "+", "=", "-":
		if p := m.state.SelectedPlayer(); p != nil {
			level := 0
			if p.VolumeLevel != nil {
				level = *p.VolumeLevel
			}
			if key == "-" {
				level -= volumeStep
			} else {
				level += volumeStep
			}
			id := p.PlayerID
			return m.run("Volume", func(ctx context.Context) error { return m.ctrl.SetVolume(ctx, id, level) })
		}
	case "R":
		return m.run("Refresh", m.ctrl.Refresh)
	}
	return nil
}

// seekTarget clamps the new position to the current item's duration
func (m Model) seekTarget(forward bool) (float64, bool) {
	q := m.state.ActiveQueue
	if q == nil || q.CurrentItem == nil {
		return 0, false
	}

	target := q.ElapsedTime - seekStep
	if forward {
		target = q.ElapsedTime + seekStep
	}
	if d := q.CurrentItem.Duration; d != nil && target > *d {
		target = *d
	}
	if target < 0 {
		target = 0
	}
	return target, true
}

// run executes fn off the update loop and reports the outcome
func (m Model) run(name string, fn func(ctx context.Context) error) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, commandTimeout)
		defer cancel()
		return commandDoneMsg{name: name, err: fn(ctx)}
	}
}

func stateIcon(s protocol.PlaybackState) string {
	switch s {
	case protocol.PlaybackPlaying:
		return "▶"
	case protocol.PlaybackPaused:
		return "⏸"
	default:
		return "■"
	}
}

// progress renders elapsed/duration with a bar when the duration is known
func progress(elapsed float64, duration *float64) string {
	if duration == nil || *duration <= 0 {
		return formatTime(elapsed)
	}
	pct := int(elapsed / *duration * 100)
	return fmt.Sprintf("[%s] %s / %s", renderBar(pct, 100, 20), formatTime(elapsed), formatTime(*duration))
}

func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Utility functions
func renderBar(value, max, width int) string {
	if value > max {
		value = max
	}
	if value < 0 {
		value = 0
	}
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
