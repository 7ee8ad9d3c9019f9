// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and feeds it published state
package ui

import (
	"context"
	"sync"

	"github.com/Sendspin/hubremote/internal/app"
	tea "github.com/charmbracelet/bubbletea"
)

// TUI manages the remote control terminal UI
type TUI struct {
	program  *tea.Program
	ctx      context.Context
	cancel   context.CancelFunc
	quitChan chan struct{}

	// updates holds only the newest state; older pending states are dropped
	updates  chan app.State
	stopOnce sync.Once
}

// NewModel creates a new TUI model
func NewModel(ctx context.Context, ctrl Controller, initial app.State, quit chan struct{}) Model {
	m := Model{
		ctrl:     ctrl,
		ctx:      ctx,
		quitChan: quit,
	}
	m.applyState(initial)
	return m
}

// New creates a TUI driving ctrl
func New(ctrl Controller, initial app.State) *TUI {
	ctx, cancel := context.WithCancel(context.Background())
	t := &TUI{
		ctx:      ctx,
		cancel:   cancel,
		quitChan: make(chan struct{}, 1),
		updates:  make(chan app.State, 1),
	}
	t.program = tea.NewProgram(NewModel(ctx, ctrl, initial, t.quitChan), tea.WithAltScreen())
	return t
}

// Start runs the TUI until the user quits or Stop is called
func (t *TUI) Start() error {
	go func() {
		for {
			select {
			case <-t.ctx.Done():
				return
			case st := <-t.updates:
				t.program.Send(StateMsg(st))
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update queues st for display without blocking the caller
func (t *TUI) Update(st app.State) {
	for {
		select {
		case t.updates <- st:
			return
		default:
		}
		select {
		case <-t.updates:
		default:
		}
	}
}

// Stop stops the TUI and cancels in-flight commands
func (t *TUI) Stop() {
	t.stopOnce.Do(func() {
		t.cancel()
		t.program.Quit()
	})
}

// QuitChan returns the channel that signals when user wants to quit
func (t *TUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
