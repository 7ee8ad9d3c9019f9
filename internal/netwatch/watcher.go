// ABOUTME: Reports network changes that should trigger an immediate resync
// ABOUTME: Link and address events are filtered and coalesced before notifying
package netwatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnsupported is returned on platforms without a change source
var ErrUnsupported = errors.New("network change notifications are not supported on this platform")

const defaultSettle = time.Second

// event is a platform-neutral link or address change
type event struct {
	Name     string
	Up       bool
	Removed  bool
	Loopback bool
	Address  bool // an address was added or removed
}

// Config configures a Watcher
type Config struct {
	OnChange func()
	Settle   time.Duration // quiet period before OnChange fires
	Logger   logrus.FieldLogger
}

// Watcher calls OnChange once per burst of relevant network events
type Watcher struct {
	config Config
	log    logrus.FieldLogger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	links map[string]bool
	timer *time.Timer
}

// New creates a watcher; call Start to subscribe
func New(config Config) *Watcher {
	if config.Settle <= 0 {
		config.Settle = defaultSettle
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		config: config,
		log:    logger.WithField("component", "netwatch"),
		ctx:    ctx,
		cancel: cancel,
		links:  make(map[string]bool),
	}
}

// Start subscribes to the platform's change source
func (w *Watcher) Start() error {
	events, err := subscribe(w.ctx)
	if err != nil {
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				w.handle(ev)
			}
		}
	}()
	return nil
}

// handle keeps the last known state per link so repeated reports of the
// same state do not trigger a resync
func (w *Watcher) handle(ev event) {
	if ev.Loopback {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	changed := ev.Address
	if !ev.Address {
		prev, known := w.links[ev.Name]
		switch {
		case ev.Removed:
			delete(w.links, ev.Name)
			changed = known && prev
		default:
			w.links[ev.Name] = ev.Up
			changed = (known && prev != ev.Up) || (!known && ev.Up)
		}
	}
	if !changed {
		return
	}

	w.log.WithFields(logrus.Fields{
		"link": ev.Name,
		"up":   ev.Up,
	}).Debug("Network change")

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.config.Settle, w.fire)
}

func (w *Watcher) fire() {
	if w.ctx.Err() != nil {
		return
	}
	w.log.Info("Network changed, resyncing")
	if w.config.OnChange != nil {
		w.config.OnChange()
	}
}

// Stop unsubscribes and cancels any pending notification
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}
