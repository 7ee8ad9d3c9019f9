// ABOUTME: Persisted settings backed by the config file
// ABOUTME: Holds the hub address the session signs in against
package config

import (
	"sync"
)

// Settings persists the server URL in the config file
type Settings struct {
	mu   sync.Mutex
	path string
	cfg  *Config
}

// NewSettings wraps cfg loaded from path
func NewSettings(path string, cfg *Config) *Settings {
	return &Settings{path: path, cfg: cfg}
}

// ServerURL returns the configured hub address
func (s *Settings) ServerURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Server.URL
}

// SetServerURL stores url and rewrites the config file
func (s *Settings) SetServerURL(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg.Server.URL
	s.cfg.Server.URL = url
	if err := s.cfg.SaveToFile(s.path); err != nil {
		s.cfg.Server.URL = prev
		return err
	}
	return nil
}

// Reload adopts cfg read back from disk but keeps the current server URL,
// so callers can route a URL change through the session restart path
func (s *Settings) Reload(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *cfg
	next.Server.URL = s.cfg.Server.URL
	s.cfg = &next
}
