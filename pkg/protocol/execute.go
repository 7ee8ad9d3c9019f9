// ABOUTME: Transport-independent command execution helpers
// ABOUTME: Typed, optional and void result decoding on top of a Caller
package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Caller executes a single named command and returns the raw JSON result
type Caller interface {
	Call(ctx context.Context, command string, args Args) (json.RawMessage, error)
}

// Conn is a Caller that also exposes the unauthenticated auth endpoints
type Conn interface {
	Caller
	ListAuthProviders(ctx context.Context) ([]AuthProvider, error)
	Login(ctx context.Context, providerID, username, password string) (*LoginResult, error)
	Close() error
}

// Endpoint identifies a hub and the credential used against it
type Endpoint struct {
	BaseURL string
	Token   string
}

// SignedIn reports whether both the server address and token are present
func (e Endpoint) SignedIn() bool {
	return e.BaseURL != "" && e.Token != ""
}

// Execute runs command and decodes a required result into T
func Execute[T any](ctx context.Context, c Caller, command string, args Args) (T, error) {
	var out T
	raw, err := c.Call(ctx, command, args)
	if err != nil {
		return out, err
	}
	if isAbsent(raw) {
		return out, &DecodeError{Command: command, Payload: raw, Err: ErrEmptyResult}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &DecodeError{Command: command, Payload: raw, Err: err}
	}
	return out, nil
}

// ExecuteOptional runs command and decodes its result, returning nil for an absent result
func ExecuteOptional[T any](ctx context.Context, c Caller, command string, args Args) (*T, error) {
	raw, err := c.Call(ctx, command, args)
	if err != nil {
		return nil, err
	}
	if isAbsent(raw) {
		return nil, nil
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, &DecodeError{Command: command, Payload: raw, Err: err}
	}
	return out, nil
}

// ExecuteVoid runs command and only checks for acknowledgment
func ExecuteVoid(ctx context.Context, c Caller, command string, args Args) error {
	_, err := c.Call(ctx, command, args)
	return err
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// NormalizeBaseURL cleans up a user-entered server address.
// A missing scheme defaults to http and trailing slashes are dropped.
func NormalizeBaseURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid server address %q: unsupported scheme %s", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server address %q: missing host", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}
