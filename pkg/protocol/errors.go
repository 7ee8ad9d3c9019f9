// ABOUTME: Typed errors for the hub command client
// ABOUTME: Separates cancellation, transport, HTTP, server and decode failures
package protocol

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCancelled marks a call aborted because its connection was superseded or closed
	ErrCancelled = errors.New("request cancelled")

	// ErrNoCredentials is returned for authenticated calls without a bearer token
	ErrNoCredentials = errors.New("no bearer token configured")

	// ErrNotConnected is returned when the websocket transport is closed
	ErrNotConnected = errors.New("not connected")

	// ErrEmptyResult is wrapped in a DecodeError when a required result is absent
	ErrEmptyResult = errors.New("empty result")
)

// DecodeError reports a result that did not match the expected shape.
// Payload holds the raw response for diagnostics.
type DecodeError struct {
	Command string
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	payload := string(e.Payload)
	if len(payload) > 256 {
		payload = payload[:256] + "..."
	}
	return fmt.Sprintf("decode %s result: %v (payload: %s)", e.Command, e.Err, payload)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// HTTPError reports a non-2xx response without a command error body
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// CommandError is a failure reported by the hub for a specific command
type CommandError struct {
	Command    string
	Code       int
	Details    string
	HTTPStatus int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed (code %d): %s", e.Command, e.Code, e.Details)
}

// IsCancelled reports whether err is an expected cancellation rather than a failure
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled)
}

// IsRejected reports whether the hub answered the command with an error
func IsRejected(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}
