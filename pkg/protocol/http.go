// ABOUTME: HTTP transport for the hub command API
// ABOUTME: POSTs command envelopes to /api and talks to the auth endpoints
package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sendspin/hubremote/internal/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	apiPath           = "/api"
	authProvidersPath = "/auth/providers"
	authLoginPath     = "/auth/login"

	maxResponseBytes = 16 << 20
)

// Config holds transport configuration
type Config struct {
	Endpoint Endpoint

	// HTTPClient is used for all requests (default: 15s timeout client)
	HTTPClient *http.Client

	Logger logrus.FieldLogger
}

// HTTPClient executes commands with one POST per call
type HTTPClient struct {
	endpoint Endpoint
	http     *http.Client
	log      logrus.FieldLogger
}

// NewHTTPClient creates an HTTP command client
func NewHTTPClient(config Config) *HTTPClient {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	return &HTTPClient{
		endpoint: config.Endpoint,
		http:     config.HTTPClient,
		log:      config.Logger.WithField("component", "rpc"),
	}
}

// Endpoint returns the hub address and token this client uses
func (c *HTTPClient) Endpoint() Endpoint {
	return c.endpoint
}

// Call posts {message_id, command, args} and returns the raw result body
func (c *HTTPClient) Call(ctx context.Context, command string, args Args) (json.RawMessage, error) {
	if c.endpoint.Token == "" {
		return nil, ErrNoCredentials
	}

	body, err := json.Marshal(CommandMessage{
		MessageID: uuid.NewString(),
		Command:   command,
		Args:      args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", command, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.BaseURL+apiPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", command, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.endpoint.Token)

	raw, status, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	if status < 200 || status > 299 {
		return nil, responseError(command, status, raw)
	}

	c.log.WithFields(logrus.Fields{"command": command, "bytes": len(raw)}).Debug("Command completed")
	return raw, nil
}

// ListAuthProviders returns the login methods offered by the hub (unauthenticated)
func (c *HTTPClient) ListAuthProviders(ctx context.Context) ([]AuthProvider, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.BaseURL+authProvidersPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build providers request: %w", err)
	}

	raw, status, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("list auth providers: %w", err)
	}
	if status < 200 || status > 299 {
		return nil, responseError("auth/providers", status, raw)
	}

	var providers []AuthProvider
	if err := json.Unmarshal(raw, &providers); err != nil {
		// Some hub versions wrap the list in an object
		var wrapped struct {
			Providers []AuthProvider `json:"providers"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, &DecodeError{Command: "auth/providers", Payload: raw, Err: err}
		}
		providers = wrapped.Providers
	}
	return providers, nil
}

// Login exchanges username/password credentials for a bearer token (unauthenticated)
func (c *HTTPClient) Login(ctx context.Context, providerID, username, password string) (*LoginResult, error) {
	body, err := json.Marshal(LoginRequest{
		ProviderID: providerID,
		Credentials: LoginCredentials{
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.BaseURL+authLoginPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, status, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if status < 200 || status > 299 {
		return nil, responseError("auth/login", status, raw)
	}

	var result LoginResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &DecodeError{Command: "auth/login", Payload: raw, Err: err}
	}
	return &result, nil
}

// Close is a no-op for the HTTP transport
func (c *HTTPClient) Close() error {
	return nil
}

func (c *HTTPClient) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

// responseError turns a non-2xx response into a CommandError when the body
// carries one, otherwise into an HTTPError
func responseError(command string, status int, raw []byte) error {
	var body struct {
		ErrorCode *int   `json:"error_code"`
		Details   string `json:"details"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && (body.ErrorCode != nil || body.Details != "" || body.Error != "") {
		cmdErr := &CommandError{
			Command:    command,
			Details:    body.Details,
			HTTPStatus: status,
		}
		if body.ErrorCode != nil {
			cmdErr.Code = *body.ErrorCode
		}
		if cmdErr.Details == "" {
			cmdErr.Details = body.Error
		}
		return cmdErr
	}

	text := string(raw)
	if len(text) > 512 {
		text = text[:512]
	}
	return &HTTPError{StatusCode: status, Body: text}
}
