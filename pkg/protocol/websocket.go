// ABOUTME: WebSocket transport for the hub command API
// ABOUTME: Correlates responses to calls by message_id over one connection
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const wsPath = "/ws"

// wsResponse is a result or error frame from the hub
type wsResponse struct {
	MessageID string          `json:"message_id"`
	Result    json.RawMessage `json:"result"`
	ErrorCode *int            `json:"error_code"`
	Details   string          `json:"details"`
	Event     string          `json:"event"`
}

type wsResult struct {
	raw json.RawMessage
	err error
}

// WSClient executes commands over a lazily dialed websocket.
// Auth endpoints are served by an embedded HTTPClient.
type WSClient struct {
	*HTTPClient

	url    string
	header http.Header
	dialer *websocket.Dialer
	log    logrus.FieldLogger

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan wsResult
	closed  bool
}

// NewWSClient creates a websocket command client
func NewWSClient(config Config) *WSClient {
	httpClient := NewHTTPClient(config)

	header := http.Header{}
	if config.Endpoint.Token != "" {
		header.Set("Authorization", "Bearer "+config.Endpoint.Token)
	}

	return &WSClient{
		HTTPClient: httpClient,
		url:        websocketURL(config.Endpoint.BaseURL),
		header:     header,
		dialer:     websocket.DefaultDialer,
		log:        httpClient.log.WithField("transport", "websocket"),
		pending:    make(map[string]chan wsResult),
	}
}

// websocketURL maps http(s)://host/base to ws(s)://host/base/ws
func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + wsPath
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + wsPath
	default:
		return base + wsPath
	}
}

// Call sends a command frame and waits for the matching response
func (c *WSClient) Call(ctx context.Context, command string, args Args) (json.RawMessage, error) {
	if c.endpoint.Token == "" {
		return nil, ErrNoCredentials
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ch := make(chan wsResult, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err = conn.WriteJSON(CommandMessage{MessageID: id, Command: command, Args: args})
	c.writeMu.Unlock()
	if err != nil {
		c.drop(conn, err)
		return nil, fmt.Errorf("%s: write failed: %w", command, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			if cmdErr, ok := res.err.(*CommandError); ok {
				cmdErr.Command = command
			}
			return nil, res.err
		}
		return res.raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// connect returns the live connection, dialing when needed
func (c *WSClient) connect(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCancelled
	}
	if c.conn != nil {
		return c.conn, nil
	}

	c.log.WithField("url", c.url).Debug("Dialing hub websocket")
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c.conn = conn
	go c.readMessages(conn)
	return conn, nil
}

// readMessages routes response frames to their pending calls
func (c *WSClient) readMessages(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.drop(conn, err)
			return
		}

		var msg wsResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.WithError(err).Warn("Failed to parse websocket frame")
			continue
		}
		if msg.MessageID == "" {
			// server info and event frames
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.MessageID]
		c.mu.Unlock()
		if !ok {
			continue
		}

		res := wsResult{raw: msg.Result}
		if msg.ErrorCode != nil {
			res = wsResult{err: &CommandError{Code: *msg.ErrorCode, Details: msg.Details}}
		}
		select {
		case ch <- res:
		default:
		}
	}
}

// drop discards conn and fails every pending call
func (c *WSClient) drop(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		return
	}
	c.conn = nil
	conn.Close()

	err := fmt.Errorf("websocket: %w", cause)
	if c.closed {
		err = ErrCancelled
	} else {
		c.log.WithError(cause).Warn("Hub websocket lost")
	}
	for id, ch := range c.pending {
		select {
		case ch <- wsResult{err: err}:
		default:
		}
		delete(c.pending, id)
	}
}

// Close closes the connection; in-flight calls fail with ErrCancelled
func (c *WSClient) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.drop(conn, ErrCancelled)
	}
	return nil
}
