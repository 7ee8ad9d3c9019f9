// ABOUTME: Stream URL resolution against the hub's unstable stream paths
// ABOUTME: Probes an ordered candidate chain and returns the first playable URL
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Sendspin/hubremote/internal/version"
	"github.com/Sendspin/hubremote/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// ErrNoPlayableStream is returned when every candidate fails
var ErrNoPlayableStream = errors.New("no playable stream found")

const defaultProbeTimeout = 5 * time.Second

// Config holds resolver configuration
type Config struct {
	// Endpoint returns the current hub address and token
	Endpoint func() protocol.Endpoint

	HTTPClient *http.Client

	// ProbeTimeout bounds each candidate (default: 5s)
	ProbeTimeout time.Duration

	Logger logrus.FieldLogger
}

// Resolver finds a working stream URL for a queue item
type Resolver struct {
	endpoint func() protocol.Endpoint
	client   *http.Client
	timeout  time.Duration
	log      logrus.FieldLogger
}

// NewResolver creates a resolver
func NewResolver(config Config) *Resolver {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = defaultProbeTimeout
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &Resolver{
		endpoint: config.Endpoint,
		client:   config.HTTPClient,
		timeout:  config.ProbeTimeout,
		log:      config.Logger.WithField("component", "resolver"),
	}
}

// Candidates lists every URL worth probing for item, in probe order
func Candidates(base, token string, item protocol.QueueItem) []string {
	var paths []string
	if item.QueueID != "" && item.QueueItemID != "" {
		paths = append(paths, fmt.Sprintf("/stream/%s/%s", url.PathEscape(item.QueueID), url.PathEscape(item.QueueItemID)))
	}
	if item.QueueItemID != "" {
		paths = append(paths, fmt.Sprintf("/stream/%s", url.PathEscape(item.QueueItemID)))
	}
	if hint := item.StreamDetails; hint != nil && hint.Provider != "" && hint.ItemID != "" {
		paths = append(paths, fmt.Sprintf("/stream/%s/%s", url.PathEscape(hint.Provider), url.PathEscape(hint.ItemID)))
		q := url.Values{}
		q.Set("provider", hint.Provider)
		q.Set("item_id", hint.ItemID)
		paths = append(paths, "/preview?"+q.Encode())
	}

	var out []string
	for _, p := range paths {
		out = append(out, base+p)
		if token == "" {
			continue
		}
		out = append(out, withQuery(base+p, "token", token))
		out = append(out, withQuery(base+p, "access_token", token))
	}
	return out
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// Resolve returns the first candidate answering 200-399.
// Later candidates are never requested.
func (r *Resolver) Resolve(ctx context.Context, item protocol.QueueItem) (string, error) {
	ep := r.endpoint()
	candidates := Candidates(ep.BaseURL, ep.Token, item)

	log := r.log.WithField("queue_item_id", item.QueueItemID)
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		status, err := r.probe(ctx, candidate, ep.Token)
		if err != nil {
			log.WithError(err).WithField("candidate", i).Debug("Stream probe failed")
			continue
		}
		if status >= 200 && status <= 399 {
			log.WithFields(logrus.Fields{"candidate": i, "status": status}).Info("Resolved stream URL")
			return candidate, nil
		}
		log.WithFields(logrus.Fields{"candidate": i, "status": status}).Debug("Stream probe rejected")
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%w for %s after %d candidates", ErrNoPlayableStream, item.QueueItemID, len(candidates))
}

// probe issues a two-byte ranged GET
func (r *Resolver) probe(ctx context.Context, candidate, token string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-1")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", version.UserAgent())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64))
	resp.Body.Close()
	return resp.StatusCode, nil
}
