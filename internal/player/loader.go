// ABOUTME: HTTP media loader for the local playback engine
// ABOUTME: Buffers sized bodies for seeking and tags, streams unsized ones live
package player

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Sendspin/hubremote/internal/version"
	"github.com/Sendspin/hubremote/pkg/audio/decode"
	"github.com/dhowden/tag"
	"github.com/sirupsen/logrus"
)

// maxBufferedBytes caps how much of a sized body is held in memory
const maxBufferedBytes = 512 << 20

// HTTPLoader fetches media from the hub with the bearer token
type HTTPLoader struct {
	client *http.Client
	token  func() string
	log    logrus.FieldLogger
}

// NewHTTPLoader creates a loader. The client must not set a Timeout,
// live streams are bounded by the load context instead.
func NewHTTPLoader(client *http.Client, token func() string, logger logrus.FieldLogger) *HTTPLoader {
	if client == nil {
		client = &http.Client{}
	}
	if token == nil {
		token = func() string { return "" }
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HTTPLoader{
		client: client,
		token:  token,
		log:    logger.WithField("component", "loader"),
	}
}

// Load opens url for decoding
func (l *HTTPLoader) Load(ctx context.Context, url string) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "audio/*, */*")
	req.Header.Set("User-Agent", version.UserAgent())
	if token := l.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")

	if resp.ContentLength < 0 || resp.ContentLength > maxBufferedBytes {
		l.log.WithField("content_type", contentType).Debug("Streaming media without a known length")
		stream, err := decode.Open(resp.Body, contentType)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		return &Media{Stream: stream}, nil
	}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read media: %w", err)
	}

	rs := bytes.NewReader(data)
	tags := readTags(rs)
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	stream, err := decode.Open(rs, contentType)
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"bytes":        len(data),
		"content_type": contentType,
	}).Debug("Media buffered")

	return &Media{Stream: stream, Tags: tags}, nil
}

// readTags returns embedded ID3/Vorbis/MP4 tags, nil when absent
func readTags(rs io.ReadSeeker) *Tags {
	m, err := tag.ReadFrom(rs)
	if err != nil {
		return nil
	}
	t := &Tags{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
	}
	if *t == (Tags{}) {
		return nil
	}
	return t
}
