// ABOUTME: Tests for stream URL resolution
// ABOUTME: Verifies candidate order, early exit and probe headers
package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Sendspin/hubremote/pkg/protocol"
)

func hintedItem() protocol.QueueItem {
	return protocol.QueueItem{
		QueueID:       "local-device",
		QueueItemID:   "qi-7",
		StreamDetails: &protocol.StreamDetails{Provider: "library", ItemID: "track 9"},
	}
}

func TestCandidatesOrder(t *testing.T) {
	got := Candidates("http://hub", "tok", hintedItem())

	want := []string{
		"http://hub/stream/local-device/qi-7",
		"http://hub/stream/local-device/qi-7?token=tok",
		"http://hub/stream/local-device/qi-7?access_token=tok",
		"http://hub/stream/qi-7",
		"http://hub/stream/qi-7?token=tok",
		"http://hub/stream/qi-7?access_token=tok",
		"http://hub/stream/library/track%209",
		"http://hub/stream/library/track%209?token=tok",
		"http://hub/stream/library/track%209?access_token=tok",
		"http://hub/preview?item_id=track+9&provider=library",
		"http://hub/preview?item_id=track+9&provider=library&token=tok",
		"http://hub/preview?access_token=tok&item_id=track+9&provider=library",
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestCandidatesWithoutHint(t *testing.T) {
	item := protocol.QueueItem{QueueID: "q", QueueItemID: "i"}
	got := Candidates("http://hub", "", item)
	if len(got) != 2 || got[0] != "http://hub/stream/q/i" || got[1] != "http://hub/stream/i" {
		t.Errorf("unexpected candidates %v", got)
	}
}

type probeLog struct {
	mu       sync.Mutex
	requests []*http.Request
}

func (p *probeLog) add(r *http.Request) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, r)
	return len(p.requests)
}

func TestResolveStopsAtFirstSuccess(t *testing.T) {
	log := &probeLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := log.add(r)
		if n == 4 {
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte("ID"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	r := NewResolver(Config{
		Endpoint: func() protocol.Endpoint { return protocol.Endpoint{BaseURL: server.URL, Token: "tok"} },
	})

	got, err := r.Resolve(context.Background(), hintedItem())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != server.URL+"/stream/qi-7" {
		t.Errorf("expected bare queue item path, got %s", got)
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.requests) != 4 {
		t.Fatalf("expected 4 probes, got %d", len(log.requests))
	}
	req := log.requests[0]
	if req.Header.Get("Range") != "bytes=0-1" || req.Header.Get("Accept") != "*/*" {
		t.Errorf("unexpected probe headers %v", req.Header)
	}
	if req.Header.Get("Authorization") != "Bearer tok" {
		t.Errorf("expected bearer header, got %q", req.Header.Get("Authorization"))
	}
}

func TestResolveAcceptsRedirectStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/elsewhere" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusFound)
	}))
	defer server.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	r := NewResolver(Config{
		Endpoint:   func() protocol.Endpoint { return protocol.Endpoint{BaseURL: server.URL, Token: "tok"} },
		HTTPClient: client,
	})

	got, err := r.Resolve(context.Background(), hintedItem())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != server.URL+"/stream/local-device/qi-7" {
		t.Errorf("expected first candidate, got %s", got)
	}
}

func TestResolveNoCandidateSucceeds(t *testing.T) {
	log := &probeLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	r := NewResolver(Config{
		Endpoint: func() protocol.Endpoint { return protocol.Endpoint{BaseURL: server.URL, Token: "tok"} },
	})

	_, err := r.Resolve(context.Background(), hintedItem())
	if !errors.Is(err, ErrNoPlayableStream) {
		t.Errorf("expected ErrNoPlayableStream, got %v", err)
	}
	if len(log.requests) != 12 {
		t.Errorf("expected all 12 candidates probed, got %d", len(log.requests))
	}
}

func TestResolveProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stream/local-device/qi-7" && r.URL.RawQuery == "" {
			<-release
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	r := NewResolver(Config{
		Endpoint:     func() protocol.Endpoint { return protocol.Endpoint{BaseURL: server.URL, Token: "tok"} },
		ProbeTimeout: 50 * time.Millisecond,
	})

	got, err := r.Resolve(context.Background(), hintedItem())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != server.URL+"/stream/local-device/qi-7?token=tok" {
		t.Errorf("expected the token variant after the hung probe, got %s", got)
	}
}

func TestResolveCancelled(t *testing.T) {
	r := NewResolver(Config{
		Endpoint: func() protocol.Endpoint { return protocol.Endpoint{BaseURL: "http://127.0.0.1:1", Token: "tok"} },
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, hintedItem())
	if !protocol.IsCancelled(err) {
		t.Errorf("expected cancellation, got %v", err)
	}
}
