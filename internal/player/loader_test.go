// ABOUTME: Tests for the HTTP media loader
// ABOUTME: Serves generated WAV files from httptest servers
package player

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func wavFixture(t *testing.T, seconds int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "track.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}
	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           make([]int, 8000*seconds),
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	enc.Close()
	f.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	return raw
}

func TestHTTPLoaderBuffersSizedBodies(t *testing.T) {
	fixture := wavFixture(t, 3)

	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Content-Length", strconv.Itoa(len(fixture)))
		w.Write(fixture)
	}))
	defer server.Close()

	loader := NewHTTPLoader(nil, func() string { return "secret" }, nil)
	media, err := loader.Load(context.Background(), server.URL+"/stream/q/1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	defer media.Stream.Close()

	if auth != "Bearer secret" {
		t.Errorf("expected bearer header, got %q", auth)
	}
	if !media.Stream.Seekable() {
		t.Error("expected a seekable stream for a sized body")
	}

	d := streamDuration(media.Stream)
	if d == nil || *d != 3 {
		t.Errorf("expected duration 3s, got %v", d)
	}
}

func TestHTTPLoaderRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	loader := NewHTTPLoader(nil, nil, nil)
	if _, err := loader.Load(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestHTTPLoaderRejectsUnknownMedia(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>login required</html>"))
	}))
	defer server.Close()

	loader := NewHTTPLoader(nil, nil, nil)
	if _, err := loader.Load(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for non-audio body")
	}
}
