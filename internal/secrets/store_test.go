// ABOUTME: Tests for the sealed secret store and token adapter
// ABOUTME: Checks permissions, key reuse and tamper detection
package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestSetGetRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if err := s.Set("auth_token", "tok-123"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get("auth_token")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "tok-123" {
		t.Errorf("expected tok-123, got %q", got)
	}
}

func TestValuesAreNotPlaintext(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("auth_token", "very-secret-token"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "auth_token.sealed"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "very-secret-token") {
		t.Error("expected sealed file not to contain the plaintext")
	}

	if runtime.GOOS != "windows" {
		for _, name := range []string{"auth_token.sealed", keyFile} {
			info, err := os.Stat(filepath.Join(dir, name))
			if err != nil {
				t.Fatal(err)
			}
			if perm := info.Mode().Perm(); perm != 0600 {
				t.Errorf("%s: expected 0600, got %o", name, perm)
			}
		}
	}
}

func TestKeyIsReusedAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	first, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Set("auth_token", "persisted"); err != nil {
		t.Fatal(err)
	}

	second, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := second.Get("auth_token")
	if err != nil || got != "persisted" {
		t.Errorf("expected persisted value, got %q, %v", got, err)
	}
}

func TestGetMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("auth_token"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTamperedValueIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("auth_token", "tok"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "auth_token.sealed")
	data, _ := os.ReadFile(path)
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get("auth_token"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestInvalidNames(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "../key", "Auth", "a/b"} {
		if err := s.Set(name, "x"); err == nil {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestTokenStore(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ts := NewTokenStore(fs)

	if tok, err := ts.Token(); err != nil || tok != "" {
		t.Errorf("expected empty token, got %q, %v", tok, err)
	}
	if err := ts.SetToken("tok-1"); err != nil {
		t.Fatal(err)
	}
	if tok, _ := ts.Token(); tok != "tok-1" {
		t.Errorf("expected tok-1, got %q", tok)
	}

	if err := ts.SetToken(""); err != nil {
		t.Fatalf("clearing token failed: %v", err)
	}
	if err := ts.SetToken(""); err != nil {
		t.Errorf("clearing twice should succeed, got %v", err)
	}
	if tok, _ := ts.Token(); tok != "" {
		t.Errorf("expected token cleared, got %q", tok)
	}
}
