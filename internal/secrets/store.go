// ABOUTME: Encrypted on-disk secret store for the hub auth token
// ABOUTME: Values are sealed with nacl/secretbox under a per-install key
package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keyFile   = "secret.key"
	keySize   = 32
	nonceSize = 24

	tokenName = "auth_token"
)

var (
	// ErrNotFound is returned by Get for a name that was never stored
	ErrNotFound = errors.New("secret not found")
	// ErrCorrupt means a sealed value failed authentication
	ErrCorrupt = errors.New("secret is corrupt or was sealed with another key")

	validName = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// FileStore keeps secrets as sealed files in one directory
type FileStore struct {
	mu  sync.Mutex
	dir string
	key *[keySize]byte
}

// NewFileStore opens dir, creating it and the key on first use
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create secrets directory: %w", err)
	}

	key, err := loadKey(filepath.Join(dir, keyFile))
	if err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, key: key}, nil
}

func loadKey(path string) (*[keySize]byte, error) {
	var key [keySize]byte

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != keySize {
			return nil, fmt.Errorf("secret key %s has wrong size %d", path, len(data))
		}
		copy(key[:], data)
		return &key, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read secret key: %w", err)
	}

	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, fmt.Errorf("failed to generate secret key: %w", err)
	}
	if err := writeFile(path, key[:]); err != nil {
		return nil, fmt.Errorf("failed to write secret key: %w", err)
	}
	return &key, nil
}

// Get returns the plaintext stored under name
func (s *FileStore) Get(name string) (string, error) {
	path, err := s.path(name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", name, err)
	}
	if len(data) < nonceSize+secretbox.Overhead {
		return "", ErrCorrupt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, s.key)
	if !ok {
		return "", ErrCorrupt
	}
	return string(plain), nil
}

// Set seals value under name, replacing any previous value
func (s *FileStore) Set(name, value string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(value), &nonce, s.key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFile(path, sealed); err != nil {
		return fmt.Errorf("failed to write secret %s: %w", name, err)
	}
	return nil
}

// Delete removes name; deleting a missing secret is not an error
func (s *FileStore) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete secret %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) path(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	return filepath.Join(s.dir, name+".sealed"), nil
}

// writeFile replaces path atomically with a 0600 file
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".secret-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// TokenStore exposes the hub auth token held in a FileStore
type TokenStore struct {
	store *FileStore
}

// NewTokenStore wraps store
func NewTokenStore(store *FileStore) *TokenStore {
	return &TokenStore{store: store}
}

// Token returns the saved token, or "" when signed out
func (t *TokenStore) Token() (string, error) {
	tok, err := t.store.Get(tokenName)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return tok, err
}

// SetToken saves token; an empty token deletes it
func (t *TokenStore) SetToken(token string) error {
	if token == "" {
		return t.store.Delete(tokenName)
	}
	return t.store.Set(tokenName, token)
}
