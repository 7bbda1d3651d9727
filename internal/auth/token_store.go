// Package auth manages the Spotify OAuth PKCE flow and the lifecycle of the
// resulting access token.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	configDirName = "moodify"
	tokenFileName = "token.json"

	// ExpiryMargin is how long before expiry a token stops counting as valid.
	ExpiryMargin = 300 * time.Second
)

// AuthToken is the credential set issued by the token endpoint.
// ExpiresAt is always set when AccessToken is set.
type AuthToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the token can be used at now, leaving ExpiryMargin
// of headroom for the request it is about to authorize.
func (t *AuthToken) Valid(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.ExpiresAt.Sub(now) > ExpiryMargin
}

// Renewable reports whether the token carries a refresh token.
func (t *AuthToken) Renewable() bool {
	return t != nil && t.RefreshToken != ""
}

func (t *AuthToken) clone() *AuthToken {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// TokenStore persists a single AuthToken.
// Load returns (nil, nil) when nothing is stored.
type TokenStore interface {
	Load() (*AuthToken, error)
	Save(token *AuthToken) error
	Clear() error
}

// FileTokenStore keeps the token as a JSON document on disk.
type FileTokenStore struct {
	path string
}

// DefaultFileTokenStore returns a FileTokenStore at the default location:
// ~/.config/moodify/token.json
func DefaultFileTokenStore() (*FileTokenStore, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("getting user config dir: %w", err)
	}
	return &FileTokenStore{path: filepath.Join(configDir, configDirName, tokenFileName)}, nil
}

// NewFileTokenStore creates a FileTokenStore with a custom path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the file path where the token is stored.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Load reads the token from disk.
func (s *FileTokenStore) Load() (*AuthToken, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var token AuthToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parsing token file: %w", err)
	}
	return &token, nil
}

// Save replaces the stored token. The new file is written next to the old
// one and renamed over it, so readers never observe a partial token.
func (s *FileTokenStore) Save(token *AuthToken) error {
	if token == nil {
		return errors.New("cannot save nil token")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting token file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

// Clear removes the token file. Returns nil if the file does not exist.
func (s *FileTokenStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

// MemoryTokenStore keeps the token in process memory.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token *AuthToken
}

// NewMemoryTokenStore returns a store seeded with token, which may be nil.
func NewMemoryTokenStore(token *AuthToken) *MemoryTokenStore {
	return &MemoryTokenStore{token: token.clone()}
}

func (s *MemoryTokenStore) Load() (*AuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.clone(), nil
}

func (s *MemoryTokenStore) Save(token *AuthToken) error {
	if token == nil {
		return errors.New("cannot save nil token")
	}
	s.mu.Lock()
	s.token = token.clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
	return nil
}
