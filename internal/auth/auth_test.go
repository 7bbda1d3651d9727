package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileTokenStore_SaveAndLoad(t *testing.T) {
	tests := []struct {
		name  string
		token *AuthToken
	}{
		{
			name: "token with refresh",
			token: &AuthToken{
				AccessToken:  "test-access-token",
				RefreshToken: "test-refresh-token",
				ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
			},
		},
		{
			name: "token without refresh",
			token: &AuthToken{
				AccessToken: "access-only",
				ExpiresAt:   time.Now().Add(30 * time.Minute).Truncate(time.Second),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"))

			if err := store.Save(tt.token); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			loaded, err := store.Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded == nil {
				t.Fatal("Load() returned nil token")
			}

			if loaded.AccessToken != tt.token.AccessToken {
				t.Errorf("AccessToken = %q, want %q", loaded.AccessToken, tt.token.AccessToken)
			}
			if loaded.RefreshToken != tt.token.RefreshToken {
				t.Errorf("RefreshToken = %q, want %q", loaded.RefreshToken, tt.token.RefreshToken)
			}
			if !loaded.ExpiresAt.Equal(tt.token.ExpiresAt) {
				t.Errorf("ExpiresAt = %v, want %v", loaded.ExpiresAt, tt.token.ExpiresAt)
			}
		})
	}
}

func TestFileTokenStore_LoadNonExistent(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "nonexistent", "token.json"))

	token, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if token != nil {
		t.Errorf("Load() = %v, want nil for non-existent file", token)
	}
}

func TestFileTokenStore_SaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeply", "token.json")
	store := NewFileTokenStore(path)

	if err := store.Save(&AuthToken{AccessToken: "test-token", ExpiresAt: time.Now()}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("Save() did not create token file")
	}

	// No temp files are left behind after the rename.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestFileTokenStore_SaveNilToken(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"))
	if err := store.Save(nil); err == nil {
		t.Error("Save(nil) should return error")
	}
}

func TestFileTokenStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := NewFileTokenStore(path)

	if err := store.Save(&AuthToken{AccessToken: "test-token", ExpiresAt: time.Now()}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Clear() did not remove token file")
	}

	// Clearing again is not an error.
	if err := store.Clear(); err != nil {
		t.Errorf("Clear() error = %v, want nil for non-existent file", err)
	}
}

func TestFileTokenStore_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := NewFileTokenStore(path)

	if err := store.Save(&AuthToken{AccessToken: "secret-token", ExpiresAt: time.Now()}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		t.Errorf("File permissions = %o, want 0600 (no group/other access)", mode)
	}
}

func TestMemoryTokenStore(t *testing.T) {
	store := NewMemoryTokenStore(nil)

	token, err := store.Load()
	if err != nil || token != nil {
		t.Fatalf("Load() = %v, %v; want nil, nil", token, err)
	}

	saved := &AuthToken{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now()}
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Mutating the caller's copy does not reach the store.
	saved.AccessToken = "mutated"
	loaded, _ := store.Load()
	if loaded.AccessToken != "a" {
		t.Errorf("AccessToken = %q, want %q", loaded.AccessToken, "a")
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if loaded, _ := store.Load(); loaded != nil {
		t.Errorf("Load() after Clear = %v, want nil", loaded)
	}
}

func TestAuthTokenValid(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		token *AuthToken
		want  bool
	}{
		{name: "nil token", token: nil, want: false},
		{name: "empty access token", token: &AuthToken{ExpiresAt: now.Add(time.Hour)}, want: false},
		{name: "expires in an hour", token: &AuthToken{AccessToken: "a", ExpiresAt: now.Add(time.Hour)}, want: true},
		{name: "expires in 301s", token: &AuthToken{AccessToken: "a", ExpiresAt: now.Add(301 * time.Second)}, want: true},
		{name: "expires in exactly 300s", token: &AuthToken{AccessToken: "a", ExpiresAt: now.Add(300 * time.Second)}, want: false},
		{name: "expires in 299s", token: &AuthToken{AccessToken: "a", ExpiresAt: now.Add(299 * time.Second)}, want: false},
		{name: "already expired", token: &AuthToken{AccessToken: "a", ExpiresAt: now.Add(-time.Minute)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.Valid(now); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateState(t *testing.T) {
	state1, err := generateState()
	if err != nil {
		t.Fatalf("generateState() error = %v", err)
	}
	if len(state1) != 32 {
		t.Errorf("generateState() length = %d, want 32", len(state1))
	}

	state2, err := generateState()
	if err != nil {
		t.Fatalf("generateState() error = %v", err)
	}
	if state1 == state2 {
		t.Error("generateState() returned same value twice")
	}
}
