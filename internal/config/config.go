// Package config loads Moodify configuration from a TOML file, a .env file
// and the process environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed moodify.example.toml
var exampleConf []byte

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "moodify.toml"

var (
	// ErrMissingCredentials is returned by Validate when a required secret is empty.
	ErrMissingCredentials = errors.New("missing required credentials")

	// ErrInvalidConfig is returned by Validate for out-of-range values.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the full application configuration.
type Config struct {
	Spotify    SpotifyConfig    `toml:"spotify"`
	Completion CompletionConfig `toml:"completion"`
	Requester  RequesterConfig  `toml:"requester"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Store      StoreConfig      `toml:"store"`
	Server     ServerConfig     `toml:"server"`
	Auth       AuthConfig       `toml:"auth"`
	Log        LogConfig        `toml:"log"`
}

// SpotifyConfig holds the public-client OAuth settings. PKCE needs no secret.
type SpotifyConfig struct {
	ClientID    string   `toml:"client_id"`
	RedirectURI string   `toml:"redirect_uri"`
	Scopes      []string `toml:"scopes"`
}

// CompletionConfig points at an OpenAI-compatible chat completion endpoint.
type CompletionConfig struct {
	BaseURL     string  `toml:"base_url"`
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
}

// RequesterConfig controls retry behaviour on 429 responses.
type RequesterConfig struct {
	MaxRetries int           `toml:"max_retries"`
	RetryDelay time.Duration `toml:"retry_delay"`
	Timeout    time.Duration `toml:"timeout"`
}

// PipelineConfig tunes the playlist orchestrator.
type PipelineConfig struct {
	MinInterval     time.Duration `toml:"min_interval"`
	IncludeLiked    bool          `toml:"include_liked"`
	LikedLimit      int           `toml:"liked_limit"`
	SuggestionCount int           `toml:"suggestion_count"`
	Concurrency     int           `toml:"concurrency"`
	Cleanup         string        `toml:"cleanup"`
}

// StoreConfig selects and configures the persistence gateway.
type StoreConfig struct {
	Driver      string `toml:"driver"`
	DatabaseURL string `toml:"database_url"`
	SQLitePath  string `toml:"sqlite_path"`
	SupabaseURL string `toml:"supabase_url"`
	SupabaseKey string `toml:"supabase_key"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr       string        `toml:"addr"`
	JWTSecret  string        `toml:"jwt_secret"`
	SessionTTL time.Duration `toml:"session_ttl"`
}

// AuthConfig holds token persistence settings.
type AuthConfig struct {
	TokenPath string `toml:"token_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns the configuration described by the embedded example file.
func DefaultConfig() *Config {
	var cfg Config
	if err := toml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("parsing embedded default config: %v", err))
	}
	return &cfg
}

// LoadConfig reads the TOML file at path on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Load builds the effective configuration: defaults, then the TOML file at
// path if it exists, then variables from a .env file in the working
// directory, then the process environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := LoadConfig(path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides values that are set in the environment.
func (c *Config) ApplyEnv() {
	c.Spotify.ClientID = getEnv("SPOTIFY_ID", c.Spotify.ClientID)
	c.Spotify.RedirectURI = getEnv("SPOTIFY_REDIRECT_URI", c.Spotify.RedirectURI)
	c.Completion.APIKey = getEnv("OPENAI_API_KEY", c.Completion.APIKey)
	c.Completion.BaseURL = getEnv("OPENAI_BASE_URL", c.Completion.BaseURL)
	c.Store.Driver = getEnv("MOODIFY_STORE", c.Store.Driver)
	c.Store.DatabaseURL = getEnv("DATABASE_URL", c.Store.DatabaseURL)
	c.Store.SupabaseURL = getEnv("SUPABASE_URL", c.Store.SupabaseURL)
	c.Store.SupabaseKey = getEnv("SUPABASE_KEY", c.Store.SupabaseKey)
	c.Server.JWTSecret = getEnv("MOODIFY_JWT_SECRET", c.Server.JWTSecret)
	c.Server.Addr = getEnv("MOODIFY_ADDR", c.Server.Addr)
	c.Log.Level = getEnv("MOODIFY_LOG_LEVEL", c.Log.Level)
}

// Validate reports the first missing or invalid setting.
// Server settings are checked only when forServer is true.
func (c *Config) Validate(forServer bool) error {
	var missing []string
	if c.Spotify.ClientID == "" {
		missing = append(missing, "spotify.client_id (SPOTIFY_ID)")
	}
	if c.Completion.APIKey == "" {
		missing = append(missing, "completion.api_key (OPENAI_API_KEY)")
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url (DATABASE_URL)")
		}
	case "supabase":
		if c.Store.SupabaseURL == "" || c.Store.SupabaseKey == "" {
			missing = append(missing, "store.supabase_url/supabase_key (SUPABASE_URL, SUPABASE_KEY)")
		}
	case "sqlite", "memory":
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	if forServer && c.Server.JWTSecret == "" {
		missing = append(missing, "server.jwt_secret (MOODIFY_JWT_SECRET)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	if c.Requester.MaxRetries < 0 {
		return fmt.Errorf("%w: requester.max_retries must not be negative", ErrInvalidConfig)
	}
	if c.Pipeline.Cleanup != "none" && c.Pipeline.Cleanup != "discard" {
		return fmt.Errorf("%w: pipeline.cleanup must be none or discard", ErrInvalidConfig)
	}
	return nil
}

// CreateConfigFile writes the example configuration to path.
// It refuses to overwrite an existing file.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
