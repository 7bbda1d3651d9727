// Package playlist creates and fills the generated playlist.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-moodify/internal/logging"
	"github.com/justestif/go-moodify/internal/spotify"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 300
	MaxTracks            = spotify.MaxTracksPerRequest
)

var (
	// ErrProfileFailed is returned when the owner's profile cannot be read.
	ErrProfileFailed = errors.New("could not read user profile")

	// ErrCreateFailed is returned when the playlist cannot be created.
	ErrCreateFailed = errors.New("could not create playlist")

	// ErrTrackAdditionFailed is returned when tracks cannot be added.
	ErrTrackAdditionFailed = errors.New("could not add tracks to playlist")
)

// API abstracts the Spotify client for testing.
type API interface {
	UserID(ctx context.Context) (string, error)
	CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (string, error)
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) (string, error)
	UnfollowPlaylist(ctx context.Context, playlistID string) error
	UserPlaylists(ctx context.Context, limit int) ([]spotify.PlaylistSummary, error)
}

// Builder performs the playlist-side provider calls.
type Builder struct {
	api    API
	logger *log.Logger
}

// New creates a Builder. A nil logger discards output.
func New(api API, logger *log.Logger) *Builder {
	return &Builder{api: api, logger: logging.OrDiscard(logger)}
}

// OwnerID returns the ID of the user the playlist will belong to.
func (b *Builder) OwnerID(ctx context.Context) (string, error) {
	id, err := b.api.UserID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProfileFailed, err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty user id", ErrProfileFailed)
	}
	return id, nil
}

// CreatePlaylist creates a private playlist. The title is cut to 100
// characters and the description to 300 before sending.
func (b *Builder) CreatePlaylist(ctx context.Context, userID, title, description string) (string, error) {
	name := Truncate(title, MaxTitleLength)
	desc := Truncate(description, MaxDescriptionLength)

	id, err := b.api.CreatePlaylist(ctx, userID, name, desc, false)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}
	b.logger.Info("playlist created", "playlist", id, "name", name)
	return id, nil
}

// AddTracks adds trackIDs in one request. There is no partial success: any
// failure, or an empty or oversized list, is ErrTrackAdditionFailed.
func (b *Builder) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	switch {
	case len(trackIDs) == 0:
		return fmt.Errorf("%w: no tracks to add", ErrTrackAdditionFailed)
	case len(trackIDs) > MaxTracks:
		return fmt.Errorf("%w: %d tracks exceeds the limit of %d", ErrTrackAdditionFailed, len(trackIDs), MaxTracks)
	}

	if _, err := b.api.AddTracks(ctx, playlistID, trackIDs); err != nil {
		return fmt.Errorf("%w: %w", ErrTrackAdditionFailed, err)
	}
	b.logger.Info("tracks added", "playlist", playlistID, "count", len(trackIDs))
	return nil
}

// Discard removes a playlist created by a run that later failed.
func (b *Builder) Discard(ctx context.Context, playlistID string) error {
	return b.api.UnfollowPlaylist(ctx, playlistID)
}

// UserPlaylists lists the user's playlists.
func (b *Builder) UserPlaylists(ctx context.Context, limit int) ([]spotify.PlaylistSummary, error) {
	return b.api.UserPlaylists(ctx, limit)
}

// Truncate trims s and cuts it to at most n characters (runes).
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
