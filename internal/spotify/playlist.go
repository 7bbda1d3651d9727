package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

// MaxTracksPerRequest is Spotify's limit for one add-tracks call.
const MaxTracksPerRequest = 100

// ErrTooManyTracks is returned when more than MaxTracksPerRequest ids are
// passed to AddTracks.
var ErrTooManyTracks = errors.New("too many tracks for one request")

// CreatePlaylist creates a playlist owned by userID and returns its ID.
func (c *Client) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (string, error) {
	playlist, err := c.api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return "", fmt.Errorf("creating playlist: %w", err)
	}
	return playlist.ID.String(), nil
}

// AddTracks adds up to MaxTracksPerRequest tracks in a single request.
// Returns the playlist's new snapshot ID.
func (c *Client) AddTracks(ctx context.Context, playlistID string, trackIDs []string) (string, error) {
	if len(trackIDs) > MaxTracksPerRequest {
		return "", fmt.Errorf("%w: %d > %d", ErrTooManyTracks, len(trackIDs), MaxTracksPerRequest)
	}

	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}

	snapshot, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids...)
	if err != nil {
		return "", fmt.Errorf("adding tracks: %w", err)
	}
	return snapshot, nil
}

// UnfollowPlaylist removes the playlist from the user's library, which is
// how Spotify deletes a playlist the user owns.
func (c *Client) UnfollowPlaylist(ctx context.Context, playlistID string) error {
	if err := c.api.UnfollowPlaylist(ctx, spotify.ID(playlistID)); err != nil {
		return fmt.Errorf("unfollowing playlist: %w", err)
	}
	return nil
}

// UserPlaylists returns one page of the user's playlists.
func (c *Client) UserPlaylists(ctx context.Context, limit int) ([]PlaylistSummary, error) {
	page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing playlists: %w", err)
	}

	out := make([]PlaylistSummary, 0, len(page.Playlists))
	for _, p := range page.Playlists {
		out = append(out, PlaylistSummary{ID: p.ID.String(), Name: p.Name})
	}
	return out, nil
}
