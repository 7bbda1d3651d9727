package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
)

// maxLikedPage is the largest page /me/tracks returns.
const maxLikedPage = 50

// SearchTrack returns the top match for title and artist.
// found is false when the search returns no tracks.
func (c *Client) SearchTrack(ctx context.Context, title, artist string) (track Track, found bool, err error) {
	result, err := c.api.Search(ctx, searchQuery(title, artist), spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return Track{}, false, fmt.Errorf("searching %q by %q: %w", title, artist, err)
	}
	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return Track{}, false, nil
	}
	return convertTrack(result.Tracks.Tracks[0]), true, nil
}

// LikedTrackIDs returns the IDs of the most recently saved tracks, one page
// of at most limit entries.
func (c *Client) LikedTrackIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > maxLikedPage {
		limit = maxLikedPage
	}

	page, err := c.api.CurrentUsersTracks(ctx, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetching liked songs: %w", err)
	}

	ids := make([]string, 0, len(page.Tracks))
	for _, saved := range page.Tracks {
		ids = append(ids, saved.ID.String())
	}
	return ids, nil
}

// searchQuery builds a field-filtered query. Double quotes in the inputs
// would end the quoted filter early, so they are dropped.
func searchQuery(title, artist string) string {
	clean := func(s string) string {
		return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
	}
	return fmt.Sprintf(`track:"%s" artist:"%s"`, clean(title), clean(artist))
}

// convertTrack reduces a search hit, joining artist names with ", ".
func convertTrack(full spotify.FullTrack) Track {
	artists := make([]string, len(full.Artists))
	for i, a := range full.Artists {
		artists[i] = a.Name
	}
	return Track{
		ID:     full.ID.String(),
		Name:   full.Name,
		Artist: strings.Join(artists, ", "),
	}
}
