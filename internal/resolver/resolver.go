// Package resolver matches suggested songs to Spotify tracks and blends in
// the user's liked songs.
package resolver

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-moodify/internal/logging"
	"github.com/justestif/go-moodify/internal/mood"
	"github.com/justestif/go-moodify/internal/spotify"
)

const (
	// DefaultConcurrency bounds the number of searches in flight.
	DefaultConcurrency = 10

	// DefaultLikedLimit is how many liked songs are fetched.
	DefaultLikedLimit = 20
)

// ErrNoMatches is returned when no suggestion resolved to a track.
var ErrNoMatches = errors.New("no suggested track could be matched")

// Catalog abstracts the Spotify client for testing.
type Catalog interface {
	SearchTrack(ctx context.Context, title, artist string) (spotify.Track, bool, error)
	LikedTrackIDs(ctx context.Context, limit int) ([]string, error)
}

// Resolver looks suggestions up concurrently.
type Resolver struct {
	catalog     Catalog
	concurrency int
	likedLimit  int
	logger      *log.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConcurrency sets the number of concurrent searches.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLikedLimit sets how many liked songs FetchLikedTrackIDs asks for.
func WithLikedLimit(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.likedLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		r.logger = logging.OrDiscard(l)
	}
}

// New creates a Resolver.
func New(catalog Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:     catalog,
		concurrency: DefaultConcurrency,
		likedLimit:  DefaultLikedLimit,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveTracks searches for every suggestion, keeping only the top hit.
// A failed or empty search drops that suggestion; if nothing matches the
// result is ErrNoMatches. IDs come back in suggestion order without
// duplicates.
//
// When ctx is cancelled no further searches start and ctx.Err() is returned
// at once. Searches already sent are left to finish and their results are
// thrown away.
func (r *Resolver) ResolveTracks(ctx context.Context, suggestions []mood.Suggestion) ([]string, error) {
	if len(suggestions) == 0 {
		return nil, ErrNoMatches
	}

	// One slot per suggestion; each goroutine writes only its own.
	slots := make([]string, len(suggestions))
	searchCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, s := range suggestions {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				track, found, err := r.catalog.SearchTrack(searchCtx, s.Title, s.Artist)
				switch {
				case err != nil:
					r.logger.Warn("track search failed", "suggestion", s.String(), "err", err)
				case !found:
					r.logger.Debug("no match for suggestion", "suggestion", s.String())
				default:
					slots[i] = track.ID
				}
				return nil
			})
		}
		g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ids := Merge(slots, nil)
	if len(ids) == 0 {
		return nil, ErrNoMatches
	}
	r.logger.Info("tracks resolved", "matched", len(ids), "suggested", len(suggestions))
	return ids, nil
}

// FetchLikedTrackIDs returns the user's recently liked track IDs. Failure
// is logged and yields an empty list; liked songs are optional.
func (r *Resolver) FetchLikedTrackIDs(ctx context.Context) []string {
	ids, err := r.catalog.LikedTrackIDs(ctx, r.likedLimit)
	if err != nil {
		r.logger.Warn("could not fetch liked songs, continuing without them", "err", err)
		return []string{}
	}
	return ids
}

// Merge returns the union of the two lists: recommended first, then liked,
// in order, with empty IDs and duplicates removed.
func Merge(recommended, liked []string) []string {
	seen := make(map[string]struct{}, len(recommended)+len(liked))
	out := make([]string, 0, len(recommended)+len(liked))
	for _, list := range [][]string{recommended, liked} {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
