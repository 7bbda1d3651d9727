// Package store persists questionnaire responses and mood selections.
//
// Four gateways implement the same interface: Postgres (pgx), SQLite,
// a Supabase PostgREST client and an in-memory store for tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-moodify/internal/config"
	"github.com/justestif/go-moodify/internal/logging"
	"github.com/justestif/go-moodify/internal/mood"
)

// Common errors.
var (
	// ErrWriteFailed is returned when a record could not be written.
	ErrWriteFailed = errors.New("store write failed")

	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// DefaultLatestLimit is used when a non-positive limit is passed to
// FetchLatestResponses or ListMoodSelections.
const DefaultLatestLimit = 10

// MoodSelection is one generated playlist, recorded after the run succeeds.
type MoodSelection struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Mood       mood.Mood `json:"mood"`
	PlaylistID string    `json:"playlist_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
}

// StoredResponse is a persisted questionnaire answer.
type StoredResponse struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Response converts the record to the value the classifier consumes.
func (r StoredResponse) Response() mood.Response {
	return mood.Response{Question: r.Question, Answer: r.Answer}
}

// Responses converts stored records, keeping their order.
func Responses(stored []StoredResponse) []mood.Response {
	out := make([]mood.Response, len(stored))
	for i, r := range stored {
		out[i] = r.Response()
	}
	return out
}

// Gateway is the persistence boundary used by the pipeline and the API.
type Gateway interface {
	// InsertMoodSelection appends a selection record.
	InsertMoodSelection(ctx context.Context, userID string, m mood.Mood, playlistID, title string) error

	// ListMoodSelections returns the user's selections, newest first.
	ListMoodSelections(ctx context.Context, userID string, limit int) ([]MoodSelection, error)

	// SubmitResponses stores one questionnaire submission.
	SubmitResponses(ctx context.Context, userID string, responses []mood.Response) error

	// FetchLatestResponses returns up to limit of the user's most recent
	// answers in the order they were submitted.
	FetchLatestResponses(ctx context.Context, userID string, limit int) ([]StoredResponse, error)

	Close() error
}

// Open builds the gateway named by cfg.Driver. Supabase options are ignored
// by the other drivers.
func Open(ctx context.Context, cfg config.StoreConfig, logger *log.Logger, supabaseOpts ...SupabaseOption) (Gateway, error) {
	var (
		g   Gateway
		err error
	)
	switch cfg.Driver {
	case "postgres":
		g, err = NewPostgres(ctx, cfg.DatabaseURL)
	case "sqlite", "":
		g, err = NewSQLite(cfg.SQLitePath)
	case "supabase":
		g, err = NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, append([]SupabaseOption{WithSupabaseLogger(logger)}, supabaseOpts...)...)
	case "memory":
		g = NewMemory()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	logging.OrDiscard(logger).Info("store opened", "driver", cfg.Driver)
	return g, nil
}

func writeFailed(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrWriteFailed, what, err)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLatestLimit
	}
	return limit
}

// reverse puts newest-first query results back into submission order.
func reverse(rs []StoredResponse) {
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
}
