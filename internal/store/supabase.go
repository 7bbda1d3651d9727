package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"

	"github.com/justestif/go-moodify/internal/logging"
	"github.com/justestif/go-moodify/internal/mood"
)

const (
	selectionsTable = "moodSelections"
	responsesTable  = "responses"
)

// Supabase talks to a Supabase project's PostgREST endpoint.
type Supabase struct {
	client *resty.Client
	logger *log.Logger
}

// SupabaseOption configures a Supabase gateway.
type SupabaseOption func(*Supabase)

// WithSupabaseLogger sets the logger.
func WithSupabaseLogger(l *log.Logger) SupabaseOption {
	return func(s *Supabase) {
		s.logger = logging.OrDiscard(l)
	}
}

// WithSupabaseTransport routes requests through rt, typically the
// rate-limited requester.
func WithSupabaseTransport(rt http.RoundTripper) SupabaseOption {
	return func(s *Supabase) {
		if rt != nil {
			// rt retries on its own; a client timeout would span every attempt.
			s.client.SetTransport(rt).SetTimeout(0)
		}
	}
}

// NewSupabase creates a gateway for the project at baseURL. The key is sent
// both as the apikey header and as the bearer token.
func NewSupabase(baseURL, key string, opts ...SupabaseOption) (*Supabase, error) {
	if baseURL == "" || key == "" {
		return nil, errors.New("supabase url and key are required")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+"/rest/v1").
		SetHeader("apikey", key).
		SetAuthToken(key).
		SetHeader("Accept", "application/json").
		SetTimeout(15 * time.Second)

	s := &Supabase{client: client, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close is a no-op; the gateway holds no connections of its own.
func (s *Supabase) Close() error { return nil }

type selectionRow struct {
	ID         any       `json:"id,omitempty"`
	UserID     string    `json:"user_id"`
	Mood       string    `json:"mood"`
	PlaylistID string    `json:"playlist_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
}

type responseRow struct {
	ID        any       `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

func (s *Supabase) InsertMoodSelection(ctx context.Context, userID string, m mood.Mood, playlistID, title string) error {
	row := selectionRow{UserID: userID, Mood: string(m), PlaylistID: playlistID, Title: title}
	if err := s.insert(ctx, selectionsTable, row); err != nil {
		return writeFailed("inserting mood selection", err)
	}
	s.logger.Debug("mood selection stored", "playlist", playlistID)
	return nil
}

func (s *Supabase) ListMoodSelections(ctx context.Context, userID string, limit int) ([]MoodSelection, error) {
	var rows []selectionRow
	if err := s.latest(ctx, selectionsTable, userID, limit, &rows); err != nil {
		return nil, fmt.Errorf("fetching mood selections: %w", err)
	}

	out := make([]MoodSelection, len(rows))
	for i, r := range rows {
		out[i] = MoodSelection{
			ID:         rowID(r.ID),
			UserID:     r.UserID,
			Mood:       mood.Mood(r.Mood),
			PlaylistID: r.PlaylistID,
			Title:      r.Title,
			CreatedAt:  r.CreatedAt,
		}
	}
	return out, nil
}

func (s *Supabase) SubmitResponses(ctx context.Context, userID string, responses []mood.Response) error {
	rows := make([]responseRow, len(responses))
	for i, r := range responses {
		rows[i] = responseRow{UserID: userID, Question: r.Question, Answer: r.Answer}
	}
	if err := s.insert(ctx, responsesTable, rows); err != nil {
		return writeFailed("inserting responses", err)
	}
	return nil
}

func (s *Supabase) FetchLatestResponses(ctx context.Context, userID string, limit int) ([]StoredResponse, error) {
	var rows []responseRow
	if err := s.latest(ctx, responsesTable, userID, limit, &rows); err != nil {
		return nil, fmt.Errorf("fetching responses: %w", err)
	}

	out := make([]StoredResponse, len(rows))
	for i, r := range rows {
		out[i] = StoredResponse{
			ID:        rowID(r.ID),
			Question:  r.Question,
			Answer:    r.Answer,
			CreatedAt: r.CreatedAt,
		}
	}
	reverse(out)
	return out, nil
}

func (s *Supabase) insert(ctx context.Context, table string, body any) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "return=minimal").
		SetBody(body).
		Post("/" + table)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (s *Supabase) latest(ctx context.Context, table, userID string, limit int, result any) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"select":  "*",
			"user_id": "eq." + userID,
			"order":   "created_at.desc,id.desc",
			"limit":   strconv.Itoa(normalizeLimit(limit)),
		}).
		SetResult(result).
		Get("/" + table)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// rowID renders PostgREST ids, which may be integers or UUIDs.
func rowID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	default:
		return fmt.Sprint(id)
	}
}
