package store

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/go-moodify/internal/mood"
)

//go:embed sql/postgres_schema.sql
var postgresSchema string

// Postgres stores records in PostgreSQL through a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, verifies the connection and ensures the schema.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(postgresSchema) {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w\nStatement: %s", err, stmt)
		}
	}
	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// InsertMoodSelection inserts a new selection with a generated id.
func (p *Postgres) InsertMoodSelection(ctx context.Context, userID string, m mood.Mood, playlistID, title string) error {
	query := `
		INSERT INTO mood_selections (id, user_id, mood, playlist_id, title, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := p.pool.Exec(ctx, query,
		uuid.NewString(),
		userID,
		string(m),
		playlistID,
		title,
		time.Now().UTC(),
	)
	if err != nil {
		return writeFailed("inserting mood selection", err)
	}
	return nil
}

// ListMoodSelections returns the user's most recent selections.
func (p *Postgres) ListMoodSelections(ctx context.Context, userID string, limit int) ([]MoodSelection, error) {
	query := `
		SELECT id::text, user_id, mood, playlist_id, title, created_at
		FROM mood_selections
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying mood selections: %w", err)
	}
	defer rows.Close()

	var selections []MoodSelection
	for rows.Next() {
		var s MoodSelection
		var m string
		if err := rows.Scan(&s.ID, &s.UserID, &m, &s.PlaylistID, &s.Title, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning mood selection: %w", err)
		}
		s.Mood = mood.Mood(m)
		selections = append(selections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mood selections: %w", err)
	}
	return selections, nil
}

// SubmitResponses inserts all responses in one transaction.
func (p *Postgres) SubmitResponses(ctx context.Context, userID string, responses []mood.Response) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return writeFailed("beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO responses (user_id, question, answer, created_at)
		VALUES ($1, $2, $3, $4)
	`
	now := time.Now().UTC()
	for _, r := range responses {
		if _, err := tx.Exec(ctx, query, userID, r.Question, r.Answer, now); err != nil {
			return writeFailed("inserting response", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return writeFailed("committing responses", err)
	}
	return nil
}

// FetchLatestResponses returns the user's most recent answers.
func (p *Postgres) FetchLatestResponses(ctx context.Context, userID string, limit int) ([]StoredResponse, error) {
	query := `
		SELECT id::text, question, answer, created_at
		FROM responses
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying responses: %w", err)
	}
	defer rows.Close()

	var out []StoredResponse
	for rows.Next() {
		var r StoredResponse
		if err := rows.Scan(&r.ID, &r.Question, &r.Answer, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning response: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating responses: %w", err)
	}

	reverse(out)
	return out, nil
}

// splitStatements breaks a schema file into statements, dropping comments.
func splitStatements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if idx := strings.Index(line, "--"); idx >= 0 {
				line = line[:idx]
			}
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return out
}
