package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/justestif/go-moodify/internal/mood"
)

// SQLite stores records in a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database at path (":memory:" works) and runs
// migrations.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "moodify.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" to one
	// database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

// DB returns the underlying handle.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) InsertMoodSelection(ctx context.Context, userID string, m mood.Mood, playlistID, title string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mood_selections (id, user_id, mood, playlist_id, title, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), userID, string(m), playlistID, title, time.Now().UTC())
	if err != nil {
		return writeFailed("inserting mood selection", err)
	}
	return nil
}

func (s *SQLite) ListMoodSelections(ctx context.Context, userID string, limit int) ([]MoodSelection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, mood, playlist_id, title, created_at
		FROM mood_selections
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying mood selections: %w", err)
	}
	defer rows.Close()

	var selections []MoodSelection
	for rows.Next() {
		var sel MoodSelection
		var m string
		if err := rows.Scan(&sel.ID, &sel.UserID, &m, &sel.PlaylistID, &sel.Title, &sel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning mood selection: %w", err)
		}
		sel.Mood = mood.Mood(m)
		selections = append(selections, sel)
	}
	return selections, rows.Err()
}

func (s *SQLite) SubmitResponses(ctx context.Context, userID string, responses []mood.Response) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return writeFailed("beginning transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, r := range responses {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO responses (user_id, question, answer, created_at) VALUES (?, ?, ?, ?)",
			userID, r.Question, r.Answer, now,
		); err != nil {
			return writeFailed("inserting response", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return writeFailed("committing responses", err)
	}
	return nil
}

func (s *SQLite) FetchLatestResponses(ctx context.Context, userID string, limit int) ([]StoredResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CAST(id AS TEXT), question, answer, created_at
		FROM responses
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, normalizeLimit(limit))
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
		return nil, err
	}

	reverse(out)
	return out, nil
}
