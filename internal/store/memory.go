package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-moodify/internal/mood"
)

// Memory is an in-process gateway. Data is lost on exit.
type Memory struct {
	mu         sync.Mutex
	now        func() time.Time
	selections []MoodSelection
	responses  map[string][]StoredResponse
	nextID     int
	// FailWrites makes every write return ErrWriteFailed.
	FailWrites error
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		now:       time.Now,
		responses: make(map[string][]StoredResponse),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) InsertMoodSelection(_ context.Context, userID string, md mood.Mood, playlistID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return writeFailed("inserting mood selection", m.FailWrites)
	}
	m.selections = append(m.selections, MoodSelection{
		ID:         uuid.NewString(),
		UserID:     userID,
		Mood:       md,
		PlaylistID: playlistID,
		Title:      title,
		CreatedAt:  m.now(),
	})
	return nil
}

func (m *Memory) ListMoodSelections(_ context.Context, userID string, limit int) ([]MoodSelection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit = normalizeLimit(limit)
	var out []MoodSelection
	for i := len(m.selections) - 1; i >= 0 && len(out) < limit; i-- {
		if m.selections[i].UserID == userID {
			out = append(out, m.selections[i])
		}
	}
	return out, nil
}

// Selections returns every stored selection in insertion order.
func (m *Memory) Selections() []MoodSelection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MoodSelection(nil), m.selections...)
}

func (m *Memory) SubmitResponses(_ context.Context, userID string, responses []mood.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return writeFailed("inserting responses", m.FailWrites)
	}
	now := m.now()
	for _, r := range responses {
		m.nextID++
		m.responses[userID] = append(m.responses[userID], StoredResponse{
			ID:        strconv.Itoa(m.nextID),
			Question:  r.Question,
			Answer:    r.Answer,
			CreatedAt: now,
		})
	}
	return nil
}

func (m *Memory) FetchLatestResponses(_ context.Context, userID string, limit int) ([]StoredResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.responses[userID]
	limit = normalizeLimit(limit)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]StoredResponse(nil), all...), nil
}
