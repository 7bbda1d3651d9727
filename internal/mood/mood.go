// Package mood turns questionnaire answers into one of a fixed set of moods
// and asks the completion model for titles and track suggestions.
package mood

import (
	"errors"
	"fmt"
	"strings"
)

// Mood is one of the five supported moods.
type Mood string

const (
	Happy     Mood = "Happy"
	Sad       Mood = "Sad"
	Relaxed   Mood = "Relaxed"
	Energetic Mood = "Energetic"
	Sleepy    Mood = "Sleepy"
)

var allMoods = []Mood{Happy, Sad, Relaxed, Energetic, Sleepy}

var (
	// ErrNoMoodDetected is returned when the model's reply names no known mood.
	ErrNoMoodDetected = errors.New("no mood detected in model reply")

	// ErrDecodingFailed is returned when a model reply cannot be used at all.
	ErrDecodingFailed = errors.New("could not decode model reply")

	// ErrIncompleteResponses is returned for an empty questionnaire or a blank answer.
	ErrIncompleteResponses = errors.New("questionnaire responses are incomplete")

	// ErrUnknownMood is returned by ParseMood for names outside the set.
	ErrUnknownMood = errors.New("unknown mood")
)

// Moods returns the supported moods in prompt order.
func Moods() []Mood {
	out := make([]Mood, len(allMoods))
	copy(out, allMoods)
	return out
}

func (m Mood) String() string { return string(m) }

// Valid reports whether m is one of the supported moods.
func (m Mood) Valid() bool {
	for _, known := range allMoods {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMood matches a mood name case-insensitively.
func ParseMood(s string) (Mood, error) {
	s = strings.TrimSpace(s)
	for _, m := range allMoods {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMood, s)
}

// DetectMood finds the mood named earliest in text, ignoring case.
func DetectMood(text string) (Mood, bool) {
	lower := strings.ToLower(text)
	best, bestAt := Mood(""), -1
	for _, m := range allMoods {
		at := strings.Index(lower, strings.ToLower(string(m)))
		if at >= 0 && (bestAt < 0 || at < bestAt) {
			best, bestAt = m, at
		}
	}
	return best, bestAt >= 0
}

// Response is one answered questionnaire statement.
type Response struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ValidateResponses rejects an empty questionnaire and blank answers.
func ValidateResponses(responses []Response) error {
	if len(responses) == 0 {
		return fmt.Errorf("%w: no responses", ErrIncompleteResponses)
	}
	for i, r := range responses {
		if strings.TrimSpace(r.Answer) == "" {
			return fmt.Errorf("%w: statement %d has no answer", ErrIncompleteResponses, i+1)
		}
	}
	return nil
}
