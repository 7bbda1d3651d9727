package mood

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-moodify/internal/completion"
	"github.com/justestif/go-moodify/internal/logging"
)

const (
	classifyMaxTokens = 50
	titleMaxTokens    = 20

	// DefaultSuggestionCount is how many songs are requested per playlist.
	DefaultSuggestionCount = 10

	minTitleWords = 2
	maxTitleWords = 4
)

// Completer abstracts the completion client for testing.
type Completer interface {
	Complete(ctx context.Context, messages []completion.Message, maxTokens int) (string, error)
}

// Classifier talks to the completion model.
type Classifier struct {
	completer Completer
	logger    *log.Logger
}

// NewClassifier creates a Classifier. A nil logger discards output.
func NewClassifier(completer Completer, logger *log.Logger) *Classifier {
	return &Classifier{completer: completer, logger: logging.OrDiscard(logger)}
}

// Classify asks the model for the user's overall mood. The reply is
// scanned for mood names and the earliest one wins; a reply naming none
// yields ErrNoMoodDetected.
func (c *Classifier) Classify(ctx context.Context, responses []Response) (Mood, error) {
	if err := ValidateResponses(responses); err != nil {
		return "", err
	}

	text, err := c.complete(ctx, classifySystemPrompt, BuildPrompt(responses), classifyMaxTokens)
	if err != nil {
		return "", fmt.Errorf("classifying mood: %w", err)
	}

	m, ok := DetectMood(text)
	if !ok {
		c.logger.Warn("model reply named no mood", "reply", text)
		return "", fmt.Errorf("%w: %q", ErrNoMoodDetected, text)
	}
	c.logger.Debug("mood classified", "mood", m)
	return m, nil
}

// GenerateTitle asks for a playlist title for m. The reply is reduced to
// 2 to 4 words; an empty reply falls back to "<Mood> Vibes".
func (c *Classifier) GenerateTitle(ctx context.Context, m Mood) (string, error) {
	text, err := c.complete(ctx, titleSystemPrompt, titlePrompt(m), titleMaxTokens)
	if errors.Is(err, ErrDecodingFailed) {
		c.logger.Warn("empty title reply, using fallback", "mood", m)
		return FallbackTitle(m), nil
	}
	if err != nil {
		return "", fmt.Errorf("generating title: %w", err)
	}
	return CleanTitle(text, m), nil
}

// SuggestTracks asks for n songs matching m and parses the reply.
func (c *Classifier) SuggestTracks(ctx context.Context, m Mood, n int) ([]Suggestion, error) {
	if n <= 0 {
		n = DefaultSuggestionCount
	}
	maxTokens := max(150, 15*n)

	text, err := c.complete(ctx, suggestSystemPrompt, suggestPrompt(m, n), maxTokens)
	if err != nil {
		return nil, fmt.Errorf("suggesting tracks: %w", err)
	}

	suggestions, err := ParseSuggestions(text)
	if err != nil {
		return nil, err
	}
	if len(suggestions) > n {
		suggestions = suggestions[:n]
	}
	c.logger.Debug("tracks suggested", "mood", m, "count", len(suggestions))
	return suggestions, nil
}

// complete sends one system and one user message. Replies the client could
// not decode are reported as ErrDecodingFailed.
func (c *Classifier) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	text, err := c.completer.Complete(ctx, []completion.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, maxTokens)
	if errors.Is(err, completion.ErrEmptyChoices) || errors.Is(err, completion.ErrMalformedResponse) {
		return "", fmt.Errorf("%w: %w", ErrDecodingFailed, err)
	}
	return text, err
}

// FallbackTitle is used when the model gives no usable title.
func FallbackTitle(m Mood) string {
	return string(m) + " Vibes"
}

// CleanTitle normalizes a model-written title to 2 to 4 plain words.
func CleanTitle(text string, m Mood) string {
	line := firstLine(text)
	if i := strings.Index(line, ":"); i >= 0 && strings.EqualFold(strings.TrimSpace(line[:i]), "title") {
		line = line[i+1:]
	}

	words := strings.FieldsFunc(line, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(`"*_#`+"`“”", r)
	})
	for i, w := range words {
		words[i] = strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) && r != '\'' && r != '&'
		})
	}
	words = compact(words)

	switch {
	case len(words) == 0:
		return FallbackTitle(m)
	case len(words) < minTitleWords:
		return words[0] + " Vibes"
	case len(words) > maxTitleWords:
		words = words[:maxTitleWords]
	}
	return strings.Join(words, " ")
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func compact(words []string) []string {
	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
