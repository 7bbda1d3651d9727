package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names a step of a run.
type Stage string

const (
	StageClassifying      Stage = "classifying"
	StageTitlingMood      Stage = "titling_mood"
	StageCreatingPlaylist Stage = "creating_playlist"
	StageResolvingTracks  Stage = "resolving_tracks"
	StageAddingTracks     Stage = "adding_tracks"
	StagePersisting       Stage = "persisting"
	StageDone             Stage = "done"
)

// StageError reports where a run stopped. PlaylistID is set when the
// playlist had already been created.
type StageError struct {
	Stage      Stage
	PlaylistID string
	Err        error
}

func (e *StageError) Error() string {
	if e.PlaylistID != "" {
		return fmt.Sprintf("%s (playlist %s): %v", e.Stage, e.PlaylistID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// AsStageError extracts a *StageError from err's chain.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	ok := errors.As(err, &se)
	return se, ok
}

// CleanupPolicy decides the fate of a playlist created by a failed run.
type CleanupPolicy int

const (
	// CleanupNone leaves the playlist in place; its ID is in the StageError.
	CleanupNone CleanupPolicy = iota
	// CleanupDiscard unfollows the playlist.
	CleanupDiscard
)

// ErrUnknownCleanup is returned by ParseCleanupPolicy.
var ErrUnknownCleanup = errors.New("unknown cleanup policy")

// ParseCleanupPolicy accepts "none" or "discard".
func ParseCleanupPolicy(s string) (CleanupPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CleanupNone, nil
	case "discard":
		return CleanupDiscard, nil
	default:
		return CleanupNone, fmt.Errorf("%w: %q", ErrUnknownCleanup, s)
	}
}

func (p CleanupPolicy) String() string {
	if p == CleanupDiscard {
		return "discard"
	}
	return "none"
}
