package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/justestif/go-moodify/internal/auth"
	"github.com/justestif/go-moodify/internal/mood"
	"github.com/justestif/go-moodify/internal/pipeline"
	"github.com/justestif/go-moodify/internal/requester"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error      string         `json:"error"`
	Stage      pipeline.Stage `json:"stage,omitempty"`
	PlaylistID string         `json:"playlist_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Error: err.Error()}
	if se, ok := pipeline.AsStageError(err); ok {
		body.Stage = se.Stage
		body.PlaylistID = se.PlaylistID
	}
	writeJSON(w, status, body)
}

// statusFor maps an error from the services to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidSession), auth.IsAuthError(err):
		return http.StatusUnauthorized
	case errors.Is(err, mood.ErrIncompleteResponses):
		return http.StatusBadRequest
	case errors.Is(err, mood.ErrNoMoodDetected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, requester.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
