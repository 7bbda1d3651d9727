package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-moodify/internal/auth"
	"github.com/justestif/go-moodify/internal/mood"
	"github.com/justestif/go-moodify/internal/pipeline"
	"github.com/justestif/go-moodify/internal/spotify"
	"github.com/justestif/go-moodify/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 50
	maxBodyBytes     = 1 << 20
)

// Generator runs the playlist pipeline for one user.
type Generator interface {
	Run(ctx context.Context, session string, responses []mood.Response) (*pipeline.PlaylistResult, error)
	RunLatest(ctx context.Context, session, userID string, limit int) (*pipeline.PlaylistResult, error)
	Forget(session string)
}

// Library reads the user's Spotify account.
type Library interface {
	OwnerID(ctx context.Context) (string, error)
	UserPlaylists(ctx context.Context, limit int) ([]spotify.PlaylistSummary, error)
}

// Services are the per-user collaborators built after login.
type Services struct {
	Generator Generator
	Library   Library
}

// Backend creates flows and per-user services.
type Backend interface {
	// NewFlow starts a fresh OAuth flow for one login attempt.
	NewFlow() (*auth.Flow, error)
	// Services wires the services for a user signed in through flow.
	Services(flow *auth.Flow) (*Services, error)
}

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	backend  Backend
	store    store.Gateway
	sessions *SessionStore
	logins   *pendingLogins
	tokens   *tokenIssuer
	logger   *log.Logger
}

type responsesRequest struct {
	Responses []mood.Response `json:"responses"`
}

type loginResponse struct {
	SessionToken string `json:"session_token"`
	UserID       string `json:"user_id"`
	ExpiresAt    string `json:"expires_at"`
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Login starts the Spotify PKCE flow (GET /auth/login). Browsers are
// redirected; ?format=json returns the URL instead.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	flow, err := h.backend.NewFlow()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	authURL, err := flow.Authorize()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	u, err := url.Parse(authURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.logins.put(u.Query().Get("state"), flow)

	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, map[string]string{"url": authURL})
		return
	}
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// Callback completes the login (GET /callback) and returns an API token.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	flow := h.logins.take(r.URL.Query().Get("state"))
	if flow == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unknown or expired login", auth.ErrExchangeFailed))
		return
	}

	if _, err := flow.CompleteRedirect(r.Context(), r.URL.String()); err != nil {
		h.logger.Warn("login failed", "err", err)
		status := http.StatusBadGateway
		if errors.Is(err, auth.ErrMissingCode) || r.URL.Query().Get("error") != "" {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	services, err := h.backend.Services(flow)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	userID, err := services.Library.OwnerID(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	session, err := h.sessions.Create(userID, flow, services)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	token, exp, err := h.tokens.issue(session)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.logger.Info("user signed in", "user", userID)
	writeJSON(w, http.StatusOK, loginResponse{
		SessionToken: token,
		UserID:       userID,
		ExpiresAt:    exp.Format(time.RFC3339),
	})
}

// Logout ends the session (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	session := SessionFrom(r.Context())
	if err := session.Flow.Logout(); err != nil {
		h.logger.Warn("clearing token on logout", "err", err)
	}
	session.Services.Generator.Forget(session.ID)
	h.sessions.Delete(session.ID)
	w.WriteHeader(http.StatusNoContent)
}

// CreatePlaylist runs the pipeline over the submitted answers (POST /playlists).
func (h *Handlers) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	session := SessionFrom(r.Context())

	var req responsesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := session.Services.Generator.Run(r.Context(), session.ID, req.Responses)
	if err != nil {
		h.renderRunError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// CreateFromLatest runs the pipeline over the latest stored answers
// (POST /playlists/latest?limit=N).
func (h *Handlers) CreateFromLatest(w http.ResponseWriter, r *http.Request) {
	session := SessionFrom(r.Context())

	limit, err := queryLimit(r, store.DefaultLatestLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := session.Services.Generator.RunLatest(r.Context(), session.ID, session.UserID, limit)
	if err != nil {
		h.renderRunError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// SubmitResponses stores questionnaire answers (POST /responses).
func (h *Handlers) SubmitResponses(w http.ResponseWriter, r *http.Request) {
	session := SessionFrom(r.Context())

	var req responsesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := mood.ValidateResponses(req.Responses); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.store.SubmitResponses(r.Context(), session.UserID, req.Responses); err != nil {
		h.logger.Error("storing responses", "user", session.UserID, "err", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"stored": len(req.Responses)})
}

// LatestResponses lists the latest stored answers (GET /responses/latest).
func (h *Handlers) LatestResponses(w http.ResponseWriter, r *http.Request) {
	session := SessionFrom(r.Context())

	limit, err := queryLimit(r, store.DefaultLatestLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	responses, err := h.store.FetchLatestResponses(r.Context(), session.UserID, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if responses == nil {
		responses = []store.StoredResponse{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

// Selections lists the user's generated playlists (GET /selections).
func (h *Handlers) Selections(w http.ResponseWriter, r *http.Request) {
	session := SessionFrom(r.Context())

	limit, err := queryLimit(r, defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	selections, err := h.store.ListMoodSelections(r.Context(), session.UserID, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if selections == nil {
		selections = []store.MoodSelection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"selections": selections})
}

// Playlists lists the user's Spotify playlists (GET /me/playlists).
func (h *Handlers) Playlists(w http.ResponseWriter, r *http.Request) {
	session := SessionFrom(r.Context())

	limit, err := queryLimit(r, defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	playlists, err := session.Services.Library.UserPlaylists(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if playlists == nil {
		playlists = []spotify.PlaylistSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (h *Handlers) renderRunError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if se, ok := pipeline.AsStageError(err); ok && se.PlaylistID != "" {
		h.logger.Warn("run left a playlist behind", "playlist", se.PlaylistID, "stage", se.Stage)
	}
	writeError(w, status, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

func queryLimit(r *http.Request, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", raw)
	}
	return min(n, maxListLimit), nil
}
