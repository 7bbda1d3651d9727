// Package pipeline turns questionnaire answers into a saved playlist.
//
// A run moves through fixed stages (classify, title, create, resolve, add,
// persist) and stops at the first failure, reporting the stage and any
// playlist already created through a *StageError.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/justestif/go-moodify/internal/auth"
	"github.com/justestif/go-moodify/internal/logging"
	"github.com/justestif/go-moodify/internal/mood"
	"github.com/justestif/go-moodify/internal/playlist"
	"github.com/justestif/go-moodify/internal/resolver"
	"github.com/justestif/go-moodify/internal/store"
)

const (
	// DefaultMinInterval is the minimum time between runs for one session.
	DefaultMinInterval = 120 * time.Second

	// DefaultSuggestionCount is how many songs the model is asked for.
	DefaultSuggestionCount = 10

	cleanupTimeout = 10 * time.Second
)

// TokenSource hands out a valid access token, refreshing when needed.
type TokenSource interface {
	EnsureValidToken(ctx context.Context) (*auth.AuthToken, error)
}

// Classifier is the completion-backed part of a run.
type Classifier interface {
	Classify(ctx context.Context, responses []mood.Response) (mood.Mood, error)
	GenerateTitle(ctx context.Context, m mood.Mood) (string, error)
	SuggestTracks(ctx context.Context, m mood.Mood, n int) ([]mood.Suggestion, error)
}

// Playlists creates and fills playlists.
type Playlists interface {
	OwnerID(ctx context.Context) (string, error)
	CreatePlaylist(ctx context.Context, userID, title, description string) (string, error)
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) error
	Discard(ctx context.Context, playlistID string) error
}

// Tracks resolves suggestions to track IDs.
type Tracks interface {
	ResolveTracks(ctx context.Context, suggestions []mood.Suggestion) ([]string, error)
	FetchLikedTrackIDs(ctx context.Context) []string
}

// PlaylistResult describes a finished run.
type PlaylistResult struct {
	PlaylistID string    `json:"playlist_id"`
	Title      string    `json:"title"`
	Mood       mood.Mood `json:"mood"`
	TrackCount int       `json:"track_count"`
}

// Orchestrator runs the stages in order.
type Orchestrator struct {
	tokens     TokenSource
	classifier Classifier
	playlists  Playlists
	tracks     Tracks
	store      store.Gateway
	logger     *log.Logger

	minInterval     time.Duration
	includeLiked    bool
	suggestionCount int
	cleanup         CleanupPolicy

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	flights  map[string]*runState
	runs     singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMinInterval sets the minimum time between runs for one session.
// Zero disables the guard.
func WithMinInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.minInterval = d
	}
}

// WithIncludeLiked blends the user's recently liked songs into the playlist.
func WithIncludeLiked(include bool) Option {
	return func(o *Orchestrator) {
		o.includeLiked = include
	}
}

// WithSuggestionCount sets how many songs to ask the model for.
func WithSuggestionCount(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.suggestionCount = n
		}
	}
}

// WithCleanup sets what happens to a playlist created by a failed run.
func WithCleanup(p CleanupPolicy) Option {
	return func(o *Orchestrator) {
		o.cleanup = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logging.OrDiscard(l)
	}
}

// New creates an Orchestrator.
func New(tokens TokenSource, classifier Classifier, playlists Playlists, tracks Tracks, gateway store.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tokens:          tokens,
		classifier:      classifier,
		playlists:       playlists,
		tracks:          tracks,
		store:           gateway,
		logger:          logging.Discard(),
		minInterval:     DefaultMinInterval,
		suggestionCount: DefaultSuggestionCount,
		cleanup:         CleanupNone,
		limiters:        make(map[string]*rate.Limiter),
		flights:         make(map[string]*runState),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run generates a playlist for the session's answers.
//
// Identical concurrent submissions from one session share a single run.
// Runs for a session closer together than the minimum interval are
// delayed, not rejected; cancelling ctx abandons the wait.
func (o *Orchestrator) Run(ctx context.Context, session string, responses []mood.Response) (*PlaylistResult, error) {
	if err := mood.ValidateResponses(responses); err != nil {
		return nil, &StageError{Stage: StageClassifying, Err: err}
	}

	key := session + ":" + fingerprint(responses)
	var own atomic.Pointer[runState]
	ch := o.runs.DoChan(key, func() (any, error) {
		r := o.startFlight(key, session)
		own.Store(r)
		defer o.endFlight(key, r)
		return o.guarded(ctx, session, responses, r)
	})

	select {
	case res := <-ch:
		return o.result(session, res)
	case <-ctx.Done():
		if own.Load() != nil {
			// The run shares ctx and reports its own stage once it stops.
			return o.result(session, <-ch)
		}
		select {
		case res := <-ch:
			return o.result(session, res)
		default:
		}
		stage, playlistID := StageClassifying, ""
		if r := o.flight(key); r != nil {
			stage, playlistID = r.snapshot()
		}
		return nil, &StageError{Stage: stage, PlaylistID: playlistID, Err: ctx.Err()}
	}
}

func (o *Orchestrator) result(session string, res singleflight.Result) (*PlaylistResult, error) {
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		o.logger.Debug("joined in-flight run", "session", session)
	}
	return res.Val.(*PlaylistResult), nil
}

func (o *Orchestrator) startFlight(key, session string) *runState {
	r := &runState{
		o:      o,
		logger: logging.With(o.logger, "run", uuid.NewString(), "session", session),
		stage:  StageClassifying,
	}
	o.mu.Lock()
	o.flights[key] = r
	o.mu.Unlock()
	return r
}

func (o *Orchestrator) endFlight(key string, r *runState) {
	o.mu.Lock()
	if o.flights[key] == r {
		delete(o.flights, key)
	}
	o.mu.Unlock()
}

// flight returns the state of the in-flight run for key, if any.
func (o *Orchestrator) flight(key string) *runState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flights[key]
}

// RunLatest runs the pipeline over the user's most recently stored answers.
func (o *Orchestrator) RunLatest(ctx context.Context, session, userID string, limit int) (*PlaylistResult, error) {
	stored, err := o.store.FetchLatestResponses(ctx, userID, limit)
	if err != nil {
		return nil, &StageError{Stage: StageClassifying, Err: fmt.Errorf("fetching latest responses: %w", err)}
	}
	return o.Run(ctx, session, store.Responses(stored))
}

func (o *Orchestrator) guarded(ctx context.Context, session string, responses []mood.Response, r *runState) (*PlaylistResult, error) {
	if lim := o.limiter(session); lim != nil {
		if lim.Tokens() < 1 {
			o.logger.Info("run deferred by minimum interval", "session", session)
		}
		if err := lim.Wait(ctx); err != nil {
			return nil, &StageError{Stage: StageClassifying, Err: err}
		}
	}
	return o.run(ctx, responses, r)
}

func (o *Orchestrator) limiter(session string) *rate.Limiter {
	if o.minInterval <= 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	// A full limiter is the same as a fresh one, so idle sessions are dropped.
	for k, lim := range o.limiters {
		if k != session && lim.Tokens() >= 1 {
			delete(o.limiters, k)
		}
	}

	lim, ok := o.limiters[session]
	if !ok {
		lim = rate.NewLimiter(rate.Every(o.minInterval), 1)
		o.limiters[session] = lim
	}
	return lim
}

// Forget drops the interval guard for session, for example after logout.
func (o *Orchestrator) Forget(session string) {
	o.mu.Lock()
	delete(o.limiters, session)
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, responses []mood.Response, r *runState) (*PlaylistResult, error) {
	logger := r.logger
	started := time.Now()

	r.enter(StageClassifying)
	if err := ctx.Err(); err != nil {
		return nil, r.fail(ctx, err)
	}
	m, err := o.classifier.Classify(ctx, responses)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	logger.Info("mood classified", "mood", m)

	r.enter(StageTitlingMood)
	if err := ctx.Err(); err != nil {
		return nil, r.fail(ctx, err)
	}
	title, err := o.classifier.GenerateTitle(ctx, m)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	r.enter(StageCreatingPlaylist)
	if err := o.ready(ctx); err != nil {
		return nil, r.fail(ctx, err)
	}
	owner, err := o.playlists.OwnerID(ctx)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	title = playlist.Truncate(title, playlist.MaxTitleLength)
	playlistID, err := o.playlists.CreatePlaylist(ctx, owner, title, describe(m))
	r.created(playlistID)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	r.enter(StageResolvingTracks)
	if err := o.ready(ctx); err != nil {
		return nil, r.fail(ctx, err)
	}
	suggestions, err := o.classifier.SuggestTracks(ctx, m, o.suggestionCount)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	ids, err := o.tracks.ResolveTracks(ctx, suggestions)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	if o.includeLiked {
		ids = resolver.Merge(ids, o.tracks.FetchLikedTrackIDs(ctx))
	}
	if len(ids) > playlist.MaxTracks {
		ids = ids[:playlist.MaxTracks]
	}

	r.enter(StageAddingTracks)
	if err := o.ready(ctx); err != nil {
		return nil, r.fail(ctx, err)
	}
	if err := o.playlists.AddTracks(ctx, r.playlistID, ids); err != nil {
		return nil, r.fail(ctx, err)
	}

	r.enter(StagePersisting)
	if err := ctx.Err(); err != nil {
		return nil, r.fail(ctx, err)
	}
	if err := o.store.InsertMoodSelection(ctx, owner, m, r.playlistID, title); err != nil {
		return nil, r.fail(ctx, err)
	}

	r.enter(StageDone)
	logger.Info("playlist ready",
		"playlist", r.playlistID,
		"title", title,
		"tracks", len(ids),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return &PlaylistResult{
		PlaylistID: r.playlistID,
		Title:      title,
		Mood:       m,
		TrackCount: len(ids),
	}, nil
}

// ready checks for cancellation and makes sure a usable token exists before
// a provider call.
func (o *Orchestrator) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := o.tokens.EnsureValidToken(ctx)
	return err
}

// runState tracks the current stage and created playlist of one run.
// The run goroutine writes under mu; callers that gave up read a snapshot.
type runState struct {
	o      *Orchestrator
	logger *log.Logger

	mu         sync.Mutex
	stage      Stage
	playlistID string
}

func (r *runState) enter(s Stage) {
	r.mu.Lock()
	r.stage = s
	r.mu.Unlock()
	r.logger.Debug("stage", "stage", s)
}

func (r *runState) created(playlistID string) {
	if playlistID == "" {
		return
	}
	r.mu.Lock()
	r.playlistID = playlistID
	r.mu.Unlock()
}

func (r *runState) snapshot() (Stage, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage, r.playlistID
}

func (r *runState) fail(ctx context.Context, err error) error {
	r.logger.Error("run failed", "stage", r.stage, "playlist", r.playlistID, "err", err)

	// A playlist that already has its tracks is kept even if persisting fails.
	if r.playlistID != "" && r.stage != StagePersisting && r.o.cleanup == CleanupDiscard {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if cerr := r.o.playlists.Discard(cctx, r.playlistID); cerr != nil {
			r.logger.Warn("could not discard playlist", "playlist", r.playlistID, "err", cerr)
		} else {
			r.logger.Info("discarded playlist from failed run", "playlist", r.playlistID)
		}
	}

	return &StageError{Stage: r.stage, PlaylistID: r.playlistID, Err: err}
}

func describe(m mood.Mood) string {
	return fmt.Sprintf("A %s playlist made by Moodify from your mood check-in.", strings.ToLower(string(m)))
}

// fingerprint identifies a submission by its content.
func fingerprint(responses []mood.Response) string {
	h := sha256.New()
	for _, r := range responses {
		h.Write([]byte(r.Question))
		h.Write([]byte{0})
		h.Write([]byte(r.Answer))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
