// Package app wires configuration into the services the CLI and the HTTP
// API share.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-moodify/internal/auth"
	"github.com/justestif/go-moodify/internal/completion"
	"github.com/justestif/go-moodify/internal/config"
	"github.com/justestif/go-moodify/internal/logging"
	"github.com/justestif/go-moodify/internal/mood"
	"github.com/justestif/go-moodify/internal/pipeline"
	"github.com/justestif/go-moodify/internal/playlist"
	"github.com/justestif/go-moodify/internal/requester"
	"github.com/justestif/go-moodify/internal/resolver"
	"github.com/justestif/go-moodify/internal/spotify"
	"github.com/justestif/go-moodify/internal/store"
	"github.com/justestif/go-moodify/internal/web"
)

// App holds the long-lived collaborators built from a Config.
type App struct {
	cfg        *config.Config
	logger     *log.Logger
	requester  *requester.Requester
	classifier *mood.Classifier
	store      store.Gateway
	cleanup    pipeline.CleanupPolicy

	authOpts    []auth.Option
	spotifyOpts []spotify.Option
	httpClient  *http.Client
}

// Option configures an App.
type Option func(*App)

// WithAuthOptions appends options to every flow the App creates.
func WithAuthOptions(opts ...auth.Option) Option {
	return func(a *App) {
		a.authOpts = append(a.authOpts, opts...)
	}
}

// WithSpotifyOptions configures every Spotify client the App creates.
func WithSpotifyOptions(opts ...spotify.Option) Option {
	return func(a *App) {
		a.spotifyOpts = append(a.spotifyOpts, opts...)
	}
}

// WithHTTPClient sets the client the shared requester sends through.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		a.httpClient = c
	}
}

// New builds the requester, classifier and store for cfg.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger, opts ...Option) (*App, error) {
	logger = logging.OrDiscard(logger)

	cleanup, err := pipeline.ParseCleanupPolicy(cfg.Pipeline.Cleanup)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, cleanup: cleanup}
	for _, opt := range opts {
		opt(a)
	}
	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: cfg.Requester.Timeout}
	}

	a.requester = requester.New(
		requester.WithHTTPClient(a.httpClient),
		requester.WithMaxRetries(cfg.Requester.MaxRetries),
		requester.WithRetryDelay(cfg.Requester.RetryDelay),
		requester.WithLogger(logging.With(logger, "component", "requester")),
	)

	llm, err := completion.New(a.requester, cfg.Completion.APIKey,
		completion.WithBaseURL(cfg.Completion.BaseURL),
		completion.WithModel(cfg.Completion.Model),
		completion.WithTemperature(cfg.Completion.Temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("creating completion client: %w", err)
	}
	a.classifier = mood.NewClassifier(llm, logging.With(logger, "component", "classifier"))

	a.store, err = store.Open(ctx, cfg.Store, logging.With(logger, "component", "store"),
		store.WithSupabaseTransport(a.requester))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return a, nil
}

// Store returns the persistence gateway.
func (a *App) Store() store.Gateway {
	return a.store
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// NewFlow starts an OAuth flow whose token lives only in memory.
// It satisfies web.Backend.
func (a *App) NewFlow() (*auth.Flow, error) {
	return a.flow(auth.NewMemoryTokenStore(nil))
}

// NewCLIFlow starts an OAuth flow that persists its token on disk, at the
// configured path or the default location.
func (a *App) NewCLIFlow() (*auth.Flow, error) {
	var ts *auth.FileTokenStore
	if a.cfg.Auth.TokenPath != "" {
		ts = auth.NewFileTokenStore(a.cfg.Auth.TokenPath)
	} else {
		var err error
		if ts, err = auth.DefaultFileTokenStore(); err != nil {
			return nil, err
		}
	}
	return a.flow(ts)
}

func (a *App) flow(ts auth.TokenStore) (*auth.Flow, error) {
	// No client timeout here: the requester bounds each attempt, and an
	// outer deadline would cut its retries short.
	opts := []auth.Option{
		auth.WithStore(ts),
		auth.WithScopes(a.cfg.Spotify.Scopes...),
		auth.WithHTTPClient(&http.Client{Transport: a.requester}),
		auth.WithLogger(logging.With(a.logger, "component", "auth")),
	}
	return auth.NewFlow(a.cfg.Spotify.ClientID, a.cfg.Spotify.RedirectURI, append(opts, a.authOpts...)...)
}

// Services wires the per-user services for a signed-in flow.
// It satisfies web.Backend.
func (a *App) Services(flow *auth.Flow) (*web.Services, error) {
	orch, builder := a.Orchestrator(flow)
	return &web.Services{Generator: orch, Library: builder}, nil
}

// Orchestrator builds the playlist pipeline for the user behind flow.
func (a *App) Orchestrator(flow *auth.Flow) (*pipeline.Orchestrator, *playlist.Builder) {
	api := spotify.New(flow, a.requester, a.spotifyOpts...)
	builder := playlist.New(api, logging.With(a.logger, "component", "playlist"))
	tracks := resolver.New(api,
		resolver.WithConcurrency(a.cfg.Pipeline.Concurrency),
		resolver.WithLikedLimit(a.cfg.Pipeline.LikedLimit),
		resolver.WithLogger(logging.With(a.logger, "component", "resolver")),
	)

	orch := pipeline.New(flow, a.classifier, builder, tracks, a.store,
		pipeline.WithMinInterval(a.cfg.Pipeline.MinInterval),
		pipeline.WithIncludeLiked(a.cfg.Pipeline.IncludeLiked),
		pipeline.WithSuggestionCount(a.cfg.Pipeline.SuggestionCount),
		pipeline.WithCleanup(a.cleanup),
		pipeline.WithLogger(logging.With(a.logger, "component", "pipeline")),
	)
	return orch, builder
}
