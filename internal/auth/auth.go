package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/justestif/go-moodify/internal/logging"
)

// PendingTTL bounds how long an issued authorization URL stays redeemable.
const PendingTTL = 10 * time.Minute

var (
	// ErrMissingClientID is returned when the flow is built without a client id.
	ErrMissingClientID = errors.New("missing Spotify client id")

	// ErrMissingCode is returned when the redirect carries no authorization code.
	ErrMissingCode = errors.New("authorization code missing from redirect")

	// ErrNoRefreshToken is returned when a refresh is needed but no refresh token is held.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrExchangeFailed is returned when the token endpoint rejects an exchange or refresh.
	ErrExchangeFailed = errors.New("token exchange failed")
)

// IsAuthError reports whether err means the user has to authenticate again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingCode) ||
		errors.Is(err, ErrNoRefreshToken) ||
		errors.Is(err, ErrExchangeFailed)
}

// DefaultScopes are requested when none are configured.
var DefaultScopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopePlaylistReadPrivate,
}

// State is the position of the flow in its lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthorizing
	StateExchanging
	StateAuthenticated
	StateExpired
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizing:
		return "authorizing"
	case StateExchanging:
		return "exchanging"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type pendingAuth struct {
	verifier  string
	createdAt time.Time
}

// Flow runs the authorization-code-with-PKCE flow and owns the current
// AuthToken. It is safe for concurrent use; at most one refresh request is
// in flight at any time.
type Flow struct {
	config     *oauth2.Config
	store      TokenStore
	httpClient *http.Client
	logger     *log.Logger
	now        func() time.Time

	mu      sync.Mutex
	token   *AuthToken
	state   State
	gen     uint64
	pending map[string]pendingAuth

	refreshes singleflight.Group
}

// Option configures a Flow.
type Option func(*Flow)

// WithStore sets the token store. Defaults to an in-memory store.
func WithStore(s TokenStore) Option {
	return func(f *Flow) {
		if s != nil {
			f.store = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(f *Flow) {
		f.logger = logging.OrDiscard(l)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) {
		f.httpClient = c
	}
}

// WithEndpoint overrides the authorize and token URLs.
func WithEndpoint(authURL, tokenURL string) Option {
	return func(f *Flow) {
		f.config.Endpoint.AuthURL = authURL
		f.config.Endpoint.TokenURL = tokenURL
	}
}

// WithScopes overrides the requested scopes.
func WithScopes(scopes ...string) Option {
	return func(f *Flow) {
		if len(scopes) > 0 {
			f.config.Scopes = scopes
		}
	}
}

// NewFlow creates a Flow for a public client and loads any stored token.
func NewFlow(clientID, redirectURL string, opts ...Option) (*Flow, error) {
	if clientID == "" {
		return nil, ErrMissingClientID
	}

	f := &Flow{
		config: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Scopes:      DefaultScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyauth.AuthURL,
				TokenURL:  spotifyauth.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:   NewMemoryTokenStore(nil),
		logger:  logging.Discard(),
		now:     time.Now,
		pending: make(map[string]pendingAuth),
	}
	for _, opt := range opts {
		opt(f)
	}

	token, err := f.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading stored token: %w", err)
	}
	if token != nil && token.AccessToken != "" {
		f.token = token
		f.state = StateAuthenticated
	}
	return f, nil
}

// Authorize starts a new authorization and returns the URL the user must
// open. The PKCE verifier stays in memory, keyed by the URL's state value.
func (f *Flow) Authorize() (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	f.mu.Lock()
	now := f.now()
	for k, p := range f.pending {
		if now.Sub(p.createdAt) > PendingTTL {
			delete(f.pending, k)
		}
	}
	f.pending[state] = pendingAuth{verifier: verifier, createdAt: now}
	f.state = StateAuthorizing
	f.mu.Unlock()

	return f.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// CompleteRedirect finishes an authorization from the full redirect URL the
// provider sent the user back to. On success the token is stored and returned.
func (f *Flow) CompleteRedirect(ctx context.Context, redirectURL string) (*AuthToken, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing redirect: %w", ErrExchangeFailed, err)
	}
	q := u.Query()

	if e := q.Get("error"); e != "" {
		f.dropPending(q.Get("state"))
		return nil, fmt.Errorf("%w: provider returned %q", ErrExchangeFailed, e)
	}

	code := q.Get("code")
	if code == "" {
		return nil, ErrMissingCode
	}

	f.mu.Lock()
	p, ok := f.pending[q.Get("state")]
	delete(f.pending, q.Get("state"))
	if !ok || f.now().Sub(p.createdAt) > PendingTTL {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: unknown or expired state", ErrExchangeFailed)
	}
	f.state = StateExchanging
	f.mu.Unlock()

	tok, err := f.config.Exchange(f.clientContext(ctx), code, oauth2.VerifierOption(p.verifier))
	if err != nil {
		f.settle()
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	token, err := fromOAuth2(tok, "")
	if err != nil {
		f.settle()
		return nil, err
	}

	f.install(token)
	f.logger.Info("authorization complete", "token", logging.Redact(token.AccessToken), "expires", token.ExpiresAt)
	return token.clone(), nil
}

// Refresh trades the stored refresh token for a new access token.
// On failure the stored token is cleared and a new Authorize is needed.
func (f *Flow) Refresh(ctx context.Context) (*AuthToken, error) {
	f.mu.Lock()
	gen := f.gen
	f.mu.Unlock()
	return f.refresh(ctx, gen)
}

// EnsureValidToken returns the current token if it is valid, refreshing it
// first when it is not. Every authenticated provider call goes through here.
func (f *Flow) EnsureValidToken(ctx context.Context) (*AuthToken, error) {
	f.mu.Lock()
	token := f.token
	gen := f.gen
	valid := token.Valid(f.now())
	f.mu.Unlock()

	if valid {
		return token.clone(), nil
	}
	return f.refresh(ctx, gen)
}

// refresh joins or starts the single in-flight refresh. seen is the token
// generation the caller observed; if a refresh has landed since then, its
// result is reused instead of hitting the endpoint again.
func (f *Flow) refresh(ctx context.Context, seen uint64) (*AuthToken, error) {
	ch := f.refreshes.DoChan("refresh", func() (any, error) {
		f.mu.Lock()
		if f.gen != seen && f.token.Valid(f.now()) {
			token := f.token
			f.mu.Unlock()
			return token, nil
		}
		current := f.token
		if !current.Renewable() {
			f.mu.Unlock()
			return nil, ErrNoRefreshToken
		}
		f.state = StateRefreshing
		f.mu.Unlock()

		// Joined callers may give up; the refresh itself must still land.
		rctx := f.clientContext(context.WithoutCancel(ctx))
		src := f.config.TokenSource(rctx, &oauth2.Token{RefreshToken: current.RefreshToken})
		tok, err := src.Token()
		if err != nil {
			f.logger.Warn("token refresh failed, clearing stored token", "err", err)
			f.reset()
			return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
		}

		token, err := fromOAuth2(tok, current.RefreshToken)
		if err != nil {
			f.reset()
			return nil, err
		}

		f.install(token)
		f.logger.Debug("token refreshed", "token", logging.Redact(token.AccessToken), "expires", token.ExpiresAt)
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*AuthToken).clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsValid reports whether the current token is usable right now.
func (f *Flow) IsValid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token.Valid(f.now())
}

// State reports the lifecycle state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateAuthenticated && !f.token.Valid(f.now()) {
		return StateExpired
	}
	return f.state
}

// Token returns a copy of the current token, or nil.
func (f *Flow) Token() *AuthToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token.clone()
}

// Logout forgets the current token and clears the store.
func (f *Flow) Logout() error {
	f.mu.Lock()
	f.token = nil
	f.gen++
	f.state = StateUnauthenticated
	f.mu.Unlock()
	return f.store.Clear()
}

func (f *Flow) install(token *AuthToken) {
	f.mu.Lock()
	f.token = token
	f.gen++
	f.state = StateAuthenticated
	f.mu.Unlock()

	if err := f.store.Save(token); err != nil {
		// The token is still usable for this process.
		f.logger.Warn("failed to persist token", "err", err)
	}
}

func (f *Flow) reset() {
	f.mu.Lock()
	f.token = nil
	f.gen++
	f.state = StateUnauthenticated
	f.mu.Unlock()

	if err := f.store.Clear(); err != nil {
		f.logger.Warn("failed to clear stored token", "err", err)
	}
}

// settle moves the flow out of Exchanging after a failed exchange.
func (f *Flow) settle() {
	f.mu.Lock()
	f.settleLocked()
	f.mu.Unlock()
}

func (f *Flow) settleLocked() {
	if f.token != nil {
		f.state = StateAuthenticated
		return
	}
	f.state = StateUnauthenticated
}

func (f *Flow) dropPending(state string) {
	f.mu.Lock()
	delete(f.pending, state)
	f.settleLocked()
	f.mu.Unlock()
}

func (f *Flow) clientContext(ctx context.Context) context.Context {
	if f.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

// fromOAuth2 converts a token endpoint response. previousRefresh is kept
// when the response does not rotate the refresh token.
func fromOAuth2(tok *oauth2.Token, previousRefresh string) (*AuthToken, error) {
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access token", ErrExchangeFailed)
	}
	if tok.Expiry.IsZero() {
		return nil, fmt.Errorf("%w: response has no expiry", ErrExchangeFailed)
	}
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	return &AuthToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// generateState creates a random state string for OAuth.
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
