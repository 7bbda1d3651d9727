// Package spotify wraps the Spotify Web API for the calls the playlist
// pipeline makes. Every request is authorized through a TokenProvider and
// sent through the rate-limited requester.
package spotify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-moodify/internal/auth"
)

// TokenProvider hands out a currently valid access token.
// *auth.Flow satisfies it.
type TokenProvider interface {
	EnsureValidToken(ctx context.Context) (*auth.AuthToken, error)
}

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api *spotify.Client
}

// Option configures the underlying API client.
type Option = spotify.ClientOption

// WithBaseURL points the client at a different API root. The URL must end
// with a slash, e.g. "http://127.0.0.1:9999/v1/".
func WithBaseURL(u string) Option {
	return spotify.WithBaseURL(u)
}

// New creates a Client whose requests carry a bearer token from tokens and
// go out through transport.
func New(tokens TokenProvider, transport http.RoundTripper, opts ...Option) *Client {
	httpClient := &http.Client{
		Transport: &bearerTransport{tokens: tokens, base: transport},
	}
	return &Client{api: spotify.New(httpClient, opts...)}
}

// CurrentProfile returns the signed-in user's profile.
func (c *Client) CurrentProfile(ctx context.Context) (*Profile, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	return &Profile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	}, nil
}

// UserID returns the current user's Spotify ID.
func (c *Client) UserID(ctx context.Context) (string, error) {
	p, err := c.CurrentProfile(ctx)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// bearerTransport sets the Authorization header from the token provider,
// refreshing the token first when needed.
type bearerTransport struct {
	tokens TokenProvider
	base   http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.tokens.EnsureValidToken(req.Context())
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}

	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token.AccessToken)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(authed)
}
