// Package web provides the HTTP API for Moodify.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/justestif/go-moodify/internal/auth"
)

// DefaultSessionTTL is how long a signed-in session lasts.
const DefaultSessionTTL = 24 * time.Hour

// ErrInvalidSession is returned for missing, expired or forged session tokens.
var ErrInvalidSession = errors.New("invalid session")

// Session is one signed-in Spotify user with their own token flow.
type Session struct {
	ID        string
	UserID    string
	Flow      *auth.Flow
	Services  *Services
	CreatedAt time.Time
}

// SessionStore keeps sessions in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates an empty store.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create registers a session for userID.
func (s *SessionStore) Create(userID string, flow *auth.Flow, services *Services) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:        id,
		UserID:    userID,
		Flow:      flow,
		Services:  services,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	return session, nil
}

// Get retrieves a live session by ID.
func (s *SessionStore) Get(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil
	}

	// Check if session has expired
	if s.now().Sub(session.CreatedAt) > s.ttl {
		return nil
	}

	return session
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// DeleteExpired drops every expired session and returns how many went.
func (s *SessionStore) DeleteExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, session := range s.sessions {
		if s.now().Sub(session.CreatedAt) > s.ttl {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// pendingLogins holds the flow of each login started but not yet completed,
// keyed by the OAuth state value.
type pendingLogins struct {
	mu    sync.Mutex
	flows map[string]pendingLogin
	now   func() time.Time
}

type pendingLogin struct {
	flow      *auth.Flow
	createdAt time.Time
}

func newPendingLogins() *pendingLogins {
	return &pendingLogins{flows: make(map[string]pendingLogin), now: time.Now}
}

func (p *pendingLogins) put(state string, flow *auth.Flow) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for k, v := range p.flows {
		if now.Sub(v.createdAt) > auth.PendingTTL {
			delete(p.flows, k)
		}
	}
	p.flows[state] = pendingLogin{flow: flow, createdAt: now}
}

// take removes and returns the flow for state.
func (p *pendingLogins) take(state string) *auth.Flow {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.flows[state]
	delete(p.flows, state)
	if !ok || p.now().Sub(v.createdAt) > auth.PendingTTL {
		return nil
	}
	return v.flow
}

// sessionClaims are carried in the API bearer token.
type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// tokenIssuer signs and verifies API session tokens (HS256).
type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (t *tokenIssuer) issue(session *Session) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(t.ttl)
	claims := sessionClaims{
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "moodify",
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	return signed, exp, err
}

func (t *tokenIssuer) verify(tokenString string) (*sessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithIssuer("moodify"), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" || claims.Subject == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

type contextKey string

const sessionKey contextKey = "session"

func withSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom returns the session the auth middleware attached to ctx.
func SessionFrom(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
