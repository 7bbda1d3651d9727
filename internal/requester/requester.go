// Package requester sends HTTP requests with a fixed-delay retry policy for
// rate-limited (429) responses. It knows nothing about authentication.
package requester

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-moodify/internal/logging"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
	DefaultTimeout    = 15 * time.Second

	// maxErrorBody caps how much of an error body is kept on StatusError.
	maxErrorBody = 4 << 10
)

// ErrRateLimited is returned when every retry was answered with 429.
var ErrRateLimited = errors.New("rate limit exceeded")

// StatusError is a non-2xx, non-429 response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// TransportError means no response was obtained at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport error: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Requester executes requests, waiting and retrying on 429.
// It is safe for concurrent use.
type Requester struct {
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *log.Logger
}

// Option configures a Requester.
type Option func(*Requester)

// WithMaxRetries sets how many times a 429 is retried.
func WithMaxRetries(n int) Option {
	return func(r *Requester) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithRetryDelay sets the fixed wait between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Requester) {
		if d >= 0 {
			r.retryDelay = d
		}
	}
}

// WithHTTPClient sets the client used for the underlying requests.
// Its Transport must not be this Requester.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Requester) {
		if c != nil {
			r.client = c
		}
	}
}

// WithSleep replaces the wait between retries. Tests use it to simulate time.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Requester) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Requester) {
		r.logger = logging.OrDiscard(l)
	}
}

// New creates a Requester with the default policy: 3 retries, 5s apart.
func New(opts ...Option) *Requester {
	r := &Requester{
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		sleep:      sleepContext,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send executes req under the retry policy. A 2xx is returned fully read.
// 429 is retried up to the limit and then reported as ErrRateLimited; any
// other status fails at once with *StatusError, and a failure to get a
// response at all fails at once with *TransportError.
func (r *Requester) Send(ctx context.Context, req *http.Request) (*Response, error) {
	resp, body, err := r.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// RoundTrip lets SDK clients send through the same policy. Statuses other
// than 429 are handed back untouched so the caller can decode its own error
// bodies.
func (r *Requester) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, body, err := r.do(req.Context(), req)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Request = req
	return resp, nil
}

// do runs the retry loop. The returned response's body has been consumed
// into the returned bytes.
func (r *Requester) do(ctx context.Context, req *http.Request) (*http.Response, []byte, error) {
	if err := makeReplayable(req); err != nil {
		return nil, nil, &TransportError{Err: err}
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.retryDelay); err != nil {
				return nil, nil, err
			}
		}

		attemptReq, err := prepare(ctx, req, attempt)
		if err != nil {
			return nil, nil, &TransportError{Err: err}
		}

		resp, err := r.client.Do(attemptReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			return nil, nil, &TransportError{Err: err}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, nil, &TransportError{Err: fmt.Errorf("reading response body: %w", err)}
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, body, nil
		}
		if attempt >= r.maxRetries {
			return nil, nil, fmt.Errorf("%w: %s %s after %d retries", ErrRateLimited, req.Method, req.URL.Path, r.maxRetries)
		}
		r.logger.Warn("rate limited, retrying",
			"method", req.Method,
			"path", req.URL.Path,
			"attempt", attempt+1,
			"delay", r.retryDelay,
		)
	}
}

// makeReplayable buffers a request body that cannot be re-read, so retries
// can send it again.
func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffering request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func prepare(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	out := req.Clone(ctx)
	if attempt == 0 || req.GetBody == nil {
		return out, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}
	out.Body = body
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
