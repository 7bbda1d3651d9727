// Package completion is a minimal client for OpenAI-compatible chat
// completion endpoints.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/justestif/go-moodify/internal/requester"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.7
)

var (
	// ErrMissingAPIKey is returned when the client is built without a key.
	ErrMissingAPIKey = errors.New("missing completion API key")

	// ErrEmptyChoices is returned when a response carries no usable text.
	ErrEmptyChoices = errors.New("completion response has no choices")

	// ErrMalformedResponse is returned when the response body is not the expected JSON.
	ErrMalformedResponse = errors.New("malformed completion response")
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of a chat completion call.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

// Response is the subset of the completion response we read.
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice is one generated alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Sender is satisfied by *requester.Requester.
type Sender interface {
	Send(ctx context.Context, req *http.Request) (*requester.Response, error)
}

// Client calls the chat completion endpoint.
type Client struct {
	sender      Sender
	baseURL     string
	apiKey      string
	model       string
	temperature float64
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the API root, e.g. https://api.openai.com/v1.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModel sets the model name.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

// New creates a Client that sends through sender.
func New(sender Sender, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	c := &Client{
		sender:      sender,
		baseURL:     DefaultBaseURL,
		apiKey:      apiKey,
		model:       DefaultModel,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete sends the messages and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	payload, err := json.Marshal(Request{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encoding completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		return "", fmt.Errorf("requesting completion: %w", err)
	}

	var out Response
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyChoices
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyChoices
	}
	return text, nil
}
