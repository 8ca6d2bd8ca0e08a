// Package openrouter calls the OpenRouter chat completions API.
package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/casa-harvester/pkg/httpclient"
)

// ErrUnauthorized is returned for 401/403 responses; retrying will not help.
var ErrUnauthorized = errors.New("openrouter rejected the api key")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the request body for a completion.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// ChatResponse is the completion envelope as returned by the API, with the
// message content left as raw text.
type ChatResponse struct {
	ID       string   `json:"id"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Object   string   `json:"object"`
	Created  int64    `json:"created"`
	Choices  []Choice `json:"choices"`
}

// Choice is a single completion alternative.
type Choice struct {
	Logprobs     json.RawMessage `json:"logprobs"`
	FinishReason string          `json:"finish_reason"`
	Index        int             `json:"index"`
	Message      Message         `json:"message"`
	Refusal      *string         `json:"refusal"`
}

// apiError is the body shape OpenRouter uses for failures, sometimes even
// with a 200 status.
type apiError struct {
	Error *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Config configures a Client.
type Config struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client asks the model to assess one raw listing at a time.
type Client struct {
	http   httpclient.Client
	url    string
	apiKey string
	model  string
}

// New builds a Client on top of resty.
func New(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return NewWithHTTPClient(cfg, httpclient.NewRestyClient(timeout))
}

// NewWithHTTPClient builds a Client with a caller-supplied transport.
func NewWithHTTPClient(cfg Config, hc httpclient.Client) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openrouter api key is required")
	}
	if hc == nil {
		return nil, fmt.Errorf("http client is required")
	}
	c := &Client{
		http:   hc,
		url:    strings.TrimSpace(cfg.URL),
		apiKey: cfg.APIKey,
		model:  strings.TrimSpace(cfg.Model),
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// BuildRequest returns the chat request sent for input.
func (c *Client) BuildRequest(input string) ChatRequest {
	return ChatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: systemRole, Content: systemPrompt},
			{Role: userRole, Content: assessmentPrompt + "\n " + input},
		},
	}
}

// Complete sends input to the model and returns the decoded envelope.
func (c *Client) Complete(ctx context.Context, input string) (*ChatResponse, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}

	resp, err := c.http.Post(ctx, c.url, headers, c.BuildRequest(input))
	if err != nil {
		return nil, fmt.Errorf("openrouter request: %w", err)
	}

	status := resp.StatusCode()
	body := resp.Body()
	switch {
	case status == 401 || status == 403:
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, status)
	case status < 200 || status >= 300:
		return nil, fmt.Errorf("openrouter status %d: %s", status, snippet(body))
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != nil {
		return nil, fmt.Errorf("openrouter error: %s", apiErr.Error.Message)
	}

	var out ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode openrouter response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openrouter response %q has no choices", out.ID)
	}
	return &out, nil
}

func snippet(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
