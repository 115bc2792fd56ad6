package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-companion/internal/httpc"
)

const providerClient = "client"

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg     *Config
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    httpc.NewClient(cfg.Timeout),
		logger:  logger.With("component", "inference.client"),
	}, nil
}

// completion is the subset of the response body the dialogue reads.
type completion struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Chat sends req exactly once and returns the first choice.
//
// A non-200 status is an *APIError, an empty 200 body ErrEmptyResponse, an
// undecodable one a *DecodeError and a body without choices ErrNoChoices.
// Transport failures come back as *ProviderError.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	payload := struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature,omitempty"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
	}{
		Model:       firstNonZero(req.Model, c.cfg.Model),
		Messages:    req.Messages,
		Temperature: firstNonZero(req.Temperature, c.cfg.Temperature),
		MaxTokens:   firstNonZero(req.MaxTokens, c.cfg.MaxTokens),
	}

	body, err := c.do(ctx, http.MethodPost, "/chat/completions", payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyResponse
	}

	var out completion
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if len(out.Choices) == 0 {
		return nil, ErrNoChoices
	}

	resp := &ChatResponse{
		Message:      NewAssistantMessage(out.Choices[0].Message.Content),
		FinishReason: out.Choices[0].FinishReason,
		Model:        out.Model,
		Usage:        out.Usage,
		Latency:      time.Since(start),
	}
	c.logger.Debug("chat completed", "model", resp.Model, "latency", resp.Latency, "tokens", resp.Usage.TotalTokens)
	return resp, nil
}

// Health lists models, which checks both reachability and the key.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/models", nil)
	return err
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do performs one request and returns the body of a 200 response.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, WrapError(providerClient, fmt.Errorf("marshal payload: %w", err))
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, WrapError(providerClient, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "path", path, "error", err)
		return nil, WrapError(providerClient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerClient, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp.StatusCode, body)
	}
	return body, nil
}

// apiError prefers the OpenAI error envelope and falls back to the raw body.
func (c *Client) apiError(status int, body []byte) error {
	e := &APIError{Provider: providerClient, StatusCode: status, Message: string(body)}

	var env struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		e.Message, e.Code = env.Error.Message, env.Error.Code
	}

	c.logger.Warn("API error", "status", status, "code", e.Code)
	return e
}

func firstNonZero[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

var _ Provider = (*Client)(nil)
