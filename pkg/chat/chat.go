// Package chat is the remote dialogue client: one system prompt and one user
// utterance in, one displayable reply out.
//
// Every failure is turned into a catalog string that can be shown and
// spoken, so the dialogue never has to special-case errors. The underlying
// cause is still returned for logging and metrics.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-companion/pkg/inference"
	"github.com/teslashibe/go-companion/pkg/locale"
)

// Client turns chat completions into displayable replies.
type Client struct {
	provider inference.Provider
	cat      *locale.Catalog
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCatalog sets the string catalog used for failures.
func WithCatalog(cat *locale.Catalog) Option {
	return func(c *Client) { c.cat = cat }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client over provider.
func New(provider inference.Provider, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		cat:      locale.DefaultCatalog(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "chat.client")
	return c
}

// Respond sends the prompt pair once and returns the reply. The string is
// always displayable: on failure it is the catalog message for the cause
// and err reports the cause.
func (c *Client) Respond(ctx context.Context, systemPrompt, userText string) (string, error) {
	req := inference.Prompt(flatten(systemPrompt), flatten(userText))

	c.logger.Debug("requesting reply", "user_text", userText)

	resp, err := c.provider.Chat(ctx, req)
	if err != nil {
		msg := c.Describe(err)
		c.logger.Warn("remote dialogue failed", "error", err, "reply", msg)
		return msg, err
	}

	c.logger.Debug("reply received", "latency", resp.Latency, "tokens", resp.Usage.TotalTokens)
	return resp.Text(), nil
}

// GetResponse is Respond without the error.
func (c *Client) GetResponse(ctx context.Context, systemPrompt, userText string) string {
	reply, _ := c.Respond(ctx, systemPrompt, userText)
	return reply
}

// Describe maps a failure to its catalog string.
func (c *Client) Describe(err error) string {
	var apiErr *inference.APIError
	var decodeErr *inference.DecodeError

	switch {
	case errors.Is(err, inference.ErrEmptyResponse):
		return c.cat.EmptyResponse
	case errors.As(err, &decodeErr):
		return c.cat.Parse(decodeErr.Err.Error())
	case errors.Is(err, inference.ErrNoChoices):
		return c.cat.Parse(err.Error())
	case errors.As(err, &apiErr):
		switch {
		case apiErr.IsRateLimited():
			return c.cat.RateLimited
		case apiErr.IsUnauthorized():
			return c.cat.InvalidAPIKey
		case apiErr.IsForbidden():
			return c.cat.Forbidden
		case apiErr.IsNotFound():
			return c.cat.NotFound
		case apiErr.StatusCode == 500:
			return c.cat.ServerError
		default:
			return c.cat.Status(apiErr.StatusCode)
		}
	default:
		return c.cat.Transport(transportMessage(err))
	}
}

// transportMessage strips provider wrapping so the user sees the network
// failure itself.
func transportMessage(err error) string {
	var pe *inference.ProviderError
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err.Error()
	}
	return err.Error()
}

// flatten replaces line breaks with spaces.
func flatten(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
