package inference

import (
	"log/slog"
	"time"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second
)

// Config configures a Client. APIKey may be empty for local servers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int // 0 leaves the limit to the server
	Temperature float64
	Timeout     time.Duration // whole request; there is no retry
	Logger      *slog.Logger
}

type Option func(*Config)

// WithBaseURL points the client at another OpenAI-compatible server, for
// example "http://localhost:11434/v1" for Ollama.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

func WithMaxTokens(n int) Option {
	return func(c *Config) {
		c.MaxTokens = n
	}
}

// WithTemperature sets the sampling temperature used when a request leaves
// it at zero.
func WithTemperature(t float64) Option {
	return func(c *Config) {
		c.Temperature = t
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		Timeout:     DefaultTimeout,
		Logger:      slog.Default(),
	}
}

func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func (c *Config) Validate() error {
	switch {
	case c.Model == "":
		return ErrNoModel
	case c.BaseURL == "":
		return ErrNoBaseURL
	case c.Temperature < 0 || c.Temperature > 2:
		return ErrBadTemperature
	}
	return nil
}
