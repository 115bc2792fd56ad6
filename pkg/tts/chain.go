package tts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultCooldown is how long a failed provider is passed over.
const DefaultCooldown = 30 * time.Second

// Chain is a Provider that falls back through providers in order, e.g. a
// cloud voice backed by a local Piper server. A provider that fails is
// skipped for a cooldown so each utterance does not pay its timeout
// again; when every provider is cooling down, all are tried anyway.
type Chain struct {
	providers []Provider
	cooldown  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	failedAt  []time.Time
	lastIndex int
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithCooldown overrides DefaultCooldown. Zero disables skipping.
func WithCooldown(d time.Duration) ChainOption {
	return func(c *Chain) { c.cooldown = d }
}

// WithChainLogger sets the structured logger.
func WithChainLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// NewChain creates a fallback chain. At least one provider is required.
func NewChain(providers []Provider, opts ...ChainOption) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	c := &Chain{
		providers: providers,
		cooldown:  DefaultCooldown,
		logger:    slog.Default(),
		now:       time.Now,
		failedAt:  make([]time.Time, len(providers)),
		lastIndex: -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "tts.chain")
	return c, nil
}

// Synthesize returns the first successful result. Empty text and a done
// context stop the chain instead of falling back.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	var errs []error
	for _, i := range c.order() {
		result, err := c.providers[i].Synthesize(ctx, text)
		if err == nil {
			c.succeeded(i)
			return result, nil
		}
		if errors.Is(err, ErrEmptyText) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		errs = append(errs, err)
		c.failed(i)
		c.logger.Warn("voice failed, falling back", "provider_index", i, "error", err)
	}
	return nil, &ChainError{Errors: errs}
}

// order lists provider indexes to try: those not cooling down first, in
// configured order, then the rest.
func (c *Chain) order() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	ready := make([]int, 0, len(c.providers))
	var cooling []int
	for i, at := range c.failedAt {
		if c.cooldown > 0 && !at.IsZero() && now.Sub(at) < c.cooldown {
			cooling = append(cooling, i)
			continue
		}
		ready = append(ready, i)
	}
	return append(ready, cooling...)
}

func (c *Chain) failed(i int) {
	c.mu.Lock()
	c.failedAt[i] = c.now()
	c.mu.Unlock()
}

func (c *Chain) succeeded(i int) {
	c.mu.Lock()
	c.failedAt[i] = time.Time{}
	changed := c.lastIndex != i
	c.lastIndex = i
	c.mu.Unlock()

	if changed {
		c.logger.Info("speaking with provider", "provider_index", i)
	}
}

// Active returns the index of the provider that last succeeded, or -1.
func (c *Chain) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastIndex
}

// Health succeeds when any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return &ChainError{Errors: errs}
}

// Close closes every provider and joins their errors.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Provider = (*Chain)(nil)
