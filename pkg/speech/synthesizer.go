package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSettleDelay is the pause between cancelling a superseded
// utterance and starting its replacement.
const DefaultSettleDelay = 200 * time.Millisecond

// Config holds Synthesizer configuration.
type Config struct {
	SettleDelay time.Duration
	Logger      *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Config)

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) { c.SettleDelay = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		SettleDelay: DefaultSettleDelay,
		Logger:      slog.Default(),
	}
}

// Synthesizer is the speech synthesis adapter.
type Synthesizer struct {
	engine Engine
	config Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	ready    bool
	shutdown bool
	current  *Utterance
}

// New creates a Synthesizer that drives engine.
func New(engine Engine, opts ...Option) *Synthesizer {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Synthesizer{
		engine: engine,
		config: cfg,
		logger: cfg.Logger.With("component", "speech.synthesizer"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize prepares the engine in the background. onReady is always
// called, with the init error on failure.
func (s *Synthesizer) Initialize(onReady func(error)) {
	go func() {
		err := s.engine.Init(s.ctx)

		s.mu.Lock()
		s.ready = err == nil && !s.shutdown
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("engine init failed", "error", err)
		} else {
			s.logger.Info("engine ready")
		}
		if onReady != nil {
			onReady(err)
		}
	}()
}

// Ready reports whether Initialize succeeded.
func (s *Synthesizer) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Speak starts speaking text and returns the utterance. onComplete runs
// once when playback finishes or fails, never for an utterance that is
// superseded or cancelled.
func (s *Synthesizer) Speak(text string, onComplete func()) *Utterance {
	u := newUtterance(s.ctx, text, onComplete)

	s.mu.Lock()
	if s.shutdown || !s.ready {
		err := ErrNotReady
		if s.shutdown {
			err = ErrShutdown
		}
		s.mu.Unlock()
		s.logger.Warn("speak skipped", "id", u.ID, "reason", err)
		u.resolve(OutcomeFailed, err, true)
		return u
	}
	prev := s.current
	s.current = u
	s.mu.Unlock()

	var delay time.Duration
	if prev != nil && prev.resolve(OutcomeSuperseded, nil, false) {
		s.logger.Debug("utterance superseded", "id", prev.ID, "by", u.ID)
		delay = s.config.SettleDelay
	}

	go s.run(u, delay)
	return u
}

func (s *Synthesizer) run(u *Utterance, delay time.Duration) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-u.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	start := time.Now()
	s.logger.Debug("speaking", "id", u.ID, "chars", len([]rune(u.Text)))
	err := s.engine.Speak(u.ctx, u.Text)

	s.mu.Lock()
	if s.current == nil || s.current.ID != u.ID {
		s.mu.Unlock()
		s.logger.Debug("stale completion ignored", "id", u.ID)
		return
	}
	s.current = nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("utterance failed", "id", u.ID, "error", err)
		u.resolve(OutcomeFailed, err, true)
		return
	}
	s.logger.Debug("utterance complete", "id", u.ID, "duration", time.Since(start))
	u.resolve(OutcomeCompleted, nil, true)
}

// IsSpeaking reports whether an utterance is in progress or the engine
// is still playing audio.
func (s *Synthesizer) IsSpeaking() bool {
	s.mu.Lock()
	inProgress := s.current != nil
	s.mu.Unlock()
	return inProgress || s.engine.IsSpeaking()
}

// Stop cancels the current utterance without invoking its callback.
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	u := s.current
	s.current = nil
	s.mu.Unlock()

	if u != nil && u.resolve(OutcomeCancelled, nil, false) {
		s.logger.Debug("utterance cancelled", "id", u.ID)
	}
}

// Shutdown stops speaking and closes the engine. Later Speak calls
// complete immediately.
func (s *Synthesizer) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.ready = false
	s.mu.Unlock()

	s.Stop()
	s.cancel()
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("engine close failed", "error", err)
	}
	s.logger.Info("synthesizer shut down")
}
