package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-companion/pkg/locale"
)

// Default timings.
const (
	DefaultMinSpeechLength     = 500 * time.Millisecond
	DefaultPartialResultsDelay = 1000 * time.Millisecond
	DefaultSilenceTimeout      = 12 * time.Second
	DefaultCleanupDelay        = 1000 * time.Millisecond
)

// Callbacks receive adapter events. Any may be nil. They are invoked
// without the adapter lock held, so they may call back into the adapter.
type Callbacks struct {
	OnStarted     func()
	OnSpeechBegin func()
	OnPartial     func(text string)
	OnFinal       func(text string)
	OnError       func(code ErrorCode, message string)
}

// Config holds adapter configuration.
type Config struct {
	Language            string
	MinSpeechLength     time.Duration
	PartialResultsDelay time.Duration
	SilenceTimeout      time.Duration
	CleanupDelay        time.Duration
	Partials            bool
	Catalog             *locale.Catalog
	Logger              *slog.Logger
}

// Option configures an Adapter.
type Option func(*Config)

// WithLanguage sets the transcription language.
func WithLanguage(code string) Option {
	return func(c *Config) { c.Language = code }
}

// WithTimings overrides the partial gating and debounce delays.
func WithTimings(minSpeech, partialDelay time.Duration) Option {
	return func(c *Config) {
		c.MinSpeechLength = minSpeech
		c.PartialResultsDelay = partialDelay
	}
}

// WithSilenceTimeout sets how long a session waits for speech.
func WithSilenceTimeout(d time.Duration) Option {
	return func(c *Config) { c.SilenceTimeout = d }
}

// WithCleanupDelay sets how long a stop keeps the adapter busy before the
// old recognizer is released.
func WithCleanupDelay(d time.Duration) Option {
	return func(c *Config) { c.CleanupDelay = d }
}

// WithPartials enables interim transcripts.
func WithPartials(enabled bool) Option {
	return func(c *Config) { c.Partials = enabled }
}

// WithCatalog sets the catalog for error messages.
func WithCatalog(cat *locale.Catalog) Option {
	return func(c *Config) { c.Catalog = cat }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Language:            locale.Japanese,
		MinSpeechLength:     DefaultMinSpeechLength,
		PartialResultsDelay: DefaultPartialResultsDelay,
		SilenceTimeout:      DefaultSilenceTimeout,
		CleanupDelay:        DefaultCleanupDelay,
		Partials:            true,
		Catalog:             locale.DefaultCatalog(),
		Logger:              slog.Default(),
	}
}

// Adapter is the speech capture adapter. It owns at most one recognizer.
type Adapter struct {
	factory RecognizerFactory
	config  Config
	logger  *slog.Logger

	mu          sync.Mutex
	callbacks   Callbacks
	recognizer  Recognizer
	prepared    bool
	session     uint64
	listening   bool
	stopping    bool
	destroyed   bool
	speechStart time.Time

	partialTimer *time.Timer
	partialText  string

	cleanupTimer *time.Timer
	cleanupRec   Recognizer
}

// NewAdapter creates an adapter that builds recognizers with factory.
func NewAdapter(factory RecognizerFactory, opts ...Option) *Adapter {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = locale.DefaultCatalog()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Adapter{
		factory: factory,
		config:  cfg,
		logger:  cfg.Logger.With("component", "capture.adapter"),
	}
}

// SetCallbacks replaces the event callbacks.
func (a *Adapter) SetCallbacks(cb Callbacks) {
	a.mu.Lock()
	a.callbacks = cb
	a.mu.Unlock()
}

// IsListening reports whether a session is pending or active.
func (a *Adapter) IsListening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}

// StopInProgress reports whether a stop is still finishing.
func (a *Adapter) StopInProgress() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopping
}

// StartListening starts a session on a freshly created recognizer,
// discarding any prepared one.
func (a *Adapter) StartListening() error {
	a.mu.Lock()
	if err := a.checkStartLocked(); err != nil {
		a.mu.Unlock()
		return err
	}
	old := a.recognizer
	a.recognizer = nil
	a.prepared = false
	a.mu.Unlock()

	if old != nil {
		a.closeRecognizer(old)
	}

	rec, err := a.factory()
	if err != nil {
		a.logger.Error("create recognizer failed", "error", err)
		return fmt.Errorf("%w: %v", ErrRecognizerUnavailable, err)
	}
	return a.begin(rec)
}

// PrepareForNextRecognition creates the next recognizer without starting
// capture, so a later StartPreparedListening starts quickly.
func (a *Adapter) PrepareForNextRecognition() error {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return ErrDestroyed
	}
	if a.listening {
		a.mu.Unlock()
		return ErrAlreadyListening
	}
	if a.prepared && a.recognizer != nil {
		a.mu.Unlock()
		return nil
	}
	old := a.recognizer
	a.recognizer = nil
	a.mu.Unlock()

	if old != nil {
		a.closeRecognizer(old)
	}

	rec, err := a.factory()
	if err != nil {
		a.logger.Warn("prepare recognizer failed", "error", err)
		return fmt.Errorf("%w: %v", ErrRecognizerUnavailable, err)
	}

	a.mu.Lock()
	if a.destroyed || a.listening || a.recognizer != nil {
		a.mu.Unlock()
		a.closeRecognizer(rec)
		return nil
	}
	a.recognizer = rec
	a.prepared = true
	a.mu.Unlock()

	a.logger.Debug("recognizer prepared")
	return nil
}

// StartPreparedListening starts a session on the prepared recognizer, or
// falls back to StartListening when none is prepared.
func (a *Adapter) StartPreparedListening() error {
	a.mu.Lock()
	if err := a.checkStartLocked(); err != nil {
		a.mu.Unlock()
		return err
	}
	if !a.prepared || a.recognizer == nil {
		a.mu.Unlock()
		return a.StartListening()
	}
	rec := a.recognizer
	a.recognizer = nil
	a.prepared = false
	a.mu.Unlock()

	return a.begin(rec)
}

func (a *Adapter) checkStartLocked() error {
	switch {
	case a.destroyed:
		return ErrDestroyed
	case a.stopping:
		return ErrStopInProgress
	case a.listening:
		return ErrAlreadyListening
	}
	return nil
}

// begin starts a session on rec.
func (a *Adapter) begin(rec Recognizer) error {
	a.mu.Lock()
	if err := a.checkStartLocked(); err != nil {
		a.mu.Unlock()
		a.closeRecognizer(rec)
		return err
	}
	a.session++
	id := a.session
	a.recognizer = rec
	a.listening = true
	a.speechStart = time.Time{}
	a.partialText = ""
	a.mu.Unlock()

	cfg := SessionConfig{
		Language:       a.config.Language,
		SilenceTimeout: a.config.SilenceTimeout,
		Partials:       a.config.Partials,
	}
	if err := rec.Listen(context.Background(), cfg, &sessionListener{adapter: a, id: id}); err != nil {
		a.mu.Lock()
		if a.session == id {
			a.listening = false
			a.recognizer = nil
		}
		a.mu.Unlock()
		a.closeRecognizer(rec)
		a.logger.Error("start listening failed", "error", err)
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	a.logger.Debug("listening", "session", id)
	return nil
}

// StopListening stops the current session. The adapter stays in a
// stopping state for CleanupDelay, then cancels and closes the old
// recognizer.
func (a *Adapter) StopListening() {
	a.mu.Lock()
	if a.destroyed || a.stopping {
		a.mu.Unlock()
		return
	}
	rec := a.recognizer
	wasListening := a.listening
	a.recognizer = nil
	a.prepared = false
	a.listening = false
	a.session++
	a.stopPartialLocked()
	if rec == nil {
		a.mu.Unlock()
		return
	}
	a.stopping = true
	a.cleanupRec = rec
	a.cleanupTimer = time.AfterFunc(a.config.CleanupDelay, a.finishStop)
	a.mu.Unlock()

	rec.Stop()
	a.logger.Debug("stopped listening", "was_listening", wasListening)
}

func (a *Adapter) finishStop() {
	a.mu.Lock()
	rec := a.cleanupRec
	a.cleanupRec = nil
	a.cleanupTimer = nil
	a.stopping = false
	a.mu.Unlock()

	if rec != nil {
		rec.Cancel()
		a.closeRecognizer(rec)
	}
}

// Destroy releases every recognizer. The adapter cannot be used again.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	a.session++
	a.listening = false
	a.prepared = false
	a.stopPartialLocked()
	rec := a.recognizer
	a.recognizer = nil
	var pending Recognizer
	if a.cleanupTimer != nil && a.cleanupTimer.Stop() {
		pending = a.cleanupRec
	}
	a.cleanupRec = nil
	a.cleanupTimer = nil
	a.stopping = false
	a.mu.Unlock()

	for _, r := range []Recognizer{rec, pending} {
		if r != nil {
			r.Cancel()
			a.closeRecognizer(r)
		}
	}
	a.logger.Info("capture destroyed")
}

func (a *Adapter) closeRecognizer(rec Recognizer) {
	if err := rec.Close(); err != nil {
		a.logger.Warn("close recognizer failed", "error", err)
	}
}

func (a *Adapter) stopPartialLocked() {
	if a.partialTimer != nil {
		a.partialTimer.Stop()
		a.partialTimer = nil
	}
	a.partialText = ""
}

// currentLocked reports whether id is the live session. Must hold mu.
func (a *Adapter) currentLocked(id uint64) bool {
	return !a.destroyed && a.listening && a.session == id
}

func (a *Adapter) onReady(id uint64) {
	a.mu.Lock()
	if !a.currentLocked(id) {
		a.mu.Unlock()
		return
	}
	cb := a.callbacks.OnStarted
	a.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func (a *Adapter) onSpeechBegin(id uint64) {
	a.mu.Lock()
	if !a.currentLocked(id) {
		a.mu.Unlock()
		return
	}
	a.speechStart = time.Now()
	cb := a.callbacks.OnSpeechBegin
	a.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// onPartial gates partials on MinSpeechLength and coalesces them behind
// PartialResultsDelay, emitting the latest text.
func (a *Adapter) onPartial(id uint64, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.currentLocked(id) || text == "" {
		return
	}
	if a.speechStart.IsZero() || time.Since(a.speechStart) < a.config.MinSpeechLength {
		return
	}
	a.partialText = text
	if a.partialTimer == nil {
		a.partialTimer = time.AfterFunc(a.config.PartialResultsDelay, func() {
			a.flushPartial(id)
		})
	}
}

func (a *Adapter) flushPartial(id uint64) {
	a.mu.Lock()
	if !a.currentLocked(id) || a.partialText == "" {
		a.mu.Unlock()
		return
	}
	text := a.partialText
	a.partialText = ""
	a.partialTimer = nil
	cb := a.callbacks.OnPartial
	a.mu.Unlock()

	if cb != nil {
		cb(text)
	}
}

func (a *Adapter) onResult(id uint64, text string) {
	a.mu.Lock()
	if !a.currentLocked(id) {
		a.mu.Unlock()
		a.logger.Debug("stale result dropped", "session", id)
		return
	}
	a.endSessionLocked()
	rec := a.recognizer
	a.recognizer = nil
	final := a.callbacks.OnFinal
	onErr := a.callbacks.OnError
	a.mu.Unlock()

	if rec != nil {
		go a.closeRecognizer(rec)
	}

	if text == "" {
		a.logger.Debug("empty result", "session", id)
		if onErr != nil {
			onErr(ErrorNoMatch, ErrorNoMatch.Message(a.config.Catalog))
		}
		return
	}
	a.logger.Debug("final result", "session", id, "chars", len([]rune(text)))
	if final != nil {
		final(text)
	}
}

func (a *Adapter) onError(id uint64, code ErrorCode, err error) {
	if code == ErrorClient {
		a.logger.Debug("client error filtered", "session", id)
		return
	}

	a.mu.Lock()
	if !a.currentLocked(id) {
		a.mu.Unlock()
		a.logger.Debug("stale error dropped", "session", id, "code", code)
		return
	}
	a.endSessionLocked()
	rec := a.recognizer
	a.recognizer = nil
	cb := a.callbacks.OnError
	a.mu.Unlock()

	if rec != nil {
		go a.closeRecognizer(rec)
	}

	a.logger.Warn("recognition error", "session", id, "code", code, "error", err)
	if cb != nil {
		cb(code, code.Message(a.config.Catalog))
	}
}

func (a *Adapter) endSessionLocked() {
	a.listening = false
	a.stopPartialLocked()
}

// sessionListener tags recognizer events with their session.
type sessionListener struct {
	adapter *Adapter
	id      uint64
}

func (l *sessionListener) OnReady()              { l.adapter.onReady(l.id) }
func (l *sessionListener) OnSpeechBegin()        { l.adapter.onSpeechBegin(l.id) }
func (l *sessionListener) OnPartial(text string) { l.adapter.onPartial(l.id, text) }
func (l *sessionListener) OnResult(text string)  { l.adapter.onResult(l.id, text) }
func (l *sessionListener) OnError(code ErrorCode, err error) {
	l.adapter.onError(l.id, code, err)
}
