package speech

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/tts"
)

// SynthesisObserver receives the provider latency of every synthesized
// utterance.
type SynthesisObserver func(latency time.Duration, chars int)

// PlaybackEngine is an Engine that synthesizes with a tts.Provider and
// plays the PCM on an audioio.Sink.
type PlaybackEngine struct {
	provider tts.Provider
	sink     audioio.Sink
	observe  SynthesisObserver
	logger   *slog.Logger

	mu       sync.Mutex
	speaking atomic.Bool
}

// PlaybackOption configures a PlaybackEngine.
type PlaybackOption func(*PlaybackEngine)

// WithSynthesisObserver reports provider latency, typically to metrics.
func WithSynthesisObserver(fn SynthesisObserver) PlaybackOption {
	return func(e *PlaybackEngine) { e.observe = fn }
}

// WithPlaybackLogger sets the structured logger.
func WithPlaybackLogger(l *slog.Logger) PlaybackOption {
	return func(e *PlaybackEngine) { e.logger = l }
}

// NewPlaybackEngine creates a playback engine.
func NewPlaybackEngine(provider tts.Provider, sink audioio.Sink, opts ...PlaybackOption) *PlaybackEngine {
	e := &PlaybackEngine{
		provider: provider,
		sink:     sink,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "speech.playback")
	return e
}

// Init starts the sink and checks the provider. An unhealthy provider is
// logged but not fatal, since a chain may recover on the first request.
func (e *PlaybackEngine) Init(ctx context.Context) error {
	if err := e.sink.Start(ctx); err != nil {
		return fmt.Errorf("start sink: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.provider.Health(hctx); err != nil {
		e.logger.Warn("tts provider unhealthy", "error", err)
	}

	e.logger.Info("playback ready", "sink", e.sink.Name(), "rate", e.sink.Config().SampleRate)
	return nil
}

// Speak synthesizes text and plays it to the end. Cancelling ctx clears
// the sink and returns ctx.Err().
func (e *PlaybackEngine) Speak(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.provider.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if e.observe != nil {
		e.observe(result.Latency, result.CharCount)
	}

	sinkCfg := e.sink.Config()
	samples := audioio.BytesToSamples(result.Audio)
	if result.Format.Channels == 2 {
		samples = audioio.StereoToMono(samples)
	}
	samples = audioio.Resample(samples, result.Format.SampleRate, sinkCfg.SampleRate)
	if sinkCfg.Channels == 2 {
		samples = audioio.MonoToStereo(samples)
	}

	e.speaking.Store(true)
	defer e.speaking.Store(false)

	step := sinkCfg.BufferSize() * sinkCfg.Channels
	if step <= 0 {
		step = len(samples)
	}
	for off := 0; off < len(samples); off += step {
		if err := ctx.Err(); err != nil {
			e.clear()
			return err
		}
		end := min(off+step, len(samples))
		chunk := audioio.AudioChunk{
			Samples:    samples[off:end],
			SampleRate: sinkCfg.SampleRate,
			Channels:   sinkCfg.Channels,
		}
		if err := e.sink.Write(ctx, chunk); err != nil {
			e.clear()
			return fmt.Errorf("write sink: %w", err)
		}
	}

	if err := e.sink.Flush(ctx); err != nil {
		e.clear()
		return err
	}
	if err := ctx.Err(); err != nil {
		e.clear()
		return err
	}
	return nil
}

func (e *PlaybackEngine) clear() {
	if err := e.sink.Clear(); err != nil {
		e.logger.Warn("clear sink failed", "error", err)
	}
}

// IsSpeaking reports whether audio is being written or played.
func (e *PlaybackEngine) IsSpeaking() bool {
	return e.speaking.Load()
}

// Close stops the sink and closes the provider.
func (e *PlaybackEngine) Close() error {
	_ = e.sink.Stop()
	sinkErr := e.sink.Close()
	if err := e.provider.Close(); err != nil {
		return err
	}
	return sinkErr
}

var _ Engine = (*PlaybackEngine)(nil)
