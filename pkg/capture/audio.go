package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/stt"
)

// AudioConfig configures microphone recognition.
type AudioConfig struct {
	VAD VADConfig

	// Preroll is how much audio before the detected speech start is kept
	// so the first syllable is not clipped.
	Preroll time.Duration

	// MaxUtterance caps one utterance; capture ends when it is reached.
	MaxUtterance time.Duration

	// PartialInterval is how often interim transcripts are requested
	// while speech continues. Zero disables them.
	PartialInterval time.Duration

	// OnTranscribed, if set, receives the latency of each final
	// transcription.
	OnTranscribed func(latency time.Duration)

	Logger *slog.Logger
}

// DefaultAudioConfig returns the default microphone configuration.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		VAD:          DefaultVADConfig(),
		Preroll:      300 * time.Millisecond,
		MaxUtterance: 30 * time.Second,
		Logger:       slog.Default(),
	}
}

// microphone is shared by every recognizer from one factory. The lease
// keeps sessions from overlapping on the device.
type microphone struct {
	source audioio.Source
	lease  sync.Mutex
}

// NewAudioRecognizerFactory returns a factory for recognizers that
// capture from source and transcribe with transcriber. The caller owns
// source and closes it.
func NewAudioRecognizerFactory(source audioio.Source, transcriber stt.Transcriber, cfg AudioConfig) RecognizerFactory {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	mic := &microphone{source: source}
	return func() (Recognizer, error) {
		return &AudioRecognizer{
			mic:         mic,
			transcriber: transcriber,
			cfg:         cfg,
			logger:      cfg.Logger.With("component", "capture.audio"),
		}, nil
	}
}

// AudioRecognizer hears speech on a microphone: a voice-activity
// detector finds the utterance and a Transcriber turns it into text.
type AudioRecognizer struct {
	mic         *microphone
	transcriber stt.Transcriber
	cfg         AudioConfig
	logger      *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
	listener Listener
}

// Listen starts a session. Capture begins once the microphone is free.
func (r *AudioRecognizer) Listen(ctx context.Context, cfg SessionConfig, l Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecognizerClosed
	}
	if r.running {
		return ErrRecognizerBusy
	}

	sctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})
	r.listener = l

	go r.run(sctx, cfg, l, r.done)
	return nil
}

// Stop ends the session without delivering further events.
func (r *AudioRecognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// Cancel aborts the session and reports ErrorClient.
func (r *AudioRecognizer) Cancel() {
	r.mu.Lock()
	running := r.running
	l := r.listener
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	if running && l != nil {
		l.OnError(ErrorClient, context.Canceled)
	}
}

// Close stops the session and waits for it to release the microphone.
func (r *AudioRecognizer) Close() error {
	r.mu.Lock()
	r.closed = true
	if r.cancel != nil {
		r.cancel()
	}
	done := r.done
	r.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

func (r *AudioRecognizer) run(ctx context.Context, cfg SessionConfig, l Listener, done chan struct{}) {
	defer close(done)
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	r.mic.lease.Lock()
	leased := true
	release := func() {
		if leased {
			_ = r.mic.source.Stop()
			r.mic.lease.Unlock()
			leased = false
		}
	}
	defer release()

	if ctx.Err() != nil {
		return
	}
	if err := r.mic.source.Start(ctx); err != nil {
		release()
		l.OnError(ErrorAudio, err)
		return
	}

	speech, err := r.capture(ctx, cfg, l)
	release()

	if ctx.Err() != nil {
		return
	}
	var capErr *captureError
	if errors.As(err, &capErr) {
		l.OnError(capErr.code, capErr.err)
		return
	}

	rate := r.mic.source.Config().SampleRate
	start := time.Now()
	result, err := r.transcriber.Transcribe(ctx, &stt.Request{
		Audio:    audioio.EncodeWAV(speech, rate, 1),
		Language: cfg.Language,
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		l.OnError(ClassifyTranscriptionError(err), err)
		return
	}
	if r.cfg.OnTranscribed != nil {
		r.cfg.OnTranscribed(time.Since(start))
	}
	l.OnResult(result.Text)
}

type captureError struct {
	code ErrorCode
	err  error
}

func (e *captureError) Error() string { return e.code.String() }

// capture reads the microphone until an utterance ends. It returns the
// utterance as mono samples.
func (r *AudioRecognizer) capture(ctx context.Context, cfg SessionConfig, l Listener) ([]int16, error) {
	src := r.mic.source.Config()
	vad := NewVAD(r.cfg.VAD)

	var (
		heard    time.Duration
		preroll  [][]int16
		prerollD time.Duration
		speech   []int16
		speaking bool
		spoken   time.Duration
	)
	partials := newPartialRunner(ctx)
	defer partials.stop()

	l.OnReady()

	for {
		chunk, err := r.mic.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &captureError{code: ErrorAudio, err: err}
		}

		samples := chunk.Samples
		if chunk.Channels == 2 {
			samples = audioio.StereoToMono(samples)
		}
		d := chunk.Duration()
		heard += d

		event := vad.Process(samples, d)

		if !speaking {
			if event == VADSpeechStart {
				speaking = true
				for _, p := range preroll {
					speech = append(speech, p...)
				}
				preroll = nil
				speech = append(speech, samples...)
				l.OnSpeechBegin()
				continue
			}

			preroll = append(preroll, samples)
			prerollD += d
			for len(preroll) > 1 && prerollD > r.cfg.Preroll {
				prerollD -= time.Duration(len(preroll[0])) * time.Second / time.Duration(src.SampleRate)
				preroll = preroll[1:]
			}

			if cfg.SilenceTimeout > 0 && heard >= cfg.SilenceTimeout {
				return nil, &captureError{code: ErrorSpeechTimeout}
			}
			continue
		}

		speech = append(speech, samples...)
		spoken += d

		if event == VADSpeechEnd {
			return speech, nil
		}
		if r.cfg.MaxUtterance > 0 && spoken >= r.cfg.MaxUtterance {
			r.logger.Debug("utterance capped", "duration", spoken)
			return speech, nil
		}

		if cfg.Partials && r.cfg.PartialInterval > 0 {
			partials.maybe(r, cfg, l, speech, src.SampleRate, spoken)
		}
	}
}

// partialRunner runs at most one interim transcription at a time. Interim
// requests use their own context so the end of speech abandons them
// instead of delaying the final transcription.
type partialRunner struct {
	ctx      context.Context
	cancel   context.CancelFunc
	wg       conc.WaitGroup
	busy     atomic.Bool
	lastSent time.Duration
}

func newPartialRunner(ctx context.Context) *partialRunner {
	pctx, cancel := context.WithCancel(ctx)
	return &partialRunner{ctx: pctx, cancel: cancel}
}

func (p *partialRunner) maybe(r *AudioRecognizer, cfg SessionConfig, l Listener, speech []int16, rate int, spoken time.Duration) {
	if spoken-p.lastSent < r.cfg.PartialInterval || !p.busy.CompareAndSwap(false, true) {
		return
	}
	p.lastSent = spoken
	wav := audioio.EncodeWAV(speech, rate, 1)
	ctx := p.ctx

	p.wg.Go(func() {
		defer p.busy.Store(false)
		result, err := r.transcriber.Transcribe(ctx, &stt.Request{Audio: wav, Language: cfg.Language})
		if err != nil || ctx.Err() != nil {
			return
		}
		l.OnPartial(result.Text)
	})
}

// stop cancels any interim request and waits for its goroutine, so no
// partial is delivered after the final result.
func (p *partialRunner) stop() {
	p.cancel()
	p.wg.Wait()
}

var _ Recognizer = (*AudioRecognizer)(nil)
