// Package companion assembles the voice companion: persistence, the remote
// dialogue client, speech capture and synthesis, the dialogue loop and the
// dashboard.
package companion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sourcegraph/conc"

	"github.com/teslashibe/go-companion/internal/config"
	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/capture"
	"github.com/teslashibe/go-companion/pkg/chat"
	"github.com/teslashibe/go-companion/pkg/convlog"
	"github.com/teslashibe/go-companion/pkg/dialogue"
	"github.com/teslashibe/go-companion/pkg/inference"
	"github.com/teslashibe/go-companion/pkg/locale"
	"github.com/teslashibe/go-companion/pkg/metrics"
	"github.com/teslashibe/go-companion/pkg/persona"
	"github.com/teslashibe/go-companion/pkg/settings"
	"github.com/teslashibe/go-companion/pkg/speech"
	"github.com/teslashibe/go-companion/pkg/store"
	"github.com/teslashibe/go-companion/pkg/stt"
	"github.com/teslashibe/go-companion/pkg/tts"
	"github.com/teslashibe/go-companion/pkg/web"
)

// App is the companion application. It owns every component and their
// lifecycle.
type App struct {
	config *config.Config
	input  io.Reader
	logger *slog.Logger

	catalog  *locale.Catalog
	store    store.Store
	log      *convlog.Log
	settings *settings.Settings
	metrics  *metrics.Metrics

	source   audioio.Source
	synth    *speech.Synthesizer
	capture  *capture.Adapter
	dialogue *dialogue.Orchestrator
	web      *web.Server
}

// Option configures an App.
type Option func(*App)

// WithInput sets where text mode reads utterances from. Defaults to stdin.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.input = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New validates cfg and creates an App. Call Init before Run.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config: cfg,
		input:  os.Stdin,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.catalog = locale.For(cfg.Language)
	return a, nil
}

// Init opens the state store and builds every component. Only a store or
// provider construction failure is fatal; on failure everything opened so
// far is released.
func (a *App) Init(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	a.logger.Info("companion starting",
		"language", a.config.Language,
		"capture", a.config.Capture.Mode,
		"tts", a.config.TTS.Providers,
		"store", a.config.Store.Backend,
	)

	if err = a.initState(ctx); err != nil {
		return fmt.Errorf("state: %w", err)
	}

	responder, err := a.initResponder()
	if err != nil {
		return fmt.Errorf("inference: %w", err)
	}

	if err = a.initSynthesis(); err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}

	if err = a.initCapture(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	a.web = web.NewServer(web.Config{
		Addr:      a.config.Server.Addr,
		StaticDir: a.config.Server.StaticDir,
		Logger:    a.logger,
	}, a.log, a.settings, a.metrics)

	a.dialogue, err = dialogue.New(dialogue.Deps{
		Capture:   a.capture,
		Synthesis: a.synth,
		Responder: responder,
		Log:       a.log,
		Settings:  a.settings,
		Prompt:    persona.NewBuilder(a.catalog),
		Catalog:   a.catalog,
		Metrics:   a.metrics,
		Observer:  a.web,
	},
		dialogue.WithRestartDelay(a.config.Dialogue.RestartDelay),
		dialogue.WithBackoff(a.config.Dialogue.StopBackoff, a.config.Dialogue.BusyBackoff),
		dialogue.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("dialogue: %w", err)
	}
	a.web.SetDialogue(a.dialogue)

	return nil
}

// initState opens the store and loads the conversation log and settings.
func (a *App) initState(ctx context.Context) error {
	st, err := store.Open(ctx, a.config.Store, a.logger)
	if err != nil {
		return err
	}
	a.store = st

	a.log, err = convlog.Open(ctx, st, convlog.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.settings, err = settings.Load(ctx, st, a.catalog, a.logger)
	if err != nil {
		return err
	}
	a.metrics = metrics.New(a.config.Metrics.Namespace)

	a.logger.Info("state loaded", "turns", a.log.Len(), "agent", a.settings.Agent().Name)
	return nil
}

func (a *App) initResponder() (*chat.Client, error) {
	c := a.config.Inference
	provider, err := inference.NewClient(
		inference.WithBaseURL(c.BaseURL),
		inference.WithAPIKey(c.APIKey),
		inference.WithModel(c.Model),
		inference.WithMaxTokens(c.MaxTokens),
		inference.WithTemperature(c.Temperature),
		inference.WithTimeout(c.Timeout),
		inference.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	return chat.New(provider, chat.WithCatalog(a.catalog), chat.WithLogger(a.logger)), nil
}

// initSynthesis builds the provider chain and the playback engine.
func (a *App) initSynthesis() error {
	provider, err := a.ttsProvider()
	if err != nil {
		return err
	}

	sink, err := audioio.NewSink(a.config.Audio.Output, a.logger)
	if err != nil {
		provider.Close()
		return err
	}

	engine := speech.NewPlaybackEngine(provider, sink,
		speech.WithSynthesisObserver(a.metrics.RecordSynthesis),
		speech.WithPlaybackLogger(a.logger),
	)
	a.synth = speech.New(engine,
		speech.WithSettleDelay(a.config.Speech.SettleDelay),
		speech.WithLogger(a.logger),
	)
	return nil
}

// ttsProvider returns the configured provider, or a fallback chain when
// several are listed.
func (a *App) ttsProvider() (tts.Provider, error) {
	c := a.config.TTS
	var providers []tts.Provider
	for _, name := range c.Providers {
		var (
			p   tts.Provider
			err error
		)
		switch name {
		case config.TTSElevenLabs:
			p, err = tts.NewElevenLabs(
				tts.WithAPIKey(c.ElevenLabs.APIKey),
				tts.WithVoice(c.ElevenLabs.Voice),
				tts.WithModel(c.ElevenLabs.Model),
				tts.WithTimeout(c.Timeout),
				tts.WithLogger(a.logger),
			)
		case config.TTSOpenAI:
			p, err = tts.NewOpenAI(
				tts.WithAPIKey(c.OpenAI.APIKey),
				tts.WithVoice(c.OpenAI.Voice),
				tts.WithModel(c.OpenAI.Model),
				tts.WithSpeed(c.OpenAI.Speed),
				tts.WithTimeout(c.Timeout),
				tts.WithLogger(a.logger),
			)
		case config.TTSPiper:
			p, err = tts.NewPiper(
				tts.WithBaseURL(c.Piper.Endpoint),
				tts.WithVoice(c.Piper.Voice),
				tts.WithTimeout(c.Timeout),
				tts.WithLogger(a.logger),
			)
		default:
			err = fmt.Errorf("unknown provider %q", name)
		}
		if err != nil {
			for _, prev := range providers {
				prev.Close()
			}
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		providers = append(providers, p)
	}

	if len(providers) == 1 {
		return providers[0], nil
	}
	return tts.NewChain(providers, tts.WithChainLogger(a.logger))
}

// initCapture builds the recognizer factory for the configured mode.
func (a *App) initCapture() error {
	c := a.config.Capture

	var factory capture.RecognizerFactory
	switch c.Mode {
	case config.CaptureText:
		factory = capture.NewScriptedFactory(capture.ReadLines(context.Background(), a.input))

	default:
		transcriber, err := stt.NewOpenAI(
			stt.WithAPIKey(a.config.STT.APIKey),
			stt.WithBaseURL(a.config.STT.BaseURL),
			stt.WithModel(a.config.STT.Model),
			stt.WithLanguage(a.config.Language),
			stt.WithTimeout(a.config.STT.Timeout),
			stt.WithLogger(a.logger),
		)
		if err != nil {
			return err
		}

		source, err := audioio.NewSource(a.config.Audio.Input, a.logger)
		if err != nil {
			return err
		}
		a.source = source

		audioCfg := capture.DefaultAudioConfig()
		audioCfg.VAD = capture.VADConfig{
			OnThresholdDB:  c.VAD.OnDB,
			OffThresholdDB: c.VAD.OffDB,
			Attack:         c.VAD.Attack,
			Release:        c.VAD.Release,
		}
		audioCfg.MaxUtterance = c.MaxUtterance
		audioCfg.PartialInterval = c.PartialInterval
		audioCfg.OnTranscribed = a.metrics.RecordTranscription
		audioCfg.Logger = a.logger
		factory = capture.NewAudioRecognizerFactory(source, transcriber, audioCfg)
	}

	a.capture = capture.NewAdapter(factory,
		capture.WithLanguage(a.config.Language),
		capture.WithTimings(c.MinSpeechLength, c.PartialResultsDelay),
		capture.WithSilenceTimeout(c.SilenceTimeout),
		capture.WithPartials(c.Partials),
		capture.WithCatalog(a.catalog),
		capture.WithLogger(a.logger),
	)
	return nil
}

// Run starts the dialogue loop and the dashboard and blocks until ctx is
// cancelled. A dashboard failure is logged; the conversation keeps going.
func (a *App) Run(ctx context.Context) error {
	if a.dialogue == nil {
		return errors.New("companion: Init not called")
	}

	var dialogueErr error
	var wg conc.WaitGroup

	wg.Go(func() {
		dialogueErr = a.dialogue.Run(ctx)
	})

	if a.config.Server.Enabled {
		wg.Go(func() {
			if err := a.web.Run(ctx); err != nil {
				a.logger.Error("dashboard stopped", "error", err)
			}
		})
	}

	wg.Wait()
	return dialogueErr
}

// Dialogue returns the orchestrator. Valid after Init.
func (a *App) Dialogue() *dialogue.Orchestrator {
	return a.dialogue
}

// Log returns the conversation log. Valid after Init.
func (a *App) Log() *convlog.Log {
	return a.log
}

// Server returns the dashboard. Valid after Init.
func (a *App) Server() *web.Server {
	return a.web
}

// Shutdown releases the microphone and the store. The dialogue loop
// releases capture and synthesis itself when Run returns.
func (a *App) Shutdown() {
	a.closeSource()
	a.closeStore()
	a.logger.Info("companion stopped")
}

// release undoes a partial Init. Synthesis is shut down here because no
// dialogue loop owns it yet.
func (a *App) release() {
	if a.synth != nil {
		a.synth.Shutdown()
		a.synth = nil
	}
	a.closeSource()
	a.closeStore()
}

func (a *App) closeSource() {
	if a.source == nil {
		return
	}
	if err := a.source.Close(); err != nil {
		a.logger.Warn("audio source close failed", "error", err)
	}
	a.source = nil
}

func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", "error", err)
	}
	a.store = nil
}
