// Package dialogue runs the companion's turn-taking loop: greet, listen,
// ask the remote model, speak the reply, listen again.
//
// Every transition happens on the goroutine running Run. Adapter
// callbacks and remote replies are posted to it as events, so the
// orchestrator is the only code that drives the capture and synthesis
// adapters.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-companion/pkg/capture"
	"github.com/teslashibe/go-companion/pkg/convlog"
	"github.com/teslashibe/go-companion/pkg/locale"
	"github.com/teslashibe/go-companion/pkg/metrics"
	"github.com/teslashibe/go-companion/pkg/persona"
	"github.com/teslashibe/go-companion/pkg/settings"
	"github.com/teslashibe/go-companion/pkg/speech"
)

var (
	// ErrMissingDependency is returned by New when a required dependency
	// is nil.
	ErrMissingDependency = errors.New("dialogue: missing dependency")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("dialogue: already running")
)

// Capture is the speech capture adapter.
type Capture interface {
	SetCallbacks(cb capture.Callbacks)
	IsListening() bool
	StartListening() error
	PrepareForNextRecognition() error
	StartPreparedListening() error
	StopListening()
	Destroy()
}

// Synthesis is the speech synthesis adapter.
type Synthesis interface {
	Initialize(onReady func(error))
	Speak(text string, onComplete func()) *speech.Utterance
	Stop()
	Shutdown()
}

// Responder produces the companion's reply. The string is always
// speakable, even when err reports a failure.
type Responder interface {
	Respond(ctx context.Context, systemPrompt, userText string) (string, error)
}

// ConversationLog stores turns.
type ConversationLog interface {
	Append(ctx context.Context, t convlog.Turn) error
	Recent(n int) []convlog.Turn
}

// SettingsSource provides the current settings.
type SettingsSource interface {
	Snapshot() settings.Snapshot
}

// Observer is told about published changes. Calls come from the loop
// goroutine and must not block.
type Observer interface {
	StateChanged(st UIState)
	TurnAdded(t convlog.Turn)
	PartialTranscript(text string)
}

// Deps are the orchestrator's collaborators. Prompt, Catalog, Metrics and
// Observer are optional.
type Deps struct {
	Capture   Capture
	Synthesis Synthesis
	Responder Responder
	Log       ConversationLog
	Settings  SettingsSource
	Prompt    *persona.Builder
	Catalog   *locale.Catalog
	Metrics   *metrics.Metrics
	Observer  Observer
}

// Orchestrator is the dialogue loop.
type Orchestrator struct {
	capture   Capture
	synth     Synthesis
	responder Responder
	log       ConversationLog
	settings  SettingsSource
	prompt    *persona.Builder
	cat       *locale.Catalog
	metrics   *metrics.Metrics
	observer  Observer

	config Config
	logger *slog.Logger

	queue   *eventQueue
	state   atomic.Pointer[UIState]
	running atomic.Bool
	runCtx  context.Context

	// Loop-owned state.
	closed         bool
	synthReady     bool
	listening      bool
	pendingStart   bool
	inFlight       bool
	welcomePending bool
	generation     uint64
	current        *speech.Utterance
	errMsg         string
	retryTimer     *time.Timer
	retrySeq       uint64
}

// New creates an orchestrator.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Capture == nil:
		return nil, fmt.Errorf("%w: capture", ErrMissingDependency)
	case deps.Synthesis == nil:
		return nil, fmt.Errorf("%w: synthesis", ErrMissingDependency)
	case deps.Responder == nil:
		return nil, fmt.Errorf("%w: responder", ErrMissingDependency)
	case deps.Log == nil:
		return nil, fmt.Errorf("%w: conversation log", ErrMissingDependency)
	case deps.Settings == nil:
		return nil, fmt.Errorf("%w: settings", ErrMissingDependency)
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cat := deps.Catalog
	if cat == nil && deps.Prompt != nil {
		cat = deps.Prompt.Catalog()
	}
	if cat == nil {
		cat = locale.DefaultCatalog()
	}
	prompt := deps.Prompt
	if prompt == nil {
		prompt = persona.NewBuilder(cat)
	}

	o := &Orchestrator{
		capture:   deps.Capture,
		synth:     deps.Synthesis,
		responder: deps.Responder,
		log:       deps.Log,
		settings:  deps.Settings,
		prompt:    prompt,
		cat:       cat,
		metrics:   deps.Metrics,
		observer:  deps.Observer,
		config:    cfg,
		logger:    cfg.Logger.With("component", "dialogue.orchestrator"),
		queue:     newEventQueue(),
		runCtx:    context.Background(),
	}
	o.state.Store(&UIState{State: StateIdle})
	return o, nil
}

// State returns the latest published UI state.
func (o *Orchestrator) State() UIState {
	return *o.state.Load()
}

// Prompt returns the system prompt the next request would carry.
func (o *Orchestrator) Prompt() string {
	snap := o.settings.Snapshot()
	return o.prompt.Build(snap.Agent, snap.User, o.log.Recent(snap.App.ConversationLogCount))
}

// Restart stops listening and speaking and replays the welcome sequence.
// It is safe to call from any goroutine.
func (o *Orchestrator) Restart() {
	o.post(o.restart)
}

// Run drives the loop until ctx is cancelled, then destroys the capture
// adapter and shuts synthesis down.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	o.runCtx = ctx

	o.capture.SetCallbacks(capture.Callbacks{
		OnStarted: func() { o.post(o.onListening) },
		OnSpeechBegin: func() {
			o.logger.Debug("speech detected")
		},
		OnPartial: func(text string) {
			o.post(func() { o.onPartial(text) })
		},
		OnFinal: func(text string) {
			o.post(func() { o.onFinal(text) })
		},
		OnError: func(code capture.ErrorCode, message string) {
			o.post(func() { o.onCaptureError(code, message) })
		},
	})

	o.logger.Info("dialogue started")
	o.synth.Initialize(func(err error) {
		o.post(func() { o.onSynthesisReady(err) })
	})

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case <-o.queue.ready:
			for _, ev := range o.queue.drain() {
				ev()
			}
		}
	}
}

func (o *Orchestrator) post(fn func()) {
	if !o.queue.push(fn) {
		o.logger.Debug("event dropped after shutdown")
	}
}

func (o *Orchestrator) shutdown() {
	o.closed = true
	o.queue.close()
	o.cancelRetry()

	o.capture.Destroy()
	o.synth.Shutdown()

	o.current = nil
	o.inFlight = false
	o.listening = false
	o.pendingStart = false
	o.publish()
	o.logger.Info("dialogue stopped")
}

func (o *Orchestrator) onSynthesisReady(err error) {
	o.synthReady = true
	if err != nil {
		o.logger.Error("synthesis unavailable, replies will not be spoken", "error", err)
	}
	o.welcome()
}

// welcome asks the model for a greeting, or defers until the call in
// flight resolves.
func (o *Orchestrator) welcome() {
	if o.inFlight {
		o.welcomePending = true
		return
	}
	o.logger.Info("welcome sequence", "generation", o.generation)
	o.request(o.cat.GreetingRequest, true)
}

func (o *Orchestrator) restart() {
	if o.closed {
		return
	}
	o.generation++
	o.logger.Info("restarting dialogue", "generation", o.generation)

	o.cancelRetry()
	if o.current != nil {
		o.synth.Stop()
		o.metrics.RecordUtterance(speech.OutcomeCancelled.String())
		o.current = nil
	}
	o.capture.StopListening()
	o.listening = false
	o.pendingStart = false
	o.errMsg = ""

	if o.synthReady {
		o.welcome()
	}
	o.publish()
}

// listen starts a capture session unless one is running or a turn is in
// progress. Refusals are retried after a backoff.
func (o *Orchestrator) listen(prepared bool) {
	switch {
	case o.closed:
		return
	case o.inFlight || o.current != nil:
		o.logger.Debug("turn in progress, not listening")
		return
	case o.pendingStart || o.listening || o.capture.IsListening():
		o.logger.Debug("duplicate start ignored")
		return
	}

	start := o.capture.StartListening
	if prepared {
		start = o.capture.StartPreparedListening
	}
	err := start()

	switch {
	case err == nil:
		o.pendingStart = true
	case errors.Is(err, capture.ErrStopInProgress):
		o.logger.Debug("stop in progress, retrying", "backoff", o.config.StopBackoff)
		o.retryListen(o.config.StopBackoff, prepared, "stop_in_progress")
	case errors.Is(err, capture.ErrAlreadyListening):
		o.logger.Debug("session already active, stopping it", "backoff", o.config.BusyBackoff)
		o.capture.StopListening()
		o.retryListen(o.config.BusyBackoff, false, "busy")
	case errors.Is(err, capture.ErrDestroyed):
		o.logger.Debug("capture destroyed")
	default:
		o.logger.Error("start listening failed", "error", err)
		o.errMsg = o.cat.CaptureStartFailed
		if errors.Is(err, capture.ErrRecognizerUnavailable) {
			o.errMsg = o.cat.CaptureUnavailable
		}
		o.retryListen(o.config.RestartDelay, false, "start_failed")
	}
	o.publish()
}

func (o *Orchestrator) retryListen(d time.Duration, prepared bool, reason string) {
	o.metrics.RecordListenRetry(reason)
	o.cancelRetry()
	seq := o.retrySeq
	o.retryTimer = time.AfterFunc(d, func() {
		o.post(func() {
			if seq != o.retrySeq {
				return
			}
			o.retryTimer = nil
			o.listen(prepared)
		})
	})
}

func (o *Orchestrator) cancelRetry() {
	o.retrySeq++
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
}

func (o *Orchestrator) onListening() {
	if !o.pendingStart && !o.listening {
		return
	}
	o.pendingStart = false
	o.listening = true
	o.errMsg = ""
	o.logger.Debug("listening")
	o.publish()
}

func (o *Orchestrator) onPartial(text string) {
	if o.observer != nil {
		o.observer.PartialTranscript(text)
	}
}

func (o *Orchestrator) onFinal(text string) {
	o.pendingStart = false
	o.listening = false

	if o.inFlight {
		o.logger.Warn("request in flight, transcript dropped", "text", text)
		o.metrics.RecordDroppedTranscript()
		o.publish()
		return
	}

	o.logger.Info("heard", "text", text)
	if lc := o.metrics.Latency(); lc != nil {
		lc.MarkTranscript()
	}
	o.appendTurn(convlog.UserTurn(text))
	o.request(text, false)
}

func (o *Orchestrator) onCaptureError(code capture.ErrorCode, message string) {
	o.pendingStart = false
	o.listening = false
	o.errMsg = message
	o.metrics.RecordCaptureError(code.String())
	o.logger.Info("capture error", "code", code, "message", message)

	if !o.inFlight && o.current == nil {
		o.retryListen(o.config.RestartDelay, false, "error")
	}
	o.publish()
}

// request sends userText with a freshly built prompt. The prompt is built
// after any user turn is logged, so it includes that turn.
func (o *Orchestrator) request(userText string, welcome bool) {
	gen := o.generation
	prompt := o.Prompt()
	o.inFlight = true
	o.publish()

	ctx := context.WithoutCancel(o.runCtx)
	go func() {
		start := time.Now()
		reply, err := o.responder.Respond(ctx, prompt, userText)
		o.metrics.RecordRemote(err, time.Since(start))
		o.post(func() { o.onReply(gen, reply, err, welcome) })
	}()
}

func (o *Orchestrator) onReply(gen uint64, reply string, err error, welcome bool) {
	o.inFlight = false
	text := reply

	if welcome && err != nil {
		o.logger.Warn("greeting failed, using fallback", "error", err)
		text = o.cat.WelcomeFallback
	} else {
		if !welcome {
			if lc := o.metrics.Latency(); lc != nil {
				lc.MarkResponse()
			}
		}
		o.appendTurn(convlog.AgentTurn(reply))
	}

	if gen != o.generation {
		o.logger.Info("reply arrived after restart, not speaking", "generation", gen)
		if o.welcomePending {
			o.welcomePending = false
			o.welcome()
		}
		o.publish()
		return
	}
	o.speak(text)
}

// speak pre-warms the recognizer and starts the utterance.
func (o *Orchestrator) speak(text string) {
	if err := o.capture.PrepareForNextRecognition(); err != nil {
		o.logger.Debug("prepare recognizer", "error", err)
		if errors.Is(err, capture.ErrRecognizerUnavailable) {
			o.errMsg = o.cat.CaptureInitFailed
		}
	}

	var u *speech.Utterance
	u = o.synth.Speak(text, func() {
		o.post(func() { o.onSpoken(u) })
	})
	o.current = u
	o.publish()
}

func (o *Orchestrator) onSpoken(u *speech.Utterance) {
	if u == nil || u != o.current {
		o.logger.Debug("stale completion ignored")
		return
	}
	o.current = nil
	o.metrics.RecordUtterance(u.Outcome().String())
	o.listen(true)
	o.publish()
}

func (o *Orchestrator) appendTurn(t convlog.Turn) {
	if err := o.log.Append(context.WithoutCancel(o.runCtx), t); err != nil {
		o.logger.Error("append turn failed", "speaker", t.Speaker, "error", err)
	}
	o.metrics.RecordTurn(t.Speaker.String())
	if o.observer != nil {
		o.observer.TurnAdded(t)
	}
}

func (o *Orchestrator) publish() {
	st := UIState{
		State:      o.derive(),
		Listening:  o.listening,
		Processing: o.inFlight,
		Error:      o.errMsg,
	}
	if prev := o.state.Load(); prev != nil && *prev == st {
		return
	}
	o.state.Store(&st)
	o.metrics.SetState(st.State.String())
	if o.observer != nil {
		o.observer.StateChanged(st)
	}
}

func (o *Orchestrator) derive() State {
	switch {
	case o.current != nil:
		return StateSpeaking
	case o.inFlight:
		return StateProcessing
	case o.listening:
		return StateListening
	default:
		return StateIdle
	}
}

var (
	_ Capture         = (*capture.Adapter)(nil)
	_ Synthesis       = (*speech.Synthesizer)(nil)
	_ ConversationLog = (*convlog.Log)(nil)
	_ SettingsSource  = (*settings.Settings)(nil)
)
