package capture

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// Utterance is one scripted recognition outcome: either text or an
// error code.
type Utterance struct {
	Text string
	Code ErrorCode
}

// ReadLines turns each non-empty line of r into an Utterance. The channel
// closes at EOF or when ctx is done.
func ReadLines(ctx context.Context, r io.Reader) <-chan Utterance {
	out := make(chan Utterance)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case out <- Utterance{Text: line}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// NewScriptedFactory returns recognizers that take each session's outcome
// from utterances. A session with no utterance within its silence timeout
// reports ErrorSpeechTimeout; a closed channel makes sessions wait until
// stopped.
func NewScriptedFactory(utterances <-chan Utterance) RecognizerFactory {
	return func() (Recognizer, error) {
		return &ScriptedRecognizer{utterances: utterances}, nil
	}
}

// ScriptedRecognizer replays utterances instead of listening. It backs
// text mode and tests.
type ScriptedRecognizer struct {
	utterances <-chan Utterance

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	listener Listener
}

// Listen starts a session.
func (s *ScriptedRecognizer) Listen(ctx context.Context, cfg SessionConfig, l Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrRecognizerBusy
	}
	sctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.listener = l

	go s.run(sctx, cfg, l, s.done)
	return nil
}

func (s *ScriptedRecognizer) run(ctx context.Context, cfg SessionConfig, l Listener, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	l.OnReady()

	var timeout <-chan time.Time
	if cfg.SilenceTimeout > 0 {
		timer := time.NewTimer(cfg.SilenceTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	utterances := s.utterances
	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			l.OnError(ErrorSpeechTimeout, nil)
			return
		case u, ok := <-utterances:
			if !ok {
				utterances = nil
				timeout = nil
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if u.Code != 0 {
				l.OnError(u.Code, nil)
				return
			}
			l.OnSpeechBegin()
			if cfg.Partials {
				l.OnPartial(u.Text)
			}
			l.OnResult(u.Text)
			return
		}
	}
}

// Stop ends the session without further events.
func (s *ScriptedRecognizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Cancel aborts the session and reports ErrorClient.
func (s *ScriptedRecognizer) Cancel() {
	s.mu.Lock()
	running := s.running
	l := s.listener
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if running && l != nil {
		l.OnError(ErrorClient, context.Canceled)
	}
}

// Close stops the session and waits for it to end.
func (s *ScriptedRecognizer) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

var _ Recognizer = (*ScriptedRecognizer)(nil)
