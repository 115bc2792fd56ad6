// Package capture turns the microphone into transcripts, one listening
// session at a time.
//
// A Recognizer is the black box that hears speech. The Adapter owns the
// single recognizer instance and gives callers start, stop and pre-warm
// operations with a strict per-session contract: zero or one final result,
// any number of rate-limited partial results, and zero or one error.
// Events from sessions that were stopped are discarded.
package capture

import (
	"context"
	"time"
)

// Listener receives recognizer events for one session. Callbacks may
// arrive on any goroutine.
type Listener interface {
	// OnReady is called once capture is running.
	OnReady()

	// OnSpeechBegin is called when the user starts speaking.
	OnSpeechBegin()

	// OnPartial delivers an interim transcript.
	OnPartial(text string)

	// OnResult delivers the final transcript. Empty text means nothing
	// intelligible was heard.
	OnResult(text string)

	// OnError reports a failure. err may be nil.
	OnError(code ErrorCode, err error)
}

// SessionConfig configures one listening session.
type SessionConfig struct {
	// Language is the ISO-639-1 code passed to transcription.
	Language string

	// SilenceTimeout ends the session with ErrorSpeechTimeout when no
	// speech starts within it.
	SilenceTimeout time.Duration

	// Partials requests interim transcripts.
	Partials bool
}

// Recognizer is a speech recognition engine.
type Recognizer interface {
	// Listen starts a session and returns without waiting for speech.
	Listen(ctx context.Context, cfg SessionConfig, l Listener) error

	// Stop ends the current session. No further events are delivered.
	Stop()

	// Cancel aborts the current session and reports ErrorClient if one
	// was running.
	Cancel()

	// Close releases the recognizer. It waits for a running session to
	// wind down.
	Close() error
}

// RecognizerFactory creates a fresh recognizer.
type RecognizerFactory func() (Recognizer, error)
