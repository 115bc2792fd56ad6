// Package speech speaks text aloud, one utterance at a time.
//
// The Synthesizer owns a single Engine and guarantees that at most one
// utterance is in flight. Speaking while already speaking supersedes the
// current utterance: it is cancelled, its completion callback is never
// invoked, and the new utterance starts after a short settle delay.
//
// Every utterance exposes a completion future, so callers wait on Done()
// rather than polling IsSpeaking.
package speech

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNotReady is reported by utterances spoken before Initialize
	// finished successfully.
	ErrNotReady = errors.New("speech: engine not ready")

	// ErrShutdown is reported by utterances spoken after Shutdown.
	ErrShutdown = errors.New("speech: synthesizer shut down")
)

// Engine is the text-to-speech black box.
type Engine interface {
	// Init prepares the engine for use.
	Init(ctx context.Context) error

	// Speak plays text and blocks until playback finishes, fails, or ctx
	// is cancelled.
	Speak(ctx context.Context, text string) error

	// IsSpeaking reports whether audio is currently playing.
	IsSpeaking() bool

	// Close releases engine resources.
	Close() error
}

// Outcome is how an utterance ended.
type Outcome int

const (
	// OutcomePending means the utterance has not ended yet.
	OutcomePending Outcome = iota
	// OutcomeCompleted means playback finished.
	OutcomeCompleted
	// OutcomeFailed means the engine reported an error. It still counts
	// as completion and the callback runs.
	OutcomeFailed
	// OutcomeSuperseded means a newer Speak replaced this utterance.
	OutcomeSuperseded
	// OutcomeCancelled means Stop or Shutdown cut the utterance short.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Utterance is one Speak request.
type Utterance struct {
	ID   string
	Text string

	onComplete func()
	ctx        context.Context
	cancel     context.CancelFunc

	once    sync.Once
	done    chan struct{}
	outcome Outcome
	err     error
}

func newUtterance(parent context.Context, text string, onComplete func()) *Utterance {
	ctx, cancel := context.WithCancel(parent)
	return &Utterance{
		ID:         uuid.NewString(),
		Text:       text,
		onComplete: onComplete,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Done is closed when the utterance ends for any reason.
func (u *Utterance) Done() <-chan struct{} {
	return u.done
}

// Outcome returns how the utterance ended, or OutcomePending.
func (u *Utterance) Outcome() Outcome {
	select {
	case <-u.done:
		return u.outcome
	default:
		return OutcomePending
	}
}

// Err returns the engine error for failed utterances.
func (u *Utterance) Err() error {
	select {
	case <-u.done:
		return u.err
	default:
		return nil
	}
}

// Wait blocks until the utterance ends or ctx is done.
func (u *Utterance) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-u.done:
		return u.outcome, u.err
	case <-ctx.Done():
		return OutcomePending, ctx.Err()
	}
}

// resolve ends the utterance exactly once. The callback runs only when
// notify is set.
func (u *Utterance) resolve(outcome Outcome, err error, notify bool) bool {
	resolved := false
	u.once.Do(func() {
		u.cancel()
		u.outcome = outcome
		u.err = err
		close(u.done)
		resolved = true
	})
	if resolved && notify && u.onComplete != nil {
		u.onComplete()
	}
	return resolved
}
