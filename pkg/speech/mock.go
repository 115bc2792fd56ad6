package speech

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MockEngine implements Engine for testing.
type MockEngine struct {
	// InitFunc is called by Init. If nil, Init succeeds.
	InitFunc func(ctx context.Context) error

	// SpeakFunc is called by Speak. If nil, Speak waits Delay or until
	// ctx is cancelled.
	SpeakFunc func(ctx context.Context, text string) error

	// Delay is the simulated playback length used when SpeakFunc is nil.
	Delay time.Duration

	speaking atomic.Bool

	mu     sync.Mutex
	spoken []string
	closed bool
}

// NewMockEngine returns an engine whose utterances last delay.
func NewMockEngine(delay time.Duration) *MockEngine {
	return &MockEngine{Delay: delay}
}

// Init calls InitFunc.
func (m *MockEngine) Init(ctx context.Context) error {
	if m.InitFunc != nil {
		return m.InitFunc(ctx)
	}
	return nil
}

// Speak records text and simulates playback.
func (m *MockEngine) Speak(ctx context.Context, text string) error {
	m.mu.Lock()
	m.spoken = append(m.spoken, text)
	m.mu.Unlock()

	m.speaking.Store(true)
	defer m.speaking.Store(false)

	if m.SpeakFunc != nil {
		return m.SpeakFunc(ctx, text)
	}

	timer := time.NewTimer(m.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsSpeaking reports whether Speak is running.
func (m *MockEngine) IsSpeaking() bool {
	return m.speaking.Load()
}

// Close marks the engine closed.
func (m *MockEngine) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Spoken returns every text passed to Speak.
func (m *MockEngine) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

// Closed reports whether Close was called.
func (m *MockEngine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Engine = (*MockEngine)(nil)
