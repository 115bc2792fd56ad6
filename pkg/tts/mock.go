package tts

import (
	"context"
	"math"
	"sync"
	"time"
)

// MockRuneDuration is how much audio the mock produces per rune of text.
const MockRuneDuration = 20 * time.Millisecond

const mockRate = 24000

// Mock is a Provider for tests. By default it answers with a quiet 440 Hz
// tone at 24 kHz, MockRuneDuration per rune, so sinks receive audible
// PCM whose length is predictable from the text.
type Mock struct {
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)
	HealthFunc     func(ctx context.Context) error
	CloseFunc      func() error

	// Delay is waited before every Synthesize, honoring ctx.
	Delay time.Duration

	mu     sync.Mutex
	texts  []string
	health int
	closed int
}

// NewMock creates a mock that synthesizes the tone.
func NewMock() *Mock {
	return &Mock{SynthesizeFunc: toneResult}
}

// NewFailingMock creates a mock whose Synthesize and Health return err.
func NewFailingMock(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(context.Context, string) (*AudioResult, error) { return nil, err },
		HealthFunc:     func(context.Context) error { return err },
	}
}

func toneResult(_ context.Context, text string) (*AudioResult, error) {
	runes := len([]rune(text))
	n := runes * int(MockRuneDuration/time.Millisecond) * mockRate / 1000
	pcm := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		s := int16(3000 * math.Sin(2*math.Pi*440*float64(i)/mockRate))
		pcm[2*i] = byte(s)
		pcm[2*i+1] = byte(uint16(s) >> 8)
	}
	return &AudioResult{
		Audio:     pcm,
		Format:    AudioFormat{Encoding: EncodingPCM24, SampleRate: mockRate, Channels: 1},
		Duration:  time.Duration(runes) * MockRuneDuration,
		CharCount: runes,
	}, nil
}

// Synthesize records text and calls SynthesizeFunc.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.SynthesizeFunc == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return m.SynthesizeFunc(ctx, text)
}

// Health counts the check and calls HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	m.mu.Lock()
	m.health++
	m.mu.Unlock()
	if m.HealthFunc == nil {
		return nil
	}
	return m.HealthFunc(ctx)
}

// Close counts the close and calls CloseFunc.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

// Texts returns every text passed to Synthesize, in order.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// HealthChecks returns how many times Health was called.
func (m *Mock) HealthChecks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

// Closed returns how many times Close was called.
func (m *Mock) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Provider = (*Mock)(nil)
