package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock microphone. It replays scripted chunks, then
// generates a sine wave or silence, one chunk per BufferDuration.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}
	script  []AudioChunk
	failErr error

	paced     bool
	offset    int64   // samples generated, modulo one second
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0

	chunksRead atomic.Int64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave generates a sine wave once the script is exhausted.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithScript replays chunks before generating audio.
func WithScript(chunks ...AudioChunk) MockSourceOption {
	return func(m *MockSource) {
		m.script = append(m.script, chunks...)
	}
}

// WithFailure makes Read return err once the script is exhausted.
func WithFailure(err error) MockSourceOption {
	return func(m *MockSource) { m.failErr = err }
}

// WithoutPacing returns chunks as fast as they are read.
func WithoutPacing() MockSourceOption {
	return func(m *MockSource) { m.paced = false }
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		paced:     true,
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tone returns d of a sine wave at amplitude (0..1) of full scale, or
// silence for amplitude 0.
func Tone(cfg Config, d time.Duration, frequency, amplitude float64) AudioChunk {
	frames := int(float64(cfg.SampleRate) * d.Seconds())
	return sine(cfg, frames, 0, frequency, amplitude)
}

// sine renders frames starting at sample offset, copied to every channel.
func sine(cfg Config, frames int, offset int64, frequency, amplitude float64) AudioChunk {
	chunk := AudioChunk{
		Samples:    make([]int16, frames*cfg.Channels),
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
	}
	if frequency <= 0 || amplitude <= 0 {
		return chunk
	}
	w := 2 * math.Pi * frequency / float64(cfg.SampleRate)
	for i := 0; i < frames; i++ {
		v := int16(amplitude * math.MaxInt16 * math.Sin(w*float64(offset+int64(i))))
		for ch := 0; ch < cfg.Channels; ch++ {
			chunk.Samples[i*cfg.Channels+ch] = v
		}
	}
	return chunk
}

func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})

	m.logger.Debug("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"scripted_chunks", len(m.script),
	)
	return nil
}

func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	return nil
}

// Read returns the next chunk.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return AudioChunk{}, io.EOF
	}
	stopCh := m.stopCh
	paced := m.paced
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return AudioChunk{}, err
	}

	var due <-chan time.Time
	if paced {
		timer := time.NewTimer(m.cfg.BufferDuration)
		defer timer.Stop()
		due = timer.C
	} else {
		now := make(chan time.Time, 1)
		now <- time.Time{}
		due = now
	}

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case <-stopCh:
		return AudioChunk{}, io.EOF
	case <-due:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.chunksRead.Add(1)
	if len(m.script) > 0 {
		chunk := m.script[0]
		m.script = m.script[1:]
		return chunk, nil
	}
	if m.failErr != nil {
		return AudioChunk{}, m.failErr
	}
	return m.generateChunk(), nil
}

func (m *MockSource) generateChunk() AudioChunk {
	frames := m.cfg.BufferSize()
	chunk := sine(m.cfg, frames, m.offset, m.frequency, m.amplitude)
	m.offset = (m.offset + int64(frames)) % int64(m.cfg.SampleRate)
	return chunk
}

// ChunksRead returns how many chunks were delivered.
func (m *MockSource) ChunksRead() int64 {
	return m.chunksRead.Load()
}

func (m *MockSource) Config() Config { return m.cfg }

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

var _ Source = (*MockSource)(nil)

// MockSink is a mock speaker. It records everything written.
type MockSink struct {
	cfg      Config
	logger   *slog.Logger
	realtime bool

	mu      sync.Mutex
	running bool
	closed  bool
	queued  []AudioChunk
	written []int16
	clearCh chan struct{}
	clears  int
}

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// WithRealtimePlayback makes Flush take as long as the queued audio.
func WithRealtimePlayback() MockSinkOption {
	return func(m *MockSink) { m.realtime = true }
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger, opts ...MockSinkOption) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSink{
		cfg:     cfg,
		logger:  logger,
		clearCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	m.running = true
	return nil
}

func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Write queues an audio chunk.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}

	m.queued = append(m.queued, chunk)
	m.written = append(m.written, chunk.Samples...)
	return nil
}

// Flush "plays" the queued audio.
func (m *MockSink) Flush(ctx context.Context) error {
	m.mu.Lock()
	var d time.Duration
	for _, c := range m.queued {
		d += c.Duration()
	}
	clearCh := m.clearCh
	realtime := m.realtime
	m.mu.Unlock()

	if realtime && d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clearCh:
			return nil
		case <-timer.C:
		}
	}

	m.mu.Lock()
	m.queued = m.queued[:0]
	m.mu.Unlock()
	return nil
}

// Clear discards queued audio and interrupts a pending Flush.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queued = m.queued[:0]
	m.clears++
	close(m.clearCh)
	m.clearCh = make(chan struct{})
	return nil
}

// Written returns every sample written so far.
func (m *MockSink) Written() []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int16(nil), m.written...)
}

// Clears returns how many times Clear was called.
func (m *MockSink) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

func (m *MockSink) Config() Config { return m.cfg }

func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.running = false
	m.mu.Unlock()
	return nil
}

var _ Sink = (*MockSink)(nil)
