//go:build cgo

package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func sharedOtoContext(cfg Config) (*oto.Context, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if otoErr == nil {
			<-ready
			otoRate = cfg.SampleRate
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("init speaker: %w", otoErr)
	}
	if otoRate != cfg.SampleRate {
		return nil, fmt.Errorf("speaker already opened at %d Hz, requested %d Hz", otoRate, cfg.SampleRate)
	}
	return otoCtx, nil
}

// OtoSink plays through the default speaker.
//
// Queued bytes are pulled by an oto player. A player ends when the queue
// runs dry; the next Write starts a new one.
type OtoSink struct {
	cfg    Config
	logger *slog.Logger
	ctx    *oto.Context

	// bufMu guards buf only. The player calls Read while holding its own
	// lock, so Read must never wait on mu.
	bufMu sync.Mutex
	buf   []byte

	mu     sync.Mutex
	player *oto.Player
	closed bool
}

func newDeviceSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return NewOtoSink(cfg, logger)
}

// NewOtoSink opens the speaker.
func NewOtoSink(cfg Config, logger *slog.Logger) (*OtoSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, err := sharedOtoContext(cfg)
	if err != nil {
		return nil, err
	}
	return &OtoSink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.oto"),
		ctx:    ctx,
	}, nil
}

// Start is a no-op; playback begins on the first Write.
func (s *OtoSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	return nil
}

// Stop discards queued audio.
func (s *OtoSink) Stop() error {
	return s.Clear()
}

// Write queues a chunk.
func (s *OtoSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}

	s.bufMu.Lock()
	s.buf = append(s.buf, chunk.Bytes()...)
	s.bufMu.Unlock()

	if s.player == nil || !s.player.IsPlaying() {
		if s.player != nil {
			s.player.Close()
		}
		s.player = s.ctx.NewPlayer(&otoReader{sink: s})
		s.player.Play()
	}
	return nil
}

// Flush waits until the queue and the player's buffer are drained.
func (s *OtoSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.bufMu.Lock()
		queued := len(s.buf)
		s.bufMu.Unlock()
		s.mu.Lock()
		done := queued == 0 && (s.player == nil || !s.player.IsPlaying())
		s.mu.Unlock()
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Clear stops playback immediately.
func (s *OtoSink) Clear() error {
	s.bufMu.Lock()
	s.buf = s.buf[:0]
	s.bufMu.Unlock()

	s.mu.Lock()
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Pause()
		return player.Close()
	}
	return nil
}

// Config returns the playback configuration.
func (s *OtoSink) Config() Config { return s.cfg }

// Name returns "oto".
func (s *OtoSink) Name() string { return "oto" }

// Close stops playback. The shared oto context stays alive.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Clear()
}

// otoReader feeds queued bytes to a player and reports EOF when the queue
// is empty so the player finishes.
type otoReader struct {
	sink *OtoSink
}

func (r *otoReader) Read(p []byte) (int, error) {
	s := r.sink
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	if len(s.buf) == 0 {
		return 0, io.EOF
	}
	// Whole samples only.
	n := copy(p[:len(p)&^1], s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

var _ Sink = (*OtoSink)(nil)
