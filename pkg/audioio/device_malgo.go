//go:build cgo

package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

const deviceAvailable = true

// MalgoSource captures from the default microphone through miniaudio.
type MalgoSource struct {
	cfg    Config
	logger *slog.Logger
	ctx    *malgo.AllocatedContext

	mu      sync.Mutex
	device  *malgo.Device
	pending []byte
	chunks  chan AudioChunk
	running bool
	closed  bool

	overruns atomic.Int64
}

func newDeviceSource(cfg Config, logger *slog.Logger) (Source, error) {
	return NewMalgoSource(cfg, logger)
}

// NewMalgoSource initializes a miniaudio context for capture.
func NewMalgoSource(cfg Config, logger *slog.Logger) (*MalgoSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{
		ThreadPriority: malgo.ThreadPriorityRealtime,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	return &MalgoSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.malgo"),
		ctx:    mctx,
	}, nil
}

// Start opens the capture device.
func (s *MalgoSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.cfg.Channels)
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(s.cfg.BufferDuration.Milliseconds())

	chunks := make(chan AudioChunk, 50)
	chunkBytes := s.cfg.BufferBytes()

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if !s.running {
				return
			}
			s.pending = append(s.pending, input...)
			for len(s.pending) >= chunkBytes {
				var chunk AudioChunk
				chunk.FromBytes(s.pending[:chunkBytes], s.cfg.SampleRate, s.cfg.Channels)
				s.pending = s.pending[chunkBytes:]
				select {
				case chunks <- chunk:
				default:
					s.overruns.Add(1)
				}
			}
		},
	}

	device, err := malgo.InitDevice(s.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	s.device = device
	s.chunks = chunks
	s.pending = s.pending[:0]
	s.running = true

	s.logger.Debug("microphone started", "sample_rate", s.cfg.SampleRate)
	return nil
}

// Stop closes the capture device. Pending Reads return io.EOF.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	device := s.device
	s.device = nil
	close(s.chunks)
	s.mu.Unlock()

	// Uninit waits for the callback thread, so it runs without the lock.
	device.Uninit()

	if n := s.overruns.Swap(0); n > 0 {
		s.logger.Warn("microphone overruns", "dropped_chunks", n)
	}
	s.logger.Debug("microphone stopped")
	return nil
}

// Read returns the next captured chunk.
func (s *MalgoSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	chunks := s.chunks
	s.mu.Unlock()

	if chunks == nil {
		return AudioChunk{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-chunks:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Config returns the capture configuration.
func (s *MalgoSource) Config() Config { return s.cfg }

// Name returns "malgo".
func (s *MalgoSource) Name() string { return "malgo" }

// Close stops capture and releases the audio context.
func (s *MalgoSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	err := s.ctx.Uninit()
	s.ctx.Free()
	return err
}

var _ Source = (*MalgoSource)(nil)
