package audioio

import (
	"context"
	"io"
	"time"
)

// AudioChunk is a run of interleaved PCM16 samples.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes returns the samples as little-endian PCM16.
func (c *AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// FromBytes populates the chunk from little-endian PCM16 bytes.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = BytesToSamples(data)
}

// Duration returns the playback length of the chunk.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Source captures audio from a microphone.
type Source interface {
	// Start begins capture. Chunks are then available via Read.
	Start(ctx context.Context) error

	// Stop halts capture. It is safe to call Stop multiple times and the
	// source may be started again.
	Stop() error

	// Read returns the next chunk, blocking until one is available.
	// Returns io.EOF once the source is stopped.
	Read(ctx context.Context) (AudioChunk, error)

	// Config returns the capture configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	io.Closer
}

// Sink plays audio to a speaker.
type Sink interface {
	// Start prepares playback.
	Start(ctx context.Context) error

	// Stop halts playback.
	Stop() error

	// Write queues a chunk for playback. It may block while the output
	// buffer is full.
	Write(ctx context.Context, chunk AudioChunk) error

	// Flush blocks until everything queued has been played.
	Flush(ctx context.Context) error

	// Clear discards queued audio immediately.
	Clear() error

	// Config returns the playback configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	io.Closer
}
