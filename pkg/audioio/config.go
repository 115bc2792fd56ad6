// Package audioio provides microphone capture and speaker playback.
//
// Backends:
//   - device: the system's default microphone (miniaudio via malgo) and
//     speaker (oto)
//   - mock: synthetic or scripted audio for tests and headless runs
//
// Both device backends need cgo. Without it, BackendAuto falls back to mock.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects device when available, mock otherwise.
	BackendAuto Backend = "auto"
	// BackendDevice uses the system microphone and speaker.
	BackendDevice Backend = "device"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `mapstructure:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000 for capture (what transcription expects).
	SampleRate int `mapstructure:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `mapstructure:"channels" json:"channels"`

	// BufferDuration is the size of one audio chunk.
	BufferDuration time.Duration `mapstructure:"buffer_duration" json:"buffer_duration"`
}

// DefaultConfig returns a capture configuration: 16 kHz mono, 20 ms chunks.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// DefaultPlaybackConfig returns a playback configuration at the 24 kHz rate
// the speech providers produce.
func DefaultPlaybackConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleRate = 24000
	return cfg
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendDevice, BackendMock, "":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of frames per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
