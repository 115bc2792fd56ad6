package capture

import (
	"math"
	"time"

	"github.com/teslashibe/go-companion/pkg/audioio"
)

// VADConfig tunes the voice-activity detector.
type VADConfig struct {
	// OnThresholdDB is the level (dBFS) that counts as speech.
	OnThresholdDB float64
	// OffThresholdDB is the level (dBFS) that counts as silence. Levels
	// between the two thresholds keep the current state.
	OffThresholdDB float64
	// Attack is how long the level must stay above OnThresholdDB before
	// speech begins.
	Attack time.Duration
	// Release is how long the level must stay below OffThresholdDB before
	// speech ends.
	Release time.Duration
}

// DefaultVADConfig returns thresholds tuned for a desk microphone in a
// quiet room.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		OnThresholdDB:  -38,
		OffThresholdDB: -46,
		Attack:         60 * time.Millisecond,
		Release:        800 * time.Millisecond,
	}
}

// VADEvent is a state change reported by the detector.
type VADEvent int

const (
	VADNone VADEvent = iota
	VADSpeechStart
	VADSpeechEnd
)

// VAD is an energy detector with hysteresis. Timing is measured in audio
// time, not wall time.
type VAD struct {
	cfg    VADConfig
	active bool
	above  time.Duration
	below  time.Duration
}

// NewVAD creates a detector.
func NewVAD(cfg VADConfig) *VAD {
	return &VAD{cfg: cfg}
}

// Process feeds one chunk of mono samples lasting d.
func (v *VAD) Process(samples []int16, d time.Duration) VADEvent {
	db := LevelDBFS(samples)

	switch {
	case db >= v.cfg.OnThresholdDB:
		v.above += d
		v.below = 0
		if !v.active && v.above >= v.cfg.Attack {
			v.active = true
			return VADSpeechStart
		}
	case db <= v.cfg.OffThresholdDB:
		v.below += d
		v.above = 0
		if v.active && v.below >= v.cfg.Release {
			v.active = false
			return VADSpeechEnd
		}
	}
	return VADNone
}

// Active reports whether speech is in progress.
func (v *VAD) Active() bool {
	return v.active
}

// Reset clears the detector state.
func (v *VAD) Reset() {
	v.active = false
	v.above = 0
	v.below = 0
}

// LevelDBFS returns the RMS level of samples in dBFS, floored at -100.
func LevelDBFS(samples []int16) float64 {
	rms := audioio.RMS(samples)
	if rms <= 0 {
		return -100
	}
	return math.Max(-100, 20*math.Log10(rms))
}
