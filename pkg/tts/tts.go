// Package tts turns reply text into PCM audio.
//
// Three providers are available: OpenAI's speech endpoint, ElevenLabs and
// a local Piper server reached over the Wyoming protocol. All of them
// return little-endian 16-bit PCM so playback never needs a decoder. A
// Chain tries several providers in order and remembers which ones failed.
//
//	p, err := tts.NewOpenAI(tts.WithAPIKey(key), tts.WithVoice(tts.VoiceNova))
//	result, err := p.Synthesize(ctx, "こんにちは")
package tts

import (
	"context"
	"fmt"
	"time"
)

// Provider synthesizes a whole utterance at once.
type Provider interface {
	Synthesize(ctx context.Context, text string) (*AudioResult, error)
	Health(ctx context.Context) error
	Close() error
}

// AudioResult is one synthesized utterance.
type AudioResult struct {
	Audio     []byte // PCM16 LE, interleaved when Channels > 1
	Format    AudioFormat
	Duration  time.Duration
	CharCount int           // runes, not bytes
	Latency   time.Duration // request start to last byte
}

type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Encoding names a PCM rate the way ElevenLabs' output_format does.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050" // Piper medium voices
	EncodingPCM24 Encoding = "pcm_24000" // OpenAI, ElevenLabs default
	EncodingPCM44 Encoding = "pcm_44100"
)

// SampleRateFromEncoding parses the rate out of enc, defaulting to 24kHz.
func SampleRateFromEncoding(enc Encoding) int {
	var rate int
	if _, err := fmt.Sscanf(string(enc), "pcm_%d", &rate); err != nil || rate <= 0 {
		return 24000
	}
	return rate
}

// PCMDuration is the playback time of numBytes of mono PCM16.
func PCMDuration(numBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(numBytes/2) * time.Second / time.Duration(sampleRate)
}

func newResult(audio []byte, rate, channels int, text string, start time.Time) *AudioResult {
	if channels < 1 {
		channels = 1
	}
	return &AudioResult{
		Audio: audio,
		Format: AudioFormat{
			Encoding:   Encoding(fmt.Sprintf("pcm_%d", rate)),
			SampleRate: rate,
			Channels:   channels,
		},
		Duration:  PCMDuration(len(audio)/channels, rate),
		CharCount: len([]rune(text)),
		Latency:   time.Since(start),
	}
}
