package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	providerElevenLabs = "elevenlabs"
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
)

const (
	ModelFlashV2_5      = "eleven_flash_v2_5"
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabsVoices maps preset names to voice IDs. Every preset speaks
// Japanese through the multilingual models.
var ElevenLabsVoices = map[string]string{
	"sarah":   "EXAVITQu4vr4xnSDxMaL", // soft female
	"lily":    "pFZP5JQG7iQjIQuC4Bku", // warm female
	"rachel":  "21m00Tcm4TlvDq8ikWAM", // calm female
	"aria":    "9BWtsMINqrJLrRacOk9x",
	"charlie": "IKne3meq5aSn9XLyUdCD", // relaxed male
	"george":  "JBFqnCBsd6RMkjVDRZzb",
}

const DefaultElevenLabsVoice = "sarah"

// ResolveElevenLabsVoice maps a preset name to its ID. Anything else is
// taken to be an ID already.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := ElevenLabsVoices[name]; ok {
		return id
	}
	return name
}

// VoiceSettings are ElevenLabs' per-request voice controls, each 0..1.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings favours a calm, even delivery.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.6, SimilarityBoost: 0.75, SpeakerBoost: true}
}

// ElevenLabs synthesizes through /text-to-speech/{voice}.
type ElevenLabs struct {
	httpVoice
	config *Config
}

// NewElevenLabs requires an API key and a voice, either a preset name from
// ElevenLabsVoices or a raw voice ID.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}
	cfg.VoiceID = ResolveElevenLabsVoice(cfg.VoiceID)

	e := &ElevenLabs{
		httpVoice: newHTTPVoice(providerElevenLabs, elevenLabsBaseURL, cfg),
		config:    cfg,
	}
	e.authorize = func(r *http.Request) {
		r.Header.Set("xi-api-key", cfg.APIKey)
		r.Header.Set("Accept", "audio/pcm")
	}
	e.detail = func(body []byte) (string, string, bool) {
		var env struct {
			Detail struct {
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"detail"`
		}
		if json.Unmarshal(body, &env) != nil || env.Detail.Message == "" {
			return "", "", false
		}
		return env.Detail.Message, env.Detail.Status, true
	}
	return e, nil
}

type elevenLabsRequest struct {
	Text     string        `json:"text"`
	ModelID  string        `json:"model_id"`
	Settings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	VoiceSettings
	Speed float64 `json:"speed,omitempty"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	path := "/text-to-speech/" + url.PathEscape(e.config.VoiceID) +
		"?output_format=" + url.QueryEscape(string(e.config.OutputFormat))
	audio, err := e.fetchPCM(ctx, path, elevenLabsRequest{
		Text:     text,
		ModelID:  e.config.ModelID,
		Settings: voiceSettings{VoiceSettings: e.config.VoiceSettings, Speed: e.config.Speed},
	})
	if err != nil {
		return nil, err
	}

	result := newResult(audio, SampleRateFromEncoding(e.config.OutputFormat), 1, text, start)
	e.logSynthesis(result, "model", e.config.ModelID)
	return result, nil
}

// Health fetches the account, which checks the key.
func (e *ElevenLabs) Health(ctx context.Context) error {
	return e.probe(ctx, "/user")
}

// VoiceID returns the resolved voice ID.
func (e *ElevenLabs) VoiceID() string { return e.config.VoiceID }

var _ Provider = (*ElevenLabs)(nil)
