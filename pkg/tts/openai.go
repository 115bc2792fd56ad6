package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const (
	providerOpenAI = "openai"
	openAIBaseURL  = "https://api.openai.com/v1"

	// openAIRate is fixed for response_format=pcm.
	openAIRate = 24000
)

// OpenAI voices. All of them read Japanese; nova and shimmer sound the
// gentlest.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

const (
	ModelTTS1   = "tts-1"
	ModelTTS1HD = "tts-1-hd"
)

// OpenAI synthesizes through the /audio/speech endpoint.
type OpenAI struct {
	httpVoice
	config *Config
}

// NewOpenAI requires an API key. Voice defaults to nova and model to tts-1.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.VoiceID = VoiceNova
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceNova
	}

	o := &OpenAI{
		httpVoice: newHTTPVoice(providerOpenAI, openAIBaseURL, cfg),
		config:    cfg,
	}
	o.authorize = func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	o.detail = func(body []byte) (string, string, bool) {
		var env struct {
			Error struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &env) != nil || env.Error.Message == "" {
			return "", "", false
		}
		return env.Error.Message, env.Error.Code, true
	}
	return o, nil
}

func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	payload := map[string]any{
		"model":           o.config.ModelID,
		"voice":           o.config.VoiceID,
		"input":           text,
		"response_format": "pcm",
	}
	if o.config.Speed > 0 {
		payload["speed"] = o.config.Speed
	}
	audio, err := o.fetchPCM(ctx, "/audio/speech", payload)
	if err != nil {
		return nil, err
	}

	result := newResult(audio, openAIRate, 1, text, start)
	o.logSynthesis(result, "voice", o.config.VoiceID)
	return result, nil
}

// Health lists models, which fails fast on a bad key.
func (o *OpenAI) Health(ctx context.Context) error {
	return o.probe(ctx, "/models")
}

func (o *OpenAI) VoiceID() string { return o.config.VoiceID }

var _ Provider = (*OpenAI)(nil)
