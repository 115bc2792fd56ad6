// Package config loads and validates the companion configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/capture"
	"github.com/teslashibe/go-companion/pkg/locale"
	"github.com/teslashibe/go-companion/pkg/store"
)

// Capture modes.
const (
	CaptureAudio = "audio" // microphone plus transcription
	CaptureText  = "text"  // one utterance per stdin line
)

// TTS provider names, tried in the configured order.
const (
	TTSElevenLabs = "elevenlabs"
	TTSOpenAI     = "openai"
	TTSPiper      = "piper"
)

// Config is the root configuration for the companion.
type Config struct {
	// Language selects the string catalog and recognition language.
	Language  string          `mapstructure:"language"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     store.Config    `mapstructure:"store"`
	Inference InferenceConfig `mapstructure:"inference"`
	STT       STTConfig       `mapstructure:"stt"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Dialogue  DialogueConfig  `mapstructure:"dialogue"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig configures the dashboard.
type ServerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
}

// InferenceConfig configures the chat completion endpoint.
type InferenceConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// STTConfig configures transcription.
type STTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TTSConfig selects the synthesis providers. Providers lists them in
// fallback order.
type TTSConfig struct {
	Providers  []string         `mapstructure:"providers"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	OpenAI     OpenAITTSConfig  `mapstructure:"openai"`
	Piper      PiperConfig      `mapstructure:"piper"`
	Timeout    time.Duration    `mapstructure:"timeout"`
}

// ElevenLabsConfig holds ElevenLabs settings.
type ElevenLabsConfig struct {
	APIKey string `mapstructure:"api_key"`
	Voice  string `mapstructure:"voice"`
	Model  string `mapstructure:"model"`
}

// OpenAITTSConfig holds OpenAI speech settings.
type OpenAITTSConfig struct {
	APIKey string  `mapstructure:"api_key"`
	Voice  string  `mapstructure:"voice"`
	Model  string  `mapstructure:"model"`
	Speed  float64 `mapstructure:"speed"`
}

// PiperConfig holds Piper settings (Wyoming protocol).
type PiperConfig struct {
	Endpoint string `mapstructure:"endpoint"` // host:port
	Voice    string `mapstructure:"voice"`
}

// CaptureConfig configures speech capture.
type CaptureConfig struct {
	Mode                string        `mapstructure:"mode"`
	SilenceTimeout      time.Duration `mapstructure:"silence_timeout"`
	MinSpeechLength     time.Duration `mapstructure:"min_speech_length"`
	PartialResultsDelay time.Duration `mapstructure:"partial_results_delay"`
	Partials            bool          `mapstructure:"partials"`
	PartialInterval     time.Duration `mapstructure:"partial_interval"`
	MaxUtterance        time.Duration `mapstructure:"max_utterance"`
	VAD                 VADConfig     `mapstructure:"vad"`
}

// VADConfig holds voice-activity thresholds in dBFS.
type VADConfig struct {
	OnDB    float64       `mapstructure:"on_db"`
	OffDB   float64       `mapstructure:"off_db"`
	Attack  time.Duration `mapstructure:"attack"`
	Release time.Duration `mapstructure:"release"`
}

// SpeechConfig configures the synthesizer.
type SpeechConfig struct {
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// DialogueConfig configures the orchestrator retry timings.
type DialogueConfig struct {
	RestartDelay time.Duration `mapstructure:"restart_delay"`
	StopBackoff  time.Duration `mapstructure:"stop_backoff"`
	BusyBackoff  time.Duration `mapstructure:"busy_backoff"`
}

// AudioConfig configures the microphone and speaker.
type AudioConfig struct {
	Input  audioio.Config `mapstructure:"input"`
	Output audioio.Config `mapstructure:"output"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Load reads the configuration from file, environment variables and
// defaults. If configFile is empty the search order is ./companion.yaml,
// ./configs/companion.yaml, /etc/companion/companion.yaml; a missing file
// is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("companion")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/companion")
	}

	// COMPANION_INFERENCE_MODEL, COMPANION_TTS_PROVIDERS=piper,openai, etc.
	v.SetEnvPrefix("COMPANION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.resolveSecrets()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("language", locale.Japanese)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.static_dir", "")

	v.SetDefault("store.backend", store.BackendJSON)
	v.SetDefault("store.path", "./data")
	v.SetDefault("store.dsn", "")

	v.SetDefault("inference.base_url", "https://api.openai.com/v1")
	v.SetDefault("inference.api_key", "")
	v.SetDefault("inference.model", "gpt-4o-mini")
	v.SetDefault("inference.max_tokens", 0)
	v.SetDefault("inference.temperature", 0.7)
	v.SetDefault("inference.timeout", 30*time.Second)

	v.SetDefault("stt.base_url", "https://api.openai.com/v1")
	v.SetDefault("stt.api_key", "")
	v.SetDefault("stt.model", "whisper-1")
	v.SetDefault("stt.timeout", 30*time.Second)

	v.SetDefault("tts.providers", []string{TTSOpenAI})
	v.SetDefault("tts.timeout", 30*time.Second)
	v.SetDefault("tts.elevenlabs.api_key", "")
	v.SetDefault("tts.elevenlabs.voice", "")
	v.SetDefault("tts.elevenlabs.model", "eleven_multilingual_v2")
	v.SetDefault("tts.openai.api_key", "")
	v.SetDefault("tts.openai.voice", "nova")
	v.SetDefault("tts.openai.model", "tts-1")
	v.SetDefault("tts.openai.speed", 1.0)
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("tts.piper.voice", "ja_JP-amitaro-medium")

	v.SetDefault("capture.mode", CaptureAudio)
	v.SetDefault("capture.silence_timeout", capture.DefaultSilenceTimeout)
	v.SetDefault("capture.min_speech_length", capture.DefaultMinSpeechLength)
	v.SetDefault("capture.partial_results_delay", capture.DefaultPartialResultsDelay)
	v.SetDefault("capture.partials", true)
	v.SetDefault("capture.partial_interval", 0)
	rec := capture.DefaultAudioConfig()
	v.SetDefault("capture.max_utterance", rec.MaxUtterance)
	v.SetDefault("capture.vad.on_db", rec.VAD.OnThresholdDB)
	v.SetDefault("capture.vad.off_db", rec.VAD.OffThresholdDB)
	v.SetDefault("capture.vad.attack", rec.VAD.Attack)
	v.SetDefault("capture.vad.release", rec.VAD.Release)

	v.SetDefault("speech.settle_delay", 200*time.Millisecond)

	v.SetDefault("dialogue.restart_delay", time.Second)
	v.SetDefault("dialogue.stop_backoff", 500*time.Millisecond)
	v.SetDefault("dialogue.busy_backoff", time.Second)

	in := audioio.DefaultConfig()
	out := audioio.DefaultPlaybackConfig()
	v.SetDefault("audio.input.backend", string(in.Backend))
	v.SetDefault("audio.input.sample_rate", in.SampleRate)
	v.SetDefault("audio.input.channels", in.Channels)
	v.SetDefault("audio.input.buffer_duration", in.BufferDuration)
	v.SetDefault("audio.output.backend", string(out.Backend))
	v.SetDefault("audio.output.sample_rate", out.SampleRate)
	v.SetDefault("audio.output.channels", out.Channels)
	v.SetDefault("audio.output.buffer_duration", out.BufferDuration)

	v.SetDefault("metrics.namespace", "companion")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// resolveSecrets expands "${VAR}" references and falls back to the
// providers' conventional environment variables.
func (c *Config) resolveSecrets() {
	openAIKey := os.Getenv("OPENAI_API_KEY")

	c.Inference.APIKey = orDefault(resolveEnvRef(c.Inference.APIKey), openAIKey)
	c.STT.APIKey = orDefault(resolveEnvRef(c.STT.APIKey), openAIKey)
	c.TTS.OpenAI.APIKey = orDefault(resolveEnvRef(c.TTS.OpenAI.APIKey), openAIKey)
	c.TTS.ElevenLabs.APIKey = orDefault(resolveEnvRef(c.TTS.ElevenLabs.APIKey), os.Getenv("ELEVENLABS_API_KEY"))
	c.Store.DSN = resolveEnvRef(c.Store.DSN)
}

// resolveEnvRef replaces a "${VAR_NAME}" value with the env var's value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

func orDefault(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

// Validate checks the configuration and returns the first *ConfigError.
func (c *Config) Validate() error {
	if !locale.Supported(c.Language) {
		return &ConfigError{Field: "language", Message: fmt.Sprintf("unsupported language %q", c.Language)}
	}

	switch c.Store.Backend {
	case store.BackendJSON, "":
		if c.Store.Path == "" {
			return &ConfigError{Field: "store.path", Message: "required for the json backend"}
		}
	case store.BackendPostgres:
		if c.Store.DSN == "" {
			return &ConfigError{Field: "store.dsn", Message: "required for the postgres backend"}
		}
	case store.BackendMemory:
	default:
		return &ConfigError{Field: "store.backend", Message: fmt.Sprintf("unknown backend %q", c.Store.Backend)}
	}

	if c.Inference.Model == "" {
		return &ConfigError{Field: "inference.model", Message: "required"}
	}
	if c.Inference.BaseURL == "" {
		return &ConfigError{Field: "inference.base_url", Message: "required"}
	}

	switch c.Capture.Mode {
	case CaptureAudio:
		if c.STT.APIKey == "" {
			return &ConfigError{Field: "stt.api_key", Message: "required for audio capture (or set OPENAI_API_KEY)"}
		}
		if c.Capture.VAD.OffDB > c.Capture.VAD.OnDB {
			return &ConfigError{Field: "capture.vad.off_db", Message: "must not exceed capture.vad.on_db"}
		}
	case CaptureText:
	default:
		return &ConfigError{Field: "capture.mode", Message: fmt.Sprintf("unknown mode %q", c.Capture.Mode)}
	}

	if len(c.TTS.Providers) == 0 {
		return &ConfigError{Field: "tts.providers", Message: "at least one provider is required"}
	}
	for _, name := range c.TTS.Providers {
		switch name {
		case TTSElevenLabs:
			if c.TTS.ElevenLabs.APIKey == "" {
				return &ConfigError{Field: "tts.elevenlabs.api_key", Message: "required (or set ELEVENLABS_API_KEY)"}
			}
			if c.TTS.ElevenLabs.Voice == "" {
				return &ConfigError{Field: "tts.elevenlabs.voice", Message: "required"}
			}
		case TTSOpenAI:
			if c.TTS.OpenAI.APIKey == "" {
				return &ConfigError{Field: "tts.openai.api_key", Message: "required (or set OPENAI_API_KEY)"}
			}
		case TTSPiper:
			if c.TTS.Piper.Endpoint == "" {
				return &ConfigError{Field: "tts.piper.endpoint", Message: "required"}
			}
		default:
			return &ConfigError{Field: "tts.providers", Message: fmt.Sprintf("unknown provider %q", name)}
		}
	}

	if err := c.Audio.Input.Validate(); err != nil {
		return &ConfigError{Field: "audio.input", Message: err.Error()}
	}
	if err := c.Audio.Output.Validate(); err != nil {
		return &ConfigError{Field: "audio.output", Message: err.Error()}
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return &ConfigError{Field: "server.addr", Message: "required when the dashboard is enabled"}
	}
	return nil
}
