package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	providerPiper = "piper"

	// DefaultPiperVoice is the Japanese Piper voice model.
	DefaultPiperVoice = "ja_JP-amitaro-medium"

	piperDialTimeout = 10 * time.Second
)

// Piper implements Provider against a local Piper server speaking the
// Wyoming protocol over TCP. BaseURL is the server's host:port.
type Piper struct {
	config   *Config
	endpoint string
	logger   *slog.Logger
}

// NewPiper creates a Piper provider. No API key is needed.
func NewPiper(opts ...Option) (*Piper, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = DefaultPiperVoice
	cfg.OutputFormat = EncodingPCM22
	cfg.Apply(opts...)

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.BaseURL, "tcp://"), "http://")
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Piper{
		config:   cfg,
		endpoint: endpoint,
		logger:   cfg.Logger.With("component", "tts.piper"),
	}, nil
}

// Synthesize sends a synthesize event and collects the audio chunks until
// audio-stop.
func (p *Piper) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data := map[string]any{"text": text}
	if p.config.VoiceID != "" {
		data["voice"] = map[string]any{"name": p.config.VoiceID}
	}
	if err := writeWyomingEvent(conn, wyomingEvent{Type: "synthesize", Data: data}, nil); err != nil {
		return nil, WrapError(providerPiper, fmt.Errorf("send synthesize: %w", err))
	}

	var (
		pcm        bytes.Buffer
		sampleRate = SampleRateFromEncoding(p.config.OutputFormat)
		channels   = 1
		width      = 2
	)

	r := bufio.NewReader(conn)
	for {
		evt, payload, err := readWyomingEvent(r)
		if err != nil {
			return nil, WrapError(providerPiper, fmt.Errorf("read event: %w", err))
		}

		switch evt.Type {
		case "audio-start":
			if v, ok := evt.Data["rate"].(float64); ok {
				sampleRate = int(v)
			}
			if v, ok := evt.Data["channels"].(float64); ok {
				channels = int(v)
			}
			if v, ok := evt.Data["width"].(float64); ok {
				width = int(v)
			}

		case "audio-chunk":
			pcm.Write(payload)

		case "audio-stop":
			if width != 2 {
				return nil, WrapError(providerPiper, fmt.Errorf("unsupported sample width %d", width))
			}
			result := newResult(pcm.Bytes(), sampleRate, channels, text, start)
			p.logger.Debug("synthesized",
				"chars", result.CharCount,
				"rate", sampleRate,
				"audio", result.Duration.Round(time.Millisecond),
				"latency", result.Latency.Round(time.Millisecond),
			)
			return result, nil

		case "error":
			msg := "unknown error"
			if v, ok := evt.Data["text"].(string); ok {
				msg = v
			}
			return nil, &APIError{Message: msg, Provider: providerPiper}

		default:
			p.logger.Debug("ignoring event", "type", evt.Type)
		}
	}
}

// Health asks the server to describe itself.
func (p *Piper) Health(ctx context.Context) error {
	conn, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := writeWyomingEvent(conn, wyomingEvent{Type: "describe"}, nil); err != nil {
		return WrapError(providerPiper, fmt.Errorf("send describe: %w", err))
	}
	evt, _, err := readWyomingEvent(bufio.NewReader(conn))
	if err != nil {
		return WrapError(providerPiper, fmt.Errorf("health check: %w", err))
	}
	if evt.Type != "info" {
		return WrapError(providerPiper, fmt.Errorf("health check: unexpected event %q", evt.Type))
	}
	return nil
}

// Close is a no-op. Connections are per request.
func (p *Piper) Close() error {
	return nil
}

func (p *Piper) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: piperDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.endpoint)
	if err != nil {
		return nil, WrapError(providerPiper, fmt.Errorf("connect: %w", err))
	}

	deadline := time.Now().Add(p.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	return conn, nil
}

// wyomingEvent is one Wyoming protocol message. On the wire it is a
// "<json_length> <payload_length>\n" header, the JSON plus a newline, then
// the binary payload.
type wyomingEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func writeWyomingEvent(w io.Writer, evt wyomingEvent, payload []byte) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d\n", len(body), len(payload))
	buf.Write(body)
	buf.WriteByte('\n')
	buf.Write(payload)

	_, err = w.Write(buf.Bytes())
	return err
}

func readWyomingEvent(r *bufio.Reader) (*wyomingEvent, []byte, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	fields := strings.Fields(header)
	if len(fields) != 2 {
		return nil, nil, fmt.Errorf("invalid header %q", strings.TrimSpace(header))
	}
	jsonLen, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, nil, fmt.Errorf("parse json length: %w", err)
	}
	payloadLen, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, nil, fmt.Errorf("parse payload length: %w", err)
	}

	body := make([]byte, jsonLen+1)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, fmt.Errorf("read json: %w", err)
	}

	var evt wyomingEvent
	if err := json.Unmarshal(body[:jsonLen], &evt); err != nil {
		return nil, nil, fmt.Errorf("decode event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("read payload: %w", err)
		}
	}

	return &evt, payload, nil
}

// Verify Piper implements Provider at compile time.
var _ Provider = (*Piper)(nil)
