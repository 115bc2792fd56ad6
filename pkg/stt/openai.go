package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-companion/internal/httpc"
)

const providerOpenAI = "openai"

// OpenAI posts clips to /audio/transcriptions (whisper-1 by default).
type OpenAI struct {
	cfg     *Config
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAI{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    httpc.NewClient(cfg.Timeout),
		logger:  logger.With("component", "stt.openai"),
	}, nil
}

func (o *OpenAI) Transcribe(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Audio) == 0 {
		return nil, ErrNoAudio
	}
	start := time.Now()

	language := req.Language
	if language == "" {
		language = o.cfg.Language
	}
	body, contentType, err := o.form(req, language)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := o.http.Do(httpReq)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("decode transcription: %w", err))
	}

	result := &Result{
		Text:     strings.TrimSpace(out.Text),
		Language: language,
		Latency:  time.Since(start),
	}
	o.logger.Debug("transcribed", "audio_bytes", len(req.Audio), "runes", len([]rune(result.Text)), "latency", result.Latency)
	return result, nil
}

// form encodes the clip and its fields as multipart/form-data.
func (o *OpenAI) form(req *Request, language string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	file, err := w.CreateFormFile("file", "speech.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := file.Write(req.Audio); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"model", o.cfg.Model},
		{"language", language},
		{"prompt", req.Prompt},
		{"response_format", "json"},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (o *OpenAI) Close() error {
	o.http.CloseIdleConnections()
	return nil
}

// readAPIError decodes the OpenAI error envelope, falling back to the
// raw body.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	e := &APIError{Provider: providerOpenAI, StatusCode: resp.StatusCode, Message: string(body)}

	var env struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		e.Message, e.Code = env.Error.Message, env.Error.Code
	}
	return e
}

var _ Transcriber = (*OpenAI)(nil)
