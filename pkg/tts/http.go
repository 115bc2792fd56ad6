package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-companion/internal/httpc"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// httpVoice is the plumbing the cloud providers share.
type httpVoice struct {
	provider string
	baseURL  string
	client   *http.Client
	logger   *slog.Logger

	authorize func(*http.Request)
	// detail extracts message and code from a JSON error body.
	detail func(body []byte) (message, code string, ok bool)
}

func newHTTPVoice(provider, baseURL string, cfg *Config) httpVoice {
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return httpVoice{
		provider: provider,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   httpc.NewClient(cfg.Timeout),
		logger:   logger.With("component", "tts."+provider),
	}
}

// fetchPCM posts payload to path and returns the raw response body.
func (h *httpVoice) fetchPCM(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(h.provider, fmt.Errorf("marshal payload: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(h.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	h.authorize(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, WrapError(h.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, h.apiError(resp)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(h.provider, fmt.Errorf("read audio: %w", err))
	}
	return audio, nil
}

// probe issues an authorized GET and expects 200.
func (h *httpVoice) probe(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return WrapError(h.provider, err)
	}
	h.authorize(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return WrapError(h.provider, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return h.apiError(resp)
	}
	return nil
}

func (h *httpVoice) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &APIError{Provider: h.provider, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	if msg, code, ok := h.detail(body); ok {
		e.Message, e.Code = msg, code
	}
	h.logger.Warn("voice service error", "status", resp.StatusCode, "code", e.Code)
	return e
}

func (h *httpVoice) logSynthesis(result *AudioResult, attrs ...any) {
	h.logger.Debug("synthesized",
		append([]any{
			"chars", result.CharCount,
			"audio", result.Duration.Round(time.Millisecond),
			"latency", result.Latency.Round(time.Millisecond),
		}, attrs...)...,
	)
}

func (h *httpVoice) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
