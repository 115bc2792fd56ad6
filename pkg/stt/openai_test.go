package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAITranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("Expected /audio/transcriptions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected Bearer test-key, got %s", auth)
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("Expected whisper-1, got %s", got)
		}
		if got := r.FormValue("language"); got != "ja" {
			t.Errorf("Expected ja, got %s", got)
		}
		if got := r.FormValue("response_format"); got != "json" {
			t.Errorf("Expected json, got %s", got)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "RIFFfake" {
			t.Errorf("unexpected audio %q", data)
		}
		if header.Filename != "speech.wav" {
			t.Errorf("unexpected filename %s", header.Filename)
		}

		w.Write([]byte(`{"text": " こんにちは "}`))
	}))
	defer server.Close()

	o, err := NewOpenAI(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}
	defer o.Close()

	res, err := o.Transcribe(context.Background(), &Request{Audio: []byte("RIFFfake")})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.Text != "こんにちは" {
		t.Errorf("Expected trimmed text, got %q", res.Text)
	}
	if res.Language != "ja" {
		t.Errorf("Expected ja, got %s", res.Language)
	}
}

func TestOpenAITranscribeErrors(t *testing.T) {
	tests := []struct {
		status int
		check  func(*APIError) bool
	}{
		{429, (*APIError).IsRateLimited},
		{401, (*APIError).IsUnauthorized},
		{403, (*APIError).IsForbidden},
		{503, (*APIError).IsServerError},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"error": {"message": "nope", "code": "x"}}`))
		}))

		o, _ := NewOpenAI(WithAPIKey("k"), WithBaseURL(server.URL))
		_, err := o.Transcribe(context.Background(), &Request{Audio: []byte("x")})

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Errorf("%d: expected APIError, got %v", tt.status, err)
		} else if !tt.check(apiErr) || apiErr.Message != "nope" {
			t.Errorf("%d: unexpected error %+v", tt.status, apiErr)
		}
		server.Close()
	}
}

func TestOpenAIValidation(t *testing.T) {
	if _, err := NewOpenAI(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("Expected ErrNoAPIKey, got %v", err)
	}

	o, _ := NewOpenAI(WithAPIKey("k"))
	if _, err := o.Transcribe(context.Background(), &Request{}); !errors.Is(err, ErrNoAudio) {
		t.Errorf("Expected ErrNoAudio, got %v", err)
	}
}

func TestMock(t *testing.T) {
	m := NewMock("やあ")
	res, err := m.Transcribe(context.Background(), &Request{Audio: []byte{1, 2}, Language: "ja"})
	if err != nil || res.Text != "やあ" {
		t.Fatalf("unexpected result %+v, %v", res, err)
	}
	if m.CallCount() != 1 || m.Calls()[0].AudioBytes != 2 {
		t.Errorf("unexpected calls %+v", m.Calls())
	}
	m.Reset()
	if m.CallCount() != 0 {
		t.Error("expected no calls after Reset")
	}
}
