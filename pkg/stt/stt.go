// Package stt turns recorded speech into text.
//
// Transcribers take a complete audio clip (WAV) and return the transcript.
// The OpenAI implementation posts to the audio transcriptions endpoint;
// Mock is for tests.
package stt

import (
	"context"
	"time"
)

// Transcriber converts an audio clip to text.
type Transcriber interface {
	// Transcribe returns the transcript of a WAV clip. An empty transcript
	// with a nil error means nothing intelligible was said.
	Transcribe(ctx context.Context, req *Request) (*Result, error)

	// Close releases any resources held by the transcriber.
	Close() error
}

// Request is one clip to transcribe.
type Request struct {
	// Audio is a complete WAV file.
	Audio []byte

	// Language is an ISO-639-1 hint. Empty uses the configured default.
	Language string

	// Prompt biases recognition toward expected vocabulary.
	Prompt string
}

// Result is a transcript.
type Result struct {
	Text     string // trimmed
	Language string
	Latency  time.Duration
}
