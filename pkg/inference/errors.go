package inference

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoModel             = errors.New("inference: model required")
	ErrNoBaseURL           = errors.New("inference: base URL required")
	ErrBadTemperature      = errors.New("inference: temperature must be within 0..2")
	ErrProviderUnavailable = errors.New("inference: provider unavailable")

	// ErrEmptyResponse is a 200 response with no body.
	ErrEmptyResponse = errors.New("inference: empty response")
	// ErrNoChoices is a decodable response without a first choice.
	ErrNoChoices = errors.New("inference: no choices returned")
)

// APIError is a non-200 response. Message and Code come from the OpenAI
// error envelope when present, otherwise Message is the raw body.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	status := fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Code != "" {
		status += " (" + e.Code + ")"
	}
	return fmt.Sprintf("inference [%s]: %s: %s", e.Provider, status, e.Message)
}

func (e *APIError) IsRateLimited() bool  { return e.StatusCode == http.StatusTooManyRequests }
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }
func (e *APIError) IsForbidden() bool    { return e.StatusCode == http.StatusForbidden }
func (e *APIError) IsNotFound() bool     { return e.StatusCode == http.StatusNotFound }
func (e *APIError) IsServerError() bool  { return e.StatusCode >= 500 && e.StatusCode < 600 }

// DecodeError is a 200 response whose body is not a completion.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "inference: decode response: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// ProviderError tags a transport failure with the provider that hit it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
