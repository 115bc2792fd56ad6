package capture

import (
	"context"
	"errors"
	"net"

	"github.com/teslashibe/go-companion/pkg/locale"
	"github.com/teslashibe/go-companion/pkg/stt"
)

// Adapter refusals.
var (
	// ErrStopInProgress is returned by a start while a stop is still
	// finishing its teardown.
	ErrStopInProgress = errors.New("capture: stop in progress")

	// ErrAlreadyListening is returned by a start while a session is
	// pending or active.
	ErrAlreadyListening = errors.New("capture: already listening")

	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = errors.New("capture: adapter destroyed")

	// ErrRecognizerUnavailable wraps recognizer construction failures.
	ErrRecognizerUnavailable = errors.New("capture: recognizer unavailable")

	// ErrStartFailed wraps recognizer start failures.
	ErrStartFailed = errors.New("capture: failed to start recognizer")

	// ErrRecognizerBusy is returned by a recognizer asked to listen twice.
	ErrRecognizerBusy = errors.New("capture: recognizer already listening")

	// ErrRecognizerClosed is returned by a closed recognizer.
	ErrRecognizerClosed = errors.New("capture: recognizer closed")
)

// ErrorCode classifies recognition failures.
type ErrorCode int

const (
	ErrorNetworkTimeout ErrorCode = iota + 1
	ErrorNetwork
	ErrorAudio
	ErrorServer
	// ErrorClient is raised by a recognizer that was cancelled
	// programmatically. It never reaches adapter callbacks.
	ErrorClient
	ErrorSpeechTimeout
	ErrorNoMatch
	ErrorBusy
	ErrorInsufficientPermissions
	ErrorUnknown
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorNetworkTimeout:
		return "network_timeout"
	case ErrorNetwork:
		return "network"
	case ErrorAudio:
		return "audio"
	case ErrorServer:
		return "server"
	case ErrorClient:
		return "client"
	case ErrorSpeechTimeout:
		return "speech_timeout"
	case ErrorNoMatch:
		return "no_match"
	case ErrorBusy:
		return "busy"
	case ErrorInsufficientPermissions:
		return "insufficient_permissions"
	default:
		return "unknown"
	}
}

// Message returns the user-facing text for the code.
func (c ErrorCode) Message(cat *locale.Catalog) string {
	if cat == nil {
		cat = locale.DefaultCatalog()
	}
	switch c {
	case ErrorNetworkTimeout:
		return cat.CaptureNetworkTimeout
	case ErrorNetwork:
		return cat.CaptureNetwork
	case ErrorAudio:
		return cat.CaptureAudio
	case ErrorServer:
		return cat.CaptureServer
	case ErrorSpeechTimeout:
		return cat.CaptureSpeechTimeout
	case ErrorNoMatch:
		return cat.CaptureNoMatch
	case ErrorBusy:
		return cat.CaptureBusy
	case ErrorInsufficientPermissions:
		return cat.CapturePermission
	default:
		return cat.CaptureUnknown
	}
}

// ClassifyTranscriptionError maps a transcription failure to an ErrorCode.
func ClassifyTranscriptionError(err error) ErrorCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorNetworkTimeout
	}

	var apiErr *stt.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimited():
			return ErrorBusy
		case apiErr.IsUnauthorized(), apiErr.IsForbidden():
			return ErrorInsufficientPermissions
		case apiErr.IsServerError():
			return ErrorServer
		default:
			return ErrorUnknown
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorNetworkTimeout
		}
		return ErrorNetwork
	}

	return ErrorUnknown
}
