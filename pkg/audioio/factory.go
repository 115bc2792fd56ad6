package audioio

import (
	"fmt"
	"log/slog"
)

// NewSource opens the microphone selected by cfg.Backend.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	return open(cfg, logger, "source",
		func(c Config, l *slog.Logger) (Source, error) { return NewMockSource(c, l), nil },
		newDeviceSource,
	)
}

// NewSink opens the speaker selected by cfg.Backend.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return open(cfg, logger, "sink",
		func(c Config, l *slog.Logger) (Sink, error) { return NewMockSink(c, l), nil },
		newDeviceSink,
	)
}

func open[T any](cfg Config, logger *slog.Logger, role string, mock, device func(Config, *slog.Logger) (T, error)) (T, error) {
	var zero T
	if err := cfg.Validate(); err != nil {
		return zero, fmt.Errorf("audio %s: %w", role, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := resolveBackend(cfg.Backend)
	logger.Info("opening audio "+role,
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"chunk", cfg.BufferDuration,
	)

	if backend == BackendDevice {
		return device(cfg, logger)
	}
	return mock(cfg, logger)
}

// resolveBackend turns auto into device when this build has cgo audio.
func resolveBackend(b Backend) Backend {
	if b != BackendAuto && b != "" {
		return b
	}
	if deviceAvailable {
		return BackendDevice
	}
	return BackendMock
}

// AvailableBackends lists the backends this build can open.
func AvailableBackends() []Backend {
	if deviceAvailable {
		return []Backend{BackendMock, BackendDevice}
	}
	return []Backend{BackendMock}
}
