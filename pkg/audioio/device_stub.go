//go:build !cgo

package audioio

import (
	"errors"
	"log/slog"
)

const deviceAvailable = false

var errNoDevice = errors.New("audioio: device backend requires cgo")

func newDeviceSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, errNoDevice
}

func newDeviceSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return nil, errNoDevice
}
