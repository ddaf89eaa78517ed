package audioio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrRemoteBackend is returned when the remote backend is requested from
// NewSource/NewSink. Remote devices are opened through pkg/device.
var ErrRemoteBackend = errors.New("audioio: remote backend is provided by the device hub")

// Devices opens started audio endpoints for one session.
// Both calls may block until the hardware (or a remote browser) is ready.
type Devices interface {
	OpenSource(ctx context.Context) (Source, error)
	OpenSink(ctx context.Context) (Sink, error)
}

// NewSource creates a new audio source with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}

	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendExec:
		return NewExecSource(cfg, Command{}, logger), nil
	case BackendRemote:
		return nil, ErrRemoteBackend
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// NewSink creates a new audio sink with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}

	logger.Info("creating audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendExec:
		return NewExecSink(cfg, Command{}, logger), nil
	case BackendRemote:
		return nil, ErrRemoteBackend
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns the best available backend for the current platform.
func detectBestBackend() Backend {
	if execAvailable() {
		return BackendExec
	}
	return BackendMock
}

// AvailableBackends returns the list of backends available on this platform.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock, BackendRemote}
	if execAvailable() {
		backends = append(backends, BackendExec)
	}
	return backends
}

// Factory opens local devices from a capture and a playback config.
type Factory struct {
	Input  Config
	Output Config
	Logger *slog.Logger
}

// OpenSource creates and starts a capture source. The source keeps running
// after ctx is cancelled; Close stops it.
func (f Factory) OpenSource(ctx context.Context) (Source, error) {
	src, err := NewSource(f.Input, f.Logger)
	if err != nil {
		return nil, err
	}
	if err := src.Start(context.WithoutCancel(ctx)); err != nil {
		src.Close()
		return nil, fmt.Errorf("start source: %w", err)
	}
	return src, nil
}

// OpenSink creates and starts a playback sink. Like OpenSource, the sink
// outlives ctx.
func (f Factory) OpenSink(ctx context.Context) (Sink, error) {
	sink, err := NewSink(f.Output, f.Logger)
	if err != nil {
		return nil, err
	}
	if err := sink.Start(context.WithoutCancel(ctx)); err != nil {
		sink.Close()
		return nil, fmt.Errorf("start sink: %w", err)
	}
	return sink, nil
}

var _ Devices = Factory{}
