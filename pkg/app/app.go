// Package app wires the coach components together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teslashibe/go-coach/internal/config"
	"github.com/teslashibe/go-coach/internal/httpc"
	"github.com/teslashibe/go-coach/internal/metrics"
	"github.com/teslashibe/go-coach/pkg/audioio"
	"github.com/teslashibe/go-coach/pkg/capture"
	"github.com/teslashibe/go-coach/pkg/coach"
	"github.com/teslashibe/go-coach/pkg/device"
	"github.com/teslashibe/go-coach/pkg/router"
	"github.com/teslashibe/go-coach/pkg/state"
	"github.com/teslashibe/go-coach/pkg/voice"
	"github.com/teslashibe/go-coach/pkg/web"

	// Register the bundled voice providers.
	_ "github.com/teslashibe/go-coach/pkg/voice/bundled"
)

// App is the coach application.
// Create with New, call Init, then Run or RunSession, and Shutdown on exit.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	devices    audioio.Devices
	deviceHub  *device.Hub
	controller *coach.Controller
	server     *web.Server
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithDevices replaces the devices built from the audio config.
func WithDevices(d audioio.Devices) Option {
	return func(a *App) { a.devices = d }
}

// New validates cfg and returns an uninitialized App.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init builds the metrics registry, the audio devices, the controller and,
// when enabled, the web server.
func (a *App) Init() error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	if a.devices == nil {
		if err := a.initDevices(); err != nil {
			return fmt.Errorf("app: devices: %w", err)
		}
	}

	a.controller = coach.NewController(a.coachConfig(), a.devices,
		coach.WithLogger(a.logger),
		coach.WithMetrics(a.metrics),
	)

	if a.cfg.Web.Enabled {
		a.server = web.NewServer(web.Config{
			Address:  a.cfg.Web.Address,
			Gatherer: a.registry,
			Devices:  a.deviceHub,
			Logger:   a.logger,
		}, a.controller)
	}

	a.logger.Info("coach initialized",
		"provider", a.cfg.Voice.Provider,
		"model", a.cfg.Voice.Model,
		"audio", a.cfg.Audio.Backend,
		"web", a.cfg.Web.Enabled,
	)
	return nil
}

func (a *App) initDevices() error {
	backend := audioio.Backend(a.cfg.Audio.Backend)
	if backend == audioio.BackendRemote {
		a.deviceHub = device.NewHub(a.cfg.Voice.OutputRate, a.logger.With("component", "devices"))
		a.devices = a.deviceHub
		return nil
	}

	in := audioio.DefaultConfig().
		WithBackend(backend).
		WithSampleRate(a.cfg.Voice.InputRate).
		WithDevice(a.cfg.Audio.InputDevice)
	in.BufferDuration = a.cfg.Audio.BufferDuration

	out := audioio.DefaultOutputConfig().
		WithBackend(backend).
		WithSampleRate(a.cfg.Voice.OutputRate).
		WithDevice(a.cfg.Audio.OutputDevice)
	out.BufferDuration = a.cfg.Audio.BufferDuration

	if err := in.Validate(); err != nil {
		return err
	}
	if err := out.Validate(); err != nil {
		return err
	}

	a.devices = audioio.Factory{Input: in, Output: out, Logger: a.logger.With("component", "audio")}
	return nil
}

// coachConfig maps the file configuration onto the controller's.
func (a *App) coachConfig() coach.Config {
	c := coach.DefaultConfig()

	c.Voice.Provider = voice.Provider(a.cfg.Voice.Provider)
	c.Voice.APIKey = a.cfg.Voice.APIKey
	c.Voice.Model = a.cfg.Voice.Model
	c.Voice.Voice = a.cfg.Voice.Voice
	c.Voice.InputSampleRate = a.cfg.Voice.InputRate
	c.Voice.OutputSampleRate = a.cfg.Voice.OutputRate
	c.Voice.HTTPClient = httpc.Streaming()

	c.Capture = capture.Config{
		FrameSize:  a.cfg.Audio.FrameSize,
		SampleRate: a.cfg.Voice.InputRate,
		QueueSize:  a.cfg.Audio.SendQueue,
	}
	if c.Capture.QueueSize <= 0 {
		c.Capture.QueueSize = capture.DefaultConfig().QueueSize
	}
	if a.cfg.Audio.PlaybackLead > 0 {
		c.PlaybackLead = a.cfg.Audio.PlaybackLead
	}
	if mode, err := router.ParseTranscriptMode(a.cfg.Voice.TranscriptMode); err == nil {
		c.TranscriptMode = mode
	}
	return c
}

// Controller returns the session controller. Valid after Init.
func (a *App) Controller() *coach.Controller {
	return a.controller
}

// Server returns the web server, or nil when the dashboard is disabled.
func (a *App) Server() *web.Server {
	return a.server
}

// Registry returns the metrics registry. Valid after Init.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Run serves the dashboard until ctx is cancelled. Sessions are started and
// stopped through the HTTP API.
func (a *App) Run(ctx context.Context) error {
	if a.server == nil {
		return errors.New("app: web server disabled")
	}
	a.logger.Info("open the dashboard to start a session", "address", a.cfg.Web.Address)
	return a.server.Run(ctx)
}

// RunSession starts one session with opts and blocks until it ends or ctx
// is cancelled. The dashboard, when enabled, is served alongside.
func (a *App) RunSession(ctx context.Context, opts state.Options) error {
	if a.server != nil {
		go func() {
			if err := a.server.Run(ctx); err != nil {
				a.logger.Warn("web server stopped", "error", err)
			}
		}()
	}

	id, err := a.controller.Start(ctx, opts)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	a.logger.Info("session started, speak to begin", "session", id)

	err = a.controller.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown stops any running session.
func (a *App) Shutdown() {
	if a.controller == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		if err := a.controller.Stop(); err != nil {
			a.logger.Warn("stop session", "error", err)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		a.logger.Warn("session did not stop in time")
	}
}
