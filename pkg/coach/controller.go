// Package coach runs interview coaching sessions.
//
// A Controller owns at most one live session. Start acquires the microphone,
// the speaker and the voice session, then runs capture, playback and the
// event router until Stop, a transport close or a transport error. Every
// exit path runs the same teardown.
package coach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-coach/internal/metrics"
	"github.com/teslashibe/go-coach/pkg/audioio"
	"github.com/teslashibe/go-coach/pkg/capture"
	"github.com/teslashibe/go-coach/pkg/playback"
	"github.com/teslashibe/go-coach/pkg/router"
	"github.com/teslashibe/go-coach/pkg/state"
	"github.com/teslashibe/go-coach/pkg/voice"
)

var (
	// ErrSessionActive is returned by Start while a session is running.
	ErrSessionActive = errors.New("coach: session already active")

	// ErrMissingAPIKey is returned by Start when no credential is configured.
	ErrMissingAPIKey = voice.ErrMissingAPIKey

	// ErrInvalidOptions is returned for unknown role, difficulty or mode ids.
	ErrInvalidOptions = errors.New("coach: invalid options")
)

// Session outcomes recorded in metrics.
const (
	outcomeStopped = "stopped"
	outcomeClosed  = "closed"
	outcomeError   = "error"
)

// Config holds controller settings.
type Config struct {
	// Voice is the base session config. SystemPrompt and Tools are set per
	// session.
	Voice voice.Config

	// Capture configures microphone framing.
	Capture capture.Config

	// PlaybackLead is how early response audio is written to the speaker.
	PlaybackLead time.Duration

	// TranscriptMode controls how model transcripts enter the history.
	TranscriptMode router.TranscriptMode

	// OpenTimeout bounds acquiring the devices and the voice session.
	// Zero means no limit beyond the caller's context.
	OpenTimeout time.Duration
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		Voice:          voice.DefaultConfig(),
		Capture:        capture.DefaultConfig(),
		PlaybackLead:   playback.DefaultLead,
		TranscriptMode: router.TranscriptTurn,
		OpenTimeout:    30 * time.Second,
	}
}

// Connector opens a voice session.
type Connector func(ctx context.Context, cfg voice.Config) (voice.Session, error)

// Controller starts and stops coaching sessions.
type Controller struct {
	cfg       Config
	devices   audioio.Devices
	store     *state.Store
	catalogue Catalogue
	connect   Connector
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	starting bool
	current  *session

	// last is the most recently started session, kept after it ends so
	// Wait can report how it finished.
	last *session

	// cancelOpen aborts an in-flight Start; opened is closed when it returns.
	cancelOpen context.CancelFunc
	opened     chan struct{}
	stopped    bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithStore sets the dashboard state store.
func WithStore(s *state.Store) Option {
	return func(c *Controller) { c.store = s }
}

// WithCatalogue replaces the built-in interview settings.
func WithCatalogue(cat Catalogue) Option {
	return func(c *Controller) { c.catalogue = cat }
}

// WithConnector replaces voice.Connect.
func WithConnector(fn Connector) Option {
	return func(c *Controller) { c.connect = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics sink shared with the session components.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a Controller that opens audio through devices.
func NewController(cfg Config, devices audioio.Devices, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		devices:   devices,
		catalogue: DefaultCatalogue(),
		connect:   voice.Connect,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New(nil)
	}
	if c.store == nil {
		c.store = state.NewStore(state.WithLogger(c.logger), state.WithMetrics(c.metrics))
	}
	return c
}

// Store returns the dashboard state store.
func (c *Controller) Store() *state.Store {
	return c.store
}

// Catalogue returns the selectable interview settings.
func (c *Controller) Catalogue() Catalogue {
	return c.catalogue
}

// Active reports whether a session is starting or running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starting || c.current != nil
}

// Start opens a new session with the given options and returns its id.
// Opening the devices and the voice session completes before capture begins.
// On failure every resource acquired so far is released.
func (c *Controller) Start(ctx context.Context, opts state.Options) (string, error) {
	if c.cfg.Voice.APIKey == "" {
		c.store.Dispatch(state.SetStatus{Kind: state.StatusError, Text: "Missing API key"})
		return "", ErrMissingAPIKey
	}

	opts, err := c.catalogue.Resolve(opts)
	if err != nil {
		return "", err
	}

	openCtx, cancelOpen := context.WithCancel(ctx)
	defer cancelOpen()

	c.mu.Lock()
	if c.starting || c.current != nil {
		c.mu.Unlock()
		return "", ErrSessionActive
	}
	c.starting = true
	c.stopped = false
	c.last = nil
	c.cancelOpen = cancelOpen
	c.opened = make(chan struct{})
	opened := c.opened
	c.mu.Unlock()
	defer close(opened)

	id := uuid.NewString()
	logger := c.logger.With("session", id)
	c.store.Dispatch(state.BeginSession{ID: id, Options: opts})
	logger.Info("starting session", "role", opts.Role, "difficulty", opts.Difficulty, "mode", opts.Mode)

	s, err := c.open(openCtx, id, opts, logger)

	c.mu.Lock()
	c.starting = false
	c.cancelOpen = nil
	stopped := c.stopped
	if err == nil && !stopped {
		c.current = s
		c.last = s
	}
	c.mu.Unlock()

	switch {
	case stopped:
		if s != nil {
			s.teardown(outcomeStopped, nil)
		} else {
			c.metrics.Sessions.WithLabelValues(outcomeStopped).Inc()
			c.store.Dispatch(state.SetStatus{Kind: state.StatusClosed, Text: "Session ended"})
		}
		logger.Info("session stopped while starting")
		return "", fmt.Errorf("coach: start: %w", context.Canceled)

	case err != nil:
		c.metrics.Sessions.WithLabelValues(outcomeError).Inc()
		c.store.Dispatch(state.SetStatus{Kind: state.StatusError, Text: err.Error()})
		logger.Error("session start failed", "error", err)
		return "", err
	}

	c.metrics.ActiveSessions.Set(1)
	s.run()
	return id, nil
}

// open acquires the audio endpoints and the voice session.
func (c *Controller) open(ctx context.Context, id string, opts state.Options, logger *slog.Logger) (*session, error) {
	if c.cfg.OpenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.OpenTimeout)
		defer cancel()
	}

	src, err := c.devices.OpenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("coach: open microphone: %w", err)
	}

	sink, err := c.devices.OpenSink(ctx)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("coach: open speaker: %w", err)
	}

	vcfg := c.cfg.Voice.
		WithSystemPrompt(c.catalogue.SystemPrompt(opts)).
		WithTools(router.UpdateUITool())
	if vcfg.Logger == nil {
		vcfg.Logger = logger
	}

	vs, err := c.connect(ctx, vcfg)
	if err != nil {
		sink.Close()
		src.Close()
		return nil, fmt.Errorf("coach: connect: %w", err)
	}

	s := &session{
		id:     id,
		ctrl:   c,
		logger: logger,
		src:    src,
		sink:   sink,
		voice:  vs,
		done:   make(chan struct{}),
	}

	s.sched = playback.New(
		playback.WithLead(c.cfg.PlaybackLead),
		playback.WithLogger(logger),
		playback.WithMetrics(c.metrics),
	)

	s.router = router.New(c.store, s.sched, vs,
		router.WithTranscriptMode(c.cfg.TranscriptMode),
		router.WithOutputRate(c.cfg.Voice.OutputSampleRate),
		router.WithLogger(logger),
		router.WithMetrics(c.metrics),
	)

	latency := s.router.Latency()
	s.capture = capture.New(c.cfg.Capture,
		capture.WithLogger(logger),
		capture.WithMetrics(c.metrics),
		capture.WithVolume(func(level float64) {
			c.store.Dispatch(state.SetVolume(level))
		}),
		capture.WithFrameHook(func(capture.Frame) {
			latency.IncrementAudioOut()
		}),
	)

	return s, nil
}

// Stop ends the current session. A Start still opening its devices or the
// voice session is cancelled and returns an error wrapping context.Canceled.
// Stopping with no session is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.starting {
		c.stopped = true
		c.cancelOpen()
		opened := c.opened
		c.mu.Unlock()
		<-opened
		return nil
	}
	s := c.current
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	s.teardown(outcomeStopped, nil)
	s.wg.Wait()
	return nil
}

// Wait blocks until the most recently started session ends and returns its
// terminal error, which is nil for Stop and a normal close. A session that
// already ended reports immediately.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	s := c.last
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		s.wg.Wait()
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release forgets s if it is still the current session.
func (c *Controller) release(s *session) {
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()
	c.metrics.ActiveSessions.Set(0)
}

// session is one live coaching session.
type session struct {
	id     string
	ctrl   *Controller
	logger *slog.Logger

	src     audioio.Source
	sink    audioio.Sink
	voice   voice.Session
	sched   *playback.Scheduler
	capture *capture.Pipeline
	router  *router.Router

	cancel context.CancelFunc
	wg     sync.WaitGroup

	once sync.Once
	done chan struct{}
	err  error
}

// run starts the playback, capture and receive goroutines.
func (s *session) run() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		if err := s.sched.Run(ctx, s.sink); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("playback stopped", "error", err)
		}
	}()

	s.capture.Attach(s.voice)
	go func() {
		defer s.wg.Done()
		err := s.capture.Run(ctx, s.src)
		if errors.Is(err, capture.ErrSourceEnded) {
			s.logger.Info("microphone closed")
			s.teardown(outcomeClosed, nil)
		}
	}()

	go func() {
		defer s.wg.Done()
		s.receive(ctx)
	}()
}

// receive feeds server events to the router until the session ends.
func (s *session) receive(ctx context.Context) {
	for {
		ev, err := s.voice.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.teardown(outcomeClosed, nil)
			case ctx.Err() != nil:
				// teardown already ran
			default:
				s.teardown(outcomeError, err)
			}
			return
		}
		if err := s.router.Handle(ctx, ev); err != nil {
			s.teardown(outcomeError, err)
			return
		}
	}
}

// teardown releases everything in a fixed order: capture, microphone,
// speaker, in-flight playback, voice session. Only the first call has any
// effect.
func (s *session) teardown(outcome string, cause error) {
	s.once.Do(func() {
		s.capture.Detach()
		s.capture.Stop()
		if s.cancel != nil {
			s.cancel()
		}

		if err := s.src.Close(); err != nil {
			s.logger.Debug("close microphone", "error", err)
		}
		if err := s.sink.Close(); err != nil {
			s.logger.Debug("close speaker", "error", err)
		}
		s.sched.StopAll()
		if err := s.voice.Close(); err != nil {
			s.logger.Debug("close voice session", "error", err)
		}

		s.err = cause
		s.ctrl.metrics.Sessions.WithLabelValues(outcome).Inc()

		switch outcome {
		case outcomeError:
			s.logger.Error("session failed", "error", cause)
			s.ctrl.store.Dispatch(state.SetStatus{Kind: state.StatusError, Text: cause.Error()})
		case outcomeClosed:
			s.logger.Info("session closed")
			s.ctrl.store.Dispatch(state.SetStatus{Kind: state.StatusClosed, Text: "Session closed"})
		default:
			s.logger.Info("session stopped")
			s.ctrl.store.Dispatch(state.SetStatus{Kind: state.StatusClosed, Text: "Session ended"})
		}

		s.ctrl.release(s)
		close(s.done)
	})
}
