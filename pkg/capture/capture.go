// Package capture turns microphone audio into fixed-size encoded frames and
// streams them to an attached voice session.
//
// Frames are re-windowed to FrameSize samples regardless of how the source
// chunks its audio. Each frame reports its RMS level, is PCM16 encoded and is
// queued for a sender goroutine; the capture loop never blocks on the network.
// Frames with no attached session, or that do not fit in the queue, are
// dropped and counted.
package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-coach/internal/metrics"
	"github.com/teslashibe/go-coach/pkg/audioio"
	"github.com/teslashibe/go-coach/pkg/pcm"
)

// ErrSourceEnded is returned by Run when the source stops producing audio.
var ErrSourceEnded = errors.New("capture: source ended")

// Sender accepts encoded audio. voice.Session satisfies it.
type Sender interface {
	SendAudio(ctx context.Context, blob pcm.Blob) error
}

// Config holds capture settings.
type Config struct {
	// FrameSize is the number of samples per frame.
	// Default: 4096
	FrameSize int

	// SampleRate is the rate frames are encoded at. Source audio at other
	// rates is resampled.
	// Default: 16000
	SampleRate int

	// QueueSize bounds the number of encoded frames waiting to be sent.
	// Default: 32
	QueueSize int
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		FrameSize:  4096,
		SampleRate: pcm.DefaultInputRate,
		QueueSize:  32,
	}
}

// Frame is one fixed-size window of mono samples.
type Frame struct {
	Seq     uint64
	Samples []float32
}

// Stats counts frames through the pipeline.
type Stats struct {
	Frames           uint64 `json:"frames"`
	Sent             uint64 `json:"sent"`
	DroppedNoSession uint64 `json:"dropped_no_session"`
	DroppedQueueFull uint64 `json:"dropped_queue_full"`
	DroppedSendError uint64 `json:"dropped_send_error"`
}

type outbound struct {
	sender Sender
	blob   pcm.Blob
}

// Pipeline reads a source and forwards encoded frames to a Sender.
type Pipeline struct {
	cfg      Config
	enc      *pcm.Encoder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	onVolume func(float64)
	onFrame  func(Frame)

	mu     sync.Mutex
	sender Sender

	queue    chan outbound
	stopOnce sync.Once
	stopCh   chan struct{}

	frames           atomic.Uint64
	sent             atomic.Uint64
	droppedNoSession atomic.Uint64
	droppedQueueFull atomic.Uint64
	droppedSendError atomic.Uint64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithVolume sets the callback receiving each frame's RMS level.
func WithVolume(fn func(float64)) Option {
	return func(p *Pipeline) { p.onVolume = fn }
}

// WithFrameHook sets a callback invoked with every frame before encoding.
func WithFrameHook(fn func(Frame)) Option {
	return func(p *Pipeline) { p.onFrame = fn }
}

// New creates a capture pipeline.
func New(cfg Config, opts ...Option) *Pipeline {
	def := DefaultConfig()
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = def.FrameSize
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	p := &Pipeline{
		cfg:    cfg,
		enc:    pcm.NewEncoder(cfg.SampleRate),
		queue:  make(chan outbound, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.metrics == nil {
		p.metrics = metrics.New(nil)
	}
	return p
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Attach routes subsequent frames to s.
func (p *Pipeline) Attach(s Sender) {
	p.mu.Lock()
	p.sender = s
	p.mu.Unlock()
}

// Detach stops routing frames. Queued frames for the old sender are dropped.
func (p *Pipeline) Detach() {
	p.mu.Lock()
	p.sender = nil
	p.mu.Unlock()
}

func (p *Pipeline) current() Sender {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sender
}

// Stop ends Run. It is safe to call more than once and before Run.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

// Run drains src until Stop, ctx cancellation or the end of the source.
// It returns nil after Stop, ctx.Err() on cancellation and ErrSourceEnded
// when the source closes.
func (p *Pipeline) Run(ctx context.Context, src audioio.Source) error {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.sendLoop(ctx)
	}()
	defer wg.Wait()
	defer cancel()

	var (
		buf []float32
		seq uint64
	)
	stream := src.Stream()
	for {
		select {
		case <-p.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-stream:
			if !ok {
				return ErrSourceEnded
			}
			samples := chunk.Mono()
			if chunk.SampleRate > 0 && chunk.SampleRate != p.cfg.SampleRate {
				samples = audioio.Resample(samples, chunk.SampleRate, p.cfg.SampleRate)
			}
			buf = append(buf, samples...)
			for len(buf) >= p.cfg.FrameSize {
				frame := make([]float32, p.cfg.FrameSize)
				copy(frame, buf[:p.cfg.FrameSize])
				buf = buf[p.cfg.FrameSize:]
				seq++
				p.process(Frame{Seq: seq, Samples: frame})
			}
			// Keep buf from growing its backing array forever.
			if cap(buf) > 4*p.cfg.FrameSize {
				buf = append([]float32(nil), buf...)
			}
		}
	}
}

func (p *Pipeline) process(f Frame) {
	p.frames.Add(1)
	p.metrics.FramesCaptured.Inc()

	level := pcm.RMS(f.Samples)
	p.metrics.InputLevel.Set(level)
	if p.onVolume != nil {
		p.onVolume(level)
	}
	if p.onFrame != nil {
		p.onFrame(f)
	}

	sender := p.current()
	if sender == nil {
		p.drop(metrics.DropNoSession)
		return
	}

	select {
	case p.queue <- outbound{sender: sender, blob: p.enc.Encode(f.Samples)}:
	default:
		p.drop(metrics.DropQueueFull)
	}
}

func (p *Pipeline) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-p.queue:
			if out.sender != p.current() {
				p.drop(metrics.DropNoSession)
				continue
			}
			if err := out.sender.SendAudio(ctx, out.blob); err != nil {
				p.drop(metrics.DropSendError)
				if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
					p.logger.Debug("capture: send failed", "error", err)
				}
				continue
			}
			p.sent.Add(1)
			p.metrics.FramesSent.Inc()
		}
	}
}

func (p *Pipeline) drop(reason string) {
	switch reason {
	case metrics.DropNoSession:
		p.droppedNoSession.Add(1)
	case metrics.DropQueueFull:
		p.droppedQueueFull.Add(1)
	case metrics.DropSendError:
		p.droppedSendError.Add(1)
	}
	p.metrics.FramesDropped.WithLabelValues(reason).Inc()
}

// Stats returns frame counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Frames:           p.frames.Load(),
		Sent:             p.sent.Load(),
		DroppedNoSession: p.droppedNoSession.Load(),
		DroppedQueueFull: p.droppedQueueFull.Load(),
		DroppedSendError: p.droppedSendError.Load(),
	}
}
