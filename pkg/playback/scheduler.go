// Package playback schedules decoded response audio on a single output
// timeline so consecutive chunks play back to back without gaps or overlap.
//
// Every chunk starts at max(now, cursor) and pushes the cursor forward by its
// own duration. The cursor only ever moves forward; stopping playback
// discards in-flight sources but leaves the cursor where it was.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-coach/internal/metrics"
	"github.com/teslashibe/go-coach/pkg/audioio"
)

// DefaultLead is how far ahead of its start time a source is written to the sink.
const DefaultLead = 50 * time.Millisecond

// Source is one scheduled chunk on the output timeline.
type Source struct {
	ID    uint64
	Chunk audioio.AudioChunk
	Start time.Duration
	End   time.Duration

	stopped bool
}

// Duration returns the scheduled length of the source.
func (s *Source) Duration() time.Duration {
	return s.End - s.Start
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the timeline clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLead sets how early sources are handed to the sink.
func WithLead(d time.Duration) Option {
	return func(s *Scheduler) { s.lead = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler owns the playback cursor and the set of in-flight sources.
type Scheduler struct {
	clock   Clock
	lead    time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	cursor  time.Duration
	nextID  uint64
	sources []*Source // in-flight, ordered by Start
	queue   []*Source // scheduled but not yet written to the sink
	sink    audioio.Sink
	wake    chan struct{}
}

// New creates a scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock: NewWallClock(),
		lead:  DefaultLead,
		wake:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	return s
}

// Schedule places chunk at max(now, cursor) and advances the cursor by its
// duration. Empty chunks are ignored and return nil.
func (s *Scheduler) Schedule(chunk audioio.AudioChunk) *Source {
	dur := chunk.Duration()
	if dur <= 0 {
		return nil
	}

	s.mu.Lock()
	now := s.clock.Now()
	s.pruneLocked(now)

	start := s.cursor
	if now > start {
		start = now
	}
	s.nextID++
	src := &Source{
		ID:    s.nextID,
		Chunk: chunk,
		Start: start,
		End:   start + dur,
	}
	s.cursor = src.End
	s.sources = append(s.sources, src)
	s.queue = append(s.queue, src)
	active := len(s.sources)
	s.mu.Unlock()

	s.metrics.ChunksScheduled.Inc()
	s.metrics.PlaybackSeconds.Add(dur.Seconds())
	s.metrics.PlaybackActive.Set(float64(active))

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return src
}

// StopAll stops every in-flight source and returns how many were stopped.
// Calling it with nothing in flight is a no-op. The cursor is not rewound.
func (s *Scheduler) StopAll() int {
	s.mu.Lock()
	n := len(s.sources)
	for _, src := range s.sources {
		src.stopped = true
	}
	s.sources = nil
	s.queue = nil
	sink := s.sink
	s.mu.Unlock()

	if n == 0 {
		return 0
	}

	s.metrics.ChunksStopped.Add(float64(n))
	s.metrics.PlaybackActive.Set(0)

	if sink != nil {
		if err := sink.Clear(); err != nil {
			s.logger.Warn("playback: clear sink failed", "error", err)
		}
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.logger.Debug("playback stopped", "sources", n)
	return n
}

// Active returns the number of sources that have not yet finished.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.clock.Now())
	return len(s.sources)
}

// Cursor returns the start time the next chunk would get if now were earlier.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Now returns the scheduler clock's current time.
func (s *Scheduler) Now() time.Duration {
	return s.clock.Now()
}

// pruneLocked releases sources whose end time has passed (must hold mu).
func (s *Scheduler) pruneLocked(now time.Duration) {
	i := 0
	for i < len(s.sources) && s.sources[i].End <= now {
		i++
	}
	if i > 0 {
		s.sources = append(s.sources[:0:0], s.sources[i:]...)
		s.metrics.PlaybackActive.Set(float64(len(s.sources)))
	}
}

// Run writes scheduled sources to sink in order, each one lead before its
// start time. It returns when ctx is done.
func (s *Scheduler) Run(ctx context.Context, sink audioio.Sink) error {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sink = nil
		s.mu.Unlock()
	}()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		src, wait := s.next()
		if src == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}

		if wait > 0 {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			case <-timer.C:
			}
		}

		if !s.take(src) {
			continue
		}
		if err := sink.Write(ctx, src.Chunk); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("playback: sink write failed", "source", src.ID, "error", err)
		}
	}
}

// next returns the head of the write queue and how long until it is due.
func (s *Scheduler) next() (*Source, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, 0
	}
	src := s.queue[0]
	return src, src.Start - s.lead - s.clock.Now()
}

// take pops src from the queue if it is still the head and not stopped.
func (s *Scheduler) take(src *Source) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 || s.queue[0] != src || src.stopped {
		return false
	}
	s.queue = s.queue[1:]
	return true
}
