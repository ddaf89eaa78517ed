package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-coach/internal/metrics"
)

// DefaultSubscriberBuffer is the channel size used by Subscribe.
const DefaultSubscriberBuffer = 16

// Store owns the dashboard state.
type Store struct {
	mu   sync.Mutex
	snap Snapshot

	subs   map[int]chan Snapshot
	nextID int

	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a store in the idle state.
func NewStore(opts ...Option) *Store {
	s := &Store{
		snap: Snapshot{
			StatusKind: StatusIdle,
			StatusText: "Ready",
		},
		subs:   make(map[int]chan Snapshot),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	s.snap.UpdatedAt = s.now()
	return s
}

// Dispatch applies updates in order as one atomic change and publishes the
// result to subscribers.
func (s *Store) Dispatch(updates ...Update) {
	if len(updates) == 0 {
		return
	}

	s.mu.Lock()
	now := s.now()
	var added []Entry
	for _, u := range updates {
		added = append(added, u.apply(&s.snap, now)...)
	}
	s.snap.Version++
	s.snap.UpdatedAt = now
	snap := s.snap.Clone()
	s.publishLocked(snap)
	s.mu.Unlock()

	for _, e := range added {
		s.metrics.HistoryEntries.WithLabelValues(string(e.Role)).Inc()
		s.logger.Debug("history entry", "role", e.Role, "id", e.ID, "text", e.Text)
	}
}

// publishLocked delivers snap to every subscriber. A subscriber whose buffer
// is full loses its oldest pending snapshot, so it always sees the latest.
func (s *Store) publishLocked(snap Snapshot) {
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// History returns a copy of the conversation history.
func (s *Store) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.snap.History...)
}

// Subscribe returns a channel of snapshots, primed with the current state,
// and a function that cancels the subscription and closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Snapshot, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.snap.Clone()
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscriptions.
func (s *Store) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
