package voice

import (
	"sync"
	"time"
)

// Metrics tracks latency of one conversation turn.
// All durations are measured from the moment user speech ends.
type Metrics struct {
	// Timestamps for key events
	SpeechEndTime    time.Time // When the user's utterance was committed
	FirstAudioTime   time.Time // When the first response audio arrived
	FirstTextTime    time.Time // When the first response transcript arrived
	ResponseDoneTime time.Time // When the model's turn completed

	// Computed latencies (from speech end)
	FirstAudio   time.Duration // Time to first audio chunk
	FirstText    time.Duration // Time to first transcript chunk
	TotalLatency time.Duration // Time to turn complete

	// Counts for this conversation turn
	AudioChunksIn  int // Audio chunks received from the model
	AudioChunksOut int // Audio frames sent to the model
	Interrupted    bool
}

// MetricsCollector collects latency metrics during a conversation turn.
// It is goroutine-safe and can be used from multiple callbacks.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []Metrics // Recent turns for averaging

	// Callbacks for metrics updates
	onUpdate func(Metrics)
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]Metrics, 0, 100),
	}
}

// OnUpdate sets a callback that fires whenever a turn completes.
func (m *MetricsCollector) OnUpdate(fn func(Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// MarkSpeechEnd records when the user stopped speaking.
// This is the reference point for all latency measurements.
func (m *MetricsCollector) MarkSpeechEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{} // Reset for new turn
	m.current.SpeechEndTime = time.Now()
}

// MarkFirstAudio records when the first audio chunk arrived.
func (m *MetricsCollector) MarkFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksIn++
	if m.current.FirstAudioTime.IsZero() {
		m.current.FirstAudioTime = time.Now()
		if !m.current.SpeechEndTime.IsZero() {
			m.current.FirstAudio = m.current.FirstAudioTime.Sub(m.current.SpeechEndTime)
		}
	}
}

// MarkFirstText records when the first output transcript arrived.
func (m *MetricsCollector) MarkFirstText() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstTextTime.IsZero() {
		m.current.FirstTextTime = time.Now()
		if !m.current.SpeechEndTime.IsZero() {
			m.current.FirstText = m.current.FirstTextTime.Sub(m.current.SpeechEndTime)
		}
	}
}

// MarkInterrupted flags the current turn as cut short by the user.
func (m *MetricsCollector) MarkInterrupted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Interrupted = true
}

// IncrementAudioOut increments the count of audio frames sent.
func (m *MetricsCollector) IncrementAudioOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksOut++
}

// MarkResponseDone records when the turn completed and archives it.
func (m *MetricsCollector) MarkResponseDone() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ResponseDoneTime = time.Now()
	if !m.current.SpeechEndTime.IsZero() {
		m.current.TotalLatency = m.current.ResponseDoneTime.Sub(m.current.SpeechEndTime)
	}
	done := m.current
	m.history = append(m.history, done)
	if len(m.history) > 100 {
		m.history = m.history[1:]
	}
	m.notify()
	m.current = Metrics{}
	return done
}

// Current returns the current metrics snapshot.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Turns returns how many turns have been archived.
func (m *MetricsCollector) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Average returns average metrics over recent turns.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return Metrics{}
	}

	var avg Metrics
	for _, h := range m.history {
		avg.FirstAudio += h.FirstAudio
		avg.FirstText += h.FirstText
		avg.TotalLatency += h.TotalLatency
	}

	n := time.Duration(len(m.history))
	avg.FirstAudio /= n
	avg.FirstText /= n
	avg.TotalLatency /= n

	return avg
}

// notify calls the update callback if set.
// Must be called with mutex held.
func (m *MetricsCollector) notify() {
	if m.onUpdate != nil {
		// Copy to avoid races
		metrics := m.current
		go m.onUpdate(metrics)
	}
}

// FormatLatency returns a formatted string of current latencies.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.FirstText) + " TEXT | " +
		formatDuration(m.FirstAudio) + " AUDIO | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
