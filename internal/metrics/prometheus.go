// Package metrics defines the Prometheus metrics exported by go-coach.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for captured frames.
const (
	DropNoSession = "no_session"
	DropQueueFull = "queue_full"
	DropSendError = "send_error"
)

// Metrics contains all Prometheus metrics for the coach.
type Metrics struct {
	// Capture
	FramesCaptured prometheus.Counter
	FramesSent     prometheus.Counter
	FramesDropped  *prometheus.CounterVec
	InputLevel     prometheus.Gauge

	// Playback
	ChunksScheduled prometheus.Counter
	ChunksStopped   prometheus.Counter
	PlaybackActive  prometheus.Gauge
	PlaybackSeconds prometheus.Counter

	// Events
	ToolCalls      *prometheus.CounterVec
	HistoryEntries *prometheus.CounterVec
	Interruptions  prometheus.Counter

	// Sessions
	Sessions       *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	TurnLatency    prometheus.Histogram
}

// New creates all metrics and registers them with reg.
// A nil reg uses a private registry, which keeps tests and multiple
// controllers in one process from colliding on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "coach_capture_frames_total",
			Help: "Total number of microphone frames captured",
		}),
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "coach_capture_frames_sent_total",
			Help: "Total number of encoded frames sent to the voice session",
		}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coach_capture_frames_dropped_total",
			Help: "Total number of captured frames dropped before sending",
		}, []string{"reason"}),
		InputLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "coach_capture_input_level",
			Help: "RMS level of the most recent captured frame",
		}),

		ChunksScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "coach_playback_chunks_scheduled_total",
			Help: "Total number of response audio chunks scheduled",
		}),
		ChunksStopped: f.NewCounter(prometheus.CounterOpts{
			Name: "coach_playback_chunks_stopped_total",
			Help: "Total number of scheduled chunks stopped before completion",
		}),
		PlaybackActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "coach_playback_active_sources",
			Help: "Current number of in-flight playback sources",
		}),
		PlaybackSeconds: f.NewCounter(prometheus.CounterOpts{
			Name: "coach_playback_seconds_total",
			Help: "Total seconds of response audio scheduled",
		}),

		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coach_tool_calls_total",
			Help: "Total number of tool calls handled",
		}, []string{"name", "result"}),
		HistoryEntries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coach_history_entries_total",
			Help: "Total number of conversation entries appended",
		}, []string{"role"}),
		Interruptions: f.NewCounter(prometheus.CounterOpts{
			Name: "coach_interruptions_total",
			Help: "Total number of model turns interrupted by the user",
		}),

		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coach_sessions_total",
			Help: "Total number of sessions by outcome",
		}, []string{"outcome"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "coach_active_sessions",
			Help: "Current number of live voice sessions (0 or 1)",
		}),
		TurnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "coach_turn_first_audio_seconds",
			Help:    "Time from end of user speech to first response audio",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
	}
}
