// Package router applies inbound voice session events to playback and
// dashboard state.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-coach/internal/metrics"
	"github.com/teslashibe/go-coach/pkg/audioio"
	"github.com/teslashibe/go-coach/pkg/pcm"
	"github.com/teslashibe/go-coach/pkg/playback"
	"github.com/teslashibe/go-coach/pkg/state"
	"github.com/teslashibe/go-coach/pkg/voice"
)

// TranscriptMode controls how model transcript chunks become history.
type TranscriptMode string

const (
	// TranscriptTurn accumulates chunks and commits one entry per turn.
	TranscriptTurn TranscriptMode = "turn"
	// TranscriptAppend commits one entry per chunk.
	TranscriptAppend TranscriptMode = "append"
)

// ParseTranscriptMode returns the mode for s, defaulting to TranscriptTurn.
func ParseTranscriptMode(s string) (TranscriptMode, error) {
	switch TranscriptMode(strings.ToLower(s)) {
	case "", TranscriptTurn:
		return TranscriptTurn, nil
	case TranscriptAppend:
		return TranscriptAppend, nil
	default:
		return "", fmt.Errorf("router: unknown transcript mode %q", s)
	}
}

// Dispatcher applies state updates.
type Dispatcher interface {
	Dispatch(updates ...state.Update)
}

// Player schedules response audio.
type Player interface {
	Schedule(chunk audioio.AudioChunk) *playback.Source
	StopAll() int
}

// Responder sends tool acknowledgments back to the model.
type Responder interface {
	SendToolResponses(ctx context.Context, responses []voice.ToolResponse) error
}

// Router turns server events into state updates, scheduled audio and tool
// acknowledgments. Handle is called from a single receive loop.
type Router struct {
	store     Dispatcher
	player    Player
	responder Responder

	mode       TranscriptMode
	outputRate int
	pending    strings.Builder

	latency *voice.MetricsCollector
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithTranscriptMode sets how model transcripts are committed.
func WithTranscriptMode(m TranscriptMode) Option {
	return func(r *Router) { r.mode = m }
}

// WithOutputRate sets the rate assumed for audio without a rate parameter.
func WithOutputRate(rate int) Option {
	return func(r *Router) { r.outputRate = rate }
}

// WithLatency sets the per-turn latency collector.
func WithLatency(c *voice.MetricsCollector) Option {
	return func(r *Router) { r.latency = c }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a Router.
func New(store Dispatcher, player Player, responder Responder, opts ...Option) *Router {
	r := &Router{
		store:      store,
		player:     player,
		responder:  responder,
		mode:       TranscriptTurn,
		outputRate: pcm.DefaultOutputRate,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New(nil)
	}
	if r.latency == nil {
		r.latency = voice.NewMetricsCollector()
	}
	return r
}

// Latency returns the per-turn latency collector.
func (r *Router) Latency() *voice.MetricsCollector {
	return r.latency
}

// Handle applies one event. The parts of an event are applied in the order
// tool calls, audio, output transcript, input transcript, turn complete.
// It returns an error only when acknowledging tool calls fails.
func (r *Router) Handle(ctx context.Context, ev voice.ServerEvent) error {
	if ev.SetupComplete {
		r.logger.Info("voice session live")
		r.store.Dispatch(state.SetStatus{Kind: state.StatusLive, Text: "Live"})
	}

	if err := r.handleToolCalls(ctx, ev.ToolCalls); err != nil {
		return err
	}

	if len(ev.ToolCallCancellations) > 0 {
		r.logger.Debug("tool calls cancelled", "ids", ev.ToolCallCancellations)
	}

	if ev.Interrupted {
		r.interrupt()
	}

	for _, blob := range ev.Audio {
		r.handleAudio(blob)
	}

	for _, text := range ev.Text {
		r.logger.Debug("model text part", "text", text)
	}

	if ev.OutputTranscription != "" {
		r.handleOutputTranscript(ev.OutputTranscription)
	}

	if ev.InputTranscription != "" {
		r.latency.MarkSpeechEnd()
		r.store.Dispatch(state.SetLive(ev.InputTranscription))
	}

	if ev.TurnComplete {
		r.completeTurn()
	}

	if ev.GoAway {
		r.logger.Warn("server closing session soon", "time_left", ev.GoAwayIn)
		r.store.Dispatch(state.SetStatusText("Session ending soon"))
	}

	return nil
}

// handleToolCalls applies every call and acknowledges them as one batch.
func (r *Router) handleToolCalls(ctx context.Context, calls []voice.ToolCall) error {
	if len(calls) == 0 {
		return nil
	}

	responses := make([]voice.ToolResponse, 0, len(calls))
	var ups []state.Update
	for _, call := range calls {
		if call.Name != UpdateUIName {
			r.logger.Warn("unknown tool", "name", call.Name, "id", call.ID)
			r.metrics.ToolCalls.WithLabelValues(call.Name, "unknown").Inc()
			responses = append(responses, voice.Failure(call, fmt.Errorf("unknown tool %q", call.Name)))
			continue
		}

		args, err := decodeUIArgs(call.Arguments)
		if err != nil {
			r.logger.Warn("bad tool arguments", "name", call.Name, "id", call.ID, "error", err)
			r.metrics.ToolCalls.WithLabelValues(call.Name, "error").Inc()
			responses = append(responses, voice.Failure(call, err))
			continue
		}

		r.logger.Debug("tool call", "name", call.Name, "id", call.ID, "args", call.Arguments)
		r.metrics.ToolCalls.WithLabelValues(call.Name, "ok").Inc()
		ups = append(ups, args.updates()...)
		responses = append(responses, voice.Success(call))
	}

	r.store.Dispatch(ups...)

	if err := r.responder.SendToolResponses(ctx, responses); err != nil {
		return fmt.Errorf("router: send tool responses: %w", err)
	}
	return nil
}

// handleAudio decodes one inline audio part and schedules it.
func (r *Router) handleAudio(blob pcm.Blob) {
	samples, err := pcm.Decode(blob)
	if err != nil {
		r.logger.Debug("skipping audio part", "mime", blob.MIMEType, "error", err)
		return
	}
	if len(samples) == 0 {
		return
	}

	r.latency.MarkFirstAudio()
	r.player.Schedule(audioio.AudioChunk{
		Samples:    samples,
		SampleRate: blob.Rate(r.outputRate),
		Channels:   1,
	})
}

func (r *Router) handleOutputTranscript(text string) {
	r.latency.MarkFirstText()
	if r.mode == TranscriptAppend {
		r.store.Dispatch(state.AppendEntry{Role: state.RoleModel, Text: text})
		return
	}
	r.pending.WriteString(text)
}

// interrupt stops in-flight playback. The scheduler cursor is not moved.
func (r *Router) interrupt() {
	n := r.player.StopAll()
	r.latency.MarkInterrupted()
	r.metrics.Interruptions.Inc()
	r.logger.Debug("model interrupted", "stopped", n)
}

// completeTurn commits the user utterance and then the model's transcript.
func (r *Router) completeTurn() {
	ups := []state.Update{state.CommitLive{}}
	if r.mode == TranscriptTurn && r.pending.Len() > 0 {
		ups = append(ups, state.AppendEntry{Role: state.RoleModel, Text: strings.TrimSpace(r.pending.String())})
		r.pending.Reset()
	}
	r.store.Dispatch(ups...)

	turn := r.latency.MarkResponseDone()
	if turn.FirstAudio > 0 {
		r.metrics.TurnLatency.Observe(turn.FirstAudio.Seconds())
	}
	r.logger.Debug("turn complete", "latency", turn.FormatLatency(), "chunks", turn.AudioChunksIn)
}
