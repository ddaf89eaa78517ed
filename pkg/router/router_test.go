package router

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-coach/internal/metrics"
	"github.com/teslashibe/go-coach/pkg/audioio"
	"github.com/teslashibe/go-coach/pkg/pcm"
	"github.com/teslashibe/go-coach/pkg/playback"
	"github.com/teslashibe/go-coach/pkg/state"
	"github.com/teslashibe/go-coach/pkg/voice"
)

type fakePlayer struct {
	mu      sync.Mutex
	chunks  []audioio.AudioChunk
	stopped int
}

func (p *fakePlayer) Schedule(chunk audioio.AudioChunk) *playback.Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = append(p.chunks, chunk)
	return &playback.Source{Chunk: chunk}
}

func (p *fakePlayer) StopAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
	return len(p.chunks)
}

type fakeResponder struct {
	batches [][]voice.ToolResponse
	err     error
}

func (r *fakeResponder) SendToolResponses(_ context.Context, responses []voice.ToolResponse) error {
	r.batches = append(r.batches, responses)
	return r.err
}

type fixture struct {
	store     *state.Store
	player    *fakePlayer
	responder *fakeResponder
	metrics   *metrics.Metrics
	router    *Router
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		store:     state.NewStore(),
		player:    &fakePlayer{},
		responder: &fakeResponder{},
		metrics:   metrics.New(nil),
	}
	opts = append([]Option{WithMetrics(f.metrics)}, opts...)
	f.router = New(f.store, f.player, f.responder, opts...)
	return f
}

func (f *fixture) handle(t *testing.T, ev voice.ServerEvent) {
	t.Helper()
	require.NoError(t, f.router.Handle(context.Background(), ev))
}

func TestInputTranscriptCommittedOnce(t *testing.T) {
	f := newFixture()

	f.handle(t, voice.ServerEvent{InputTranscription: "h"})
	f.handle(t, voice.ServerEvent{InputTranscription: "he"})
	f.handle(t, voice.ServerEvent{InputTranscription: "hello"})
	assert.Equal(t, "hello", f.store.Snapshot().Live)

	f.handle(t, voice.ServerEvent{TurnComplete: true})

	h := f.store.History()
	require.Len(t, h, 1)
	assert.Equal(t, state.RoleUser, h[0].Role)
	assert.Equal(t, "hello", h[0].Text)
	assert.Empty(t, f.store.Snapshot().Live)
}

func TestDoubleTurnCompleteAppendsOnce(t *testing.T) {
	f := newFixture()

	f.handle(t, voice.ServerEvent{InputTranscription: "hello"})
	f.handle(t, voice.ServerEvent{TurnComplete: true})
	f.handle(t, voice.ServerEvent{TurnComplete: true})

	assert.Len(t, f.store.History(), 1)
}

func TestOutputTranscriptTurnMode(t *testing.T) {
	f := newFixture()

	f.handle(t, voice.ServerEvent{InputTranscription: "I led a migration"})
	f.handle(t, voice.ServerEvent{OutputTranscription: "Great"})
	f.handle(t, voice.ServerEvent{OutputTranscription: " answer."})
	assert.Len(t, f.store.History(), 0)

	f.handle(t, voice.ServerEvent{TurnComplete: true})

	h := f.store.History()
	require.Len(t, h, 2)
	assert.Equal(t, state.RoleUser, h[0].Role)
	assert.Equal(t, state.RoleModel, h[1].Role)
	assert.Equal(t, "Great answer.", h[1].Text)

	// The buffer is reset after commit.
	f.handle(t, voice.ServerEvent{TurnComplete: true})
	assert.Len(t, f.store.History(), 2)
}

func TestOutputTranscriptAppendMode(t *testing.T) {
	f := newFixture(WithTranscriptMode(TranscriptAppend))

	f.handle(t, voice.ServerEvent{OutputTranscription: "Great"})
	f.handle(t, voice.ServerEvent{OutputTranscription: " answer."})
	f.handle(t, voice.ServerEvent{TurnComplete: true})

	h := f.store.History()
	require.Len(t, h, 2)
	assert.Equal(t, "Great", h[0].Text)
	assert.Equal(t, " answer.", h[1].Text)
}

func TestToolBatch(t *testing.T) {
	f := newFixture()

	f.handle(t, voice.ServerEvent{ToolCalls: []voice.ToolCall{
		{ID: "call-1", Name: UpdateUIName, Arguments: map[string]any{
			"question": "Tell me about a conflict you resolved.",
			"mode":     "question",
		}},
		{ID: "call-2", Name: UpdateUIName, Arguments: map[string]any{
			"status": "Evaluating",
			"feedback": map[string]any{
				"score":        7.5,
				"strengths":    []any{"structure"},
				"improvements": []any{"metrics"},
				"summary":      "Solid.",
			},
		}},
	}})

	snap := f.store.Snapshot()
	assert.Equal(t, "Tell me about a conflict you resolved.", snap.Question)
	assert.Equal(t, "question", snap.Mode)
	assert.Equal(t, "Evaluating", snap.StatusText)
	require.NotNil(t, snap.Feedback)
	assert.Equal(t, 7.5, snap.Feedback.Score)
	assert.Equal(t, []string{"structure"}, snap.Feedback.Strengths)
	assert.Equal(t, []string{"metrics"}, snap.Feedback.Improvements)

	require.Len(t, f.responder.batches, 1)
	batch := f.responder.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "call-1", batch[0].ID)
	assert.Equal(t, "call-2", batch[1].ID)
	assert.False(t, batch[0].IsError())
	assert.False(t, batch[1].IsError())

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ToolCalls.WithLabelValues(UpdateUIName, "ok")))
}

func TestToolFeedbackReplacedNotMerged(t *testing.T) {
	f := newFixture()

	f.handle(t, voice.ServerEvent{ToolCalls: []voice.ToolCall{{ID: "1", Name: UpdateUIName, Arguments: map[string]any{
		"feedback": map[string]any{"score": 4, "strengths": []any{"a"}, "improvements": []any{"b"}, "summary": "first"},
	}}}})
	f.handle(t, voice.ServerEvent{ToolCalls: []voice.ToolCall{{ID: "2", Name: UpdateUIName, Arguments: map[string]any{
		"feedback": map[string]any{"score": 9, "summary": "second"},
	}}}})

	fb := f.store.Snapshot().Feedback
	require.NotNil(t, fb)
	assert.Equal(t, 9.0, fb.Score)
	assert.Empty(t, fb.Strengths)
	assert.Equal(t, "second", fb.Summary)
}

func TestToolErrorsStillAcknowledged(t *testing.T) {
	f := newFixture()

	f.handle(t, voice.ServerEvent{ToolCalls: []voice.ToolCall{
		{ID: "x", Name: "launch_rocket"},
		{ID: "y", Name: UpdateUIName, Arguments: map[string]any{"mode": "karaoke"}},
		{ID: "z", Name: UpdateUIName, Arguments: map[string]any{"feedback": "not an object"}},
	}})

	require.Len(t, f.responder.batches, 1)
	batch := f.responder.batches[0]
	require.Len(t, batch, 3)
	for i, id := range []string{"x", "y", "z"} {
		assert.Equal(t, id, batch[i].ID)
		assert.True(t, batch[i].IsError(), "call %s should carry an error", id)
	}
	assert.Empty(t, f.store.Snapshot().Mode)
}

func TestToolResponseSendError(t *testing.T) {
	f := newFixture()
	f.responder.err = errors.New("broken pipe")

	err := f.router.Handle(context.Background(), voice.ServerEvent{ToolCalls: []voice.ToolCall{
		{ID: "1", Name: UpdateUIName, Arguments: map[string]any{"question": "q"}},
	}})
	assert.Error(t, err)
	// State was still applied.
	assert.Equal(t, "q", f.store.Snapshot().Question)
}

func TestAudioScheduled(t *testing.T) {
	f := newFixture()

	blob := pcm.NewEncoder(24000).Encode([]float32{0.1, 0.2, 0.3, 0.4})
	f.handle(t, voice.ServerEvent{Audio: []pcm.Blob{blob, {MIMEType: "audio/pcm", Data: []byte{0, 0}}}})

	require.Len(t, f.player.chunks, 2)
	assert.Equal(t, 24000, f.player.chunks[0].SampleRate)
	assert.Len(t, f.player.chunks[0].Samples, 4)
	assert.InDelta(t, 0.3, f.player.chunks[0].Samples[2], 1.0/32767)
	// A mime without a rate falls back to the output rate.
	assert.Equal(t, pcm.DefaultOutputRate, f.player.chunks[1].SampleRate)
}

func TestAudioEmptySkipped(t *testing.T) {
	f := newFixture()
	f.handle(t, voice.ServerEvent{Audio: []pcm.Blob{{MIMEType: pcm.MIMEType(24000)}}})
	assert.Empty(t, f.player.chunks)
}

func TestInterruptedStopsPlayback(t *testing.T) {
	f := newFixture()

	f.handle(t, voice.ServerEvent{Interrupted: true})
	f.handle(t, voice.ServerEvent{Interrupted: true})

	assert.Equal(t, 2, f.player.stopped)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Interruptions))
}

func TestInterruptKeepsSchedulerCursor(t *testing.T) {
	clock := &playback.ManualClock{}
	sched := playback.New(playback.WithClock(clock))
	store := state.NewStore()
	r := New(store, sched, &fakeResponder{})

	blob := pcm.NewEncoder(24000).Encode(make([]float32, 2400))
	require.NoError(t, r.Handle(context.Background(), voice.ServerEvent{Audio: []pcm.Blob{blob}}))
	cursor := sched.Cursor()
	require.Equal(t, 1, sched.Active())

	require.NoError(t, r.Handle(context.Background(), voice.ServerEvent{Interrupted: true}))
	assert.Equal(t, 0, sched.Active())
	assert.Equal(t, cursor, sched.Cursor())
}

func TestSetupCompleteGoesLive(t *testing.T) {
	f := newFixture()
	f.store.Dispatch(state.BeginSession{ID: "s"})

	f.handle(t, voice.ServerEvent{SetupComplete: true})
	snap := f.store.Snapshot()
	assert.Equal(t, state.StatusLive, snap.StatusKind)
}

func TestGoAwayUpdatesStatus(t *testing.T) {
	f := newFixture()
	f.handle(t, voice.ServerEvent{GoAway: true})
	assert.Equal(t, "Session ending soon", f.store.Snapshot().StatusText)
}

func TestEventOrderWithinOneMessage(t *testing.T) {
	f := newFixture()

	// Transcript and turn complete in one event: the user entry is committed
	// before the model entry.
	f.handle(t, voice.ServerEvent{InputTranscription: "hi"})
	f.handle(t, voice.ServerEvent{
		OutputTranscription: "Welcome",
		TurnComplete:        true,
	})

	h := f.store.History()
	require.Len(t, h, 2)
	assert.Equal(t, state.RoleUser, h[0].Role)
	assert.Equal(t, state.RoleModel, h[1].Role)
}

func TestLatencyRecorded(t *testing.T) {
	f := newFixture()

	blob := pcm.NewEncoder(24000).Encode([]float32{0.1})
	f.handle(t, voice.ServerEvent{InputTranscription: "question?"})
	f.handle(t, voice.ServerEvent{Audio: []pcm.Blob{blob}})
	f.handle(t, voice.ServerEvent{TurnComplete: true})

	assert.Equal(t, 1, f.router.Latency().Turns())
	assert.Equal(t, 1, testutil.CollectAndCount(f.metrics.TurnLatency))
}

func TestParseTranscriptMode(t *testing.T) {
	tests := []struct {
		in      string
		want    TranscriptMode
		wantErr bool
	}{
		{"", TranscriptTurn, false},
		{"turn", TranscriptTurn, false},
		{"APPEND", TranscriptAppend, false},
		{"stream", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTranscriptMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpdateUIToolSchema(t *testing.T) {
	tool := UpdateUITool()
	assert.Equal(t, UpdateUIName, tool.Name)
	require.NotNil(t, tool.Parameters)
	props := tool.Parameters.Properties
	assert.Contains(t, props, "question")
	assert.Contains(t, props, "status")
	assert.Contains(t, props, "feedback")
	assert.Equal(t, []string{"question", "feedback", "wrapup"}, props["mode"].Enum)
	assert.Equal(t, voice.TypeNumber, props["feedback"].Properties["score"].Type)
	assert.Equal(t, voice.TypeArray, props["feedback"].Properties["strengths"].Type)
}
