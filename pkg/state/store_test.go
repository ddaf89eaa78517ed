package state

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-coach/internal/metrics"
)

func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return t }
}

func TestNewStoreIdle(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()
	assert.Equal(t, StatusIdle, snap.StatusKind)
	assert.Empty(t, snap.History)
	assert.False(t, snap.Active())
}

func TestCommitLiveOnlyWhenNonEmpty(t *testing.T) {
	s := NewStore(WithClock(fixedClock()))

	// Partial transcripts overwrite the buffer.
	s.Dispatch(SetLive("h"))
	s.Dispatch(SetLive("he"))
	s.Dispatch(SetLive("hello"))
	assert.Equal(t, "hello", s.Snapshot().Live)

	s.Dispatch(CommitLive{})
	s.Dispatch(CommitLive{})

	h := s.History()
	require.Len(t, h, 1)
	assert.Equal(t, RoleUser, h[0].Role)
	assert.Equal(t, "hello", h[0].Text)
	assert.NotEmpty(t, h[0].ID)
	assert.Equal(t, fixedClock()(), h[0].Timestamp)
	assert.Empty(t, s.Snapshot().Live)
}

func TestAppendEntryIgnoresEmpty(t *testing.T) {
	s := NewStore()
	s.Dispatch(AppendEntry{Role: RoleModel, Text: ""})
	s.Dispatch(AppendEntry{Role: RoleModel, Text: "Welcome"})

	h := s.History()
	require.Len(t, h, 1)
	assert.Equal(t, RoleModel, h[0].Role)
}

func TestEntryIDsUnique(t *testing.T) {
	s := NewStore()
	for i := 0; i < 50; i++ {
		s.Dispatch(AppendEntry{Role: RoleModel, Text: "x"})
	}
	seen := make(map[string]bool)
	for _, e := range s.History() {
		assert.False(t, seen[e.ID])
		seen[e.ID] = true
	}
}

func TestSetFeedbackReplaces(t *testing.T) {
	s := NewStore()
	s.Dispatch(SetFeedback{Score: 6, Strengths: []string{"clear"}, Improvements: []string{"depth"}, Summary: "ok"})
	s.Dispatch(SetFeedback{Score: 8, Strengths: []string{"structure"}})

	fb := s.Snapshot().Feedback
	require.NotNil(t, fb)
	assert.Equal(t, 8.0, fb.Score)
	assert.Equal(t, []string{"structure"}, fb.Strengths)
	assert.Empty(t, fb.Improvements)
	assert.Empty(t, fb.Summary)
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.Dispatch(AppendEntry{Role: RoleUser, Text: "a"}, SetFeedback{Strengths: []string{"x"}})

	snap := s.Snapshot()
	snap.History[0].Text = "mutated"
	snap.Feedback.Strengths[0] = "mutated"

	again := s.Snapshot()
	assert.Equal(t, "a", again.History[0].Text)
	assert.Equal(t, "x", again.Feedback.Strengths[0])
}

func TestBeginSessionResets(t *testing.T) {
	s := NewStore()
	s.Dispatch(AppendEntry{Role: RoleUser, Text: "old"}, SetQuestion("q"), SetLive("live"))

	s.Dispatch(BeginSession{ID: "abc", Options: Options{Role: "designer"}})
	snap := s.Snapshot()
	assert.Equal(t, "abc", snap.SessionID)
	assert.Equal(t, "designer", snap.Options.Role)
	assert.Equal(t, StatusConnecting, snap.StatusKind)
	assert.True(t, snap.Active())
	assert.Empty(t, snap.History)
	assert.Empty(t, snap.Question)
	assert.Empty(t, snap.Live)
}

func TestStatusResetsVolume(t *testing.T) {
	s := NewStore()
	s.Dispatch(SetStatus{Kind: StatusLive, Text: "Live"}, SetVolume(0.4))
	assert.Equal(t, 0.4, s.Snapshot().Volume)

	s.Dispatch(SetStatus{Kind: StatusClosed, Text: "Session closed"})
	snap := s.Snapshot()
	assert.Equal(t, 0.0, snap.Volume)
	assert.False(t, snap.Active())
}

func TestDispatchBatchIsOneVersion(t *testing.T) {
	s := NewStore()
	v := s.Snapshot().Version
	s.Dispatch(SetQuestion("q"), SetMode("question"), SetStatusText("Asking"))
	snap := s.Snapshot()
	assert.Equal(t, v+1, snap.Version)
	assert.Equal(t, "q", snap.Question)
	assert.Equal(t, "question", snap.Mode)
	assert.Equal(t, "Asking", snap.StatusText)

	s.Dispatch()
	assert.Equal(t, v+1, s.Snapshot().Version)
}

func TestSubscribe(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe(4)
	defer cancel()

	first := <-ch
	assert.Equal(t, StatusIdle, first.StatusKind)

	s.Dispatch(SetQuestion("Why this role?"))
	select {
	case snap := <-ch:
		assert.Equal(t, "Why this role?", snap.Question)
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
	assert.Equal(t, 1, s.SubscriberCount())
}

func TestSlowSubscriberSeesLatest(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe(2)
	defer cancel()

	for i := 0; i < 10; i++ {
		s.Dispatch(SetVolume(float64(i) / 10))
	}

	var last Snapshot
	for len(ch) > 0 {
		last = <-ch
	}
	assert.InDelta(t, 0.9, last.Volume, 1e-9)
}

func TestCancelClosesChannel(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe(1)
	cancel()
	cancel()

	<-ch // primed snapshot
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, s.SubscriberCount())

	// Dispatch after cancel must not panic.
	s.Dispatch(SetQuestion("q"))
}

func TestConcurrentDispatch(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Dispatch(AppendEntry{Role: RoleModel, Text: "x"})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, s.History(), 800)
}

func TestHistoryMetrics(t *testing.T) {
	m := metrics.New(nil)
	s := NewStore(WithMetrics(m))
	s.Dispatch(SetLive("hi"), CommitLive{}, AppendEntry{Role: RoleModel, Text: "hello"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryEntries.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryEntries.WithLabelValues("model")))
}
