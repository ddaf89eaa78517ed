package state

import (
	"time"

	"github.com/google/uuid"
)

// Update is one state mutation. Updates are applied by Store.Dispatch.
type Update interface {
	apply(s *Snapshot, now time.Time) []Entry
}

// BeginSession resets the dashboard for a new session.
type BeginSession struct {
	ID      string
	Options Options
}

func (u BeginSession) apply(s *Snapshot, _ time.Time) []Entry {
	*s = Snapshot{
		SessionID:  u.ID,
		Options:    u.Options,
		StatusKind: StatusConnecting,
		StatusText: "Connecting...",
		Version:    s.Version,
	}
	return nil
}

// SetStatus replaces the status kind and text.
type SetStatus struct {
	Kind StatusKind
	Text string
}

func (u SetStatus) apply(s *Snapshot, _ time.Time) []Entry {
	s.StatusKind = u.Kind
	s.StatusText = u.Text
	if u.Kind != StatusLive && u.Kind != StatusConnecting {
		s.Volume = 0
	}
	return nil
}

// SetStatusText changes the status text and keeps the kind.
type SetStatusText string

func (u SetStatusText) apply(s *Snapshot, _ time.Time) []Entry {
	s.StatusText = string(u)
	return nil
}

// SetQuestion replaces the current interview question.
type SetQuestion string

func (u SetQuestion) apply(s *Snapshot, _ time.Time) []Entry {
	s.Question = string(u)
	return nil
}

// SetMode replaces the tool mode tag.
type SetMode string

func (u SetMode) apply(s *Snapshot, _ time.Time) []Entry {
	s.Mode = string(u)
	return nil
}

// SetFeedback replaces the feedback snapshot entirely.
type SetFeedback Feedback

func (u SetFeedback) apply(s *Snapshot, _ time.Time) []Entry {
	f := Feedback(u)
	s.Feedback = f.clone()
	return nil
}

// SetVolume records the latest microphone level.
type SetVolume float64

func (u SetVolume) apply(s *Snapshot, _ time.Time) []Entry {
	s.Volume = float64(u)
	return nil
}

// SetLive overwrites the in-progress user transcript.
type SetLive string

func (u SetLive) apply(s *Snapshot, _ time.Time) []Entry {
	s.Live = string(u)
	return nil
}

// CommitLive moves a non-empty live transcript into the history as a user
// entry and clears it. An empty buffer is a no-op.
type CommitLive struct{}

func (CommitLive) apply(s *Snapshot, now time.Time) []Entry {
	if s.Live == "" {
		return nil
	}
	e := newEntry(RoleUser, s.Live, now)
	s.History = append(s.History, e)
	s.Live = ""
	return []Entry{e}
}

// AppendEntry adds one conversation entry. Empty text is ignored.
type AppendEntry struct {
	Role Role
	Text string
}

func (u AppendEntry) apply(s *Snapshot, now time.Time) []Entry {
	if u.Text == "" {
		return nil
	}
	e := newEntry(u.Role, u.Text, now)
	s.History = append(s.History, e)
	return []Entry{e}
}

func newEntry(role Role, text string, now time.Time) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: now,
	}
}
