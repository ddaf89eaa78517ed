// Package state holds the coaching dashboard state.
//
// Every mutation goes through Store.Dispatch, which applies a batch of
// updates under one lock and publishes the resulting snapshot to
// subscribers. The conversation history is append-only.
package state

import (
	"time"
)

// Role identifies who produced a conversation entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Entry is one committed conversation turn. Entries are never mutated.
type Entry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Feedback is the model's latest assessment of the candidate.
type Feedback struct {
	Score        float64  `json:"score"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Summary      string   `json:"summary"`
}

func (f *Feedback) clone() *Feedback {
	if f == nil {
		return nil
	}
	c := *f
	c.Strengths = append([]string(nil), f.Strengths...)
	c.Improvements = append([]string(nil), f.Improvements...)
	return &c
}

// StatusKind is the coarse connection status shown in the UI.
type StatusKind string

const (
	StatusIdle       StatusKind = "idle"
	StatusConnecting StatusKind = "connecting"
	StatusLive       StatusKind = "live"
	StatusClosed     StatusKind = "closed"
	StatusError      StatusKind = "error"
)

// Options are the interview settings chosen for a session.
type Options struct {
	Role       string `json:"role"`
	Difficulty string `json:"difficulty"`
	Mode       string `json:"mode"`
}

// Snapshot is a point-in-time copy of the dashboard state.
type Snapshot struct {
	SessionID  string     `json:"session_id,omitempty"`
	Options    Options    `json:"options"`
	StatusKind StatusKind `json:"status_kind"`
	StatusText string     `json:"status_text"`

	// History panel
	History []Entry `json:"history"`

	// Live interaction panel
	Live     string  `json:"live"`
	Question string  `json:"question"`
	Mode     string  `json:"mode"`
	Volume   float64 `json:"volume"`

	// Feedback panel
	Feedback *Feedback `json:"feedback,omitempty"`

	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.History = append([]Entry(nil), s.History...)
	c.Feedback = s.Feedback.clone()
	return c
}

// Active reports whether a session is connecting or live.
func (s Snapshot) Active() bool {
	return s.StatusKind == StatusConnecting || s.StatusKind == StatusLive
}
