package voice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-coach/pkg/pcm"
)

// Common errors returned by sessions.
var (
	ErrNotConnected    = errors.New("voice: session not connected")
	ErrMissingAPIKey   = errors.New("voice: missing API key")
	ErrUnknownProvider = errors.New("voice: unknown provider")
)

// Session is one live connection to a realtime voice model.
type Session interface {
	// SendAudio streams one encoded audio blob to the model.
	SendAudio(ctx context.Context, blob pcm.Blob) error

	// SendToolResponses acknowledges tool calls in a single message.
	SendToolResponses(ctx context.Context, responses []ToolResponse) error

	// Receive blocks for the next server event.
	// It returns io.EOF when the server closes the session normally or
	// after Close.
	Receive(ctx context.Context) (ServerEvent, error)

	// Close ends the session. It is safe to call more than once.
	Close() error
}

// ServerEvent is one inbound message from the model. Several fields may be
// set at once.
type ServerEvent struct {
	// SetupComplete is set once, when the session is ready.
	SetupComplete bool

	// ToolCalls are function invocations to acknowledge.
	ToolCalls []ToolCall

	// ToolCallCancellations lists call ids the model abandoned.
	ToolCallCancellations []string

	// Audio holds inline response audio parts.
	Audio []pcm.Blob

	// Text holds inline text parts of the model turn.
	Text []string

	// OutputTranscription is a transcript chunk of the model's speech.
	OutputTranscription string

	// InputTranscription is the current transcript of the user's speech.
	InputTranscription string

	// TurnComplete marks the end of the model's turn.
	TurnComplete bool

	// Interrupted means the user spoke over the model.
	Interrupted bool

	// GoAway warns that the server will close the session soon.
	GoAway bool

	// GoAwayIn is the time left before the server closes, when known.
	GoAwayIn time.Duration
}

// Empty reports whether the event carries nothing a caller would act on.
func (e ServerEvent) Empty() bool {
	return !e.SetupComplete &&
		len(e.ToolCalls) == 0 &&
		len(e.ToolCallCancellations) == 0 &&
		len(e.Audio) == 0 &&
		len(e.Text) == 0 &&
		e.OutputTranscription == "" &&
		e.InputTranscription == "" &&
		!e.TurnComplete &&
		!e.Interrupted &&
		!e.GoAway
}

// Dialer opens a Session for a provider.
type Dialer func(ctx context.Context, cfg Config) (Session, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Provider]Dialer)
)

// Register makes a provider available to Connect.
// This is called by the bundled implementations in init().
func Register(p Provider, d Dialer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p] = d
}

// Providers returns the registered provider names, sorted.
func Providers() []Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Provider, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Connect validates cfg and opens a session with its provider.
// The API key is checked before any network activity.
func Connect(ctx context.Context, cfg Config) (Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registryMu.RLock()
	dial, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	sess, err := dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("voice/%s: connect: %w", cfg.Provider, err)
	}
	return sess, nil
}
