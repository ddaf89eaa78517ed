package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-coach/pkg/pcm"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ProviderGenAI, cfg.Provider)
	assert.Equal(t, 16000, cfg.InputSampleRate)
	assert.Equal(t, 24000, cfg.OutputSampleRate)
	assert.Equal(t, "Puck", cfg.Voice)
	assert.True(t, cfg.InputTranscription)
	assert.True(t, cfg.OutputTranscription)
}

func TestConfigValidation(t *testing.T) {
	tool := Tool{Name: "update_ui"}

	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:   "valid config",
			config: DefaultConfig().WithAPIKey("k").WithTools(tool),
		},
		{
			name:    "missing api key",
			config:  DefaultConfig(),
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "missing model",
			config:  DefaultConfig().WithAPIKey("k").WithModel(""),
			wantErr: errors.New("voice: model required"),
		},
		{
			name:    "duplicate tool",
			config:  DefaultConfig().WithAPIKey("k").WithTools(tool, tool),
			wantErr: errors.New(`voice: duplicate tool "update_ui"`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr.Error(), err.Error())
		})
	}
}

func TestWithToolsDoesNotAlias(t *testing.T) {
	base := DefaultConfig().WithTools(Tool{Name: "a"})
	x := base.WithTools(Tool{Name: "b"})
	y := base.WithTools(Tool{Name: "c"})

	assert.Equal(t, "b", x.Tools[1].Name)
	assert.Equal(t, "c", y.Tools[1].Name)
	assert.Len(t, base.Tools, 1)
}

func TestSchemaMap(t *testing.T) {
	s := &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"mode":  {Type: TypeString, Enum: []string{"question", "feedback"}},
			"items": {Type: TypeArray, Items: &Schema{Type: TypeString}},
		},
		Required: []string{"mode"},
	}

	m := s.Map()
	assert.Equal(t, "object", m["type"])
	assert.Equal(t, []string{"mode"}, m["required"])

	props := m["properties"].(map[string]any)
	mode := props["mode"].(map[string]any)
	assert.Equal(t, []string{"question", "feedback"}, mode["enum"])
	items := props["items"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string"}, items["items"])
}

func TestToolResponses(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "update_ui"}

	ok := Success(call)
	assert.Equal(t, "c1", ok.ID)
	assert.False(t, ok.IsError())

	bad := Failure(call, errors.New("bad args"))
	assert.True(t, bad.IsError())
	assert.Equal(t, "bad args", bad.Response["error"])
}

func TestServerEventEmpty(t *testing.T) {
	var ev ServerEvent
	assert.True(t, ev.Empty())

	ev.Audio = []pcm.Blob{{MIMEType: "audio/pcm;rate=24000"}}
	assert.False(t, ev.Empty())

	assert.False(t, (&ServerEvent{TurnComplete: true}).Empty())
}

type nopSession struct{}

func (nopSession) SendAudio(context.Context, pcm.Blob) error               { return nil }
func (nopSession) SendToolResponses(context.Context, []ToolResponse) error { return nil }
func (nopSession) Receive(context.Context) (ServerEvent, error)            { return ServerEvent{}, nil }
func (nopSession) Close() error                                            { return nil }

func TestConnect(t *testing.T) {
	const fake Provider = "fake-test"
	dialed := 0
	Register(fake, func(ctx context.Context, cfg Config) (Session, error) {
		dialed++
		return nopSession{}, nil
	})

	_, err := Connect(context.Background(), DefaultConfig().WithProvider(fake))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Zero(t, dialed, "no dial without an API key")

	sess, err := Connect(context.Background(), DefaultConfig().WithProvider(fake).WithAPIKey("k"))
	require.NoError(t, err)
	assert.NotNil(t, sess)
	assert.Equal(t, 1, dialed)
	assert.Contains(t, Providers(), fake)

	_, err = Connect(context.Background(), DefaultConfig().WithProvider("nope").WithAPIKey("k"))
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestConnectWrapsDialError(t *testing.T) {
	const failing Provider = "failing-test"
	boom := errors.New("boom")
	Register(failing, func(ctx context.Context, cfg Config) (Session, error) {
		return nil, boom
	})

	_, err := Connect(context.Background(), DefaultConfig().WithProvider(failing).WithAPIKey("k"))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "voice/failing-test: connect")
}

func TestMetricsCollector(t *testing.T) {
	m := NewMetricsCollector()

	updated := make(chan Metrics, 1)
	m.OnUpdate(func(mt Metrics) { updated <- mt })

	m.MarkSpeechEnd()
	time.Sleep(5 * time.Millisecond)
	m.MarkFirstText()
	m.MarkFirstAudio()
	m.MarkFirstAudio()
	done := m.MarkResponseDone()

	assert.Equal(t, 2, done.AudioChunksIn)
	assert.Greater(t, done.FirstAudio, time.Duration(0))
	assert.GreaterOrEqual(t, done.TotalLatency, done.FirstAudio)
	assert.Equal(t, 1, m.Turns())
	assert.Equal(t, Metrics{}, m.Current())

	select {
	case mt := <-updated:
		assert.Equal(t, 2, mt.AudioChunksIn)
	case <-time.After(time.Second):
		t.Fatal("OnUpdate not called")
	}

	avg := m.Average()
	assert.Equal(t, done.TotalLatency, avg.TotalLatency)
	assert.Contains(t, done.FormatLatency(), "TOTAL")
}
