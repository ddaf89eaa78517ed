package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-coach/internal/config"
	"github.com/teslashibe/go-coach/pkg/coach"
	"github.com/teslashibe/go-coach/pkg/device"
	"github.com/teslashibe/go-coach/pkg/router"
	"github.com/teslashibe/go-coach/pkg/state"
	"github.com/teslashibe/go-coach/pkg/voice"
)

func mockConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.Backend = "mock"
	cfg.Web.Enabled = false
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := mockConfig()
	cfg.Voice.Provider = "nope"

	_, err := New(cfg)
	var cerr *config.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "voice.provider", cerr.Field)
}

func TestNew_NilUsesDefaults(t *testing.T) {
	a, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, "genai", a.cfg.Voice.Provider)
}

func TestInit_MockBackend(t *testing.T) {
	a, err := New(mockConfig())
	require.NoError(t, err)
	require.NoError(t, a.Init())

	assert.NotNil(t, a.Controller())
	assert.NotNil(t, a.Registry())
	assert.Nil(t, a.Server())
	assert.Nil(t, a.deviceHub)
}

func TestInit_RemoteBackendUsesDeviceHub(t *testing.T) {
	cfg := mockConfig()
	cfg.Audio.Backend = "remote"
	cfg.Web.Enabled = true
	cfg.Web.Address = "127.0.0.1:0"

	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Init())

	require.NotNil(t, a.deviceHub)
	_, ok := a.devices.(*device.Hub)
	assert.True(t, ok)
	assert.NotNil(t, a.Server())
}

func TestCoachConfig_Mapping(t *testing.T) {
	cfg := mockConfig()
	cfg.Voice.Provider = "gemini-ws"
	cfg.Voice.APIKey = "k"
	cfg.Voice.Voice = "Kore"
	cfg.Voice.TranscriptMode = "append"
	cfg.Audio.FrameSize = 2048
	cfg.Audio.SendQueue = 8
	cfg.Audio.PlaybackLead = 80 * time.Millisecond

	a, err := New(cfg)
	require.NoError(t, err)
	c := a.coachConfig()

	assert.Equal(t, voice.ProviderGeminiWS, c.Voice.Provider)
	assert.Equal(t, "k", c.Voice.APIKey)
	assert.Equal(t, "Kore", c.Voice.Voice)
	assert.Equal(t, 16000, c.Voice.InputSampleRate)
	assert.Equal(t, 24000, c.Voice.OutputSampleRate)
	assert.NotNil(t, c.Voice.HTTPClient)
	assert.Equal(t, 2048, c.Capture.FrameSize)
	assert.Equal(t, 16000, c.Capture.SampleRate)
	assert.Equal(t, 8, c.Capture.QueueSize)
	assert.Equal(t, 80*time.Millisecond, c.PlaybackLead)
	assert.Equal(t, router.TranscriptAppend, c.TranscriptMode)
}

func TestRunSession_MissingAPIKey(t *testing.T) {
	a, err := New(mockConfig())
	require.NoError(t, err)
	require.NoError(t, a.Init())

	err = a.RunSession(context.Background(), state.Options{})
	assert.ErrorIs(t, err, coach.ErrMissingAPIKey)
	assert.Equal(t, state.StatusError, a.Controller().Store().Snapshot().StatusKind)
}

func TestRun_WebDisabled(t *testing.T) {
	a, err := New(mockConfig())
	require.NoError(t, err)
	require.NoError(t, a.Init())

	assert.Error(t, a.Run(context.Background()))
}

func TestShutdown_NoSession(t *testing.T) {
	a, err := New(mockConfig())
	require.NoError(t, err)
	a.Shutdown()

	require.NoError(t, a.Init())
	a.Shutdown()
	assert.False(t, a.Controller().Active())
}
