// Package audioio provides audio capture and playback devices.
//
// This package supports multiple backends:
//   - exec - pipes raw PCM through arecord/aplay (Linux) or sox rec/play (macOS)
//   - mock - synthetic audio for CI and tests
//   - remote - a browser connected over websocket (provided by pkg/device)
//
// Samples cross the package boundary as float32 in [-1, 1], the same shape
// a browser audio processor hands to its callback.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects exec when the platform tools exist, mock otherwise.
	BackendAuto Backend = "auto"
	// BackendExec pipes audio through external record/play commands.
	BackendExec Backend = "exec"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
	// BackendRemote uses a browser device connected to the web server.
	BackendRemote Backend = "remote"
)

// Config holds audio configuration for one direction (capture or playback).
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000 (what the voice session expects as input)
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of device reads.
	// Default: 20ms (320 samples at 16kHz)
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the platform-specific device identifier.
	// Examples:
	//   - arecord/aplay: "default", "plughw:1,0"
	//   - sox: an AUDIODEV name
	//   - mock: ignored
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a capture Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
		Device:         "", // Use system default
	}
}

// DefaultOutputConfig returns a playback Config matching the model's output.
func DefaultOutputConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleRate = 24000
	return cfg
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of frames per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes on the PCM16 wire.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}

// WithBackend returns a copy with the backend set.
func (c Config) WithBackend(b Backend) Config {
	c.Backend = b
	return c
}

// WithSampleRate returns a copy with the sample rate set.
func (c Config) WithSampleRate(rate int) Config {
	c.SampleRate = rate
	return c
}

// WithDevice returns a copy with the device set.
func (c Config) WithDevice(device string) Config {
	c.Device = device
	return c
}
