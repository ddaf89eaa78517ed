package voice

import (
	"fmt"
	"log/slog"
	"net/http"
)

// Provider identifies the voice session provider.
type Provider string

const (
	// ProviderGenAI uses the official google.golang.org/genai Live client.
	ProviderGenAI Provider = "genai"

	// ProviderGeminiWS speaks the Gemini Live WebSocket protocol directly.
	ProviderGeminiWS Provider = "gemini-ws"
)

// Defaults for the Gemini Live API.
const (
	DefaultModel      = "gemini-2.0-flash-live-001"
	DefaultVoice      = "Puck"
	DefaultInputRate  = 16000
	DefaultOutputRate = 24000
)

// Config holds the parameters of one voice session.
type Config struct {
	// Provider selection
	Provider Provider

	// APIKey authenticates with the hosted API.
	APIKey string

	// Model is the live model name, with or without the "models/" prefix.
	Model string

	// Voice is the prebuilt voice name (Puck, Charon, Kore, Fenrir, Aoede).
	Voice string

	// SystemPrompt is sent once as the session's system instruction.
	SystemPrompt string

	// Tools are declared to the model at setup.
	Tools []Tool

	// Audio settings
	InputSampleRate  int // Rate of audio sent (default: 16000)
	OutputSampleRate int // Rate assumed for received audio without a rate parameter (default: 24000)

	// Transcription of both directions
	InputTranscription  bool
	OutputTranscription bool

	// Endpoint overrides the provider's default URL. Used by tests.
	Endpoint string

	// HTTPClient is used by providers that make HTTP calls.
	HTTPClient *http.Client

	// Logger receives provider diagnostics.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with defaults for Gemini Live.
func DefaultConfig() Config {
	return Config{
		Provider:            ProviderGenAI,
		Model:               DefaultModel,
		Voice:               DefaultVoice,
		InputSampleRate:     DefaultInputRate,
		OutputSampleRate:    DefaultOutputRate,
		InputTranscription:  true,
		OutputTranscription: true,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Model == "" {
		return fmt.Errorf("voice: model required")
	}
	if c.InputSampleRate <= 0 || c.OutputSampleRate <= 0 {
		return fmt.Errorf("voice: sample rates must be positive")
	}
	seen := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		if t.Name == "" {
			return fmt.Errorf("voice: tool without name")
		}
		if seen[t.Name] {
			return fmt.Errorf("voice: duplicate tool %q", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// LogValue keeps the API key out of logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", string(c.Provider)),
		slog.String("model", c.Model),
		slog.String("voice", c.Voice),
		slog.Int("tools", len(c.Tools)),
		slog.Int("input_rate", c.InputSampleRate),
		slog.Int("output_rate", c.OutputSampleRate),
	)
}

// WithProvider returns a copy with the provider set.
func (c Config) WithProvider(p Provider) Config {
	c.Provider = p
	return c
}

// WithAPIKey returns a copy with the API key set.
func (c Config) WithAPIKey(key string) Config {
	c.APIKey = key
	return c
}

// WithModel returns a copy with the model set.
func (c Config) WithModel(model string) Config {
	c.Model = model
	return c
}

// WithVoice returns a copy with the voice set.
func (c Config) WithVoice(voice string) Config {
	c.Voice = voice
	return c
}

// WithSystemPrompt returns a copy with the system prompt set.
func (c Config) WithSystemPrompt(prompt string) Config {
	c.SystemPrompt = prompt
	return c
}

// WithTools returns a copy with the tools appended.
func (c Config) WithTools(tools ...Tool) Config {
	c.Tools = append(append([]Tool(nil), c.Tools...), tools...)
	return c
}

// WithEndpoint returns a copy with the endpoint overridden.
func (c Config) WithEndpoint(url string) Config {
	c.Endpoint = url
	return c
}
