package bundled

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-coach/pkg/pcm"
	"github.com/teslashibe/go-coach/pkg/voice"
)

const (
	// Gemini Live API WebSocket endpoint
	geminiLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	geminiWriteTimeout = 10 * time.Second
)

// Gemini implements voice.Session over the Gemini Live WebSocket protocol.
type Gemini struct {
	config voice.Config
	logger *slog.Logger

	// WebSocket connection
	ws   *websocket.Conn
	wsMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
}

// Wire types. Field names follow the API's JSON mapping.

type geminiSetup struct {
	Setup geminiSetupBody `json:"setup"`
}

type geminiSetupBody struct {
	Model                    string                 `json:"model"`
	GenerationConfig         geminiGenerationConfig `json:"generationConfig"`
	SystemInstruction        *geminiContent         `json:"systemInstruction,omitempty"`
	Tools                    []geminiTool           `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}              `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}              `json:"outputAudioTranscription,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	SpeechConfig       geminiSpeechConfig `json:"speechConfig"`
}

type geminiSpeechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiRealtimeInput struct {
	RealtimeInput struct {
		Audio geminiBlob `json:"audio"`
	} `json:"realtimeInput"`
}

type geminiToolResponse struct {
	ToolResponse struct {
		FunctionResponses []geminiFunctionResponse `json:"functionResponses"`
	} `json:"toolResponse"`
}

type geminiFunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Response map[string]any `json:"response"`
}

type geminiServerMessage struct {
	SetupComplete *struct{} `json:"setupComplete"`
	ServerContent *struct {
		ModelTurn           *geminiContent `json:"modelTurn"`
		TurnComplete        bool           `json:"turnComplete"`
		Interrupted         bool           `json:"interrupted"`
		InputTranscription  *geminiText    `json:"inputTranscription"`
		OutputTranscription *geminiText    `json:"outputTranscription"`
	} `json:"serverContent"`
	ToolCall *struct {
		FunctionCalls []struct {
			ID   string         `json:"id"`
			Name string         `json:"name"`
			Args map[string]any `json:"args"`
		} `json:"functionCalls"`
	} `json:"toolCall"`
	ToolCallCancellation *struct {
		IDs []string `json:"ids"`
	} `json:"toolCallCancellation"`
	GoAway *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway"`
}

type geminiText struct {
	Text string `json:"text"`
}

// DialGemini connects to Gemini Live and sends the session setup.
func DialGemini(ctx context.Context, cfg voice.Config) (voice.Session, error) {
	if cfg.APIKey == "" {
		return nil, voice.ErrMissingAPIKey
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = geminiLiveURL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", cfg.APIKey)
	u.RawQuery = q.Encode()

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}

	ws, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	g := &Gemini{
		config: cfg,
		logger: logger,
		ws:     ws,
	}

	if err := g.sendJSON(g.setupMessage()); err != nil {
		g.Close()
		return nil, fmt.Errorf("failed to configure session: %w", err)
	}

	logger.Debug("gemini live connected", "config", cfg)
	return g, nil
}

// setupMessage builds the initial configuration message.
func (g *Gemini) setupMessage() geminiSetup {
	model := g.config.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	voiceName := g.config.Voice
	if voiceName == "" {
		voiceName = voice.DefaultVoice
	}

	body := geminiSetupBody{
		Model: model,
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	body.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = voiceName

	if g.config.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: g.config.SystemPrompt}}}
	}

	if len(g.config.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, 0, len(g.config.Tools))
		for _, tool := range g.config.Tools {
			decls = append(decls, geminiFunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters.Map(),
			})
		}
		body.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	if g.config.InputTranscription {
		body.InputAudioTranscription = &struct{}{}
	}
	if g.config.OutputTranscription {
		body.OutputAudioTranscription = &struct{}{}
	}

	return geminiSetup{Setup: body}
}

// SendAudio streams one PCM blob to the model.
func (g *Gemini) SendAudio(ctx context.Context, blob pcm.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var msg geminiRealtimeInput
	msg.RealtimeInput.Audio = geminiBlob{
		MIMEType: blob.MIMEType,
		Data:     blob.Base64(),
	}
	return g.sendJSON(msg)
}

// SendToolResponses acknowledges tool calls in one message.
func (g *Gemini) SendToolResponses(ctx context.Context, responses []voice.ToolResponse) error {
	if len(responses) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var msg geminiToolResponse
	for _, r := range responses {
		msg.ToolResponse.FunctionResponses = append(msg.ToolResponse.FunctionResponses, geminiFunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response,
		})
	}
	return g.sendJSON(msg)
}

// Receive reads messages until one carries something actionable.
func (g *Gemini) Receive(ctx context.Context) (voice.ServerEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return voice.ServerEvent{}, err
		}

		_, message, err := g.ws.ReadMessage()
		if err != nil {
			if g.closed.Load() || isNormalClose(err) {
				return voice.ServerEvent{}, io.EOF
			}
			return voice.ServerEvent{}, fmt.Errorf("voice/gemini: read: %w", err)
		}

		ev, err := g.parse(message)
		if err != nil {
			g.logger.Debug("gemini: failed to parse message", "error", err)
			continue
		}
		if ev.Empty() {
			continue
		}
		return ev, nil
	}
}

// parse converts one server message into an event.
func (g *Gemini) parse(message []byte) (voice.ServerEvent, error) {
	var msg geminiServerMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return voice.ServerEvent{}, err
	}

	var ev voice.ServerEvent
	ev.SetupComplete = msg.SetupComplete != nil

	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			ev.ToolCalls = append(ev.ToolCalls, voice.ToolCall{
				ID:        fc.ID,
				Name:      fc.Name,
				Arguments: fc.Args,
			})
		}
	}

	if msg.ToolCallCancellation != nil {
		ev.ToolCallCancellations = msg.ToolCallCancellation.IDs
	}

	if msg.GoAway != nil {
		ev.GoAway = true
		if d, err := time.ParseDuration(msg.GoAway.TimeLeft); err == nil {
			ev.GoAwayIn = d
		}
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && pcm.IsPCM(part.InlineData.MIMEType) {
					data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
					if err == nil && len(data) > 0 {
						ev.Audio = append(ev.Audio, pcm.Blob{MIMEType: part.InlineData.MIMEType, Data: data})
					}
				}
				if part.Text != "" {
					ev.Text = append(ev.Text, part.Text)
				}
			}
		}
		if sc.InputTranscription != nil {
			ev.InputTranscription = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			ev.OutputTranscription = sc.OutputTranscription.Text
		}
		ev.TurnComplete = sc.TurnComplete
		ev.Interrupted = sc.Interrupted
	}

	return ev, nil
}

// Close sends a close frame and closes the connection.
func (g *Gemini) Close() error {
	var err error
	g.closeOnce.Do(func() {
		g.closed.Store(true)

		g.wsMu.Lock()
		_ = g.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		g.wsMu.Unlock()

		err = g.ws.Close()
	})
	return err
}

// sendJSON sends a JSON message over WebSocket.
func (g *Gemini) sendJSON(v any) error {
	if g.closed.Load() {
		return voice.ErrNotConnected
	}

	g.wsMu.Lock()
	defer g.wsMu.Unlock()

	_ = g.ws.SetWriteDeadline(time.Now().Add(geminiWriteTimeout))
	if err := g.ws.WriteJSON(v); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return voice.ErrNotConnected
		}
		return err
	}
	return nil
}

// Ensure Gemini implements voice.Session at compile time.
var _ voice.Session = (*Gemini)(nil)

// Register Gemini provider in voice package.
func init() {
	voice.Register(voice.ProviderGeminiWS, DialGemini)
}
