package bundled

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/teslashibe/go-coach/internal/httpc"
	"github.com/teslashibe/go-coach/pkg/pcm"
	"github.com/teslashibe/go-coach/pkg/voice"
)

// GenAI implements voice.Session with the official Gemini Live client.
type GenAI struct {
	session *genai.Session
	logger  *slog.Logger

	sendMu    sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

// DialGenAI opens a Live session through google.golang.org/genai.
func DialGenAI(ctx context.Context, cfg voice.Config) (voice.Session, error) {
	if cfg.APIKey == "" {
		return nil, voice.ErrMissingAPIKey
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.Streaming()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	model := strings.TrimPrefix(cfg.Model, "models/")
	session, err := client.Live.Connect(ctx, model, liveConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("live connect: %w", err)
	}

	logger.Debug("genai live connected", "config", cfg)
	return &GenAI{session: session, logger: logger}, nil
}

// liveConnectConfig maps the session config onto the SDK's setup.
func liveConnectConfig(cfg voice.Config) *genai.LiveConnectConfig {
	voiceName := cfg.Voice
	if voiceName == "" {
		voiceName = voice.DefaultVoice
	}

	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voiceName},
			},
		},
	}

	if cfg.SystemPrompt != "" {
		lc.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(cfg.SystemPrompt)},
		}
	}

	if len(cfg.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(cfg.Tools))
		for _, tool := range cfg.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toGenAISchema(tool.Parameters),
			})
		}
		lc.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	if cfg.InputTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

var genaiTypes = map[voice.Type]genai.Type{
	voice.TypeObject:  genai.TypeObject,
	voice.TypeString:  genai.TypeString,
	voice.TypeNumber:  genai.TypeNumber,
	voice.TypeInteger: genai.TypeInteger,
	voice.TypeBoolean: genai.TypeBoolean,
	voice.TypeArray:   genai.TypeArray,
}

// toGenAISchema converts a tool schema to the SDK type.
func toGenAISchema(s *voice.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genaiTypes[s.Type],
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toGenAISchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toGenAISchema(p)
		}
	}
	return out
}

// SendAudio streams one PCM blob to the model.
func (g *GenAI) SendAudio(ctx context.Context, blob pcm.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.closed.Load() {
		return voice.ErrNotConnected
	}

	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	return g.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: blob.MIMEType, Data: blob.Data},
	})
}

// SendToolResponses acknowledges tool calls in one message.
func (g *GenAI) SendToolResponses(ctx context.Context, responses []voice.ToolResponse) error {
	if len(responses) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.closed.Load() {
		return voice.ErrNotConnected
	}

	frs := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		frs = append(frs, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response,
		})
	}

	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	return g.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: frs})
}

// Receive blocks for the next message that carries something actionable.
func (g *GenAI) Receive(ctx context.Context) (voice.ServerEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return voice.ServerEvent{}, err
		}

		msg, err := g.session.Receive()
		if err != nil {
			if g.closed.Load() || isNormalClose(err) {
				return voice.ServerEvent{}, io.EOF
			}
			return voice.ServerEvent{}, fmt.Errorf("voice/genai: receive: %w", err)
		}

		ev := fromLiveMessage(msg)
		if ev.Empty() {
			continue
		}
		return ev, nil
	}
}

// fromLiveMessage converts an SDK message into an event.
func fromLiveMessage(msg *genai.LiveServerMessage) voice.ServerEvent {
	var ev voice.ServerEvent
	if msg == nil {
		return ev
	}

	ev.SetupComplete = msg.SetupComplete != nil
	if msg.GoAway != nil {
		ev.GoAway = true
		ev.GoAwayIn = msg.GoAway.TimeLeft
	}

	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
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

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil {
					continue
				}
				if part.InlineData != nil && len(part.InlineData.Data) > 0 && pcm.IsPCM(part.InlineData.MIMEType) {
					ev.Audio = append(ev.Audio, pcm.Blob{
						MIMEType: part.InlineData.MIMEType,
						Data:     part.InlineData.Data,
					})
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

	return ev
}

// Close ends the Live session.
func (g *GenAI) Close() error {
	var err error
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		err = g.session.Close()
	})
	return err
}

// isNormalClose reports whether err is a normal websocket close.
func isNormalClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return errors.Is(err, io.EOF)
}

var _ voice.Session = (*GenAI)(nil)

func init() {
	voice.Register(voice.ProviderGenAI, DialGenAI)
}
