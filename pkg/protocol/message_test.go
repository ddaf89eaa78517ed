package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "hello message",
			msgType: TypeHello,
			data:    HelloData{InputRate: 48000, Channels: 1},
		},
		{
			name:    "clear message",
			msgType: TypeClear,
			data:    ClearData{Reason: "interrupted"},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeState,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "nope"},
		{"missing type", `{"data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage([]byte(tt.input)); err == nil {
				t.Error("ParseMessage() expected error")
			}
		})
	}
}

func TestHelloRoundTrip(t *testing.T) {
	msg, err := NewHelloMessage(HelloData{DeviceID: "dev-1", InputRate: 48000, OutputRate: 24000, Channels: 1})
	if err != nil {
		t.Fatalf("NewHelloMessage() error = %v", err)
	}

	bytes, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(bytes)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	if parsed.Type != TypeHello {
		t.Errorf("Type = %v, want %v", parsed.Type, TypeHello)
	}

	hello, err := parsed.GetHelloData()
	if err != nil {
		t.Fatalf("GetHelloData() error = %v", err)
	}

	if hello.DeviceID != "dev-1" {
		t.Errorf("DeviceID = %v, want dev-1", hello.DeviceID)
	}
	if hello.InputRate != 48000 || hello.OutputRate != 24000 {
		t.Errorf("rates = %d/%d, want 48000/24000", hello.InputRate, hello.OutputRate)
	}
}

func TestSpeakMessage(t *testing.T) {
	audioData := []byte{0x00, 0x01, 0x02, 0x03}

	msg, err := NewSpeakMessage(audioData, 24000, 7)
	if err != nil {
		t.Fatalf("NewSpeakMessage() error = %v", err)
	}

	if msg.Type != TypeSpeak {
		t.Errorf("Type = %v, want %v", msg.Type, TypeSpeak)
	}

	speakData, err := msg.GetSpeakData()
	if err != nil {
		t.Fatalf("GetSpeakData() error = %v", err)
	}

	if speakData.Format != FormatPCM16 {
		t.Errorf("Format = %v, want pcm16", speakData.Format)
	}
	if speakData.SampleRate != 24000 {
		t.Errorf("SampleRate = %v, want 24000", speakData.SampleRate)
	}
	if speakData.Seq != 7 {
		t.Errorf("Seq = %v, want 7", speakData.Seq)
	}

	decoded, err := speakData.DecodeSpeakData()
	if err != nil {
		t.Fatalf("DecodeSpeakData() error = %v", err)
	}

	if len(decoded) != len(audioData) {
		t.Errorf("Decoded length = %v, want %v", len(decoded), len(audioData))
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	if pingMsg.Type != TypePing {
		t.Errorf("Type = %v, want %v", pingMsg.Type, TypePing)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}

	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}
	if pingData.Timestamp == 0 {
		t.Error("ping timestamp should be set")
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingData.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}

	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestStateMessage(t *testing.T) {
	snapshot := map[string]any{"status": "live", "volume": 0.25}

	msg, err := NewStateMessage(snapshot)
	if err != nil {
		t.Fatalf("NewStateMessage() error = %v", err)
	}

	if msg.Type != TypeState {
		t.Errorf("Type = %v, want %v", msg.Type, TypeState)
	}

	var got map[string]any
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["status"] != "live" {
		t.Errorf("status = %v, want live", got["status"])
	}
}

func TestMicMessage(t *testing.T) {
	pcmData := make([]byte, 1024)
	for i := range pcmData {
		pcmData[i] = byte(i % 256)
	}

	msg, err := NewMicMessage(pcmData, 16000)
	if err != nil {
		t.Fatalf("NewMicMessage() error = %v", err)
	}

	if msg.Type != TypeMic {
		t.Errorf("Type = %v, want %v", msg.Type, TypeMic)
	}

	micData, err := msg.GetMicData()
	if err != nil {
		t.Fatalf("GetMicData() error = %v", err)
	}

	if micData.SampleRate != 16000 {
		t.Errorf("SampleRate = %v, want 16000", micData.SampleRate)
	}
	if micData.Format != "pcm16" {
		t.Errorf("Format = %v, want pcm16", micData.Format)
	}

	decoded, err := micData.DecodeMicData()
	if err != nil {
		t.Fatalf("DecodeMicData() error = %v", err)
	}

	if len(decoded) != len(pcmData) {
		t.Errorf("Decoded length = %v, want %v", len(decoded), len(pcmData))
	}
}

func TestErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage("no session")
	if err != nil {
		t.Fatalf("NewErrorMessage() error = %v", err)
	}

	var data ErrorData
	if err := msg.ParseData(&data); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if data.Message != "no session" {
		t.Errorf("Message = %v, want no session", data.Message)
	}
}
