package protocol

import (
	"encoding/base64"
	"time"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewHelloMessage creates a handshake message
func NewHelloMessage(hello HelloData) (*Message, error) {
	return NewMessage(TypeHello, hello)
}

// NewMicMessage creates a microphone audio message
func NewMicMessage(pcmData []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeMic, MicData{
		Format:     FormatPCM16,
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcmData),
	})
}

// NewSpeakMessage creates a speak message with PCM16 audio data
func NewSpeakMessage(pcmData []byte, sampleRate int, seq uint64) (*Message, error) {
	return NewMessage(TypeSpeak, SpeakData{
		Format:     FormatPCM16,
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcmData),
		Seq:        seq,
	})
}

// NewClearMessage creates a clear message
func NewClearMessage(reason string) (*Message, error) {
	return NewMessage(TypeClear, ClearData{Reason: reason})
}

// NewStateMessage wraps a state snapshot for dashboards
func NewStateMessage(snapshot interface{}) (*Message, error) {
	return NewMessage(TypeState, snapshot)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// NewErrorMessage creates an error message
func NewErrorMessage(msg string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: msg})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetHelloData extracts handshake data from a message
func (m *Message) GetHelloData() (*HelloData, error) {
	var data HelloData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetMicData extracts mic data from a message
func (m *Message) GetMicData() (*MicData, error) {
	var data MicData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeMicData decodes the base64 audio data
func (mic *MicData) DecodeMicData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(mic.Data)
}

// GetSpeakData extracts speak data from a message
func (m *Message) GetSpeakData() (*SpeakData, error) {
	var data SpeakData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeSpeakData decodes the base64 audio data
func (s *SpeakData) DecodeSpeakData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(s.Data)
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
