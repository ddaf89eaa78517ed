// Package protocol defines the WebSocket message types exchanged between the
// coach server and its browser clients (audio devices and dashboards).
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Device → Server messages
	TypeMic MessageType = "mic" // Microphone audio

	// Server → Device messages
	TypeSpeak MessageType = "speak" // Model audio to play
	TypeClear MessageType = "clear" // Drop queued playback (barge-in)

	// Server → Dashboard messages
	TypeState MessageType = "state" // UI state snapshot

	// Bidirectional
	TypeHello MessageType = "hello" // Handshake, carries audio formats
	TypePing  MessageType = "ping"  // Health check
	TypePong  MessageType = "pong"  // Health check response
	TypeError MessageType = "error" // Protocol or device failure
)

// FormatPCM16 is the only audio format on the wire.
const FormatPCM16 = "pcm16"

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Handshake
// =============================================================================

// HelloData is sent by a device on connect and echoed back by the server
// with the assigned id and the formats it will use.
type HelloData struct {
	DeviceID   string `json:"device_id,omitempty"`
	InputRate  int    `json:"input_rate,omitempty"`  // mic sample rate the device sends
	OutputRate int    `json:"output_rate,omitempty"` // speak sample rate the server sends
	Channels   int    `json:"channels,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// =============================================================================
// Audio
// =============================================================================

// MicData contains microphone audio
type MicData struct {
	Format     string `json:"format"`      // "pcm16"
	SampleRate int    `json:"sample_rate"` // e.g., 16000 or 48000
	Channels   int    `json:"channels"`    // 1 for mono
	Data       string `json:"data"`        // base64 encoded
}

// SpeakData contains audio to play on the device
type SpeakData struct {
	Format     string `json:"format"`        // "pcm16"
	SampleRate int    `json:"sample_rate"`   // 24000 from the model
	Channels   int    `json:"channels"`      // 1 for mono
	Data       string `json:"data"`          // base64 encoded
	Seq        uint64 `json:"seq,omitempty"` // monotonically increasing per device
}

// ClearData asks the device to drop queued audio.
type ClearData struct {
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

// ErrorData describes a failure.
type ErrorData struct {
	Message string `json:"message"`
}
