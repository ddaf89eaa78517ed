// Package device accepts browser audio devices over WebSocket and exposes
// them as audioio sources and sinks.
package device

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-coach/pkg/audioio"
	"github.com/teslashibe/go-coach/pkg/protocol"
)

// ErrNotConnected is returned when a message targets a device that is gone.
var ErrNotConnected = errors.New("device: not connected")

// Conn represents a connected browser device
type Conn struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	InputRate int

	mu     sync.Mutex
	source *RemoteSource
	seq    atomic.Uint64
	closed bool
}

// Send sends a message to the device
func (d *Conn) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrNotConnected
	}
	return d.Conn.WriteMessage(websocket.TextMessage, data)
}

func (d *Conn) attach(src *RemoteSource) {
	d.mu.Lock()
	prev := d.source
	d.source = src
	d.mu.Unlock()
	if prev != nil && prev != src {
		prev.Stop()
	}
}

func (d *Conn) detach(src *RemoteSource) {
	d.mu.Lock()
	if d.source == src {
		d.source = nil
	}
	d.mu.Unlock()
}

func (d *Conn) deliver(chunk audioio.AudioChunk) {
	d.mu.Lock()
	src := d.source
	d.mu.Unlock()
	if src != nil {
		src.push(chunk)
	}
}

// disconnect marks the connection closed and ends any attached source.
func (d *Conn) disconnect() {
	d.mu.Lock()
	d.closed = true
	src := d.source
	d.source = nil
	d.mu.Unlock()
	if src != nil {
		src.Stop()
	}
}

// Hub manages WebSocket connections from browser devices
type Hub struct {
	mu         sync.RWMutex
	devices    map[string]*Conn
	notify     chan struct{}
	outputRate int
	logger     *slog.Logger

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	micChunks        atomic.Uint64
}

// NewHub creates a new device hub. outputRate is the rate of audio sent to
// devices in speak messages.
func NewHub(outputRate int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		devices:    make(map[string]*Conn),
		notify:     make(chan struct{}),
		outputRate: outputRate,
		logger:     logger,
	}
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/device", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/device", websocket.New(h.handleDevice))
	app.Get("/ws/device/:id", websocket.New(h.handleDevice))
}

// handleDevice handles a device WebSocket connection
func (h *Hub) handleDevice(c *websocket.Conn) {
	deviceID := c.Params("id")
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	dev := &Conn{
		ID:        deviceID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	if old, ok := h.devices[deviceID]; ok {
		old.disconnect()
	}
	h.devices[deviceID] = dev
	count := len(h.devices)
	close(h.notify)
	h.notify = make(chan struct{})
	h.mu.Unlock()

	h.logger.Info("device connected", "device", deviceID, "total", count)

	if msg, err := protocol.NewHelloMessage(protocol.HelloData{
		DeviceID:   deviceID,
		OutputRate: h.outputRate,
		Channels:   1,
	}); err == nil {
		h.messagesSent.Add(1)
		_ = dev.Send(msg)
	}

	defer func() {
		dev.disconnect()
		h.mu.Lock()
		if h.devices[deviceID] == dev {
			delete(h.devices, deviceID)
		}
		count := len(h.devices)
		h.mu.Unlock()

		h.logger.Info("device disconnected", "device", deviceID, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("device read ended", "device", deviceID, "error", err)
			return
		}

		dev.mu.Lock()
		dev.LastSeen = time.Now()
		dev.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(dev, data)
	}
}

// handleMessage processes an incoming message from a device
func (h *Hub) handleMessage(dev *Conn, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Warn("device message parse error", "device", dev.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeHello:
		hello, err := msg.GetHelloData()
		if err != nil {
			return
		}
		dev.mu.Lock()
		dev.InputRate = hello.InputRate
		dev.mu.Unlock()
		h.logger.Debug("device hello", "device", dev.ID, "input_rate", hello.InputRate, "agent", hello.UserAgent)

	case protocol.TypeMic:
		mic, err := msg.GetMicData()
		if err != nil {
			h.reject(dev, "malformed mic message")
			return
		}
		if mic.Format != protocol.FormatPCM16 {
			h.reject(dev, "unsupported mic format: "+mic.Format)
			return
		}
		raw, err := mic.DecodeMicData()
		if err != nil {
			h.reject(dev, "mic data is not base64")
			return
		}
		channels := mic.Channels
		if channels <= 0 {
			channels = 1
		}
		h.micChunks.Add(1)
		dev.deliver(audioio.ChunkFromBytes(raw, mic.SampleRate, channels))

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		id := ""
		if ping != nil {
			id = ping.ID
		}
		pong, err := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			h.messagesSent.Add(1)
			_ = dev.Send(pong)
		}

	case protocol.TypePong:
		// liveness only; LastSeen already updated
	}
}

// send sends a message to a specific device
func (h *Hub) send(deviceID string, msg *protocol.Message) error {
	h.mu.RLock()
	dev, ok := h.devices[deviceID]
	h.mu.RUnlock()

	if !ok {
		return ErrNotConnected
	}

	h.messagesSent.Add(1)
	return dev.Send(msg)
}

// reject reports a bad device message back to the device.
func (h *Hub) reject(dev *Conn, reason string) {
	h.logger.Debug("rejected device message", "device", dev.ID, "reason", reason)
	msg, err := protocol.NewErrorMessage(reason)
	if err != nil {
		return
	}
	if err := h.send(dev.ID, msg); err != nil {
		h.logger.Debug("send error message", "device", dev.ID, "error", err)
	}
}

// GetDevice returns a device connection by ID
func (h *Hub) GetDevice(deviceID string) *Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.devices[deviceID]
}

// GetDevices returns all connected devices
func (h *Hub) GetDevices() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	devices := make([]*Conn, 0, len(h.devices))
	for _, d := range h.devices {
		devices = append(devices, d)
	}
	return devices
}

// DeviceCount returns the number of connected devices
func (h *Hub) DeviceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

// latest returns the most recently connected device, or nil.
func (h *Hub) latest() (*Conn, chan struct{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var newest *Conn
	for _, d := range h.devices {
		if newest == nil || d.Connected.After(newest.Connected) {
			newest = d
		}
	}
	return newest, h.notify
}

// Wait blocks until a device is connected and returns the newest one.
func (h *Hub) Wait(ctx context.Context) (*Conn, error) {
	for {
		dev, notify := h.latest()
		if dev != nil {
			return dev, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		}
	}
}

// Stats contains hub statistics
type Stats struct {
	DeviceCount      int    `json:"device_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	MicChunks        uint64 `json:"mic_chunks"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		DeviceCount:      h.DeviceCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		MicChunks:        h.micChunks.Load(),
	}
}

// Info contains info about a connected device
type Info struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	InputRate int       `json:"input_rate"`
}

// GetDeviceInfos returns info about all connected devices
func (h *Hub) GetDeviceInfos() []Info {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]Info, 0, len(h.devices))
	for _, d := range h.devices {
		d.mu.Lock()
		infos = append(infos, Info{
			ID:        d.ID,
			Connected: d.Connected,
			LastSeen:  d.LastSeen,
			InputRate: d.InputRate,
		})
		d.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for device inspection
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	devices := api.Group("/devices")

	devices.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"devices": h.GetDeviceInfos(),
			"count":   h.DeviceCount(),
		})
	})

	devices.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
