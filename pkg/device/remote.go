package device

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-coach/pkg/audioio"
	"github.com/teslashibe/go-coach/pkg/protocol"
)

// RemoteSource is an audioio.Source fed by mic messages from one device.
type RemoteSource struct {
	dev *Conn
	cfg audioio.Config

	mu      sync.Mutex
	running bool
	closed  bool
	ch      chan audioio.AudioChunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newRemoteSource(dev *Conn) *RemoteSource {
	cfg := audioio.DefaultConfig().WithBackend(audioio.BackendRemote)
	dev.mu.Lock()
	if dev.InputRate > 0 {
		cfg.SampleRate = dev.InputRate
	}
	dev.mu.Unlock()
	return &RemoteSource{
		dev: dev,
		cfg: cfg,
		ch:  make(chan audioio.AudioChunk, 64),
	}
}

// Start attaches the source to its device.
func (s *RemoteSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return io.ErrClosedPipe
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.dev.attach(s)
	return nil
}

func (s *RemoteSource) push(chunk audioio.AudioChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	select {
	case s.ch <- chunk:
		s.chunksRead.Add(1)
		s.samplesRead.Add(int64(len(chunk.Samples)))
	default:
		s.overruns.Add(1)
	}
}

// Stop detaches from the device and closes the stream.
func (s *RemoteSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.ch)
	s.mu.Unlock()

	s.dev.detach(s)
	return nil
}

// Read reads the next audio chunk.
func (s *RemoteSource) Read(ctx context.Context) (audioio.AudioChunk, error) {
	select {
	case <-ctx.Done():
		return audioio.AudioChunk{}, ctx.Err()
	case chunk, ok := <-s.ch:
		if !ok {
			return audioio.AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (s *RemoteSource) Stream() <-chan audioio.AudioChunk { return s.ch }

// Config returns the audio configuration.
func (s *RemoteSource) Config() audioio.Config { return s.cfg }

// Name returns "remote".
func (s *RemoteSource) Name() string { return "remote" }

// Close releases resources.
func (s *RemoteSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns source statistics.
func (s *RemoteSource) Stats() audioio.SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return audioio.SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "remote",
	}
}

var _ audioio.SourceWithStats = (*RemoteSource)(nil)

// RemoteSink is an audioio.Sink that sends speak messages to one device.
type RemoteSink struct {
	dev *Conn
	cfg audioio.Config

	mu      sync.Mutex
	running bool
	closed  bool

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	clears         atomic.Int64
}

func newRemoteSink(dev *Conn, rate int) *RemoteSink {
	cfg := audioio.DefaultOutputConfig().WithBackend(audioio.BackendRemote)
	if rate > 0 {
		cfg.SampleRate = rate
	}
	return &RemoteSink{dev: dev, cfg: cfg}
}

// Start enables sending.
func (s *RemoteSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	s.running = true
	return nil
}

// Stop disables sending.
func (s *RemoteSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Write sends one chunk as a speak message.
func (s *RemoteSink) Write(ctx context.Context, chunk audioio.AudioChunk) error {
	s.mu.Lock()
	ok := s.running && !s.closed
	s.mu.Unlock()
	if !ok {
		return io.ErrClosedPipe
	}

	if chunk.SampleRate != s.cfg.SampleRate || chunk.Channels != 1 {
		chunk = audioio.ResampleChunk(chunk, s.cfg.SampleRate)
	}

	msg, err := protocol.NewSpeakMessage(chunk.Bytes(), chunk.SampleRate, s.dev.seq.Add(1))
	if err != nil {
		return err
	}
	if err := s.dev.Send(msg); err != nil {
		return fmt.Errorf("send speak: %w", err)
	}

	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush is a no-op; the device plays what it receives.
func (s *RemoteSink) Flush(ctx context.Context) error { return nil }

// Clear tells the device to drop queued audio.
func (s *RemoteSink) Clear() error {
	s.clears.Add(1)
	msg, err := protocol.NewClearMessage("interrupted")
	if err != nil {
		return err
	}
	if err := s.dev.Send(msg); err != nil && err != ErrNotConnected {
		return err
	}
	return nil
}

// Config returns the audio configuration.
func (s *RemoteSink) Config() audioio.Config { return s.cfg }

// Name returns "remote".
func (s *RemoteSink) Name() string { return "remote" }

// Close releases resources.
func (s *RemoteSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.running = false
	s.mu.Unlock()
	return nil
}

// Stats returns sink statistics.
func (s *RemoteSink) Stats() audioio.SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return audioio.SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Clears:         s.clears.Load(),
		Running:        running,
		Backend:        "remote",
	}
}

var _ audioio.SinkWithStats = (*RemoteSink)(nil)

// OpenSource waits for a device and returns a started source bound to it.
func (h *Hub) OpenSource(ctx context.Context) (audioio.Source, error) {
	dev, err := h.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for device: %w", err)
	}
	// Give the device a moment to announce its input rate.
	h.waitHello(ctx, dev, 500*time.Millisecond)

	src := newRemoteSource(dev)
	if err := src.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	h.logger.Info("remote source opened", "device", dev.ID, "sample_rate", src.cfg.SampleRate)
	return src, nil
}

// OpenSink waits for a device and returns a started sink bound to it.
func (h *Hub) OpenSink(ctx context.Context) (audioio.Sink, error) {
	dev, err := h.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for device: %w", err)
	}
	sink := newRemoteSink(dev, h.outputRate)
	if err := sink.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	return sink, nil
}

func (h *Hub) waitHello(ctx context.Context, dev *Conn, max time.Duration) {
	deadline := time.Now().Add(max)
	for time.Now().Before(deadline) {
		dev.mu.Lock()
		rate := dev.InputRate
		dev.mu.Unlock()
		if rate > 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
}

var _ audioio.Devices = (*Hub)(nil)
