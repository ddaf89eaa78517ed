package audioio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestMockSource_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()

	// Start should succeed
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Starting again should be a no-op
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	// Stop should succeed
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Stopping again should be a no-op
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
}

func TestMockSource_Read(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Read a chunk
	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	expectedSamples := cfg.BufferSize() * cfg.Channels
	if len(chunk.Samples) != expectedSamples {
		t.Errorf("Expected %d samples, got %d", expectedSamples, len(chunk.Samples))
	}

	if chunk.SampleRate != cfg.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", cfg.SampleRate, chunk.SampleRate)
	}

	if chunk.Channels != cfg.Channels {
		t.Errorf("Expected %d channels, got %d", cfg.Channels, chunk.Channels)
	}
}

func TestMockSource_Stream(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stream := src.Stream()
	chunkCount := 0

	for {
		select {
		case <-ctx.Done():
			goto done
		case _, ok := <-stream:
			if !ok {
				goto done
			}
			chunkCount++
		}
	}

done:
	if chunkCount < 3 {
		t.Errorf("Expected at least 3 chunks in 100ms, got %d", chunkCount)
	}
}

func TestMockSource_SineWave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	// Create source with 440Hz sine wave
	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	// Verify samples are not all zero and stay inside the amplitude
	hasNonZero := false
	for _, s := range chunk.Samples {
		if s != 0 {
			hasNonZero = true
		}
		if s > 0.5001 || s < -0.5001 {
			t.Fatalf("Sample %f exceeds amplitude 0.5", s)
		}
	}

	if !hasNonZero {
		t.Error("Expected non-zero samples from sine wave generator")
	}
}

func TestMockSource_Close(t *testing.T) {
	cfg := DefaultConfig()
	src := NewMockSource(cfg, nil)

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Close should succeed
	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Start after close should fail
	if err := src.Start(ctx); err != io.ErrClosedPipe {
		t.Errorf("Expected ErrClosedPipe after close, got: %v", err)
	}

	// Closing again should be a no-op
	if err := src.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
}

func TestMockSource_Stats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Read some chunks
	for i := 0; i < 3; i++ {
		if _, err := src.Read(ctx); err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
	}

	stats := src.Stats()

	if stats.ChunksRead < 3 {
		t.Errorf("Expected at least 3 chunks read, got %d", stats.ChunksRead)
	}

	if stats.Backend != "mock" {
		t.Errorf("Expected backend 'mock', got '%s'", stats.Backend)
	}
}

func TestMockSource_ReadAfterStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Drain anything generated before Stop; the channel must then report EOF.
	for {
		_, err := src.Read(ctx)
		if err == io.EOF {
			return
		}
		if err != nil {
			t.Fatalf("Expected io.EOF, got %v", err)
		}
	}
}

func TestMockSink_WriteFlushClear(t *testing.T) {
	cfg := DefaultOutputConfig()
	sink := NewMockSink(cfg, nil)
	defer sink.Close()

	ctx := context.Background()

	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk := AudioChunk{
		Samples:    make([]float32, 480),
		SampleRate: 24000,
		Channels:   1,
	}

	if err := sink.Write(ctx, chunk); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	stats := sink.Stats()
	if stats.ChunksWritten != 1 {
		t.Errorf("Expected 1 chunk written, got %d", stats.ChunksWritten)
	}

	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if err := sink.Write(ctx, chunk); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := sink.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	// Stats should still show 2 chunks written
	stats = sink.Stats()
	if stats.ChunksWritten != 2 {
		t.Errorf("Expected 2 chunks written, got %d", stats.ChunksWritten)
	}
	if stats.Clears != 1 {
		t.Errorf("Expected 1 clear, got %d", stats.Clears)
	}
	if stats.BufferedSamples != 0 {
		t.Errorf("Expected empty buffer after clear, got %d", stats.BufferedSamples)
	}
	if got := len(sink.Written()); got != 2 {
		t.Errorf("Expected 2 recorded chunks, got %d", got)
	}
}

func TestMockSink_NotRunning(t *testing.T) {
	cfg := DefaultOutputConfig()
	sink := NewMockSink(cfg, nil)
	defer sink.Close()

	chunk := AudioChunk{
		Samples:    make([]float32, 480),
		SampleRate: 24000,
		Channels:   1,
	}

	if err := sink.Write(context.Background(), chunk); err == nil {
		t.Error("Expected error when writing to non-running sink")
	}
}

func TestAudioChunk_Bytes(t *testing.T) {
	chunk := AudioChunk{
		Samples:    []float32{0, 1, -1},
		SampleRate: 24000,
		Channels:   1,
	}

	bytes := chunk.Bytes()
	if len(bytes) != 6 {
		t.Fatalf("Expected 6 bytes, got %d", len(bytes))
	}

	// 1.0 is 32767 = 0x7FFF little-endian
	if bytes[2] != 0xFF || bytes[3] != 0x7F {
		t.Errorf("Second sample not encoded correctly: %v", bytes[2:4])
	}
}

func TestChunkFromBytes(t *testing.T) {
	data := []byte{0x00, 0x00, 0xFF, 0x7F, 0x01, 0x80}

	chunk := ChunkFromBytes(data, 24000, 1)

	if len(chunk.Samples) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(chunk.Samples))
	}
	if chunk.Samples[0] != 0 {
		t.Errorf("First sample incorrect: got %f", chunk.Samples[0])
	}
	if chunk.Samples[1] != 1 {
		t.Errorf("Second sample incorrect: got %f, expected 1", chunk.Samples[1])
	}
	if chunk.Samples[2] != -1 {
		t.Errorf("Third sample incorrect: got %f, expected -1", chunk.Samples[2])
	}
}

func TestAudioChunk_Duration(t *testing.T) {
	tests := []struct {
		name     string
		chunk    AudioChunk
		expected time.Duration
	}{
		{"20ms mono 24k", AudioChunk{Samples: make([]float32, 480), SampleRate: 24000, Channels: 1}, 20 * time.Millisecond},
		{"20ms stereo 24k", AudioChunk{Samples: make([]float32, 960), SampleRate: 24000, Channels: 2}, 20 * time.Millisecond},
		{"4096 at 16k", AudioChunk{Samples: make([]float32, 4096), SampleRate: 16000, Channels: 1}, 256 * time.Millisecond},
		{"zero rate", AudioChunk{Samples: make([]float32, 10), Channels: 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chunk.Duration(); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestFactory_Mock(t *testing.T) {
	f := Factory{
		Input:  DefaultConfig().WithBackend(BackendMock),
		Output: DefaultOutputConfig().WithBackend(BackendMock),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := f.OpenSource(ctx)
	if err != nil {
		t.Fatalf("OpenSource failed: %v", err)
	}
	defer src.Close()

	sink, err := f.OpenSink(ctx)
	if err != nil {
		t.Fatalf("OpenSink failed: %v", err)
	}
	defer sink.Close()

	if src.Name() != "mock" || sink.Name() != "mock" {
		t.Errorf("Expected mock backends, got %s/%s", src.Name(), sink.Name())
	}
	if sink.Config().SampleRate != 24000 {
		t.Errorf("Expected 24kHz sink, got %d", sink.Config().SampleRate)
	}
}

func TestNewSource_Remote(t *testing.T) {
	_, err := NewSource(DefaultConfig().WithBackend(BackendRemote), nil)
	if !errors.Is(err, ErrRemoteBackend) {
		t.Errorf("Expected ErrRemoteBackend, got %v", err)
	}
}

func TestNewSource_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 0
	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}
