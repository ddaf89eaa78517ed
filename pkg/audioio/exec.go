package audioio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrNoRecorder is returned when no record/play command exists on the host.
var ErrNoRecorder = errors.New("audioio: no audio command available")

// Command names an external program and its arguments.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v", c.Name, c.Args)
}

// RecordCommand returns the command that writes raw PCM16 mono to stdout.
func RecordCommand(cfg Config) Command {
	rate := strconv.Itoa(cfg.SampleRate)
	channels := strconv.Itoa(cfg.Channels)
	if runtime.GOOS == "darwin" {
		return Command{Name: "rec", Args: []string{
			"-q", "-t", "raw", "-b", "16", "-e", "signed-integer",
			"-c", channels, "-r", rate, "-",
		}}
	}
	args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", channels, "-r", rate}
	if cfg.Device != "" {
		args = append(args, "-D", cfg.Device)
	}
	return Command{Name: "arecord", Args: args}
}

// PlayCommand returns the command that plays raw PCM16 read from stdin.
func PlayCommand(cfg Config) Command {
	rate := strconv.Itoa(cfg.SampleRate)
	channels := strconv.Itoa(cfg.Channels)
	if runtime.GOOS == "darwin" {
		return Command{Name: "play", Args: []string{
			"-q", "-t", "raw", "-b", "16", "-e", "signed-integer",
			"-c", channels, "-r", rate, "-",
		}}
	}
	args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", channels, "-r", rate}
	if cfg.Device != "" {
		args = append(args, "-D", cfg.Device)
	}
	return Command{Name: "aplay", Args: args}
}

// execAvailable reports whether both record and play commands are on PATH.
func execAvailable() bool {
	cfg := DefaultConfig()
	for _, c := range []Command{RecordCommand(cfg), PlayCommand(cfg)} {
		if _, err := exec.LookPath(c.Name); err != nil {
			return false
		}
	}
	return true
}

// ExecSource captures audio by reading the stdout of a record command.
type ExecSource struct {
	cfg    Config
	cmd    Command
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	proc     *exec.Cmd
	streamCh chan AudioChunk
	doneCh   chan struct{}

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// NewExecSource creates a source running cmd. A zero cmd uses RecordCommand.
func NewExecSource(cfg Config, cmd Command, logger *slog.Logger) *ExecSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cmd.Name == "" {
		cmd = RecordCommand(cfg)
	}
	return &ExecSource{
		cfg:      cfg,
		cmd:      cmd,
		logger:   logger,
		streamCh: make(chan AudioChunk, 16),
	}
}

// Start launches the record command.
func (s *ExecSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	proc := exec.CommandContext(ctx, s.cmd.Name, s.cmd.Args...)
	stdout, err := proc.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.cmd.Name, err)
	}

	s.proc = proc
	s.running = true
	s.streamCh = make(chan AudioChunk, 16)
	s.doneCh = make(chan struct{})

	go s.readLoop(stdout, s.streamCh, s.doneCh)

	s.logger.Info("exec audio source started", "cmd", s.cmd.String())
	return nil
}

func (s *ExecSource) readLoop(stdout io.Reader, out chan AudioChunk, done chan struct{}) {
	defer close(done)
	defer close(out)

	r := bufio.NewReaderSize(stdout, s.cfg.BufferBytes()*4)
	buf := make([]byte, s.cfg.BufferBytes())
	for {
		n, err := io.ReadFull(r, buf)
		if n >= 2 {
			chunk := ChunkFromBytes(buf[:n-n%2], s.cfg.SampleRate, s.cfg.Channels)
			select {
			case out <- chunk:
				s.chunksRead.Add(1)
				s.samplesRead.Add(int64(len(chunk.Samples)))
			default:
				s.overruns.Add(1)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Debug("exec source read ended", "error", err)
			}
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}
	}
}

// Stop kills the record command and waits for the reader to drain.
func (s *ExecSource) Stop() error {
	s.mu.Lock()
	proc, done := s.proc, s.doneCh
	s.proc = nil
	s.running = false
	s.mu.Unlock()

	if proc == nil {
		return nil
	}
	if proc.Process != nil {
		_ = proc.Process.Kill()
	}
	<-done
	_ = proc.Wait()

	s.logger.Info("exec audio source stopped")
	return nil
}

// Read reads the next audio chunk.
func (s *ExecSource) Read(ctx context.Context) (AudioChunk, error) {
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-s.Stream():
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (s *ExecSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *ExecSource) Config() Config { return s.cfg }

// Name returns "exec".
func (s *ExecSource) Name() string { return "exec" }

// Close releases resources.
func (s *ExecSource) Close() error {
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
func (s *ExecSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "exec",
	}
}

var _ SourceWithStats = (*ExecSource)(nil)

// ExecSink plays audio by writing to the stdin of a play command.
// The command is started lazily on the first write and killed by Clear,
// which drops whatever the player had buffered.
type ExecSink struct {
	cfg    Config
	cmd    Command
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	running bool
	closed  bool
	proc    *exec.Cmd
	stdin   io.WriteCloser

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	clears         atomic.Int64
}

// NewExecSink creates a sink running cmd. A zero cmd uses PlayCommand.
func NewExecSink(cfg Config, cmd Command, logger *slog.Logger) *ExecSink {
	if logger == nil {
		logger = slog.Default()
	}
	if cmd.Name == "" {
		cmd = PlayCommand(cfg)
	}
	return &ExecSink{cfg: cfg, cmd: cmd, logger: logger}
}

// Start enables playback.
func (s *ExecSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	s.ctx = ctx
	s.running = true
	return nil
}

func (s *ExecSink) startLocked() error {
	proc := exec.CommandContext(s.ctx, s.cmd.Name, s.cmd.Args...)
	stdin, err := proc.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.cmd.Name, err)
	}
	s.proc = proc
	s.stdin = stdin
	s.logger.Debug("exec audio sink started", "cmd", s.cmd.String())
	return nil
}

// stopLocked kills the play command (must hold mu).
func (s *ExecSink) stopLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
	if s.proc != nil && s.proc.Process != nil {
		_ = s.proc.Process.Kill()
		_ = s.proc.Wait()
	}
	s.proc = nil
}

// Write sends a chunk to the player, resampling to the sink rate if needed.
func (s *ExecSink) Write(ctx context.Context, chunk AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return io.ErrClosedPipe
	}
	if chunk.SampleRate != s.cfg.SampleRate || chunk.Channels != s.cfg.Channels {
		chunk = ResampleChunk(chunk, s.cfg.SampleRate)
		if s.cfg.Channels == 2 {
			chunk.Samples = MonoToStereo(chunk.Samples)
			chunk.Channels = 2
		}
	}
	if s.proc == nil {
		if err := s.startLocked(); err != nil {
			return err
		}
	}

	if _, err := s.stdin.Write(chunk.Bytes()); err != nil {
		s.stopLocked()
		return fmt.Errorf("write to player: %w", err)
	}

	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush closes stdin and waits for the player to finish.
func (s *ExecSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	proc, stdin := s.proc, s.stdin
	s.proc, s.stdin = nil, nil
	s.mu.Unlock()

	if proc == nil {
		return nil
	}
	_ = stdin.Close()

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		_ = proc.Process.Kill()
		<-done
		return ctx.Err()
	}
}

// Clear kills the player, discarding its buffer.
func (s *ExecSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.clears.Add(1)
	return nil
}

// Stop halts playback.
func (s *ExecSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.running = false
	return nil
}

// Config returns the audio configuration.
func (s *ExecSink) Config() Config { return s.cfg }

// Name returns "exec".
func (s *ExecSink) Name() string { return "exec" }

// Close releases resources.
func (s *ExecSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns sink statistics.
func (s *ExecSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Clears:         s.clears.Load(),
		Running:        running,
		Backend:        "exec",
	}
}

var _ SinkWithStats = (*ExecSink)(nil)
