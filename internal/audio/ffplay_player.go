package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"hotmic/internal/ports"
)

// FFPlayPlayer plays assembled replies through an ffplay subprocess.
// ffplay probes the container itself, so WAV replies need no parsing here.
type FFPlayPlayer struct {
	command  string
	logLevel string
	logger   *zap.Logger
}

func NewFFPlayPlayer(command string, logger *zap.Logger) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFPlayPlayer{command: command, logLevel: "error", logger: logger}
}

func (p *FFPlayPlayer) Play(ctx context.Context, clip []byte) (ports.Playback, error) {
	if len(clip) == 0 {
		return nil, errors.New("empty clip")
	}

	args := []string{
		"-hide_banner",
		"-loglevel", p.logLevel,
		"-nostats",
		"-nodisp",
		"-autoexit",
		"-i", "-",
	}
	cmd := exec.CommandContext(ctx, p.command, args...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	cmd.Stdin = bytes.NewReader(clip)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}
	p.logger.Debug("ffplay started", zap.Int("pid", cmd.Process.Pid), zap.Int("bytes", len(clip)))

	pb := &ffplayPlayback{
		process: cmd.Process,
		done:    make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		pb.finish(err, &stderr)
	}()
	return pb, nil
}

type ffplayPlayback struct {
	process *os.Process
	done    chan struct{}

	mu      sync.Mutex
	err     error
	stopped bool
}

func (p *ffplayPlayback) Done() <-chan struct{} {
	return p.done
}

func (p *ffplayPlayback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *ffplayPlayback) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-p.done
	return nil
}

func (p *ffplayPlayback) finish(err error, stderr *bytes.Buffer) {
	p.mu.Lock()
	if err != nil && !p.stopped {
		p.err = fmt.Errorf("ffplay: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))
	}
	p.mu.Unlock()
	close(p.done)
}
