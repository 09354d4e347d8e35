package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"hotmic/internal/domain"
	"hotmic/internal/ports"
)

// FFMPEGCapture streams microphone samples as float32 using ffmpeg.
// ffmpeg performs resampling from the device rate to the requested rate.
type FFMPEGCapture struct {
	command string
	logger  *zap.Logger
}

func NewFFMPEGCapture(command string, logger *zap.Logger) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFMPEGCapture{command: command, logger: logger}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.SampleSource, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = SampleRate16kHz
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	// Outbound frames are always mono.
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", "1",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "f32le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &domain.DeviceError{Cause: fmt.Errorf("create ffmpeg stdout pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return nil, &domain.DeviceError{Cause: fmt.Errorf("start ffmpeg: %w", err)}
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, &domain.DeviceError{Cause: fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))}
		}
		return nil, &domain.DeviceError{Cause: errors.New("ffmpeg exited before capture started")}
	case <-time.After(250 * time.Millisecond):
	}

	c.logger.Debug("ffmpeg capture started",
		zap.String("inputFormat", cfg.InputFormat),
		zap.String("inputDevice", cfg.InputDevice),
		zap.Int("sampleRate", cfg.SampleRate))

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	raw []byte

	stopOnce sync.Once
	stopErr  error
}

// ReadSamples blocks until len(buf) samples are available, so every call
// yields one fixed-size block except the last one before EOF.
func (s *ffmpegSession) ReadSamples(buf []float32) (int, error) {
	need := len(buf) * bytesPerFloat32
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:need]

	n, err := io.ReadFull(s.stdout, raw)
	samples := DecodeFloat32LE(buf, raw[:n])
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return samples, err
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
