//go:build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"hotmic/internal/domain"
	"hotmic/internal/ports"
)

// PortAudioCapture reads the default input device at its native rate and
// resamples each block to the requested rate.
type PortAudioCapture struct {
	logger *zap.Logger
}

func NewPortAudioCapture(logger *zap.Logger) (*PortAudioCapture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortAudioCapture{logger: logger}, nil
}

// Close releases the PortAudio library.
func (c *PortAudioCapture) Close() error {
	return portaudio.Terminate()
}

func (c *PortAudioCapture) Start(_ context.Context, cfg ports.AudioConfig) (ports.SampleSource, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = SampleRate16kHz
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = cfg.SampleRate / 10
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, &domain.DeviceError{Cause: err}
	}
	nativeRate := int(device.DefaultSampleRate)
	if nativeRate <= 0 {
		nativeRate = cfg.SampleRate
	}
	block := cfg.FrameSamples * nativeRate / cfg.SampleRate

	in := make([]float32, block)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(nativeRate), block, in)
	if err != nil {
		return nil, &domain.DeviceError{Cause: fmt.Errorf("open input stream: %w", err)}
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, &domain.DeviceError{Cause: fmt.Errorf("start input stream: %w", err)}
	}

	c.logger.Debug("portaudio capture started",
		zap.String("device", device.Name),
		zap.Int("nativeRate", nativeRate),
		zap.Int("targetRate", cfg.SampleRate))

	return &portAudioSource{stream: stream, in: in, fromRate: nativeRate, toRate: cfg.SampleRate}, nil
}

type portAudioSource struct {
	mu       sync.Mutex
	stream   *portaudio.Stream
	in       []float32
	fromRate int
	toRate   int
	stopped  bool
}

func (s *portAudioSource) ReadSamples(buf []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, errors.New("capture stopped")
	}
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return 0, err
	}
	samples, err := ResampleFloat32(s.in, s.fromRate, s.toRate)
	if err != nil {
		return 0, err
	}
	return copy(buf, samples), nil
}

func (s *portAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	stopErr := s.stream.Stop()
	if err := s.stream.Close(); err != nil && stopErr == nil {
		stopErr = err
	}
	return stopErr
}

// PortAudioPlayer plays WAV or raw 24 kHz PCM16 replies on the default
// output device.
type PortAudioPlayer struct {
	logger *zap.Logger
}

func NewPortAudioPlayer(logger *zap.Logger) *PortAudioPlayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortAudioPlayer{logger: logger}
}

func (p *PortAudioPlayer) Play(ctx context.Context, clip []byte) (ports.Playback, error) {
	format, data, err := SplitWAV(clip)
	if err != nil {
		format = WAVFormat{SampleRate: SampleRate24kHz, Channels: 1, BitsPerSample: 16}
		data = clip
	}
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bits per sample: %d", format.BitsPerSample)
	}

	const framesPerBuffer = 960
	out := make([]int16, framesPerBuffer*format.Channels)
	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), framesPerBuffer, out)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}

	playCtx, cancel := context.WithCancel(ctx)
	pb := &portAudioPlayback{cancel: cancel, done: make(chan struct{})}
	samples := DecodePCM16(data)

	go func() {
		defer close(pb.done)
		defer stream.Close()
		defer stream.Stop()
		for off := 0; off < len(samples); off += len(out) {
			if playCtx.Err() != nil {
				return
			}
			n := copy(out, samples[off:])
			for i := n; i < len(out); i++ {
				out[i] = 0
			}
			if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
				pb.setErr(err)
				return
			}
		}
	}()
	return pb, nil
}

type portAudioPlayback struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (p *portAudioPlayback) Done() <-chan struct{} { return p.done }

func (p *portAudioPlayback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *portAudioPlayback) Stop() error {
	p.cancel()
	<-p.done
	return nil
}

func (p *portAudioPlayback) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
}
