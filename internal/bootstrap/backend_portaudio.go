//go:build portaudio

package bootstrap

import (
	"go.uber.org/zap"

	"hotmic/internal/audio"
	"hotmic/internal/config"
	"hotmic/internal/ports"
)

func audioBackend(cfg config.AudioConfig, logger *zap.Logger) (ports.AudioCapture, ports.AudioPlayer, func() error, error) {
	if cfg.Backend != config.BackendPortAudio {
		return audio.NewFFMPEGCapture(cfg.RecorderCommand, logger),
			audio.NewFFPlayPlayer(cfg.PlayerCommand, logger),
			nil,
			nil
	}

	capture, err := audio.NewPortAudioCapture(logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return capture, audio.NewPortAudioPlayer(logger), capture.Close, nil
}
