//go:build !portaudio

package bootstrap

import (
	"fmt"

	"go.uber.org/zap"

	"hotmic/internal/audio"
	"hotmic/internal/config"
	"hotmic/internal/ports"
)

func audioBackend(cfg config.AudioConfig, logger *zap.Logger) (ports.AudioCapture, ports.AudioPlayer, func() error, error) {
	if cfg.Backend == config.BackendPortAudio {
		return nil, nil, nil, fmt.Errorf("audio backend %q requires building with -tags portaudio", cfg.Backend)
	}
	return audio.NewFFMPEGCapture(cfg.RecorderCommand, logger),
		audio.NewFFPlayPlayer(cfg.PlayerCommand, logger),
		nil,
		nil
}
