package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"hotmic/internal/config"
	"hotmic/internal/credentials"
	"hotmic/internal/history"
	"hotmic/internal/logging"
	"hotmic/internal/metrics"
	"hotmic/internal/ports"
	"hotmic/internal/transport"
	"hotmic/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller  *usecase.Controller
	Credentials *credentials.Store
	Metrics     *metrics.Recorder
	Config      config.Config
	Logger      *zap.Logger

	closers []func() error
}

// Build wires all backend dependencies for the current runtime. The
// metrics exporter, when configured, runs until ctx is cancelled.
func Build(ctx context.Context, eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return Services{}, err
	}

	services := Services{Config: cfg, Logger: logger}

	store, err := credentials.Open(cfg.Profile.Dir, cfg.Credentials, logger.Named("credentials"))
	if err != nil {
		return Services{}, fmt.Errorf("open credential store: %w", err)
	}
	services.Credentials = store
	services.closers = append(services.closers, store.Close)

	capture, player, closeAudio, err := audioBackend(cfg.Audio, logger.Named("audio"))
	if err != nil {
		_ = services.Close()
		return Services{}, err
	}
	if closeAudio != nil {
		services.closers = append(services.closers, closeAudio)
	}

	recorder := metrics.NewRecorder()
	services.Metrics = recorder
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := recorder.Serve(ctx, cfg.Metrics.Addr, logger.Named("metrics")); err != nil {
				logger.Error("metrics exporter stopped", zap.Error(err))
			}
		}()
	}

	wsTransport := transport.NewWebSocketTransport(transport.Config{
		ServerURL: cfg.Server.URL,
		Path:      cfg.Server.WSPath,
	}, logger.Named("transport"))

	services.Controller = usecase.NewController(
		usecase.Dependencies{
			Capture:     capture,
			Transport:   wsTransport,
			Player:      player,
			Credentials: store,
			History:     history.NewClient(cfg.HTTPBaseURL(), nil, logger.Named("history")),
			Events:      eventSink,
			Metrics:     recorder,
			Logger:      logger,
		},
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:   cfg.Audio.SampleRate,
				Channels:     cfg.Audio.Channels,
				FrameSamples: cfg.Audio.FrameSamples,
				InputFormat:  cfg.Audio.InputFormat,
				InputDevice:  cfg.Audio.InputDevice,
			},
			ResumeDelay:  cfg.Session.ResumeDelay,
			ReplyTimeout: cfg.Session.ReplyTimeout,
		},
	)
	services.closers = append([]func() error{services.Controller.Close}, services.closers...)

	logger.Info("services ready",
		zap.String("server", cfg.Server.URL),
		zap.String("audioBackend", cfg.Audio.Backend),
		zap.String("profile", cfg.Profile.Dir),
	)
	return services, nil
}

// Close shuts the controller down first, then the stores it used.
func (s Services) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Logger != nil {
		_ = s.Logger.Sync()
	}
	return errors.Join(errs...)
}
