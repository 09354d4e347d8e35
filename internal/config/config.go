package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"hotmic/internal/domain"
)

const (
	BackendFFMPEG    = "ffmpeg"
	BackendPortAudio = "portaudio"
)

// Config stores runtime configuration for the voice client.
type Config struct {
	Server      ServerConfig
	Audio       AudioConfig
	Session     SessionConfig
	Profile     ProfileConfig
	Metrics     MetricsConfig
	Log         LogConfig
	Credentials domain.Credentials
}

type ServerConfig struct {
	URL    string
	WSPath string
}

type AudioConfig struct {
	Backend         string
	RecorderCommand string
	PlayerCommand   string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	FrameSamples    int
}

type SessionConfig struct {
	ResumeDelay  time.Duration
	ReplyTimeout time.Duration
}

type ProfileConfig struct {
	Dir string
}

type MetricsConfig struct {
	Addr string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load resolves configuration from an optional .env file, environment
// variables and defaults. Variables already set in the process win over
// the file.
func Load() (Config, error) {
	envFile := envOrDefault("HOTMIC_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	inputFormat, inputDevice := "pulse", "default"
	if runtime.GOOS == "darwin" {
		inputFormat, inputDevice = "avfoundation", ":0"
	}

	cfg := Config{
		Server: ServerConfig{
			URL:    envOrDefault("HOTMIC_SERVER_URL", "http://localhost:8000"),
			WSPath: envOrDefault("HOTMIC_WS_PATH", "/ws"),
		},
		Audio: AudioConfig{
			Backend:         strings.ToLower(envOrDefault("HOTMIC_AUDIO_BACKEND", BackendFFMPEG)),
			RecorderCommand: envOrDefault("HOTMIC_FFMPEG_COMMAND", "ffmpeg"),
			PlayerCommand:   envOrDefault("HOTMIC_FFPLAY_COMMAND", "ffplay"),
			InputFormat:     envOrDefault("HOTMIC_AUDIO_INPUT_FORMAT", inputFormat),
			InputDevice:     envOrDefault("HOTMIC_AUDIO_INPUT_DEVICE", inputDevice),
			SampleRate:      envOrDefaultInt("HOTMIC_SAMPLE_RATE", 16000),
			Channels:        1,
			FrameSamples:    envOrDefaultInt("HOTMIC_FRAME_SAMPLES", 1600),
		},
		Session: SessionConfig{
			ResumeDelay:  time.Duration(envOrDefaultNonNegativeInt("HOTMIC_RESUME_DELAY_MS", 500)) * time.Millisecond,
			ReplyTimeout: time.Duration(envOrDefaultNonNegativeInt("HOTMIC_REPLY_TIMEOUT_MS", 30000)) * time.Millisecond,
		},
		Profile: ProfileConfig{
			Dir: envOrDefault("HOTMIC_PROFILE_DIR", filepath.Join(home, ".config", "hotmic")),
		},
		Metrics: MetricsConfig{
			Addr: strings.TrimSpace(os.Getenv("HOTMIC_METRICS_ADDR")),
		},
		Log: LogConfig{
			Level:  envOrDefault("HOTMIC_LOG_LEVEL", "info"),
			Format: envOrDefault("HOTMIC_LOG_FORMAT", "json"),
		},
		Credentials: credentialsFromEnv(),
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.FrameSamples <= 0 {
		cfg.Audio.FrameSamples = cfg.Audio.SampleRate / 10
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the runtime cannot start with.
func (c Config) Validate() error {
	parsed, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("invalid HOTMIC_SERVER_URL: %w", err)
	}
	switch parsed.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("invalid HOTMIC_SERVER_URL scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("invalid HOTMIC_SERVER_URL: missing host")
	}

	switch c.Audio.Backend {
	case BackendFFMPEG, BackendPortAudio:
	default:
		return fmt.Errorf("unknown HOTMIC_AUDIO_BACKEND %q", c.Audio.Backend)
	}
	return nil
}

// HTTPBaseURL returns the server URL with an http(s) scheme.
func (c Config) HTTPBaseURL() string {
	base := strings.TrimRight(c.Server.URL, "/")
	switch {
	case strings.HasPrefix(base, "wss://"):
		return "https://" + strings.TrimPrefix(base, "wss://")
	case strings.HasPrefix(base, "ws://"):
		return "http://" + strings.TrimPrefix(base, "ws://")
	default:
		return base
	}
}

func credentialsFromEnv() domain.Credentials {
	creds := domain.Credentials{}
	set := func(name string, value string) {
		if value != "" {
			creds[name] = value
		}
	}
	set(domain.CredentialSpeechRecognition, firstNonEmpty(os.Getenv("ASSEMBLYAI_API_KEY")))
	set(domain.CredentialLanguageModel, firstNonEmpty(os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY")))
	set(domain.CredentialSpeechSynthesis, firstNonEmpty(os.Getenv("MURF_API_KEY")))
	return creds
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultNonNegativeInt(key string, fallback int) int {
	parsed := envOrDefaultInt(key, fallback)
	if parsed < 0 {
		return fallback
	}
	return parsed
}
