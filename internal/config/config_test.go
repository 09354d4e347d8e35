package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hotmic/internal/domain"
)

// isolate points HOME and the env file at temp paths and clears keys the
// test environment might carry.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("HOTMIC_ENV_FILE", filepath.Join(home, "missing.env"))
	for _, key := range []string{
		"HOTMIC_SERVER_URL", "HOTMIC_WS_PATH", "HOTMIC_AUDIO_BACKEND", "HOTMIC_SAMPLE_RATE",
		"HOTMIC_FRAME_SAMPLES", "HOTMIC_RESUME_DELAY_MS", "HOTMIC_REPLY_TIMEOUT_MS",
		"HOTMIC_PROFILE_DIR", "HOTMIC_METRICS_ADDR", "ASSEMBLYAI_API_KEY", "GOOGLE_API_KEY",
		"GEMINI_API_KEY", "MURF_API_KEY",
	} {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unsetenv failed: %v", err)
		}
	}
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.URL != "http://localhost:8000" || cfg.Server.WSPath != "/ws" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Audio.Backend != BackendFFMPEG || cfg.Audio.SampleRate != 16000 || cfg.Audio.FrameSamples != 1600 {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Session.ResumeDelay != 500*time.Millisecond || cfg.Session.ReplyTimeout != 30*time.Second {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Profile.Dir != filepath.Join(home, ".config", "hotmic") {
		t.Fatalf("unexpected profile dir: %q", cfg.Profile.Dir)
	}
	if cfg.Metrics.Addr != "" {
		t.Fatalf("metrics exporter should be disabled by default")
	}
	if len(cfg.Credentials) != 0 {
		t.Fatalf("expected no credentials, got %v", cfg.Credentials)
	}
}

func TestLoadRespectsOverridesAndFallbacks(t *testing.T) {
	isolate(t)
	t.Setenv("HOTMIC_SERVER_URL", "https://agent.example.com")
	t.Setenv("HOTMIC_WS_PATH", "/live")
	t.Setenv("HOTMIC_AUDIO_BACKEND", "PortAudio")
	t.Setenv("HOTMIC_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("HOTMIC_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("HOTMIC_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("HOTMIC_SAMPLE_RATE", "22050")
	t.Setenv("HOTMIC_FRAME_SAMPLES", "0")
	t.Setenv("HOTMIC_RESUME_DELAY_MS", "25")
	t.Setenv("HOTMIC_REPLY_TIMEOUT_MS", "-4")
	t.Setenv("ASSEMBLYAI_API_KEY", " aai ")
	t.Setenv("GEMINI_API_KEY", "gem")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.URL != "https://agent.example.com" || cfg.Server.WSPath != "/live" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Audio.Backend != BackendPortAudio {
		t.Fatalf("expected portaudio backend, got %q", cfg.Audio.Backend)
	}
	if cfg.Audio.RecorderCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "mic0" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 22050 || cfg.Audio.FrameSamples != 2205 {
		t.Fatalf("unexpected sample rate/frame: %+v", cfg.Audio)
	}
	if cfg.Session.ResumeDelay != 25*time.Millisecond || cfg.Session.ReplyTimeout != 30*time.Second {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Credentials[domain.CredentialSpeechRecognition] != "aai" || cfg.Credentials[domain.CredentialLanguageModel] != "gem" {
		t.Fatalf("unexpected credentials: %v", cfg.Credentials)
	}
	if _, ok := cfg.Credentials[domain.CredentialSpeechSynthesis]; ok {
		t.Fatalf("unset credential should be absent")
	}
}

func TestLoadReadsEnvFileWithoutOverridingProcessEnv(t *testing.T) {
	home := isolate(t)
	envFile := filepath.Join(home, "hotmic.env")
	contents := "HOTMIC_SERVER_URL=http://from-file:9000\nMURF_API_KEY=murf-file\nHOTMIC_WS_PATH=/file\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("HOTMIC_ENV_FILE", envFile)
	t.Setenv("HOTMIC_WS_PATH", "/process")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.URL != "http://from-file:9000" {
		t.Fatalf("expected URL from env file, got %q", cfg.Server.URL)
	}
	if cfg.Server.WSPath != "/process" {
		t.Fatalf("process env must win over env file, got %q", cfg.Server.WSPath)
	}
	if cfg.Credentials[domain.CredentialSpeechSynthesis] != "murf-file" {
		t.Fatalf("expected credential from env file, got %v", cfg.Credentials)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	isolate(t)
	t.Setenv("HOTMIC_AUDIO_BACKEND", "alsa")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "HOTMIC_AUDIO_BACKEND") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		Server: ServerConfig{URL: "http://localhost:8000"},
		Audio:  AudioConfig{Backend: BackendFFMPEG},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	for _, raw := range []string{"ftp://host", "localhost:8000", "http://", "://bad"} {
		cfg := valid
		cfg.Server.URL = raw
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestHTTPBaseURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://localhost:8000/": "http://localhost:8000",
		"wss://agent.example":    "https://agent.example",
		"ws://127.0.0.1:8000":    "http://127.0.0.1:8000",
	}
	for in, want := range cases {
		cfg := Config{Server: ServerConfig{URL: in}}
		if got := cfg.HTTPBaseURL(); got != want {
			t.Fatalf("HTTPBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}
