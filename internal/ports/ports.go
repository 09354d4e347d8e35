package ports

import (
	"context"

	"hotmic/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate   int
	Channels     int
	FrameSamples int
	InputFormat  string
	InputDevice  string
}

// SampleSource is a live capture session yielding float samples in [-1, 1]
// at AudioConfig.SampleRate. It cannot be restarted once stopped.
type SampleSource interface {
	ReadSamples(buf []float32) (int, error)
	Stop() error
}

// AudioCapture acquires the microphone. Failures are *domain.DeviceError.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (SampleSource, error)
}

// ConnectTarget identifies the session and credentials for one connection.
type ConnectTarget struct {
	SessionID   string
	Credentials domain.Credentials
}

// Connection is one live duplex channel to the agent.
type Connection interface {
	State() domain.ConnState
	// Send transmits one frame. It reports false when the frame was dropped.
	Send(frame []byte) bool
	// Units yields received units in arrival order and is closed before Done.
	Units() <-chan []byte
	// Done is closed exactly once when the connection has ended.
	Done() <-chan struct{}
	CloseInfo() domain.CloseInfo
	Close() error
}

// Transport opens connections. Failures are *domain.ConnectError.
type Transport interface {
	Open(ctx context.Context, target ConnectTarget) (Connection, error)
}

// Playback is one clip being played.
type Playback interface {
	Done() <-chan struct{}
	Err() error
	// Stop halts output immediately and discards the rest of the clip.
	Stop() error
}

// AudioPlayer plays an assembled agent reply.
type AudioPlayer interface {
	Play(ctx context.Context, clip []byte) (Playback, error)
}

// HistoryStore is the remote transcript history collaborator.
type HistoryStore interface {
	// Load returns domain.ErrSessionNotFound for sessions with no history.
	Load(ctx context.Context, sessionID string) ([]domain.TranscriptEntry, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

// CredentialStore keeps service keys for the local profile.
type CredentialStore interface {
	Get(ctx context.Context, service string) (string, error)
	Set(ctx context.Context, service string, value string) error
	All(ctx context.Context) (domain.Credentials, error)
}

// EventSink emits engine state/events to the UI.
type EventSink interface {
	StateChanged(state domain.ConversationState, reason domain.StateReason)
	PartialTranscript(text string)
	TranscriptEntry(entry domain.TranscriptEntry)
	SessionError(code domain.ErrorCode, detail string)
}

// Metrics records engine counters.
type Metrics interface {
	FrameSent()
	FrameDropped()
	InboundEvent(kind domain.EventKind)
	UnknownTag()
	TurnStarted()
	BargeIn()
	TransportClosed(expected bool)
	PlaybackFinished()
	State(state domain.ConversationState)
}
