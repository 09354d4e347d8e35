package domain

// ConversationState models the turn-taking lifecycle.
type ConversationState string

const (
	StateIdle       ConversationState = "idle"
	StateConnecting ConversationState = "connecting"
	StateCapturing  ConversationState = "capturing"
	StateThinking   ConversationState = "thinking"
	StateSpeaking   ConversationState = "speaking"
)

// Ordinal returns a stable numeric value for gauges.
func (s ConversationState) Ordinal() int {
	switch s {
	case StateConnecting:
		return 1
	case StateCapturing:
		return 2
	case StateThinking:
		return 3
	case StateSpeaking:
		return 4
	default:
		return 0
	}
}

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonReady            StateReason = "ready"
	ReasonConnecting       StateReason = "connecting"
	ReasonBargeIn          StateReason = "barge_in"
	ReasonListening        StateReason = "listening"
	ReasonResumed          StateReason = "resumed"
	ReasonStopRequested    StateReason = "stop_requested"
	ReasonTurnEnded        StateReason = "turn_ended"
	ReasonReplyReceived    StateReason = "reply_received"
	ReasonReplyAudio       StateReason = "reply_audio"
	ReasonNoAudio          StateReason = "no_audio"
	ReasonPlaybackFinished StateReason = "playback_finished"
	ReasonReplyTimeout     StateReason = "reply_timeout"
	ReasonConnectFailed    StateReason = "connect_failed"
	ReasonDeviceFailed     StateReason = "device_failed"
	ReasonTransportClosed  StateReason = "transport_closed"
	ReasonPlaybackFailed   StateReason = "playback_failed"
	ReasonSessionChanged   StateReason = "session_changed"
	ReasonShutdown         StateReason = "shutdown"
)

// ErrorCode identifies non-fatal and fatal engine errors.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeDevice      ErrorCode = "device"
	ErrorCodeConnect     ErrorCode = "connect"
	ErrorCodeTransport   ErrorCode = "transport"
	ErrorCodeAudioStream ErrorCode = "audio_stream"
	ErrorCodePlayback    ErrorCode = "playback"
	ErrorCodeHistory     ErrorCode = "history"
	ErrorCodeCredentials ErrorCode = "credentials"
)

// ConnState is the lifecycle of one transport connection.
type ConnState string

const (
	ConnClosed     ConnState = "closed"
	ConnConnecting ConnState = "connecting"
	ConnOpen       ConnState = "open"
	ConnClosing    ConnState = "closing"
)

// CloseInfo describes why a connection ended.
type CloseInfo struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
	// Local is true when the close was requested by this client.
	Local bool `json:"local"`
}

// WebSocket close codes (RFC 6455) the engine distinguishes.
const (
	CloseNormal           = 1000
	CloseGoingAway        = 1001
	CloseNoStatusReceived = 1005
	ClosePolicyViolation  = 1008
)

// Expected reports whether the close was an orderly shutdown.
func (i CloseInfo) Expected() bool {
	if i.Local {
		return true
	}
	switch i.Code {
	case CloseNormal, CloseGoingAway, CloseNoStatusReceived:
		return true
	default:
		return false
	}
}

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TranscriptEntry is a finalized line of conversation.
type TranscriptEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Status summarizes the current runtime status.
type Status struct {
	State     ConversationState `json:"state"`
	SessionID string            `json:"sessionId,omitempty"`
	Active    bool              `json:"active"`
	Live      string            `json:"live,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// Credential names understood by the backend.
const (
	CredentialSpeechRecognition = "assemblyai_key"
	CredentialLanguageModel     = "google_gemini_key"
	CredentialSpeechSynthesis   = "murf_ai_key"
)

// RequiredCredentials lists the keys every connection must carry.
var RequiredCredentials = []string{
	CredentialSpeechRecognition,
	CredentialLanguageModel,
	CredentialSpeechSynthesis,
}

// Credentials maps service key names to secret values.
type Credentials map[string]string

// Missing returns the required credential names that are empty.
func (c Credentials) Missing() []string {
	var missing []string
	for _, name := range RequiredCredentials {
		if c[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
