package domain

// InboundEvent is one decoded unit received from the agent.
//
// The set of implementations is closed: PartialTranscript, TurnEnded,
// AgentReply, AudioChunk and AudioEnd.
type InboundEvent interface {
	Kind() EventKind
	inbound()
}

// EventKind names an InboundEvent variant.
type EventKind string

const (
	EventPartialTranscript EventKind = "partial_transcript"
	EventTurnEnded         EventKind = "turn_ended"
	EventAgentReply        EventKind = "agent_reply"
	EventAudioChunk        EventKind = "audio_chunk"
	EventAudioEnd          EventKind = "audio_end"
)

// PartialTranscript carries the latest text of the live utterance.
type PartialTranscript struct {
	Text string
}

// TurnEnded marks the end of the user's turn.
type TurnEnded struct{}

// AgentReply carries the agent's full text reply.
type AgentReply struct {
	Text string
}

// AudioChunk carries one piece of synthesized speech. Order is arrival order.
type AudioChunk struct {
	Data []byte
}

// AudioEnd marks the last chunk of the agent's audio.
type AudioEnd struct{}

func (PartialTranscript) Kind() EventKind { return EventPartialTranscript }
func (TurnEnded) Kind() EventKind         { return EventTurnEnded }
func (AgentReply) Kind() EventKind        { return EventAgentReply }
func (AudioChunk) Kind() EventKind        { return EventAudioChunk }
func (AudioEnd) Kind() EventKind          { return EventAudioEnd }

func (PartialTranscript) inbound() {}
func (TurnEnded) inbound()         {}
func (AgentReply) inbound()        {}
func (AudioChunk) inbound()        {}
func (AudioEnd) inbound()          {}
