package usecase

import (
	"hotmic/internal/domain"
	"hotmic/internal/ports"
)

// loopEvent is anything processed by the controller's event loop.
type loopEvent interface {
	loopEvent()
}

type commandKind string

const (
	commandCapture commandKind = "capture"
	commandStop    commandKind = "stop"
	commandToggle  commandKind = "toggle"
	commandSession commandKind = "session"
	commandForget  commandKind = "forget"
)

type commandEvent struct {
	kind    commandKind
	session *ConversationSession
	// sessionID names the session a forget command applies to.
	sessionID string
	reply     chan error
}

// connectedEvent reports the outcome of opening a connection and the mic.
type connectedEvent struct {
	turn   uint64
	conn   ports.Connection
	source ports.SampleSource
	err    error
}

// captureReadyEvent reports the mic outcome when a connection is reused.
type captureReadyEvent struct {
	turn   uint64
	source ports.SampleSource
	err    error
}

type unitEvent struct {
	link  uint64
	event domain.InboundEvent
}

type closedEvent struct {
	link uint64
	info domain.CloseInfo
}

type pumpEndedEvent struct {
	turn uint64
	err  error
}

type playbackDoneEvent struct {
	turn uint64
	err  error
}

type resumeDueEvent struct {
	turn uint64
}

type replyTimeoutEvent struct {
	turn uint64
	seq  uint64
}

type shutdownEvent struct{}

func (commandEvent) loopEvent()      {}
func (connectedEvent) loopEvent()    {}
func (captureReadyEvent) loopEvent() {}
func (unitEvent) loopEvent()         {}
func (closedEvent) loopEvent()       {}
func (pumpEndedEvent) loopEvent()    {}
func (playbackDoneEvent) loopEvent() {}
func (resumeDueEvent) loopEvent()    {}
func (replyTimeoutEvent) loopEvent() {}
func (shutdownEvent) loopEvent()     {}
