package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hotmic/internal/domain"
	"hotmic/internal/ports"
	"hotmic/internal/protocol"
)

var (
	ErrControllerClosed = errors.New("conversation controller is closed")

	errCredentialsUnavailable = errors.New("credentials unavailable")
)

// Config controls turn-taking behavior.
type Config struct {
	Audio ports.AudioConfig
	// ResumeDelay is the pause between the end of a reply and listening again.
	ResumeDelay time.Duration
	// ReplyTimeout bounds how long Thinking waits for reply audio.
	ReplyTimeout time.Duration
}

// Dependencies are the collaborators the controller drives.
type Dependencies struct {
	Capture     ports.AudioCapture
	Transport   ports.Transport
	Player      ports.AudioPlayer
	Credentials ports.CredentialStore
	History     ports.HistoryStore
	Events      ports.EventSink
	Metrics     ports.Metrics
	Logger      *zap.Logger
}

// Controller is the turn-taking state machine. All state is owned by a
// single event loop; public methods post commands to it.
type Controller struct {
	capture     ports.AudioCapture
	transport   ports.Transport
	player      ports.AudioPlayer
	credentials ports.CredentialStore
	history     ports.HistoryStore
	events      ports.EventSink
	metrics     ports.Metrics
	decoder     *protocol.Decoder
	logger      *zap.Logger
	cfg         Config

	ctx    context.Context
	cancel context.CancelFunc

	inbox     chan loopEvent
	done      chan struct{}
	closeOnce sync.Once

	snapMu     sync.Mutex
	status     domain.Status
	transcript []domain.TranscriptEntry

	// Owned by the event loop.
	state         domain.ConversationState
	session       *ConversationSession
	turn          *activeTurn
	turnSeq       uint64
	link          *connLink
	linkSeq       uint64
	connectCtx    context.Context
	connectCancel context.CancelFunc
	stopRequested bool
	resumePending bool
	resumeTimer   *time.Timer
	replyTimer    *time.Timer
	replySeq      uint64
}

func NewController(deps Dependencies, cfg Config) *Controller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if cfg.Audio.FrameSamples <= 0 {
		cfg.Audio.FrameSamples = defaultFrameSamples
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		capture:     deps.Capture,
		transport:   deps.Transport,
		player:      deps.Player,
		credentials: deps.Credentials,
		history:     deps.History,
		events:      deps.Events,
		metrics:     deps.Metrics,
		decoder:     protocol.NewDecoder(deps.Logger, deps.Metrics),
		logger:      deps.Logger.Named("controller"),
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		inbox:       make(chan loopEvent, 256),
		done:        make(chan struct{}),
		state:       domain.StateIdle,
		status:      domain.Status{State: domain.StateIdle},
	}
	go c.run()
	return c
}

// Capture starts listening. While the agent is thinking or speaking this
// interrupts it and starts a fresh turn.
func (c *Controller) Capture(ctx context.Context) error {
	return c.command(ctx, commandEvent{kind: commandCapture})
}

// Stop ends the user's utterance while capturing. While the agent is
// replying it prevents listening again once playback ends.
func (c *Controller) Stop(ctx context.Context) error {
	return c.command(ctx, commandEvent{kind: commandStop})
}

// Toggle mirrors a single microphone button.
func (c *Controller) Toggle(ctx context.Context) error {
	return c.command(ctx, commandEvent{kind: commandToggle})
}

// Status returns the latest published status.
func (c *Controller) Status() domain.Status {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.status
}

// Transcript returns the finalized entries of the active session.
func (c *Controller) Transcript() []domain.TranscriptEntry {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	out := make([]domain.TranscriptEntry, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Close tears down any active turn and stops the event loop.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		select {
		case c.inbox <- shutdownEvent{}:
		case <-c.done:
		}
		<-c.done
		c.cancel()
	})
	return nil
}

func (c *Controller) command(ctx context.Context, cmd commandEvent) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.inbox <- cmd:
	case <-c.done:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) post(ev loopEvent) {
	select {
	case c.inbox <- ev:
	case <-c.done:
	}
}

func (c *Controller) run() {
	defer close(c.done)

	for ev := range c.inbox {
		switch ev := ev.(type) {
		case shutdownEvent:
			c.endTurn()
			c.dropLink()
			if c.state != domain.StateIdle {
				c.setState(domain.StateIdle, domain.ReasonShutdown)
			}
			return
		case commandEvent:
			ev.reply <- c.handleCommand(ev)
		case connectedEvent:
			c.handleConnected(ev)
		case captureReadyEvent:
			c.handleCaptureReady(ev)
		case unitEvent:
			c.handleUnit(ev)
		case closedEvent:
			c.handleClosed(ev)
		case pumpEndedEvent:
			c.handlePumpEnded(ev)
		case playbackDoneEvent:
			c.handlePlaybackDone(ev)
		case resumeDueEvent:
			if c.currentTurn(ev.turn) && c.resumePending {
				c.resume()
			}
		case replyTimeoutEvent:
			c.handleReplyTimeout(ev)
		}
	}
}

func (c *Controller) handleCommand(cmd commandEvent) error {
	switch cmd.kind {
	case commandCapture:
		return c.requestCapture()
	case commandStop:
		c.requestStop()
		return nil
	case commandToggle:
		switch c.state {
		case domain.StateConnecting, domain.StateCapturing:
			c.requestStop()
			return nil
		default:
			return c.requestCapture()
		}
	case commandSession:
		c.replaceSession(cmd.session)
		return nil
	case commandForget:
		if c.session != nil && c.session.ID == cmd.sessionID {
			c.replaceSession(nil)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.kind)
	}
}

func (c *Controller) requestCapture() error {
	if c.session == nil {
		return domain.ErrNoSession
	}

	switch c.state {
	case domain.StateIdle:
		c.stopRequested = false
		c.beginConnecting(domain.ReasonConnecting)
	case domain.StateThinking, domain.StateSpeaking:
		c.stopRequested = false
		if c.resumePending {
			c.resume()
			return nil
		}
		c.metrics.BargeIn()
		c.logger.Info("barge-in", zap.Uint64("turn", c.turnID()), zap.String("state", string(c.state)))
		c.endTurn()
		c.dropLink()
		c.beginConnecting(domain.ReasonBargeIn)
	}
	return nil
}

func (c *Controller) requestStop() {
	switch c.state {
	case domain.StateConnecting:
		c.endTurn()
		c.setState(domain.StateIdle, domain.ReasonStopRequested)
	case domain.StateCapturing:
		c.stopCapture()
		c.enterThinking(domain.ReasonStopRequested)
	case domain.StateThinking, domain.StateSpeaking:
		if c.resumePending {
			c.finishToIdle(domain.ReasonStopRequested)
			return
		}
		c.stopRequested = true
	}
}

func (c *Controller) replaceSession(session *ConversationSession) {
	wasActive := c.state != domain.StateIdle
	c.endTurn()
	c.dropLink()
	c.stopRequested = false
	c.session = session
	if wasActive {
		c.setState(domain.StateIdle, domain.ReasonSessionChanged)
		return
	}
	c.publish()
}

func (c *Controller) beginConnecting(reason domain.StateReason) {
	c.cancelTimers()
	c.turnSeq++
	c.turn = newActiveTurn(c.turnSeq)

	ctx, cancel := context.WithCancel(c.ctx)
	c.connectCtx, c.connectCancel = ctx, cancel
	c.setState(domain.StateConnecting, reason)
	go c.connect(ctx, c.turn.id, c.session.ID)
}

// connect runs off the loop: it loads credentials, dials and acquires the
// microphone, then reports the outcome as one event.
func (c *Controller) connect(ctx context.Context, turn uint64, sessionID string) {
	creds, err := c.credentials.All(ctx)
	if err != nil {
		c.post(connectedEvent{turn: turn, err: fmt.Errorf("%w: %v", errCredentialsUnavailable, err)})
		return
	}

	conn, err := c.transport.Open(ctx, ports.ConnectTarget{SessionID: sessionID, Credentials: creds})
	if err != nil {
		c.post(connectedEvent{turn: turn, err: err})
		return
	}

	source, err := c.capture.Start(ctx, c.cfg.Audio)
	if err != nil {
		_ = conn.Close()
		c.post(connectedEvent{turn: turn, err: err})
		return
	}
	c.post(connectedEvent{turn: turn, conn: conn, source: source})
}

func (c *Controller) handleConnected(ev connectedEvent) {
	if !c.currentTurn(ev.turn) || c.state != domain.StateConnecting {
		discardConnect(ev)
		return
	}

	if ev.err != nil {
		code, reason := classifyStartErr(ev.err)
		c.logger.Warn("turn start failed", zap.Uint64("turn", ev.turn), zap.Error(ev.err))
		c.finishToIdle(reason)
		c.events.SessionError(code, ev.err.Error())
		return
	}

	c.linkSeq++
	link := &connLink{id: c.linkSeq, conn: ev.conn, ctx: c.connectCtx, cancel: c.connectCancel}
	c.connectCtx, c.connectCancel = nil, nil
	c.link = link
	go c.forward(link)

	c.startCapture(ev.source)
	c.metrics.TurnStarted()
	c.logger.Info("turn started", zap.Uint64("turn", ev.turn), zap.String("sessionID", c.session.ID))
	c.setState(domain.StateCapturing, domain.ReasonListening)
}

func (c *Controller) handleCaptureReady(ev captureReadyEvent) {
	if !c.currentTurn(ev.turn) || c.state != domain.StateCapturing || c.link == nil {
		if ev.source != nil {
			go func() { _ = ev.source.Stop() }()
		}
		return
	}
	if ev.err != nil {
		c.logger.Warn("microphone restart failed", zap.Uint64("turn", ev.turn), zap.Error(ev.err))
		c.finishToIdle(domain.ReasonDeviceFailed)
		c.events.SessionError(domain.ErrorCodeDevice, ev.err.Error())
		return
	}
	c.startCapture(ev.source)
}

// forward decodes every unit of link into the loop, then reports its close.
func (c *Controller) forward(link *connLink) {
	for unit := range link.conn.Units() {
		c.post(unitEvent{link: link.id, event: c.decoder.Decode(unit)})
	}
	<-link.conn.Done()
	c.post(closedEvent{link: link.id, info: link.conn.CloseInfo()})
}

func (c *Controller) handleUnit(ev unitEvent) {
	if c.link == nil || ev.link != c.link.id || c.turn == nil {
		return
	}

	switch event := ev.event.(type) {
	case domain.PartialTranscript:
		if c.turn.reconciler.Partial(event.Text) {
			c.publish()
			c.events.PartialTranscript(event.Text)
		}
	case domain.TurnEnded:
		if entry, ok := c.turn.reconciler.Finalize(); ok {
			c.record(entry)
		}
		if c.state == domain.StateCapturing {
			c.stopCapture()
			c.enterThinking(domain.ReasonTurnEnded)
		}
	case domain.AgentReply:
		for _, entry := range c.turn.reconciler.AgentReply(event.Text) {
			c.record(entry)
		}
		if c.state == domain.StateCapturing {
			c.stopCapture()
			c.enterThinking(domain.ReasonReplyReceived)
		}
	case domain.AudioChunk:
		if c.state == domain.StateCapturing {
			c.stopCapture()
			c.enterThinking(domain.ReasonReplyReceived)
		}
		if !c.turn.playback.Append(event.Data) {
			return
		}
		if c.state == domain.StateThinking {
			c.setState(domain.StateSpeaking, domain.ReasonReplyAudio)
		}
		// Each chunk restarts the wait for AudioEnd.
		c.armReplyTimer()
	case domain.AudioEnd:
		c.handleAudioEnd()
	}
}

func (c *Controller) handleAudioEnd() {
	if c.turn.playback.State() == playbackPlaying {
		return
	}
	clip, ok := c.turn.playback.Seal()
	if !ok {
		if c.state == domain.StateThinking || c.state == domain.StateSpeaking {
			c.finishToIdle(domain.ReasonNoAudio)
		}
		return
	}
	c.disarmReplyTimer()
	if c.state != domain.StateSpeaking {
		c.stopCapture()
		c.setState(domain.StateSpeaking, domain.ReasonReplyAudio)
	}

	pb, err := c.player.Play(c.ctx, clip)
	if err != nil {
		c.logger.Warn("playback failed to start", zap.Uint64("turn", c.turn.id), zap.Error(err))
		c.finishToIdle(domain.ReasonPlaybackFailed)
		c.events.SessionError(domain.ErrorCodePlayback, err.Error())
		return
	}
	c.turn.playback.Started(pb)

	turn := c.turn.id
	go func() {
		<-pb.Done()
		c.post(playbackDoneEvent{turn: turn, err: pb.Err()})
	}()
}

func (c *Controller) handlePlaybackDone(ev playbackDoneEvent) {
	if !c.currentTurn(ev.turn) || c.turn.playback.State() != playbackPlaying {
		return
	}
	c.turn.playback.Finish()
	c.metrics.PlaybackFinished()

	if ev.err != nil {
		c.finishToIdle(domain.ReasonPlaybackFailed)
		c.events.SessionError(domain.ErrorCodePlayback, ev.err.Error())
		return
	}
	if c.stopRequested {
		c.finishToIdle(domain.ReasonPlaybackFinished)
		return
	}

	c.resumePending = true
	if c.cfg.ResumeDelay <= 0 {
		c.resume()
		return
	}
	turn := c.turn.id
	c.resumeTimer = time.AfterFunc(c.cfg.ResumeDelay, func() {
		c.post(resumeDueEvent{turn: turn})
	})
}

// resume listens again after a reply. A connection that is still open is
// reused; otherwise a fresh one is dialed.
func (c *Controller) resume() {
	c.resumePending = false
	c.cancelTimers()

	if c.link == nil || c.link.conn.State() != domain.ConnOpen {
		c.dropLink()
		c.beginConnecting(domain.ReasonResumed)
		return
	}

	c.turnSeq++
	c.turn = newActiveTurn(c.turnSeq)
	turn, link := c.turn.id, c.link
	go func() {
		source, err := c.capture.Start(link.ctx, c.cfg.Audio)
		c.post(captureReadyEvent{turn: turn, source: source, err: err})
	}()
	c.metrics.TurnStarted()
	c.setState(domain.StateCapturing, domain.ReasonResumed)
}

func (c *Controller) handleClosed(ev closedEvent) {
	if c.link == nil || ev.link != c.link.id {
		return
	}
	expected := ev.info.Expected()
	c.metrics.TransportClosed(expected)
	c.logger.Info("agent connection ended",
		zap.Int("code", ev.info.Code),
		zap.String("reason", ev.info.Reason),
		zap.Bool("expected", expected))

	c.link.cancel()
	c.link = nil

	switch c.state {
	case domain.StateCapturing, domain.StateThinking:
	case domain.StateSpeaking:
		// A finished reply can keep playing; listening again redials.
		if expected && (c.resumePending || c.turn.playback.State() == playbackPlaying) {
			return
		}
	default:
		return
	}

	c.finishToIdle(domain.ReasonTransportClosed)
	if !expected {
		c.events.SessionError(domain.ErrorCodeTransport, describeClose(ev.info))
	}
}

func (c *Controller) handlePumpEnded(ev pumpEndedEvent) {
	if !c.currentTurn(ev.turn) || c.state != domain.StateCapturing {
		return
	}
	c.logger.Warn("microphone stream ended", zap.Uint64("turn", ev.turn), zap.Error(ev.err))
	c.finishToIdle(domain.ReasonDeviceFailed)
	c.events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("microphone stream ended: %v", ev.err))
}

func (c *Controller) handleReplyTimeout(ev replyTimeoutEvent) {
	if !c.currentTurn(ev.turn) || ev.seq != c.replySeq {
		return
	}
	c.replyTimer = nil

	switch {
	case c.state == domain.StateThinking && c.turn.reconciler.Replied():
		c.logger.Info("agent reply carried no audio", zap.Uint64("turn", ev.turn))
		c.finishToIdle(domain.ReasonNoAudio)
	case c.state == domain.StateThinking:
		c.logger.Warn("agent reply timed out", zap.Uint64("turn", ev.turn), zap.Duration("timeout", c.cfg.ReplyTimeout))
		c.finishToIdle(domain.ReasonReplyTimeout)
		c.events.SessionError(domain.ErrorCodeTransport, fmt.Sprintf("no reply from agent within %s", c.cfg.ReplyTimeout))
	case c.state == domain.StateSpeaking && c.turn.playback.State() == playbackBuffering:
		c.logger.Warn("reply audio stalled before its end marker", zap.Uint64("turn", ev.turn), zap.Duration("timeout", c.cfg.ReplyTimeout))
		c.finishToIdle(domain.ReasonReplyTimeout)
		c.events.SessionError(domain.ErrorCodeTransport, fmt.Sprintf("reply audio did not finish within %s", c.cfg.ReplyTimeout))
	}
}

func (c *Controller) startCapture(source ports.SampleSource) {
	ctx, cancel := context.WithCancel(c.link.ctx)
	run := &captureRun{cancel: cancel, source: source, done: make(chan struct{})}
	c.turn.capture = run

	turn := c.turn.id
	onEnd := func(err error) {
		c.post(pumpEndedEvent{turn: turn, err: err})
	}
	go pumpFrames(ctx, source, c.link.conn, c.cfg.Audio.FrameSamples, c.metrics, onEnd, run.done)
}

// stopCapture stops frames immediately; the device is released in the
// background.
func (c *Controller) stopCapture() {
	if c.turn == nil || c.turn.capture == nil {
		return
	}
	run := c.turn.capture
	c.turn.capture = nil
	run.cancel()
	go func() {
		if err := run.stop(); err != nil {
			c.logger.Debug("microphone did not stop cleanly", zap.Error(err))
		}
	}()
}

func (c *Controller) enterThinking(reason domain.StateReason) {
	c.setState(domain.StateThinking, reason)
	c.armReplyTimer()
}

// armReplyTimer (re)starts the wait for the rest of the agent's reply.
func (c *Controller) armReplyTimer() {
	c.disarmReplyTimer()
	if c.cfg.ReplyTimeout <= 0 {
		return
	}
	turn, seq := c.turn.id, c.replySeq
	c.replyTimer = time.AfterFunc(c.cfg.ReplyTimeout, func() {
		c.post(replyTimeoutEvent{turn: turn, seq: seq})
	})
}

// endTurn discards all turn-scoped state: playback, capture, timers and any
// connect in flight. The connection itself is handled by dropLink.
func (c *Controller) endTurn() {
	c.cancelTimers()
	c.resumePending = false
	if c.turn != nil {
		c.turn.playback.Interrupt()
		c.stopCapture()
		c.turn = nil
	}
	if c.connectCancel != nil {
		c.connectCancel()
		c.connectCtx, c.connectCancel = nil, nil
	}
}

func (c *Controller) dropLink() {
	if c.link == nil {
		return
	}
	link := c.link
	c.link = nil
	link.cancel()
	go func() { _ = link.conn.Close() }()
}

func (c *Controller) finishToIdle(reason domain.StateReason) {
	c.endTurn()
	c.dropLink()
	c.setState(domain.StateIdle, reason)
}

func (c *Controller) record(entry domain.TranscriptEntry) {
	if c.session == nil {
		return
	}
	c.session.append(entry)
	c.publish()
	c.events.TranscriptEntry(entry)
}

func (c *Controller) setState(state domain.ConversationState, reason domain.StateReason) {
	previous := c.state
	c.state = state
	c.metrics.State(state)
	c.publish()
	c.logger.Debug("state changed",
		zap.String("from", string(previous)),
		zap.String("to", string(state)),
		zap.String("reason", string(reason)),
		zap.Uint64("turn", c.turnID()))
	c.events.StateChanged(state, reason)
}

func (c *Controller) publish() {
	status := domain.Status{State: c.state, Active: c.state != domain.StateIdle}
	var transcript []domain.TranscriptEntry
	if c.session != nil {
		status.SessionID = c.session.ID
		transcript = c.session.Transcript()
	}
	if c.turn != nil {
		if live, ok := c.turn.reconciler.Live(); ok {
			status.Live = live
		}
	}

	c.snapMu.Lock()
	c.status = status
	c.transcript = transcript
	c.snapMu.Unlock()
}

func (c *Controller) cancelTimers() {
	c.disarmReplyTimer()
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}
}

func (c *Controller) disarmReplyTimer() {
	c.replySeq++
	if c.replyTimer != nil {
		c.replyTimer.Stop()
		c.replyTimer = nil
	}
}

func (c *Controller) currentTurn(id uint64) bool {
	return c.turn != nil && c.turn.id == id
}

func (c *Controller) turnID() uint64 {
	if c.turn == nil {
		return 0
	}
	return c.turn.id
}

func discardConnect(ev connectedEvent) {
	if ev.source != nil {
		go func() { _ = ev.source.Stop() }()
	}
	if ev.conn != nil {
		go func() { _ = ev.conn.Close() }()
	}
}

func classifyStartErr(err error) (domain.ErrorCode, domain.StateReason) {
	var deviceErr *domain.DeviceError
	switch {
	case errors.As(err, &deviceErr):
		return domain.ErrorCodeDevice, domain.ReasonDeviceFailed
	case errors.Is(err, domain.ErrMissingCredentials), errors.Is(err, errCredentialsUnavailable):
		return domain.ErrorCodeCredentials, domain.ReasonConnectFailed
	default:
		return domain.ErrorCodeConnect, domain.ReasonConnectFailed
	}
}

func describeClose(info domain.CloseInfo) string {
	if info.Reason == "" {
		return fmt.Sprintf("connection closed unexpectedly (code %d)", info.Code)
	}
	return fmt.Sprintf("connection closed (code %d): %s", info.Code, info.Reason)
}

type nopMetrics struct{}

func (nopMetrics) FrameSent()                     {}
func (nopMetrics) FrameDropped()                  {}
func (nopMetrics) InboundEvent(domain.EventKind)  {}
func (nopMetrics) UnknownTag()                    {}
func (nopMetrics) TurnStarted()                   {}
func (nopMetrics) BargeIn()                       {}
func (nopMetrics) TransportClosed(bool)           {}
func (nopMetrics) PlaybackFinished()              {}
func (nopMetrics) State(domain.ConversationState) {}
