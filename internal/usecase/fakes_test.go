package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"hotmic/internal/domain"
	"hotmic/internal/ports"
)

type fakeCapture struct {
	mu      sync.Mutex
	err     error
	frames  [][]float32
	sources []*fakeSource
}

func (f *fakeCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.SampleSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	source := newFakeSource(f.frames...)
	f.sources = append(f.sources, source)
	return source, nil
}

func (f *fakeCapture) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sources)
}

func (f *fakeCapture) source(i int) *fakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources[i]
}

type fakeSource struct {
	mu        sync.Mutex
	frames    [][]float32
	ended     chan struct{}
	endOnce   sync.Once
	stopCalls int
}

func newFakeSource(frames ...[]float32) *fakeSource {
	return &fakeSource{frames: frames, ended: make(chan struct{})}
}

func (s *fakeSource) ReadSamples(buf []float32) (int, error) {
	s.mu.Lock()
	if len(s.frames) > 0 {
		frame := s.frames[0]
		s.frames = s.frames[1:]
		s.mu.Unlock()
		return copy(buf, frame), nil
	}
	s.mu.Unlock()
	<-s.ended
	return 0, io.EOF
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	s.stopCalls++
	s.mu.Unlock()
	s.end()
	return nil
}

// end simulates the device going away without a stop request.
func (s *fakeSource) end() {
	s.endOnce.Do(func() { close(s.ended) })
}

func (s *fakeSource) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls > 0
}

type fakeTransport struct {
	mu      sync.Mutex
	err     error
	targets []ports.ConnectTarget
	conns   []*fakeConn
}

func (f *fakeTransport) Open(_ context.Context, target ports.ConnectTarget) (ports.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	if f.err != nil {
		return nil, f.err
	}
	conn := newFakeConn()
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeTransport) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

type fakeConn struct {
	mu         sync.Mutex
	state      domain.ConnState
	sent       [][]byte
	info       domain.CloseInfo
	closeCalls int

	units   chan []byte
	done    chan struct{}
	endOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		state: domain.ConnOpen,
		units: make(chan []byte, 64),
		done:  make(chan struct{}),
	}
}

func (c *fakeConn) State() domain.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.ConnOpen {
		return false
	}
	c.sent = append(c.sent, append([]byte(nil), frame...))
	return true
}

func (c *fakeConn) Units() <-chan []byte  { return c.units }
func (c *fakeConn) Done() <-chan struct{} { return c.done }
func (c *fakeConn) CloseInfo() domain.CloseInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	c.end(domain.CloseInfo{Code: domain.CloseNormal, Local: true})
	return nil
}

func (c *fakeConn) end(info domain.CloseInfo) {
	c.endOnce.Do(func() {
		c.mu.Lock()
		c.state = domain.ConnClosed
		c.info = info
		c.mu.Unlock()
		close(c.units)
		close(c.done)
	})
}

func (c *fakeConn) push(units ...string) {
	for _, unit := range units {
		c.units <- []byte(unit)
	}
}

func (c *fakeConn) sentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *fakeConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

type fakePlayer struct {
	mu        sync.Mutex
	err       error
	clips     [][]byte
	playbacks []*fakePlayback
}

func (f *fakePlayer) Play(_ context.Context, clip []byte) (ports.Playback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.clips = append(f.clips, clip)
	pb := newFakePlayback()
	f.playbacks = append(f.playbacks, pb)
	return pb, nil
}

func (f *fakePlayer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.playbacks)
}

func (f *fakePlayer) playback(i int) *fakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playbacks[i]
}

func (f *fakePlayer) clip(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clips[i]
}

type fakePlayback struct {
	mu       sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
	stops    int
	err      error
}

func newFakePlayback() *fakePlayback {
	return &fakePlayback{done: make(chan struct{})}
}

func (p *fakePlayback) Done() <-chan struct{} { return p.done }

func (p *fakePlayback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePlayback) Stop() error {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
	p.finish(nil)
	return nil
}

func (p *fakePlayback) finish(err error) {
	p.doneOnce.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *fakePlayback) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

type fakeCredentials struct {
	mu     sync.Mutex
	values domain.Credentials
	err    error
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{values: domain.Credentials{
		domain.CredentialSpeechRecognition: "aai",
		domain.CredentialLanguageModel:     "gem",
		domain.CredentialSpeechSynthesis:   "murf",
	}}
}

func (f *fakeCredentials) Get(_ context.Context, service string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[service]
	if !ok {
		return "", domain.ErrCredentialNotFound
	}
	return value, nil
}

func (f *fakeCredentials) Set(_ context.Context, service string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[service] = value
	return nil
}

func (f *fakeCredentials) All(_ context.Context) (domain.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := domain.Credentials{}
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

type fakeHistory struct {
	mu        sync.Mutex
	sessions  map[string][]domain.TranscriptEntry
	err       error
	deleteErr error
	deleted   []string
}

func (f *fakeHistory) Load(_ context.Context, sessionID string) ([]domain.TranscriptEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	entries, ok := f.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return entries, nil
}

func (f *fakeHistory) Delete(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.sessions, sessionID)
	f.deleted = append(f.deleted, sessionID)
	return nil
}

func (f *fakeHistory) List(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ids := make([]string, 0, len(f.sessions))
	for id := range f.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeEventSink struct {
	mu sync.Mutex

	states   []stateEvent
	partials []string
	entries  []domain.TranscriptEntry
	errors   []errEvent
}

type stateEvent struct {
	state  domain.ConversationState
	reason domain.StateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) StateChanged(state domain.ConversationState, reason domain.StateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) PartialTranscript(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partials = append(f.partials, text)
}

func (f *fakeEventSink) TranscriptEntry(entry domain.TranscriptEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) snapshotEntries() []domain.TranscriptEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TranscriptEntry(nil), f.entries...)
}

func (f *fakeEventSink) snapshotPartials() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.partials...)
}

func (f *fakeEventSink) hasState(state domain.ConversationState, reason domain.StateReason) bool {
	for _, s := range f.snapshotStates() {
		if s.state == state && s.reason == reason {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errBoom = errors.New("boom")
