package usecase

import (
	"bytes"

	"hotmic/internal/ports"
)

type playbackState string

const (
	playbackEmpty     playbackState = "empty"
	playbackBuffering playbackState = "buffering"
	playbackPlaying   playbackState = "playing"
)

// playbackAssembler buffers one turn's audio chunks in arrival order and
// owns the resulting playback until it finishes or is interrupted.
type playbackAssembler struct {
	state   playbackState
	chunks  [][]byte
	current ports.Playback
}

func newPlaybackAssembler() *playbackAssembler {
	return &playbackAssembler{state: playbackEmpty}
}

// Append buffers a chunk. Chunks arriving while a clip plays are ignored.
func (p *playbackAssembler) Append(chunk []byte) bool {
	switch p.state {
	case playbackEmpty:
		p.state = playbackBuffering
	case playbackPlaying:
		return false
	}
	p.chunks = append(p.chunks, chunk)
	return true
}

// Seal concatenates the buffered chunks into one clip and moves to
// Playing. With nothing buffered it resets to Empty and reports false.
func (p *playbackAssembler) Seal() ([]byte, bool) {
	if p.state == playbackPlaying {
		return nil, false
	}
	clip := bytes.Join(p.chunks, nil)
	if len(clip) == 0 {
		p.reset()
		return nil, false
	}
	p.chunks = nil
	p.state = playbackPlaying
	return clip, true
}

// Started attaches the running playback so it can be interrupted.
func (p *playbackAssembler) Started(pb ports.Playback) {
	p.current = pb
}

// Interrupt stops playback immediately and discards all buffered audio.
func (p *playbackAssembler) Interrupt() bool {
	wasActive := p.state != playbackEmpty
	if p.current != nil {
		_ = p.current.Stop()
	}
	p.reset()
	return wasActive
}

// Finish clears state after natural completion.
func (p *playbackAssembler) Finish() {
	p.reset()
}

func (p *playbackAssembler) State() playbackState {
	return p.state
}

func (p *playbackAssembler) reset() {
	p.state = playbackEmpty
	p.chunks = nil
	p.current = nil
}
