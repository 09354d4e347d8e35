package usecase

import (
	"context"
	"sync"

	"hotmic/internal/ports"
)

// activeTurn holds everything scoped to one turn. It is discarded as a
// whole when the turn ends.
type activeTurn struct {
	id         uint64
	reconciler *reconciler
	playback   *playbackAssembler
	capture    *captureRun
}

func newActiveTurn(id uint64) *activeTurn {
	return &activeTurn{
		id:         id,
		reconciler: newReconciler(),
		playback:   newPlaybackAssembler(),
	}
}

// connLink is one open agent connection and the goroutine forwarding its
// units into the controller.
type connLink struct {
	id     uint64
	conn   ports.Connection
	ctx    context.Context
	cancel context.CancelFunc
}

// captureRun is a microphone session feeding the frame pump.
type captureRun struct {
	cancel context.CancelFunc
	source ports.SampleSource
	done   chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// stop cancels the pump and releases the device. Safe to call repeatedly.
func (r *captureRun) stop() error {
	r.stopOnce.Do(func() {
		r.cancel()
		r.stopErr = r.source.Stop()
		<-r.done
	})
	return r.stopErr
}
