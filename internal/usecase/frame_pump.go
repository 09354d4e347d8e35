package usecase

import (
	"context"
	"errors"
	"io"

	"hotmic/internal/audio"
	"hotmic/internal/ports"
)

const defaultFrameSamples = 1600

// pumpFrames reads fixed-size sample blocks, encodes them as PCM16 and hands
// each frame to the connection. Frames the connection refuses are dropped.
// onEnd receives the read error that ended an uncancelled pump.
func pumpFrames(
	ctx context.Context,
	source ports.SampleSource,
	conn ports.Connection,
	frameSamples int,
	metrics ports.Metrics,
	onEnd func(error),
	done chan struct{},
) {
	defer close(done)

	if frameSamples <= 0 {
		frameSamples = defaultFrameSamples
	}

	buf := make([]float32, frameSamples)
	for {
		n, err := source.ReadSamples(buf)
		if ctx.Err() != nil {
			return
		}
		if n > 0 {
			if conn.Send(audio.EncodePCM16(buf[:n])) {
				metrics.FrameSent()
			} else {
				metrics.FrameDropped()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			if ctx.Err() == nil {
				onEnd(err)
			}
			return
		}
	}
}
