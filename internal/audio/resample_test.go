package audio

import (
	"math"
	"testing"
)

func TestResampleFloat32SameRateCopies(t *testing.T) {
	t.Parallel()

	in := []float32{0.1, 0.2}
	out, err := ResampleFloat32(in, 16000, 16000)
	if err != nil {
		t.Fatalf("resample failed: %v", err)
	}
	out[0] = 9
	if in[0] != 0.1 {
		t.Fatalf("expected a copy, input was modified")
	}
}

func TestResampleFloat32Downsample(t *testing.T) {
	t.Parallel()

	in := make([]float32, 480)
	for i := range in {
		in[i] = float32(i)
	}
	out, err := ResampleFloat32(in, 48000, 16000)
	if err != nil {
		t.Fatalf("resample failed: %v", err)
	}
	if len(out) != 160 {
		t.Fatalf("expected 160 samples, got %d", len(out))
	}
	if out[1] != 3 || out[159] != 477 {
		t.Fatalf("unexpected samples: %v %v", out[1], out[159])
	}
}

func TestResampleFloat32UpsampleInterpolates(t *testing.T) {
	t.Parallel()

	out, err := ResampleFloat32([]float32{0, 1}, 8000, 16000)
	if err != nil {
		t.Fatalf("resample failed: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(out))
	}
	if math.Abs(float64(out[1]-0.5)) > 1e-6 || out[3] != 1 {
		t.Fatalf("unexpected samples: %v", out)
	}
}

func TestResampleFloat32RejectsInvalidRates(t *testing.T) {
	t.Parallel()

	if _, err := ResampleFloat32([]float32{1}, 0, 16000); err == nil {
		t.Fatalf("expected error for zero rate")
	}
}
