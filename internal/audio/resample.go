package audio

import "fmt"

// ResampleFloat32 converts mono float samples between rates using linear
// interpolation.
func ResampleFloat32(input []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: from=%d, to=%d", fromRate, toRate)
	}
	if fromRate == toRate {
		out := make([]float32, len(input))
		copy(out, input)
		return out, nil
	}
	if len(input) == 0 {
		return []float32{}, nil
	}

	outLen := int(int64(len(input)) * int64(toRate) / int64(fromRate))
	out := make([]float32, outLen)
	ratio := float64(fromRate) / float64(toRate)
	last := len(input) - 1

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = input[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = input[idx] + frac*(input[idx+1]-input[idx])
	}
	return out, nil
}
