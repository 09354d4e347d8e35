package audio

import (
	"encoding/binary"
	"math"
)

const (
	// SampleRate16kHz is the rate the agent expects for outbound frames.
	SampleRate16kHz = 16000
	// SampleRate24kHz is the rate of synthesized replies.
	SampleRate24kHz = 24000

	bytesPerPCM16   = 2
	bytesPerFloat32 = 4
)

// EncodePCM16 converts float samples to little-endian signed 16-bit PCM.
// Samples are clamped to [-1, 1]; negative values scale by 0x8000 and
// positive values by 0x7FFF.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerPCM16)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerPCM16:], uint16(floatToPCM16(s))) //nolint:gosec // two's complement PCM
	}
	return out
}

func floatToPCM16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// DecodeFloat32LE fills dst with little-endian float32 samples from src and
// returns how many samples were written. Trailing partial samples are ignored.
func DecodeFloat32LE(dst []float32, src []byte) int {
	n := len(src) / bytesPerFloat32
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*bytesPerFloat32:]))
	}
	return n
}

// DecodePCM16 converts little-endian signed 16-bit PCM to int16 samples.
func DecodePCM16(src []byte) []int16 {
	out := make([]int16, len(src)/bytesPerPCM16)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(src[i*bytesPerPCM16:])) //nolint:gosec // two's complement PCM
	}
	return out
}
