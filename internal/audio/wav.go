package audio

import (
	"encoding/binary"
	"errors"
)

// WAVFormat is the subset of a WAV fmt chunk needed for playback.
type WAVFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// SplitWAV separates the header of a WAV clip from its sample data.
// Streaming encoders often write a zero or max data length, so the data
// chunk always extends to the end of the clip.
func SplitWAV(clip []byte) (WAVFormat, []byte, error) {
	if len(clip) < 12 || string(clip[0:4]) != "RIFF" || string(clip[8:12]) != "WAVE" {
		return WAVFormat{}, nil, errNotWAV
	}

	var format WAVFormat
	offset := 12
	for offset+8 <= len(clip) {
		id := string(clip[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(clip[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if body+16 > len(clip) {
				return WAVFormat{}, nil, errors.New("truncated fmt chunk")
			}
			format.Channels = int(binary.LittleEndian.Uint16(clip[body+2:]))
			format.SampleRate = int(binary.LittleEndian.Uint32(clip[body+4:]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(clip[body+14:]))
		case "data":
			if format.SampleRate == 0 {
				return WAVFormat{}, nil, errors.New("data chunk before fmt chunk")
			}
			return format, clip[body:], nil
		}

		offset = body + size + size%2
	}
	return WAVFormat{}, nil, errors.New("missing data chunk")
}
