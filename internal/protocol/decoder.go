package protocol

import (
	"bytes"
	"encoding/base64"
	"regexp"

	"go.uber.org/zap"

	"hotmic/internal/domain"
	"hotmic/internal/ports"
)

// Wire tags sent by the agent.
const (
	TagAudioChunk = "AUDIO_CHUNK:"
	TagAudioEnd   = "AUDIO_END"
	TagAgentReply = "AI_RESPONSE:"
	TagTurnEnded  = "END_OF_TURN"
)

// Anomaly flags a unit that decoded, but not cleanly.
type Anomaly string

const (
	AnomalyNone       Anomaly = ""
	AnomalyUnknownTag Anomaly = "unknown_tag"
	AnomalyBadAudio   Anomaly = "bad_audio"
)

var unknownTagPattern = regexp.MustCompile(`^[A-Z][A-Z_]+:`)

// Decode maps one received unit to exactly one event. Units without a
// known tag are live transcript text.
func Decode(unit []byte) domain.InboundEvent {
	event, _ := decode(unit)
	return event
}

// Inspect decodes unit and also reports whether it looked malformed.
func Inspect(unit []byte) (domain.InboundEvent, Anomaly) {
	return decode(unit)
}

func decode(unit []byte) (domain.InboundEvent, Anomaly) {
	switch {
	case bytes.HasPrefix(unit, []byte(TagAudioChunk)):
		data, err := decodeBase64(unit[len(TagAudioChunk):])
		if err != nil {
			return domain.AudioChunk{}, AnomalyBadAudio
		}
		return domain.AudioChunk{Data: data}, AnomalyNone
	case string(unit) == TagAudioEnd:
		return domain.AudioEnd{}, AnomalyNone
	case bytes.HasPrefix(unit, []byte(TagAgentReply)):
		return domain.AgentReply{Text: string(unit[len(TagAgentReply):])}, AnomalyNone
	case string(unit) == TagTurnEnded:
		return domain.TurnEnded{}, AnomalyNone
	}

	if unknownTagPattern.Match(unit) {
		return domain.PartialTranscript{Text: string(unit)}, AnomalyUnknownTag
	}
	return domain.PartialTranscript{Text: string(unit)}, AnomalyNone
}

func decodeBase64(payload []byte) ([]byte, error) {
	payload = bytes.TrimSpace(payload)
	out := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(out, payload)
	if err == nil {
		return out[:n], nil
	}
	// Some encoders omit padding.
	out = make([]byte, base64.RawStdEncoding.DecodedLen(len(payload)))
	n, rawErr := base64.RawStdEncoding.Decode(out, payload)
	if rawErr != nil {
		return nil, err
	}
	return out[:n], nil
}

// Decoder wraps Decode with logging and counting of anomalies.
type Decoder struct {
	logger  *zap.Logger
	metrics ports.Metrics
}

func NewDecoder(logger *zap.Logger, metrics ports.Metrics) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger, metrics: metrics}
}

func (d *Decoder) Decode(unit []byte) domain.InboundEvent {
	event, anomaly := decode(unit)
	switch anomaly {
	case AnomalyUnknownTag:
		d.logger.Warn("unrecognized tag treated as transcript", zap.String("prefix", tagPrefix(unit)))
		if d.metrics != nil {
			d.metrics.UnknownTag()
		}
	case AnomalyBadAudio:
		d.logger.Warn("audio chunk payload is not valid base64", zap.Int("bytes", len(unit)))
	}
	if d.metrics != nil {
		d.metrics.InboundEvent(event.Kind())
	}
	return event
}

func tagPrefix(unit []byte) string {
	if loc := unknownTagPattern.FindIndex(unit); loc != nil {
		return string(unit[:loc[1]])
	}
	return ""
}
