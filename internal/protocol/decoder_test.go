package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"hotmic/internal/domain"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		unit string
		want domain.InboundEvent
	}{
		{name: "audio chunk", unit: "AUDIO_CHUNK:SGVsbG8=", want: domain.AudioChunk{Data: []byte("Hello")}},
		{name: "audio chunk unpadded", unit: "AUDIO_CHUNK:SGVsbG8", want: domain.AudioChunk{Data: []byte("Hello")}},
		{name: "audio end", unit: "AUDIO_END", want: domain.AudioEnd{}},
		{name: "agent reply", unit: "AI_RESPONSE:hi!", want: domain.AgentReply{Text: "hi!"}},
		{name: "agent reply keeps colons", unit: "AI_RESPONSE:a: b", want: domain.AgentReply{Text: "a: b"}},
		{name: "turn ended", unit: "END_OF_TURN", want: domain.TurnEnded{}},
		{name: "partial", unit: "hi there", want: domain.PartialTranscript{Text: "hi there"}},
		{name: "audio end with suffix is text", unit: "AUDIO_END ", want: domain.PartialTranscript{Text: "AUDIO_END "}},
		{name: "empty is text", unit: "", want: domain.PartialTranscript{Text: ""}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Decode([]byte(tc.unit)))
		})
	}
}

func TestDecodeAudioChunkTakesPriorityOverReply(t *testing.T) {
	t.Parallel()

	event := Decode([]byte("AUDIO_CHUNK:QUlfUkVTUE9OU0U6"))
	chunk, ok := event.(domain.AudioChunk)
	require.True(t, ok)
	assert.Equal(t, "AI_RESPONSE:", string(chunk.Data))
}

func TestInspectFlagsAnomalies(t *testing.T) {
	t.Parallel()

	event, anomaly := Inspect([]byte("NEW_TAG:payload"))
	assert.Equal(t, AnomalyUnknownTag, anomaly)
	assert.Equal(t, domain.PartialTranscript{Text: "NEW_TAG:payload"}, event)

	event, anomaly = Inspect([]byte("AUDIO_CHUNK:!!!"))
	assert.Equal(t, AnomalyBadAudio, anomaly)
	assert.Equal(t, domain.EventAudioChunk, event.Kind())

	_, anomaly = Inspect([]byte("Hello: world"))
	assert.Equal(t, AnomalyNone, anomaly)
}

type countingMetrics struct {
	unknown int
	kinds   map[domain.EventKind]int
}

func (m *countingMetrics) FrameSent()                         {}
func (m *countingMetrics) FrameDropped()                      {}
func (m *countingMetrics) InboundEvent(kind domain.EventKind) { m.kinds[kind]++ }
func (m *countingMetrics) UnknownTag()                        { m.unknown++ }
func (m *countingMetrics) TurnStarted()                       {}
func (m *countingMetrics) BargeIn()                           {}
func (m *countingMetrics) TransportClosed(bool)               {}
func (m *countingMetrics) PlaybackFinished()                  {}
func (m *countingMetrics) State(domain.ConversationState)     {}

func TestDecoderLogsAndCountsUnknownTags(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	metrics := &countingMetrics{kinds: map[domain.EventKind]int{}}
	decoder := NewDecoder(zap.New(core), metrics)

	decoder.Decode([]byte("STATUS:ready"))
	decoder.Decode([]byte("hello"))
	decoder.Decode([]byte("AUDIO_END"))

	assert.Equal(t, 1, metrics.unknown)
	assert.Equal(t, 2, metrics.kinds[domain.EventPartialTranscript])
	assert.Equal(t, 1, metrics.kinds[domain.EventAudioEnd])

	entries := logs.FilterMessage("unrecognized tag treated as transcript").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "STATUS:", entries[0].ContextMap()["prefix"])
}
