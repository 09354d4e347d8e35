package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hotmic/internal/domain"
)

// ConversationSession is one logical conversation: its id and the
// finalized transcript accumulated across turns.
type ConversationSession struct {
	ID         string
	transcript []domain.TranscriptEntry
}

// NewSessionID returns an id of the form session_<unix-ms>_<random>.
func NewSessionID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), random)
}

func newConversationSession(id string, history []domain.TranscriptEntry) *ConversationSession {
	transcript := make([]domain.TranscriptEntry, len(history))
	copy(transcript, history)
	return &ConversationSession{ID: id, transcript: transcript}
}

func (s *ConversationSession) append(entry domain.TranscriptEntry) {
	s.transcript = append(s.transcript, entry)
}

// Transcript returns a copy of the finalized entries.
func (s *ConversationSession) Transcript() []domain.TranscriptEntry {
	out := make([]domain.TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}
