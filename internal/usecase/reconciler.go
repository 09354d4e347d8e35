package usecase

import (
	"strings"

	"hotmic/internal/domain"
)

// reconciler tracks the single live user utterance of a turn. Partials
// replace the live text; TurnEnded and AgentReply finalize it at most once.
// Once finalized, later partials belong to no utterance and are dropped.
type reconciler struct {
	live      string
	hasLive   bool
	closed    bool
	replied   bool
	finalized int
}

func newReconciler() *reconciler {
	return &reconciler{}
}

// Partial replaces the live text and reports whether it changed.
// Blank partials carry no speech and are ignored.
func (r *reconciler) Partial(text string) bool {
	if r.closed || strings.TrimSpace(text) == "" {
		return false
	}
	if r.hasLive && r.live == text {
		return false
	}
	r.live = text
	r.hasLive = true
	return true
}

// Finalize promotes the live utterance to a user entry. It is a no-op when
// nothing is live.
func (r *reconciler) Finalize() (domain.TranscriptEntry, bool) {
	r.closed = true
	if !r.hasLive {
		return domain.TranscriptEntry{}, false
	}
	entry := domain.TranscriptEntry{Role: domain.RoleUser, Text: r.live}
	r.live = ""
	r.hasLive = false
	r.finalized++
	return entry, true
}

// AgentReply finalizes any live utterance and then appends the reply.
func (r *reconciler) AgentReply(text string) []domain.TranscriptEntry {
	var entries []domain.TranscriptEntry
	if entry, ok := r.Finalize(); ok {
		entries = append(entries, entry)
	}
	r.replied = true
	return append(entries, domain.TranscriptEntry{Role: domain.RoleAgent, Text: text})
}

// Replied reports whether the agent's text reply has arrived.
func (r *reconciler) Replied() bool {
	return r.replied
}

func (r *reconciler) Live() (string, bool) {
	return r.live, r.hasLive
}
