package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hotmic/internal/domain"
)

// NewSession starts an empty conversation and makes it active.
func (c *Controller) NewSession(ctx context.Context) (string, error) {
	session := newConversationSession(NewSessionID(time.Now()), nil)
	if err := c.command(ctx, commandEvent{kind: commandSession, session: session}); err != nil {
		return "", err
	}
	c.logger.Info("session created", zap.String("sessionID", session.ID))
	return session.ID, nil
}

// OpenSession loads a stored conversation and makes it active. A session
// without history opens with an empty transcript.
func (c *Controller) OpenSession(ctx context.Context, sessionID string) ([]domain.TranscriptEntry, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	history, err := c.history.Load(ctx, sessionID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		history = nil
	case err != nil:
		c.events.SessionError(domain.ErrorCodeHistory, err.Error())
		return nil, fmt.Errorf("load history for %s: %w", sessionID, err)
	}

	session := newConversationSession(sessionID, history)
	if err := c.command(ctx, commandEvent{kind: commandSession, session: session}); err != nil {
		return nil, err
	}
	c.logger.Info("session opened", zap.String("sessionID", sessionID), zap.Int("entries", len(history)))
	return session.Transcript(), nil
}

// DeleteSession removes stored history. Deleting the active session ends
// any turn and leaves no session active. A session the server never
// stored is treated as already deleted.
func (c *Controller) DeleteSession(ctx context.Context, sessionID string) error {
	err := c.history.Delete(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		c.events.SessionError(domain.ErrorCodeHistory, err.Error())
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return c.command(ctx, commandEvent{kind: commandForget, sessionID: sessionID})
}

// ListSessions returns the ids of stored conversations.
func (c *Controller) ListSessions(ctx context.Context) ([]string, error) {
	ids, err := c.history.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}
