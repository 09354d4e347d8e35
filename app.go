package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"hotmic/internal/bootstrap"
	"hotmic/internal/domain"
)

const (
	eventState   = "hotmic:state"
	eventPartial = "hotmic:partial"
	eventEntry   = "hotmic:entry"
	eventError   = "hotmic:error"
)

// App is the Wails application root.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	services bootstrap.Services
	ready    bool
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)

	services, err := bootstrap.Build(a.ctx, a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.ready = true
	a.StateChanged(domain.StateIdle, domain.ReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	if !a.ready {
		return
	}
	if err := a.services.Close(); err != nil {
		a.services.Logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

// StartCapture starts listening, interrupting the agent if it is replying.
func (a *App) StartCapture() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Capture(a.ctx); err != nil {
		return a.services.Controller.Status(), err
	}
	return a.services.Controller.Status(), nil
}

// StopCapture ends the current utterance.
func (a *App) StopCapture() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Stop(a.ctx); err != nil {
		return a.services.Controller.Status(), err
	}
	return a.services.Controller.Status(), nil
}

// ToggleCapture backs the single microphone button.
func (a *App) ToggleCapture() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Toggle(a.ctx); err != nil {
		return a.services.Controller.Status(), err
	}
	return a.services.Controller.Status(), nil
}

func (a *App) NewSession() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.services.Controller.NewSession(a.ctx)
}

func (a *App) OpenSession(sessionID string) ([]domain.TranscriptEntry, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Controller.OpenSession(a.ctx, sessionID)
}

func (a *App) DeleteSession(sessionID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.DeleteSession(a.ctx, sessionID)
}

func (a *App) ListSessions() ([]string, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Controller.ListSessions(a.ctx)
}

// SaveCredential stores a service key for this profile. An empty value
// clears it.
func (a *App) SaveCredential(service string, value string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Credentials.Set(a.ctx, service, value); err != nil {
		a.SessionError(domain.ErrorCodeCredentials, err.Error())
		return err
	}
	return nil
}

// GetCredential returns the stored key for service, or "" when unset.
func (a *App) GetCredential(service string) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	value, err := a.services.Credentials.Get(a.ctx, service)
	if errors.Is(err, domain.ErrCredentialNotFound) {
		return "", nil
	}
	return value, err
}

// GetMissingCredentials lists required keys that have no value yet.
func (a *App) GetMissingCredentials() ([]string, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	creds, err := a.services.Credentials.All(a.ctx)
	if err != nil {
		return nil, err
	}
	missing := creds.Missing()
	if missing == nil {
		missing = []string{}
	}
	return missing, nil
}

// GetStatus returns the current conversation status.
func (a *App) GetStatus() domain.Status {
	if !a.ready {
		if a.bootErr != nil {
			return domain.Status{State: domain.StateIdle, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.StateIdle}
	}
	return a.services.Controller.Status()
}

// GetTranscript returns the finalized entries of the active session.
func (a *App) GetTranscript() []domain.TranscriptEntry {
	if !a.ready {
		return []domain.TranscriptEntry{}
	}
	return a.services.Controller.Transcript()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if !a.ready {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"server":           cfg.Server.URL,
		"audioBackend":     cfg.Audio.Backend,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"profile":          cfg.Profile.Dir,
		"metrics":          cfg.Metrics.Addr,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if !a.ready {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// StateChanged emits conversation lifecycle updates to the frontend.
func (a *App) StateChanged(state domain.ConversationState, reason domain.StateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventState, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": stateReasonMessage(reason),
	})
}

// PartialTranscript emits the live utterance text.
func (a *App) PartialTranscript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPartial, map[string]string{"text": text})
}

// TranscriptEntry emits a finalized user or agent entry.
func (a *App) TranscriptEntry(entry domain.TranscriptEntry) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventEntry, map[string]string{
		"role": string(entry.Role),
		"text": entry.Text,
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func stateReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonReady:
		return "Ready"
	case domain.ReasonConnecting:
		return "Connecting..."
	case domain.ReasonBargeIn:
		return "Interrupted. Reconnecting..."
	case domain.ReasonListening, domain.ReasonResumed:
		return "Listening..."
	case domain.ReasonStopRequested:
		return "Stopped listening"
	case domain.ReasonTurnEnded, domain.ReasonReplyReceived:
		return "Thinking..."
	case domain.ReasonReplyAudio:
		return "Speaking..."
	case domain.ReasonNoAudio:
		return "Reply had no audio"
	case domain.ReasonPlaybackFinished:
		return "Reply finished"
	case domain.ReasonReplyTimeout:
		return "No reply from the agent"
	case domain.ReasonConnectFailed:
		return "Could not reach the agent"
	case domain.ReasonDeviceFailed:
		return "Microphone unavailable"
	case domain.ReasonTransportClosed:
		return "Connection closed"
	case domain.ReasonPlaybackFailed:
		return "Playback failed"
	case domain.ReasonSessionChanged:
		return "Session changed"
	case domain.ReasonShutdown:
		return "Shutting down"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeDevice:
		return "Microphone unavailable"
	case domain.ErrorCodeConnect:
		return "Connection failed"
	case domain.ErrorCodeTransport:
		return "Connection issue"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodePlayback:
		return "Playback failed"
	case domain.ErrorCodeHistory:
		return "Chat history unavailable"
	case domain.ErrorCodeCredentials:
		return "API keys missing"
	default:
		if strings.TrimSpace(detail) == "" {
			return "Unknown error"
		}
		return detail
	}
}
