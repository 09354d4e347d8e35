package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession          = errors.New("no active conversation session")
	ErrSessionNotFound    = errors.New("session not found")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrMissingCredentials = errors.New("missing required credentials")
)

// DeviceError reports that the microphone could not be acquired.
type DeviceError struct {
	Cause error
}

func (e *DeviceError) Error() string {
	if e.Cause == nil {
		return "microphone unavailable"
	}
	return fmt.Sprintf("microphone unavailable: %v", e.Cause)
}

func (e *DeviceError) Unwrap() error { return e.Cause }

// ConnectError reports a failed transport handshake.
type ConnectError struct {
	Target string
	Cause  error
}

func (e *ConnectError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("connect failed: %v", e.Cause)
	}
	return fmt.Sprintf("connect to %s failed: %v", e.Target, e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }
