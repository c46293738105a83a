package session

import "errors"

var (
	// ErrSessionActive is returned by Start while a session attempt is
	// already underway; at most one session exists per controller.
	ErrSessionActive = errors.New("session already active")

	// ErrNotConfigured is returned by Start when the controller is missing
	// an audio input, audio output or transport client.
	ErrNotConfigured = errors.New("controller not fully configured")
)
