package session

import "errors"

// Sentinel errors for the session package.
var (
	// ErrStopped indicates Run has returned.
	ErrStopped = errors.New("session: controller stopped")

	// ErrAlreadyRunning indicates Run was called twice.
	ErrAlreadyRunning = errors.New("session: controller already running")

	// ErrNoCredentialFlow indicates OpenCredentialFlow has nothing to run.
	ErrNoCredentialFlow = errors.New("session: no credential flow configured")

	// ErrFrameQueueFull indicates a captured frame was dropped.
	ErrFrameQueueFull = errors.New("session: frame queue full")

	// ErrNotSendable indicates no transport is accepting audio.
	ErrNotSendable = errors.New("session: transport not sendable")

	errMissingDialer      = errors.New("session: dialer is required")
	errMissingCredentials = errors.New("session: credential provider is required")
	errMissingMicrophone  = errors.New("session: microphone is required")
	errMissingOutput      = errors.New("session: audio output is required")
)
