package live

import (
	"errors"
	"fmt"
)

// Sentinel errors for the live package.
var (
	// ErrNotConnected indicates the session is closed.
	ErrNotConnected = errors.New("live: not connected")

	// ErrQueueFull indicates an audio frame was dropped because the write
	// queue is full.
	ErrQueueFull = errors.New("live: write queue full")

	// ErrSetupTimeout indicates the agent never acknowledged the setup.
	ErrSetupTimeout = errors.New("live: setup not acknowledged")

	// ErrInvalidMessage indicates a malformed message was received.
	ErrInvalidMessage = errors.New("live: invalid message")
)

// CloseCodePolicyViolation is sent by the agent when it rejects the credential.
const CloseCodePolicyViolation = 1008

// ConnectionError represents a transport failure.
type ConnectionError struct {
	// Reason describes why the connection failed.
	Reason string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if reconnection should be attempted.
	Retryable bool
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("live: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("live: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{
		Reason:    reason,
		Cause:     cause,
		Retryable: retryable,
	}
}

// IsRetryable returns true if reconnection should be attempted after err.
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.Retryable
	}
	return false
}
