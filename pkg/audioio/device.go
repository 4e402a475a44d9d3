package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Device errors. Both are surfaced to the user and never retried.
var (
	ErrPermissionDenied  = errors.New("audioio: microphone permission denied")
	ErrDeviceUnavailable = errors.New("audioio: audio device unavailable")
)

// DeviceError wraps a failure to acquire or drive an audio device.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audioio: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Microphone is a permission-gated audio source.
type Microphone interface {
	// Open acquires the device, blocking until access is granted or denied.
	// Failures are *DeviceError.
	Open(ctx context.Context) (InputStream, error)
}

// InputStream is an acquired microphone.
type InputStream interface {
	// Start begins delivering mono float samples in [-1, 1] to fn.
	// fn runs on the device's callback goroutine and must not block.
	Start(fn func(samples []float32)) error

	// Close releases the device. It is safe to call Close multiple times.
	io.Closer
}

// Output is a timeline that plays buffers at absolute offsets.
type Output interface {
	// Now returns the current output time in seconds.
	Now() float64

	// Play schedules mono samples to start at offset at (seconds). done is
	// called once when the buffer finishes playing naturally; it is not called
	// when the voice is stopped.
	Play(samples []float32, at float64, done func()) (Voice, error)
}

// Voice is a scheduled buffer.
type Voice interface {
	// Stop cancels the buffer. Stopping an already finished voice is a no-op.
	Stop()
}

// Speaker is an Output backed by a device.
type Speaker interface {
	Output
	io.Closer
}
