//go:build !cgo

package audioio

import "log/slog"

const nativeAvailable = false

func newNativeMicrophone(Config, *slog.Logger) (Microphone, error) {
	return nil, &DeviceError{Op: "open microphone", Err: ErrDeviceUnavailable}
}

func newNativeSpeaker(Config, *slog.Logger) (Speaker, error) {
	return nil, &DeviceError{Op: "open speaker", Err: ErrDeviceUnavailable}
}
