// Package audioio provides microphone capture and speaker playback.
//
// Backends:
//   - malgo (miniaudio) for capture and oto for playback, built with cgo
//   - mock, for CI and headless runs without hardware
//
// Playback goes through a Mixer: a sample-accurate output timeline on which
// buffers are scheduled at absolute offsets.
package audioio

import (
	"fmt"
	"time"

	"github.com/teslashibe/wingman/pkg/pcm"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects the native backend when built with cgo, mock otherwise.
	BackendAuto Backend = "auto"
	// BackendNative uses malgo for capture and oto for playback.
	BackendNative Backend = "native"
	// BackendMock uses in-process fakes.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `mapstructure:"backend" json:"backend"`

	// InputSampleRate is the microphone rate in Hz.
	InputSampleRate int `mapstructure:"input_sample_rate" json:"input_sample_rate"`

	// OutputSampleRate is the speaker rate in Hz.
	OutputSampleRate int `mapstructure:"output_sample_rate" json:"output_sample_rate"`

	// PeriodFrames is the capture callback size requested from the device.
	PeriodFrames int `mapstructure:"period_frames" json:"period_frames"`

	// OutputBuffer is the speaker's internal buffer length.
	OutputBuffer time.Duration `mapstructure:"output_buffer" json:"output_buffer"`
}

// DefaultConfig returns a Config matching the agent's wire formats.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendAuto,
		InputSampleRate:  pcm.InputSampleRate,
		OutputSampleRate: pcm.OutputSampleRate,
		PeriodFrames:     pcm.FrameSize,
		OutputBuffer:     100 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendNative, BackendMock:
	default:
		return fmt.Errorf("audioio: unknown backend %q", c.Backend)
	}
	if c.InputSampleRate <= 0 {
		return fmt.Errorf("audioio: input_sample_rate must be positive, got %d", c.InputSampleRate)
	}
	if c.OutputSampleRate <= 0 {
		return fmt.Errorf("audioio: output_sample_rate must be positive, got %d", c.OutputSampleRate)
	}
	if c.PeriodFrames <= 0 {
		return fmt.Errorf("audioio: period_frames must be positive, got %d", c.PeriodFrames)
	}
	if c.OutputBuffer <= 0 {
		return fmt.Errorf("audioio: output_buffer must be positive, got %v", c.OutputBuffer)
	}
	return nil
}
