package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/wingman/pkg/live"
	"github.com/teslashibe/wingman/pkg/pcm"
	"github.com/teslashibe/wingman/pkg/reconnect"
)

const (
	// DefaultVoice is the prebuilt agent voice.
	DefaultVoice = "Zephyr"

	// DefaultSignOff asks the agent for a last summary when the user stops.
	DefaultSignOff = "Wally is signing off. Please provide a final SESSION SUMMARY of our discussion for the flight log."

	// DefaultGracePeriod lets trailing summary speech start before closing.
	DefaultGracePeriod = 1500 * time.Millisecond

	// DefaultSafetyTimeout forces close when no summary arrives.
	DefaultSafetyTimeout = 6 * time.Second

	defaultFrameQueue = 32
)

// Config holds controller settings.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string
	SignOffText       string

	GracePeriod       time.Duration
	SafetyTimeout     time.Duration
	HeartbeatInterval time.Duration

	MaxReconnectAttempts int
	MaxReconnectDelay    time.Duration

	// OutputSampleRate is the rate of agent audio.
	OutputSampleRate int

	// FrameQueue bounds captured frames waiting for the controller.
	FrameQueue int
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Model:                live.DefaultModel,
		Voice:                DefaultVoice,
		SignOffText:          DefaultSignOff,
		GracePeriod:          DefaultGracePeriod,
		SafetyTimeout:        DefaultSafetyTimeout,
		HeartbeatInterval:    reconnect.HeartbeatInterval,
		MaxReconnectAttempts: reconnect.DefaultMaxAttempts,
		MaxReconnectDelay:    reconnect.DefaultMaxDelay,
		OutputSampleRate:     pcm.OutputSampleRate,
		FrameQueue:           defaultFrameQueue,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.SignOffText == "" {
		errs = append(errs, errors.New("sign-off text is required"))
	}
	if c.GracePeriod <= 0 {
		errs = append(errs, fmt.Errorf("grace period must be positive, got %v", c.GracePeriod))
	}
	if c.SafetyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("safety timeout must be positive, got %v", c.SafetyTimeout))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat interval must be positive, got %v", c.HeartbeatInterval))
	}
	if c.MaxReconnectAttempts <= 0 {
		errs = append(errs, fmt.Errorf("max reconnect attempts must be positive, got %d", c.MaxReconnectAttempts))
	}
	if c.MaxReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("max reconnect delay must be positive, got %v", c.MaxReconnectDelay))
	}
	if c.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("output sample rate must be positive, got %d", c.OutputSampleRate))
	}
	if c.FrameQueue <= 0 {
		errs = append(errs, fmt.Errorf("frame queue must be positive, got %d", c.FrameQueue))
	}
	if len(errs) > 0 {
		return fmt.Errorf("session: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
