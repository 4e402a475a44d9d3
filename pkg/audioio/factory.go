package audioio

import (
	"fmt"
	"log/slog"
)

// NewMicrophone creates a microphone for cfg.Backend.
func NewMicrophone(cfg Config, logger *slog.Logger) (Microphone, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := resolveBackend(cfg.Backend)
	logger.Info("creating microphone",
		"backend", backend,
		"sample_rate", cfg.InputSampleRate,
		"period_frames", cfg.PeriodFrames,
	)

	switch backend {
	case BackendMock:
		return NewMockMicrophone(cfg, logger, WithSilence(frameInterval(cfg))), nil
	case BackendNative:
		return newNativeMicrophone(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// NewSpeaker creates a speaker for cfg.Backend.
func NewSpeaker(cfg Config, logger *slog.Logger) (Speaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := resolveBackend(cfg.Backend)
	logger.Info("creating speaker",
		"backend", backend,
		"sample_rate", cfg.OutputSampleRate,
		"buffer_ms", cfg.OutputBuffer.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return newRealtimeMockSpeaker(cfg.OutputSampleRate), nil
	case BackendNative:
		return newNativeSpeaker(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

func resolveBackend(b Backend) Backend {
	if b == BackendAuto {
		if nativeAvailable {
			return BackendNative
		}
		return BackendMock
	}
	return b
}

// AvailableBackends returns the backends compiled into this binary.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if nativeAvailable {
		backends = append(backends, BackendNative)
	}
	return backends
}
