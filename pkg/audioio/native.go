//go:build cgo

package audioio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
)

const nativeAvailable = true

// nativeMicrophone captures through miniaudio.
type nativeMicrophone struct {
	cfg    Config
	logger *slog.Logger
}

func newNativeMicrophone(cfg Config, logger *slog.Logger) (Microphone, error) {
	return &nativeMicrophone{cfg: cfg, logger: logger}, nil
}

func (m *nativeMicrophone) Open(ctx context.Context) (InputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	mctx, err := malgo.InitContext(nil, ctxConfig, func(msg string) {
		m.logger.Debug("miniaudio", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, &DeviceError{Op: "init audio context", Err: fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)}
	}

	s := &nativeStream{mctx: mctx, logger: m.logger}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.cfg.InputSampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(m.cfg.PeriodFrames)

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, &DeviceError{Op: "open microphone", Err: classifyDeviceErr(err)}
	}
	s.device = device

	m.logger.Info("microphone opened",
		"sample_rate", m.cfg.InputSampleRate,
		"period_frames", m.cfg.PeriodFrames,
	)
	return s, nil
}

// classifyDeviceErr maps miniaudio failures onto the package sentinels.
func classifyDeviceErr(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

type nativeStream struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	logger *slog.Logger

	mu     sync.Mutex
	fn     func([]float32)
	closed bool
}

func (s *nativeStream) onData(_, input []byte, frames uint32) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return
	}

	n := min(int(frames), len(input)/4)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
	}
	fn(samples)
}

func (s *nativeStream) Start(fn func([]float32)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &DeviceError{Op: "start microphone", Err: ErrDeviceUnavailable}
	}
	s.fn = fn
	s.mu.Unlock()

	if err := s.device.Start(); err != nil {
		return &DeviceError{Op: "start microphone", Err: classifyDeviceErr(err)}
	}
	return nil
}

func (s *nativeStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.fn = nil
	s.mu.Unlock()

	_ = s.device.Stop()
	s.device.Uninit()
	_ = s.mctx.Uninit()
	s.mctx.Free()
	s.logger.Info("microphone closed")
	return nil
}

// nativeSpeaker plays a Mixer through oto. The player pulls frames from
// the mixer continuously, so the mixer clock tracks the device.
type nativeSpeaker struct {
	*Mixer
	player *oto.Player
	logger *slog.Logger
}

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func newNativeSpeaker(cfg Config, logger *slog.Logger) (Speaker, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.OutputSampleRate,
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
			BufferSize:   cfg.OutputBuffer,
		})
		if otoErr == nil {
			<-ready
		}
	})
	if otoErr != nil {
		return nil, &DeviceError{Op: "open speaker", Err: fmt.Errorf("%w: %v", ErrDeviceUnavailable, otoErr)}
	}

	mixer := NewMixer(cfg.OutputSampleRate)
	player := otoCtx.NewPlayer(mixer)
	player.Play()

	logger.Info("speaker opened", "sample_rate", cfg.OutputSampleRate)
	return &nativeSpeaker{Mixer: mixer, player: player, logger: logger}, nil
}

func (s *nativeSpeaker) Close() error {
	_ = s.Mixer.Close()
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("audioio: close speaker: %w", err)
	}
	s.logger.Info("speaker closed")
	return nil
}
