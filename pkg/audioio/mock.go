package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"
)

// MockMicrophone is a fake microphone for tests and headless runs.
// Samples are pushed with Emit, or generated on a ticker when configured
// with WithSineWave or WithSilence.
type MockMicrophone struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	opens   int
	openErr error
	stream  *mockStream

	// Synthetic audio generation
	interval  time.Duration
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// MockMicrophoneOption configures a MockMicrophone.
type MockMicrophoneOption func(*MockMicrophone)

// WithSineWave makes the mock generate a sine wave every interval.
func WithSineWave(frequency, amplitude float64, interval time.Duration) MockMicrophoneOption {
	return func(m *MockMicrophone) {
		m.frequency = frequency
		m.amplitude = amplitude
		m.interval = interval
	}
}

// WithSilence makes the mock generate silence every interval.
func WithSilence(interval time.Duration) MockMicrophoneOption {
	return func(m *MockMicrophone) {
		m.frequency = 0
		m.interval = interval
	}
}

// WithOpenError makes every Open fail with err.
func WithOpenError(err error) MockMicrophoneOption {
	return func(m *MockMicrophone) {
		m.openErr = err
	}
}

// NewMockMicrophone creates a new mock microphone.
func NewMockMicrophone(cfg Config, logger *slog.Logger, opts ...MockMicrophoneOption) *MockMicrophone {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockMicrophone{cfg: cfg, logger: logger, amplitude: 0.5}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open implements Microphone.
func (m *MockMicrophone) Open(ctx context.Context) (InputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.opens++
	if m.openErr != nil {
		return nil, &DeviceError{Op: "open microphone", Err: m.openErr}
	}
	m.stream = &mockStream{mic: m, stopCh: make(chan struct{})}
	return m.stream, nil
}

// Opens returns how many times Open was called.
func (m *MockMicrophone) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Emit delivers samples synchronously to the most recently opened stream.
// It reports false when no stream is started.
func (m *MockMicrophone) Emit(samples []float32) bool {
	m.mu.Lock()
	s := m.stream
	m.mu.Unlock()
	if s == nil {
		return false
	}
	return s.emit(samples)
}

// Streaming reports whether the latest stream is started and not closed.
func (m *MockMicrophone) Streaming() bool {
	m.mu.Lock()
	s := m.stream
	m.mu.Unlock()
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn != nil && !s.closed
}

type mockStream struct {
	mic *MockMicrophone

	mu     sync.Mutex
	fn     func([]float32)
	closed bool
	stopCh chan struct{}
	phase  float64
}

func (s *mockStream) Start(fn func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.fn != nil {
		return nil
	}
	s.fn = fn

	if s.mic.interval > 0 {
		go s.generateLoop()
	}
	s.mic.logger.Debug("mock microphone started",
		"sample_rate", s.mic.cfg.InputSampleRate,
		"frequency", s.mic.frequency,
	)
	return nil
}

func (s *mockStream) emit(samples []float32) bool {
	s.mu.Lock()
	fn, closed := s.fn, s.closed
	s.mu.Unlock()
	if fn == nil || closed {
		return false
	}
	fn(samples)
	return true
}

func (s *mockStream) generateLoop() {
	ticker := time.NewTicker(s.mic.interval)
	defer ticker.Stop()

	n := int(float64(s.mic.cfg.InputSampleRate) * s.mic.interval.Seconds())
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.emit(s.generate(n))
		}
	}
}

func (s *mockStream) generate(n int) []float32 {
	out := make([]float32, n)
	if s.mic.frequency == 0 {
		return out
	}
	step := 2 * math.Pi * s.mic.frequency / float64(s.mic.cfg.InputSampleRate)
	for i := range out {
		out[i] = float32(s.mic.amplitude * math.Sin(s.phase))
		s.phase += step
	}
	s.phase = math.Mod(s.phase, 2*math.Pi)
	return out
}

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stopCh)
	return nil
}

// MockSpeaker is a Speaker whose clock moves only on Advance.
type MockSpeaker struct {
	*Mixer
}

// NewMockSpeaker creates a mock speaker at rate Hz.
func NewMockSpeaker(rate int) *MockSpeaker {
	return &MockSpeaker{Mixer: NewMixer(rate)}
}

// realtimeMockSpeaker advances a Mixer against the wall clock so headless
// runs still see playback complete.
type realtimeMockSpeaker struct {
	*Mixer
	stopCh chan struct{}
	once   sync.Once
}

const mockTick = 20 * time.Millisecond

func newRealtimeMockSpeaker(rate int) *realtimeMockSpeaker {
	s := &realtimeMockSpeaker{Mixer: NewMixer(rate), stopCh: make(chan struct{})}
	go s.run()
	return s
}

func (s *realtimeMockSpeaker) run() {
	ticker := time.NewTicker(mockTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Advance(mockTick)
		}
	}
}

func (s *realtimeMockSpeaker) Close() error {
	s.once.Do(func() { close(s.stopCh) })
	return s.Mixer.Close()
}

func frameInterval(cfg Config) time.Duration {
	return time.Duration(float64(cfg.PeriodFrames) / float64(cfg.InputSampleRate) * float64(time.Second))
}
