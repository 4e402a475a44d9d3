// Package capture slices microphone audio into fixed-size frames and hands
// them to the session for sending.
package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/wingman/internal/metrics"
	"github.com/teslashibe/wingman/pkg/pcm"
)

// DropLogInterval bounds how often dropped frames are logged.
const DropLogInterval = 5 * time.Second

// Sink receives encoded frames.
type Sink interface {
	// Sendable reports whether a transport is open and accepting audio.
	Sendable() bool
	// SendAudio queues one base64 PCM16 frame. It must not block.
	SendAudio(payload string) error
}

// Stats counts frames since the pipeline was created.
type Stats struct {
	Sent    uint64
	Dropped uint64
}

// Pipeline accumulates device buffers into frames of pcm.FrameSize samples.
// Write is safe to call from a device callback goroutine.
type Pipeline struct {
	sink      Sink
	frameSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu    sync.Mutex
	buf   []float32
	drops rate.Sometimes

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics records sent and dropped frames.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithFrameSize overrides the frame length in samples.
func WithFrameSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.frameSize = n
		}
	}
}

// New creates a pipeline writing to sink.
func New(sink Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		sink:      sink,
		frameSize: pcm.FrameSize,
		logger:    slog.Default(),
		drops:     rate.Sometimes{Interval: DropLogInterval},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.buf = make([]float32, 0, p.frameSize)
	return p
}

// Write appends samples and emits every complete frame in capture order.
// It never blocks on the network and never fails.
func (p *Pipeline) Write(samples []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(samples) > 0 {
		n := min(p.frameSize-len(p.buf), len(samples))
		p.buf = append(p.buf, samples[:n]...)
		samples = samples[n:]

		if len(p.buf) == p.frameSize {
			p.emit(p.buf)
			p.buf = p.buf[:0]
		}
	}
}

func (p *Pipeline) emit(frame []float32) {
	if !p.sink.Sendable() {
		p.drop("transport not writable")
		return
	}
	if err := p.sink.SendAudio(pcm.EncodeCapture(frame)); err != nil {
		p.drop(err.Error())
		return
	}
	p.sent.Add(1)
	if p.metrics != nil {
		p.metrics.FramesSent.Inc()
	}
}

func (p *Pipeline) drop(reason string) {
	n := p.dropped.Add(1)
	if p.metrics != nil {
		p.metrics.FramesDropped.Inc()
	}
	p.drops.Do(func() {
		p.logger.Debug("dropping capture frames", "reason", reason, "dropped_total", n)
	})
}

// Reset discards any partial frame.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = p.buf[:0]
}

// Pending returns the number of buffered samples not yet framed.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// Stats returns the frame counters.
func (p *Pipeline) Stats() Stats {
	return Stats{Sent: p.sent.Load(), Dropped: p.dropped.Load()}
}
