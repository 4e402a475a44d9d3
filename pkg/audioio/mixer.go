package audioio

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"
)

// ErrMixerClosed is returned by Play after Close.
var ErrMixerClosed = errors.New("audioio: mixer closed")

// Mixer implements Output on a sample clock. The clock advances only as
// frames are rendered, either by a device pulling through Read or by Advance.
type Mixer struct {
	rate int

	mu     sync.Mutex
	pos    int64 // frames rendered so far
	voices map[uint64]*mixVoice
	nextID uint64
	closed bool
}

type mixVoice struct {
	m       *Mixer
	id      uint64
	start   int64
	samples []float32
	done    func()
}

// NewMixer creates a mono mixer running at rate Hz.
func NewMixer(rate int) *Mixer {
	return &Mixer{
		rate:   rate,
		voices: make(map[uint64]*mixVoice),
	}
}

// SampleRate returns the mixer's rate.
func (m *Mixer) SampleRate() int {
	return m.rate
}

// Now returns the output time in seconds.
func (m *Mixer) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.pos) / float64(m.rate)
}

// Play schedules samples at offset at. Offsets in the past start immediately.
func (m *Mixer) Play(samples []float32, at float64, done func()) (Voice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrMixerClosed
	}

	start := int64(math.Round(at * float64(m.rate)))
	if start < m.pos {
		start = m.pos
	}

	m.nextID++
	v := &mixVoice{m: m, id: m.nextID, start: start, samples: samples, done: done}
	m.voices[v.id] = v
	return v, nil
}

// Active returns the number of voices queued or playing.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Render mixes the next len(out) frames into out and advances the clock.
// Completion callbacks run after the lock is released, in start order.
func (m *Mixer) Render(out []float32) {
	m.mu.Lock()
	from := m.pos
	to := from + int64(len(out))

	for i := range out {
		out[i] = 0
	}

	var ended []*mixVoice
	for _, v := range m.voices {
		end := v.start + int64(len(v.samples))
		lo, hi := max(v.start, from), min(end, to)
		for t := lo; t < hi; t++ {
			out[t-from] += v.samples[t-v.start]
		}
		if end <= to {
			ended = append(ended, v)
		}
	}
	for _, v := range ended {
		delete(m.voices, v.id)
	}
	m.pos = to
	m.mu.Unlock()

	for i, s := range out {
		out[i] = max(-1, min(1, s))
	}

	sortByStart(ended)
	for _, v := range ended {
		if v.done != nil {
			v.done()
		}
	}
}

// Advance renders and discards d worth of audio. Used to drive the clock
// without a device.
func (m *Mixer) Advance(d time.Duration) {
	frames := int(d.Seconds() * float64(m.rate))
	if frames <= 0 {
		return
	}
	m.Render(make([]float32, frames))
}

// Read renders float32 little-endian frames for a device player.
func (m *Mixer) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}
	buf := make([]float32, frames)
	m.Render(buf)
	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return frames * 4, nil
}

// Close drops every voice without calling their completions.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	clear(m.voices)
	return nil
}

func (v *mixVoice) Stop() {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	delete(v.m.voices, v.id)
}

func sortByStart(vs []*mixVoice) {
	// Insertion sort; a render rarely ends more than a couple of voices.
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && (vs[j].start < vs[j-1].start ||
			(vs[j].start == vs[j-1].start && vs[j].id < vs[j-1].id)); j-- {
			vs[j], vs[j-1] = vs[j-1], vs[j]
		}
	}
}
