// Package playback schedules decoded agent audio back-to-back on an output
// timeline and tracks which units are still queued or playing.
package playback

import (
	"fmt"

	"github.com/teslashibe/wingman/pkg/audioio"
	"github.com/teslashibe/wingman/pkg/pcm"
)

// Handle identifies a scheduled unit.
type Handle uint64

// Unit is a scheduled buffer as seen by callers.
type Unit struct {
	Handle   Handle
	Start    float64 // seconds on the output timeline
	Duration float64 // seconds
}

// End returns the offset at which the unit finishes.
func (u Unit) End() float64 {
	return u.Start + u.Duration
}

type liveUnit struct {
	Unit
	voice audioio.Voice
}

// Scheduler places units gaplessly on an audioio.Output. It is not safe for
// concurrent use; the session controller owns it.
type Scheduler struct {
	out  audioio.Output
	rate int

	clock float64
	next  Handle
	live  map[Handle]*liveUnit
	order []Handle
}

// New creates a scheduler decoding mono audio at sampleRate.
func New(out audioio.Output, sampleRate int) *Scheduler {
	return &Scheduler{
		out:  out,
		rate: sampleRate,
		live: make(map[Handle]*liveUnit),
	}
}

// Enqueue decodes payload and schedules it at max(clock, now). onEnded is
// called with the unit's handle when it finishes naturally, possibly from
// the output's goroutine. A malformed payload leaves the scheduler untouched.
func (s *Scheduler) Enqueue(payload []byte, onEnded func(Handle)) (Unit, error) {
	buf, err := pcm.DecodePlayback(payload, s.rate, 1)
	if err != nil {
		return Unit{}, err
	}

	start := max(s.clock, s.out.Now())
	s.next++
	h := s.next

	var done func()
	if onEnded != nil {
		done = func() { onEnded(h) }
	}

	voice, err := s.out.Play(buf.Samples, start, done)
	if err != nil {
		return Unit{}, fmt.Errorf("playback: schedule unit: %w", err)
	}

	u := &liveUnit{
		Unit:  Unit{Handle: h, Start: start, Duration: buf.Duration()},
		voice: voice,
	}
	s.live[h] = u
	s.order = append(s.order, h)
	s.clock = u.End()
	return u.Unit, nil
}

// Release removes a unit after its ended notification. removed is false for
// unknown or already stopped handles; empty reports whether nothing remains.
func (s *Scheduler) Release(h Handle) (removed, empty bool) {
	if _, ok := s.live[h]; ok {
		delete(s.live, h)
		s.compact()
		removed = true
	}
	return removed, len(s.live) == 0
}

// Interrupt stops every live unit, empties the set and resets the clock.
// It returns how many units were stopped.
func (s *Scheduler) Interrupt() int {
	n := len(s.live)
	for _, h := range s.order {
		if u, ok := s.live[h]; ok {
			u.voice.Stop()
		}
	}
	clear(s.live)
	s.order = s.order[:0]
	s.clock = 0
	return n
}

// Live returns the number of units queued or playing.
func (s *Scheduler) Live() int {
	return len(s.live)
}

// Clock returns the next scheduling offset in seconds.
func (s *Scheduler) Clock() float64 {
	return s.clock
}

// Units returns the live units in creation order.
func (s *Scheduler) Units() []Unit {
	units := make([]Unit, 0, len(s.live))
	for _, h := range s.order {
		if u, ok := s.live[h]; ok {
			units = append(units, u.Unit)
		}
	}
	return units
}

func (s *Scheduler) compact() {
	kept := s.order[:0]
	for _, h := range s.order {
		if _, ok := s.live[h]; ok {
			kept = append(kept, h)
		}
	}
	s.order = kept
}
