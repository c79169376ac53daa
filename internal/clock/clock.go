// Package clock provides the wall clock and the logical sequence counter used
// by the nudge engine.
//
// Wall time decides eligibility (time-of-day windows, calendar days, poll
// cooldowns). It is injected everywhere through the Clock interface so tests
// can drive ticks with controlled fake time instead of real timers.
//
// The Sequence counter orders displayed nudges within a process. Ordering in
// the audit history uses seq, never timestamps, because two nudges built in
// the same tick share a wall-clock instant.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock reports the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// System is the production Clock backed by time.Now.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}

// Sequence is a monotonic logical counter.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0. The first Next() returns 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next sequence number and increments the counter.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
