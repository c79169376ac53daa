package engine

import (
	"context"
	"time"

	"github.com/roach88/nudge/internal/profile"
	"github.com/roach88/nudge/internal/timeline"
)

// DateLayout is the calendar-day format used in keys and profile dates.
const DateLayout = "2006-01-02"

// State is the read-only ambient snapshot rules evaluate against.
// It is rebuilt on every tick and never mutated in place.
type State struct {
	Now       time.Time
	Location  *time.Location
	SubjectID string
	Summary   profile.Summary
	Timeline  []timeline.Period
}

// Local returns Now in the subject's location (time.Local when unset).
func (s State) Local() time.Time {
	if s.Location == nil {
		return s.Now.In(time.Local)
	}
	return s.Now.In(s.Location)
}

// Today returns the local calendar day as YYYY-MM-DD.
func (s State) Today() string {
	return s.Local().Format(DateLayout)
}

// Hour returns the local hour of day, 0-23.
func (s State) Hour() int {
	return s.Local().Hour()
}

// StateSource assembles State for one tick.
type StateSource interface {
	Build(ctx context.Context) (State, error)
}

// StateFunc adapts a function to StateSource.
type StateFunc func(ctx context.Context) (State, error)

// Build implements StateSource.
func (f StateFunc) Build(ctx context.Context) (State, error) {
	return f(ctx)
}
