package harness

import (
	"sort"
	"time"

	"github.com/roach88/nudge/internal/engine"
)

// TraceEvent is one displayed nudge as seen by the harness.
type TraceEvent struct {
	At      time.Time
	Rule    string
	Key     string
	Kind    engine.Kind
	Title   string
	Message string
	TTL     time.Duration
}

// Result is the outcome of running a scenario.
type Result struct {
	Pass   bool
	Trace  []TraceEvent
	Errors []error
}

// NewResult creates a passing Result.
func NewResult() *Result {
	return &Result{Pass: true}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err error) {
	r.Pass = false
	r.Errors = append(r.Errors, err)
}

// Keys returns the dedup keys in trace order. Emit-only nudges have none
// and are skipped.
func (r *Result) Keys() []string {
	return firedKeys(r.Trace)
}

func traceFromNudges(nudges []engine.Nudge) []TraceEvent {
	trace := make([]TraceEvent, len(nudges))
	for i, n := range nudges {
		trace[i] = TraceEvent{
			At:      n.At,
			Rule:    n.Rule,
			Key:     n.Key,
			Kind:    n.Kind,
			Title:   n.Title,
			Message: n.Message,
			TTL:     n.TTL,
		}
	}
	sort.SliceStable(trace, func(i, j int) bool {
		a, b := trace[i], trace[j]
		if !a.At.Equal(b.At) {
			return a.At.Before(b.At)
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Key < b.Key
	})
	return trace
}
