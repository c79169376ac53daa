package engine

import (
	"context"
	"time"
)

// Candidate is one firing opportunity produced by a rule.
type Candidate struct {
	// Key identifies the opportunity. It must include every value that
	// legitimately changes the opportunity (calendar day, day count, label).
	Key string

	// Build produces the Nudge. Returning ErrNoNudge (or any error) means
	// nothing fires and the key stays eligible.
	Build func(ctx context.Context) (Nudge, error)
}

// Rule produces zero or more candidates from State.
//
// Rules must be self-sufficient: a rule's predicate and keys may not depend
// on whether another rule fired.
type Rule interface {
	Name() string

	// Cadence is the minimum interval between evaluations. Zero means every
	// tick.
	Cadence() time.Duration

	Candidates(s State) []Candidate
}

// Simple is the uniform {predicate, key, action, cadence} rule shape.
type Simple struct {
	ID        string
	Every     time.Duration
	Predicate func(s State) bool
	Key       func(s State) string
	Action    func(ctx context.Context, s State) (Nudge, error)
}

// Name implements Rule.
func (r *Simple) Name() string { return r.ID }

// Cadence implements Rule.
func (r *Simple) Cadence() time.Duration { return r.Every }

// Candidates implements Rule: one candidate when the predicate holds.
func (r *Simple) Candidates(s State) []Candidate {
	if r.Predicate != nil && !r.Predicate(s) {
		return nil
	}
	return []Candidate{{
		Key: r.Key(s),
		Build: func(ctx context.Context) (Nudge, error) {
			return r.Action(ctx, s)
		},
	}}
}

// Fanout is a rule that yields one candidate per item, e.g. one per life
// event. Expand returns the candidates directly.
type Fanout struct {
	ID     string
	Every  time.Duration
	Expand func(s State) []Candidate
}

// Name implements Rule.
func (r *Fanout) Name() string { return r.ID }

// Cadence implements Rule.
func (r *Fanout) Cadence() time.Duration { return r.Every }

// Candidates implements Rule.
func (r *Fanout) Candidates(s State) []Candidate { return r.Expand(s) }
