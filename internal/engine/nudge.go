package engine

import (
	"context"
	"time"
)

// Kind categorises a nudge for display.
type Kind string

const (
	KindGuru        Kind = "guru"
	KindInfo        Kind = "info"
	KindCelebration Kind = "celebration"
	KindAlert       Kind = "alert"
)

// Nudge is one user-facing advisory notification. Immutable once handed to
// the Sink; the Sink owns display lifecycle.
type Nudge struct {
	ID      string        `json:"id"`
	Kind    Kind          `json:"kind"`
	Title   string        `json:"title"`
	Message string        `json:"message"`
	TTL     time.Duration `json:"ttl"`

	// Set by the evaluator.
	Rule string    `json:"rule"`
	Key  string    `json:"key,omitempty"`
	At   time.Time `json:"at"`
	Seq  int64     `json:"seq"`
}

// Sink displays finished nudges. Display is fire-and-forget and must not
// panic; the evaluator still recovers if it does.
type Sink interface {
	Display(ctx context.Context, n Nudge)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Nudge)

// Display implements Sink.
func (f SinkFunc) Display(ctx context.Context, n Nudge) {
	f(ctx, n)
}
