// Package sink provides engine.Sink adapters. Display never returns an
// error: each adapter keeps its own failures.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/nudge/internal/engine"
)

// Safe recovers panics from the wrapped sink.
func Safe(s engine.Sink) engine.Sink {
	return engine.SinkFunc(func(ctx context.Context, n engine.Nudge) {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("sink panicked", "id", n.ID, "rule", n.Rule, "panic", p)
			}
		}()
		s.Display(ctx, n)
	})
}

// Multi displays on every sink in order. A panicking sink does not stop
// the others.
func Multi(sinks ...engine.Sink) engine.Sink {
	wrapped := make([]engine.Sink, len(sinks))
	for i, s := range sinks {
		wrapped[i] = Safe(s)
	}
	return engine.SinkFunc(func(ctx context.Context, n engine.Nudge) {
		for _, s := range wrapped {
			s.Display(ctx, n)
		}
	})
}

// Log writes each nudge as a structured log record.
type Log struct {
	Logger *slog.Logger
}

// Display implements engine.Sink.
func (l Log) Display(ctx context.Context, n engine.Nudge) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "nudge",
		"id", n.ID,
		"kind", n.Kind,
		"title", n.Title,
		"message", n.Message,
		"ttl", n.TTL,
		"rule", n.Rule,
		"key", n.Key,
	)
}

// Writer prints one line per nudge, as text or JSON.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	loc    *time.Location
}

// NewWriter creates a Writer. format is "text" or "json".
func NewWriter(w io.Writer, format string, loc *time.Location) *Writer {
	if loc == nil {
		loc = time.Local
	}
	return &Writer{w: w, format: format, loc: loc}
}

type jsonLine struct {
	ID      string      `json:"id"`
	Kind    engine.Kind `json:"kind"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
	TTLMs   int64       `json:"ttl_ms"`
	Rule    string      `json:"rule"`
	Key     string      `json:"key,omitempty"`
	At      string      `json:"at"`
	Seq     int64       `json:"seq"`
}

// Display implements engine.Sink.
func (w *Writer) Display(ctx context.Context, n engine.Nudge) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	if w.format == "json" {
		enc := json.NewEncoder(w.w)
		enc.SetEscapeHTML(false)
		err = enc.Encode(jsonLine{
			ID:      n.ID,
			Kind:    n.Kind,
			Title:   n.Title,
			Message: n.Message,
			TTLMs:   n.TTL.Milliseconds(),
			Rule:    n.Rule,
			Key:     n.Key,
			At:      n.At.In(w.loc).Format(time.RFC3339),
			Seq:     n.Seq,
		})
	} else {
		_, err = fmt.Fprintf(w.w, "%s [%s] %s: %s\n", n.At.In(w.loc).Format("2006-01-02 15:04"), n.Kind, n.Title, n.Message)
	}
	if err != nil {
		slog.Warn("nudge output failed", "id", n.ID, "error", err)
	}
}

// Recorder keeps every displayed nudge in memory.
type Recorder struct {
	mu     sync.Mutex
	nudges []engine.Nudge
}

// Display implements engine.Sink.
func (r *Recorder) Display(ctx context.Context, n engine.Nudge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nudges = append(r.nudges, n)
}

// Nudges returns a copy of the recorded nudges in display order.
func (r *Recorder) Nudges() []engine.Nudge {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.Nudge, len(r.nudges))
	copy(out, r.nudges)
	return out
}

// Len returns the number of recorded nudges.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nudges)
}

// Reset drops recorded nudges.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nudges = nil
}
