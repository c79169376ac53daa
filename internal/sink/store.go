package sink

import (
	"context"
	"log/slog"

	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/store"
)

// HistoryWriter persists displayed nudges.
type HistoryWriter interface {
	WriteNudge(ctx context.Context, sessionID, subjectID string, n engine.Nudge) error
}

var _ HistoryWriter = (*store.Store)(nil)

// Store appends each nudge to the audit history. Write failures are logged.
type Store struct {
	History   HistoryWriter
	SessionID string
	SubjectID string
}

// Display implements engine.Sink.
func (s Store) Display(ctx context.Context, n engine.Nudge) {
	if err := s.History.WriteNudge(ctx, s.SessionID, s.SubjectID, n); err != nil {
		slog.Warn("nudge history write failed", "id", n.ID, "subject", s.SubjectID, "error", err)
	}
}
