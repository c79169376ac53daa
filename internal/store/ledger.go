package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/nudge/internal/engine"
)

// NewSessionID returns a fresh time-ordered session id.
func NewSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Ledger is an engine.Ledger backed by the firings table, scoped to one
// session and subject. Subjects sharing a session never see each other's keys.
type Ledger struct {
	store   *Store
	session string
	subject string
}

// Ledger returns the firing ledger for sessionID and subjectID.
func (s *Store) Ledger(sessionID, subjectID string) *Ledger {
	return &Ledger{store: s, session: sessionID, subject: subjectID}
}

// SessionID returns the session the ledger is scoped to.
func (l *Ledger) SessionID() string { return l.session }

// Seen implements engine.Ledger.
func (l *Ledger) Seen(ctx context.Context, key string) (bool, error) {
	var n int
	err := l.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM firings
		WHERE session_id = ? AND subject_id = ? AND dedup_key = ?
	`, l.session, l.subject, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("ledger seen: %w", err)
	}
	return n > 0, nil
}

// Record implements engine.Ledger.
//
// Uses ON CONFLICT(session_id, subject_id, dedup_key) DO NOTHING; inserted is
// false when the key was already recorded for this subject in this session.
func (l *Ledger) Record(ctx context.Context, f engine.Firing) (bool, error) {
	result, err := l.store.db.ExecContext(ctx, `
		INSERT INTO firings
		(session_id, subject_id, dedup_key, rule, fired_at, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, subject_id, dedup_key) DO NOTHING
	`,
		l.session,
		l.subject,
		f.Key,
		f.Rule,
		f.At.UTC().UnixNano(),
		f.Seq,
	)
	if err != nil {
		return false, fmt.Errorf("ledger record: insert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ledger record: rows affected: %w", err)
	}
	return rows > 0, nil
}

// Firings returns the subject's firings in this session ordered by seq.
func (l *Ledger) Firings(ctx context.Context) ([]engine.Firing, error) {
	rows, err := l.store.db.QueryContext(ctx, `
		SELECT dedup_key, rule, fired_at, seq
		FROM firings
		WHERE session_id = ? AND subject_id = ?
		ORDER BY seq ASC, dedup_key COLLATE BINARY ASC
	`, l.session, l.subject)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	firings := []engine.Firing{}
	for rows.Next() {
		var f engine.Firing
		var at int64
		if err := rows.Scan(&f.Key, &f.Rule, &at, &f.Seq); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		f.At = time.Unix(0, at).UTC()
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return firings, nil
}
