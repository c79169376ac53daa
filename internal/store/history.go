package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/nudge/internal/canonical"
	"github.com/roach88/nudge/internal/engine"
)

// DomainNudge separates nudge content digests from other hashes.
const DomainNudge = "nudge/content/v1"

// Record is one displayed nudge as stored in history.
type Record struct {
	engine.Nudge
	SessionID string `json:"sessionId"`
	SubjectID string `json:"subjectId"`
	Digest    string `json:"digest"`
}

// Payload is the canonical JSON form of n, as written to the payload column.
func Payload(n engine.Nudge) ([]byte, error) {
	return canonical.Marshal(map[string]any{
		"id":      n.ID,
		"kind":    string(n.Kind),
		"title":   n.Title,
		"message": n.Message,
		"ttlMs":   n.TTL.Milliseconds(),
		"rule":    n.Rule,
		"key":     n.Key,
		"at":      n.At.UTC().Format(time.RFC3339Nano),
		"seq":     n.Seq,
	})
}

// ContentDigest identifies what the subject saw, independent of when.
func ContentDigest(n engine.Nudge) (string, error) {
	return canonical.Digest(DomainNudge, map[string]any{
		"kind":    string(n.Kind),
		"title":   n.Title,
		"message": n.Message,
		"rule":    n.Rule,
		"key":     n.Key,
	})
}

// WriteNudge appends n to the history.
// Uses ON CONFLICT(id) DO NOTHING so a re-delivered nudge is stored once.
func (s *Store) WriteNudge(ctx context.Context, sessionID, subjectID string, n engine.Nudge) error {
	payload, err := Payload(n)
	if err != nil {
		return fmt.Errorf("write nudge: %w", err)
	}
	digest, err := ContentDigest(n)
	if err != nil {
		return fmt.Errorf("write nudge: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nudges
		(id, session_id, subject_id, rule, dedup_key, kind, title, message, ttl_ms, displayed_at, seq, payload, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		n.ID,
		sessionID,
		subjectID,
		n.Rule,
		n.Key,
		string(n.Kind),
		n.Title,
		n.Message,
		n.TTL.Milliseconds(),
		n.At.UTC().UnixNano(),
		n.Seq,
		string(payload),
		digest,
	)
	if err != nil {
		return fmt.Errorf("write nudge: %w", err)
	}
	return nil
}

// Query filters History. Zero fields match everything.
type Query struct {
	SubjectID string
	SessionID string
	Rule      string
	Since     time.Time
	Limit     int
}

// History returns stored nudges, oldest first.
func (s *Store) History(ctx context.Context, q Query) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if q.SubjectID != "" {
		where = append(where, "subject_id = ?")
		args = append(args, q.SubjectID)
	}
	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Rule != "" {
		where = append(where, "rule = ?")
		args = append(args, q.Rule)
	}
	if !q.Since.IsZero() {
		where = append(where, "displayed_at >= ?")
		args = append(args, q.Since.UTC().UnixNano())
	}

	query := `
		SELECT id, session_id, subject_id, rule, dedup_key, kind, title, message, ttl_ms, displayed_at, seq, digest
		FROM nudges`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY displayed_at ASC, seq ASC, id COLLATE BINARY ASC"
	if q.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nudges: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r     Record
			kind  string
			ttlMS int64
			at    int64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.SubjectID, &r.Rule, &r.Key, &kind,
			&r.Title, &r.Message, &ttlMS, &at, &r.Seq, &r.Digest); err != nil {
			return nil, fmt.Errorf("scan nudge: %w", err)
		}
		r.Kind = engine.Kind(kind)
		r.TTL = time.Duration(ttlMS) * time.Millisecond
		r.At = time.Unix(0, at).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nudges: %w", err)
	}
	return records, nil
}
