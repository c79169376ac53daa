package engine

import (
	"context"
	"sync"
	"time"
)

// Firing is one ledger entry: a key that produced a displayed nudge.
type Firing struct {
	Key  string
	Rule string
	At   time.Time
	Seq  int64
}

// Ledger records which dedup keys have fired.
//
// Entries live for the ledger's lifetime and are never pruned: keys are day-
// or event-scoped and the process is short-lived relative to key cardinality.
type Ledger interface {
	// Seen reports whether key has fired.
	Seen(ctx context.Context, key string) (bool, error)

	// Record stores a firing. inserted is false when the key already existed,
	// in which case the existing entry is left untouched.
	Record(ctx context.Context, f Firing) (inserted bool, err error)
}

// MemoryLedger is the default process-local Ledger.
//
// Thread-safety: safe for concurrent use via internal mutex.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]Firing
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]Firing)}
}

// Seen implements Ledger.
func (l *MemoryLedger) Seen(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	return ok, nil
}

// Record implements Ledger.
func (l *MemoryLedger) Record(ctx context.Context, f Firing) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[f.Key]; ok {
		return false, nil
	}
	l.entries[f.Key] = f
	return true, nil
}

// FiredAt returns when key fired.
func (l *MemoryLedger) FiredAt(key string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.entries[key]
	return f.At, ok
}

// Len returns the number of recorded keys.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
