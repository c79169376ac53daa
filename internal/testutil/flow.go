package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator generates "prefix-1", "prefix-2", ... nudge IDs.
//
// This enables deterministic test execution and golden snapshot comparison.
// The same scenario with a fresh SequentialIDGenerator produces byte-identical
// nudge traces.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDGenerator creates a generator. An empty prefix means "nudge".
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "nudge"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next ID.
//
// Implements engine.IDGenerator interface.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
