package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/nudge/internal/clock"
)

// cadenceJitter absorbs scheduler drift so a rule with a 5m cadence is not
// skipped by a tick that lands a few milliseconds early.
const cadenceJitter = time.Second

// Evaluator runs the rule table against ambient state.
//
// Thread-safety model:
//   - Tick(), Offer(), Emit(): safe from any goroutine
//   - The ledger, in-flight set and cadence bookkeeping are owned by the
//     evaluator; no other component mutates them
//
// INVARIANTS:
//   - For a fixed key, at most one Nudge is displayed per ledger lifetime
//   - A key is recorded only after its Nudge was built
//   - rules slice order NEVER changes after construction
type Evaluator struct {
	source StateSource
	sink   Sink
	rules  []Rule

	ledger Ledger
	clock  clock.Clock
	seq    *clock.Sequence
	ids    IDGenerator

	mu       sync.Mutex
	lastRun  map[string]time.Time
	running  map[string]bool
	inflight map[string]bool
	closed   bool

	// gate is held for reading across the final closed check and display,
	// and for writing by Close.
	gate sync.RWMutex
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLedger replaces the default MemoryLedger.
func WithLedger(l Ledger) Option {
	return func(e *Evaluator) { e.ledger = l }
}

// WithClock sets the wall clock used to stamp nudges and ledger entries.
func WithClock(c clock.Clock) Option {
	return func(e *Evaluator) { e.clock = c }
}

// WithSequence shares a sequence counter, e.g. with the audit store.
func WithSequence(s *clock.Sequence) Option {
	return func(e *Evaluator) { e.seq = s }
}

// WithIDGenerator sets the nudge ID generator (default UUIDv7Generator).
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Evaluator) { e.ids = g }
}

// New creates an Evaluator.
//
// The rules slice is copied to prevent external mutation. Rule names must be
// unique; New panics otherwise, since duplicate names break cadence tracking
// and make key namespaces ambiguous.
func New(source StateSource, sink Sink, rules []Rule, opts ...Option) *Evaluator {
	rulesCopy := make([]Rule, len(rules))
	copy(rulesCopy, rules)

	names := make(map[string]bool, len(rulesCopy))
	for _, r := range rulesCopy {
		if names[r.Name()] {
			panic(fmt.Sprintf("engine: duplicate rule name %q", r.Name()))
		}
		names[r.Name()] = true
	}

	e := &Evaluator{
		source:   source,
		sink:     sink,
		rules:    rulesCopy,
		ledger:   NewMemoryLedger(),
		clock:    clock.System{},
		seq:      clock.NewSequence(),
		ids:      UUIDv7Generator{},
		lastRun:  make(map[string]time.Time),
		running:  make(map[string]bool),
		inflight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns rule names in registration order.
func (e *Evaluator) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// Now returns the evaluator's wall-clock time.
func (e *Evaluator) Now() time.Time {
	return e.clock.Now()
}

// Ledger returns the firing ledger. Exposed for inspection only.
func (e *Evaluator) Ledger() Ledger {
	return e.ledger
}

// Close stops the evaluator. Later ticks return ErrClosed, and builds still
// in flight are discarded instead of displayed. Once Close returns no nudge
// reaches the sink. Close waits for a display already in progress, so a sink
// must not call it.
func (e *Evaluator) Close() {
	e.gate.Lock()
	defer e.gate.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

func (e *Evaluator) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Tick evaluates every due rule once.
//
// Returns a RuleError with ErrCodeStateUnavailable if State could not be
// built; rule-level failures are logged and never returned.
func (e *Evaluator) Tick(ctx context.Context) error {
	if e.isClosed() {
		return ErrClosed
	}

	st, err := e.source.Build(ctx)
	if err != nil {
		rerr := &RuleError{Code: ErrCodeStateUnavailable, Err: err}
		slog.Warn("ambient state unavailable, skipping tick", "error", rerr)
		return rerr
	}

	var wg sync.WaitGroup
	for _, r := range e.rules {
		if !e.claimRule(r, st.Now) {
			continue
		}
		wg.Add(1)
		go func(r Rule) {
			defer wg.Done()
			defer e.releaseRule(r.Name())
			e.runRule(ctx, r, st)
		}(r)
	}
	wg.Wait()
	return nil
}

// claimRule marks r as running if its cadence elapsed and it is idle.
func (e *Evaluator) claimRule(r Rule, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := r.Name()
	if e.running[name] {
		slog.Debug("rule still running, skipping", "rule", name)
		return false
	}
	if last, ok := e.lastRun[name]; ok && r.Cadence() > 0 {
		if now.Sub(last) < r.Cadence()-cadenceJitter {
			return false
		}
	}
	e.running[name] = true
	e.lastRun[name] = now
	return true
}

func (e *Evaluator) releaseRule(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, name)
}

func (e *Evaluator) runRule(ctx context.Context, r Rule, st State) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("rule panicked", "error", &RuleError{
				Code: ErrCodeRulePanic,
				Rule: r.Name(),
				Err:  fmt.Errorf("%v", p),
			})
		}
	}()

	for _, c := range r.Candidates(st) {
		e.offer(ctx, r.Name(), c)
	}
}

// Offer fires an event-driven candidate under the same de-dup discipline as
// ticked rules. Returns true if a nudge was displayed.
func (e *Evaluator) Offer(ctx context.Context, rule string, c Candidate) bool {
	if e.isClosed() {
		return false
	}
	return e.offer(ctx, rule, c)
}

func (e *Evaluator) offer(ctx context.Context, rule string, c Candidate) bool {
	if c.Key == "" {
		slog.Error("candidate without dedup key", "rule", rule)
		return false
	}
	if !e.reserve(c.Key) {
		slog.Debug("key in flight", "rule", rule, "key", c.Key)
		return false
	}
	defer e.unreserve(c.Key)

	seen, err := e.ledger.Seen(ctx, c.Key)
	if err != nil {
		slog.Error("ledger read failed", "error", &RuleError{Code: ErrCodeLedgerFailed, Rule: rule, Key: c.Key, Err: err})
		return false
	}
	if seen {
		return false
	}

	n, err := c.Build(ctx)
	if err != nil {
		if errors.Is(err, ErrNoNudge) {
			slog.Debug("rule produced no nudge", "rule", rule, "key", c.Key)
		} else {
			slog.Warn("nudge build failed", "error", &RuleError{Code: ErrCodeBuildFailed, Rule: rule, Key: c.Key, Err: err})
		}
		return false
	}

	if e.isClosed() || ctx.Err() != nil {
		slog.Debug("discarding nudge built after shutdown", "rule", rule, "key", c.Key)
		return false
	}

	n = e.stamp(n, rule, c.Key)
	inserted, err := e.ledger.Record(ctx, Firing{Key: c.Key, Rule: rule, At: n.At, Seq: n.Seq})
	if err != nil {
		slog.Error("ledger write failed", "error", &RuleError{Code: ErrCodeLedgerFailed, Rule: rule, Key: c.Key, Err: err})
		return false
	}
	if !inserted {
		return false
	}

	// Record may block on disk; Close can land meanwhile.
	if !e.display(ctx, n) {
		slog.Debug("discarding nudge recorded during shutdown", "rule", rule, "key", c.Key)
		return false
	}
	slog.Info("nudge fired", "rule", rule, "key", c.Key, "id", n.ID)
	return true
}

// Emit displays n without consulting the ledger. Used for rules where every
// event is a distinct occurrence.
func (e *Evaluator) Emit(ctx context.Context, rule string, n Nudge) {
	if e.isClosed() {
		return
	}
	n = e.stamp(n, rule, "")
	if e.display(ctx, n) {
		slog.Info("nudge emitted", "rule", rule, "id", n.ID)
	}
}

func (e *Evaluator) stamp(n Nudge, rule, key string) Nudge {
	n.ID = e.ids.Generate()
	n.Rule = rule
	n.Key = key
	n.At = e.clock.Now()
	n.Seq = e.seq.Next()
	return n
}

func (e *Evaluator) reserve(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[key] {
		return false
	}
	e.inflight[key] = true
	return true
}

func (e *Evaluator) unreserve(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, key)
}

// display hands n to the sink unless the evaluator is closed. Sink failures
// stay with the sink. Returns false if n was discarded.
func (e *Evaluator) display(ctx context.Context, n Nudge) (shown bool) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	if e.isClosed() {
		return false
	}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("sink panicked", "id", n.ID, "rule", n.Rule, "panic", p)
		}
	}()
	shown = true
	e.sink.Display(ctx, n)
	return shown
}
