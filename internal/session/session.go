// Package session wires one subject's engine: state source, evaluator,
// poller, bus subscriptions and the two schedulers.
//
// Everything a session owns is torn down by Close. Sessions share nothing
// mutable with each other.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/nudge/internal/advisory"
	"github.com/roach88/nudge/internal/bus"
	"github.com/roach88/nudge/internal/chart"
	"github.com/roach88/nudge/internal/clock"
	"github.com/roach88/nudge/internal/config"
	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/poller"
	"github.com/roach88/nudge/internal/profile"
	"github.com/roach88/nudge/internal/rules"
	"github.com/roach88/nudge/internal/schedule"
	"github.com/roach88/nudge/internal/timeline"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Profiles profile.Reader
	Fetcher  chart.Fetcher
	Advisory advisory.Service

	// Sink receives nudges for subjectID.
	Sink func(subjectID string) engine.Sink

	// Ledger returns the firing ledger for subjectID. Nil means an
	// in-memory ledger per session.
	Ledger func(subjectID string) engine.Ledger

	// Optional; default to the system clock and UUIDv7 ids.
	Clock clock.Clock
	IDs   engine.IDGenerator

	// DrainTimeout bounds how long Close waits for scheduled runs still in
	// flight. Defaults to DefaultDrainTimeout.
	DrainTimeout time.Duration
}

// DefaultDrainTimeout is the Close drain bound when Deps leaves it unset.
const DefaultDrainTimeout = 5 * time.Second

// Session is the engine for one subject.
type Session struct {
	subjectID string
	cfg       config.Config
	deps      Deps

	bus       *bus.Bus
	evaluator *engine.Evaluator
	poller    *poller.Poller
	unsubs    []func()

	mu         sync.Mutex
	schedulers []*schedule.Scheduler
	closed     bool
}

// New builds a session without starting it.
func New(subjectID string, cfg config.Config, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.IDs == nil {
		deps.IDs = engine.UUIDv7Generator{}
	}
	if deps.Fetcher == nil {
		deps.Fetcher = chart.Static(nil)
	}
	if deps.DrainTimeout <= 0 {
		deps.DrainTimeout = DefaultDrainTimeout
	}

	s := &Session{subjectID: subjectID, cfg: cfg, deps: deps, bus: bus.New()}

	var sink engine.Sink = engine.SinkFunc(func(context.Context, engine.Nudge) {})
	if deps.Sink != nil {
		sink = deps.Sink(subjectID)
	}
	opts := []engine.Option{
		engine.WithClock(deps.Clock),
		engine.WithIDGenerator(deps.IDs),
	}
	if deps.Ledger != nil {
		opts = append(opts, engine.WithLedger(deps.Ledger(subjectID)))
	}
	s.evaluator = engine.New(engine.StateFunc(s.buildState), sink, rules.Catalogue(deps.Advisory, cfg.Rules), opts...)

	s.poller = poller.New(deps.Fetcher, s.bus,
		poller.WithClock(deps.Clock),
		poller.WithCooldown(cfg.PollCooldown),
		poller.WithHorizon(cfg.Horizon),
		poller.WithScanner(timeline.Scanner{Policy: cfg.ScannerPolicy}),
	)
	s.unsubs = rules.Subscribe(s.bus, s.evaluator, cfg.Location, cfg.Rules)
	return s
}

// SubjectID returns the subject the session serves.
func (s *Session) SubjectID() string { return s.subjectID }

// Bus returns the session's event bus, e.g. to publish growth events.
func (s *Session) Bus() *bus.Bus { return s.bus }

// Evaluator returns the session's evaluator.
func (s *Session) Evaluator() *engine.Evaluator { return s.evaluator }

func (s *Session) buildState(ctx context.Context) (engine.State, error) {
	summary, err := s.deps.Profiles.Summary(ctx, s.subjectID)
	if err != nil {
		return engine.State{}, fmt.Errorf("summary for %s: %w", s.subjectID, err)
	}
	return engine.State{
		Now:       s.deps.Clock.Now(),
		Location:  s.cfg.Location,
		SubjectID: s.subjectID,
		Summary:   summary,
		Timeline:  s.poller.Latest(),
	}, nil
}

// Poll runs one poller tick. Profile read failures are logged.
func (s *Session) Poll(ctx context.Context) bool {
	prof, err := s.deps.Profiles.Profile(ctx, s.subjectID)
	if err != nil {
		slog.Warn("profile unavailable, skipping poll", "subject", s.subjectID, "error", err)
		return false
	}
	return s.poller.Tick(ctx, prof)
}

// Evaluate runs one evaluator tick.
func (s *Session) Evaluate(ctx context.Context) error {
	return s.evaluator.Tick(ctx)
}

// PublishGrowth announces contradictions found by an external analysis.
func (s *Session) PublishGrowth(ctx context.Context, contradictions []string) {
	s.bus.Publish(ctx, bus.TopicGrowthDetected, bus.GrowthDetected{Contradictions: contradictions})
}

// Start launches the poll and evaluate schedulers. Each runs immediately.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.ErrClosed
	}
	if len(s.schedulers) > 0 {
		return nil
	}
	s.schedulers = append(s.schedulers,
		schedule.Start(ctx, "poller:"+s.subjectID, s.cfg.PollInterval, func(ctx context.Context) {
			s.Poll(ctx)
		}),
		schedule.Start(ctx, "evaluator:"+s.subjectID, s.cfg.EvalInterval, func(ctx context.Context) {
			_ = s.Evaluate(ctx)
		}),
	)
	slog.Info("session started", "subject", s.subjectID, "rules", s.evaluator.Rules())
	return nil
}

// Close stops the schedulers, detaches bus handlers and closes the
// evaluator so builds still in flight are discarded. It then waits, up to
// Deps.DrainTimeout, for in-flight runs to return, so callers may release
// shared resources such as the store afterwards. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	schedulers := s.schedulers
	s.schedulers = nil
	s.mu.Unlock()

	for _, sch := range schedulers {
		sch.Stop()
	}
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.evaluator.Close()

	deadline := time.Now().Add(s.deps.DrainTimeout)
	for _, sch := range schedulers {
		if !sch.WaitTimeout(max(time.Until(deadline), 0)) {
			slog.Warn("session closed with runs in flight", "subject", s.subjectID)
			break
		}
	}
	slog.Info("session closed", "subject", s.subjectID)
}
