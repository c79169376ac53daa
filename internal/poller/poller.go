// Package poller periodically fetches a subject's period timeline and
// announces the next boundary on the bus.
package poller

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/roach88/nudge/internal/bus"
	"github.com/roach88/nudge/internal/chart"
	"github.com/roach88/nudge/internal/clock"
	"github.com/roach88/nudge/internal/profile"
	"github.com/roach88/nudge/internal/timeline"
)

const (
	// DefaultCooldown is the minimum gap between chart fetches.
	DefaultCooldown = time.Hour
	// DefaultHorizon is the look-ahead window.
	DefaultHorizon = 35 * 24 * time.Hour
)

// Poller is owned by one session. Tick is safe to call concurrently; calls
// inside the cooldown return immediately.
type Poller struct {
	fetcher  chart.Fetcher
	bus      *bus.Bus
	clock    clock.Clock
	scanner  timeline.Scanner
	cooldown time.Duration
	horizon  time.Duration

	mu       sync.Mutex
	lastPoll time.Time
	latest   []timeline.Period
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the clock (default clock.System).
func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithCooldown sets the minimum gap between fetches.
func WithCooldown(d time.Duration) Option {
	return func(p *Poller) { p.cooldown = d }
}

// WithHorizon sets the look-ahead window.
func WithHorizon(d time.Duration) Option {
	return func(p *Poller) { p.horizon = d }
}

// WithScanner sets the boundary scanner, e.g. to select PolicyEarliest.
func WithScanner(s timeline.Scanner) Option {
	return func(p *Poller) { p.scanner = s }
}

// New creates a Poller that publishes to b.
func New(f chart.Fetcher, b *bus.Bus, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  f,
		bus:      b,
		clock:    clock.System{},
		cooldown: DefaultCooldown,
		horizon:  DefaultHorizon,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tick fetches and scans the timeline for prof unless the cooldown has not
// elapsed. It reports whether a transition was published.
//
// The last poll time is recorded before fetching, so a failing chart service
// is retried only after the cooldown.
func (p *Poller) Tick(ctx context.Context, prof profile.Profile) bool {
	if !prof.HasBirthTime() {
		slog.Debug("poller disabled: birth date or time missing", "subject", prof.SubjectID)
		return false
	}

	now := p.clock.Now()
	if !p.claim(now) {
		return false
	}

	periods, err := p.fetcher.Periods(ctx, chart.BirthDataFrom(prof))
	if err != nil {
		slog.Warn("chart fetch failed, treating timeline as empty", "subject", prof.SubjectID, "error", err)
		periods = nil
	}
	p.mu.Lock()
	p.latest = periods
	p.mu.Unlock()

	t, ok := p.scanner.Scan(periods, now, now.Add(p.horizon))
	if !ok {
		slog.Debug("no boundary inside horizon", "subject", prof.SubjectID, "periods", len(periods))
		return false
	}

	ev := bus.TransitionApproaching{
		Label:         t.Label,
		BoundaryTime:  t.BoundaryTime,
		Depth:         t.Depth,
		DaysRemaining: DaysUntil(now, t.BoundaryTime),
	}
	slog.Info("period transition approaching",
		"subject", prof.SubjectID,
		"label", ev.Label,
		"depth", ev.Depth,
		"days", ev.DaysRemaining,
	)
	p.bus.Publish(ctx, bus.TopicTransitionApproaching, ev)
	return true
}

func (p *Poller) claim(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.lastPoll.IsZero() && now.Sub(p.lastPoll) < p.cooldown {
		return false
	}
	p.lastPoll = now
	return true
}

// Latest returns the most recently fetched timeline, or nil.
func (p *Poller) Latest() []timeline.Period {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// LastPoll returns the time of the last attempted fetch.
func (p *Poller) LastPoll() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPoll
}

// DaysUntil rounds the gap up to whole days.
func DaysUntil(now, boundary time.Time) int {
	return int(math.Ceil(boundary.Sub(now).Hours() / 24))
}
