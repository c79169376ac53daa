package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nudge/internal/testutil"
)

// recordingSink collects displayed nudges.
type recordingSink struct {
	mu     sync.Mutex
	nudges []Nudge
}

func (s *recordingSink) Display(ctx context.Context, n Nudge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nudges = append(s.nudges, n)
}

func (s *recordingSink) all() []Nudge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Nudge, len(s.nudges))
	copy(out, s.nudges)
	return out
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nudges)
}

var tick0 = time.Date(2026, time.October, 15, 10, 0, 0, 0, time.UTC)

func fixedState(clk *testutil.FakeClock) StateSource {
	return StateFunc(func(ctx context.Context) (State, error) {
		return State{Now: clk.Now(), Location: time.UTC, SubjectID: "s1"}, nil
	})
}

func alwaysRule(name, key string) *Simple {
	return &Simple{
		ID:        name,
		Predicate: func(State) bool { return true },
		Key:       func(State) string { return key },
		Action: func(ctx context.Context, s State) (Nudge, error) {
			return Nudge{Kind: KindInfo, Title: name, Message: "m"}, nil
		},
	}
}

func newTestEvaluator(t *testing.T, rules ...Rule) (*Evaluator, *recordingSink, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock(tick0)
	sink := &recordingSink{}
	ev := New(fixedState(clk), sink, rules,
		WithClock(clk),
		WithIDGenerator(testutil.NewSequentialIDGenerator("n")),
	)
	return ev, sink, clk
}

func TestEvaluator_AtMostOncePerKey(t *testing.T) {
	ev, sink, clk := newTestEvaluator(t, alwaysRule("r", "same-key"))
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, ev.Tick(ctx))
		clk.Advance(5 * time.Minute)
	}

	nudges := sink.all()
	require.Len(t, nudges, 1)
	assert.Equal(t, "same-key", nudges[0].Key)
	assert.Equal(t, "r", nudges[0].Rule)
	assert.Equal(t, "n-1", nudges[0].ID)
	assert.Equal(t, int64(1), nudges[0].Seq)
	assert.Equal(t, tick0, nudges[0].At)
}

func TestEvaluator_NewKeyFiresAgain(t *testing.T) {
	rule := &Simple{
		ID:        "daily",
		Predicate: func(State) bool { return true },
		Key:       func(s State) string { return "daily_" + s.Today() },
		Action: func(ctx context.Context, s State) (Nudge, error) {
			return Nudge{Kind: KindInfo, Title: "t"}, nil
		},
	}
	ev, sink, clk := newTestEvaluator(t, rule)
	ctx := context.Background()

	require.NoError(t, ev.Tick(ctx))
	clk.Advance(time.Hour)
	require.NoError(t, ev.Tick(ctx))
	clk.Advance(24 * time.Hour)
	require.NoError(t, ev.Tick(ctx))

	nudges := sink.all()
	require.Len(t, nudges, 2)
	assert.Equal(t, "daily_2026-10-15", nudges[0].Key)
	assert.Equal(t, "daily_2026-10-16", nudges[1].Key)
}

func TestEvaluator_FailedBuildStaysEligible(t *testing.T) {
	var calls atomic.Int32
	rule := &Simple{
		ID:        "flaky",
		Predicate: func(State) bool { return true },
		Key:       func(State) string { return "flaky_key" },
		Action: func(ctx context.Context, s State) (Nudge, error) {
			switch calls.Add(1) {
			case 1:
				return Nudge{}, errors.New("service down")
			case 2:
				return Nudge{}, ErrNoNudge
			default:
				return Nudge{Kind: KindGuru, Title: "ok"}, nil
			}
		},
	}
	ev, sink, clk := newTestEvaluator(t, rule)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, ev.Tick(ctx))
		clk.Advance(5 * time.Minute)
	}

	assert.Equal(t, int32(3), calls.Load(), "action retried until it succeeds, then never again")
	assert.Equal(t, 1, sink.len())
}

func TestEvaluator_Cadence(t *testing.T) {
	var evaluated atomic.Int32
	rule := &Fanout{
		ID:    "hourly",
		Every: time.Hour,
		Expand: func(s State) []Candidate {
			evaluated.Add(1)
			return nil
		},
	}
	ev, _, clk := newTestEvaluator(t, rule)
	ctx := context.Background()

	// 13 ticks five minutes apart span exactly one hour.
	for i := 0; i < 13; i++ {
		require.NoError(t, ev.Tick(ctx))
		clk.Advance(5 * time.Minute)
	}

	assert.Equal(t, int32(2), evaluated.Load())
}

func TestEvaluator_SlowRuleDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	var slowCandidates atomic.Int32
	slow := &Simple{
		ID:        "slow",
		Predicate: func(State) bool { slowCandidates.Add(1); return true },
		Key:       func(State) string { return "slow_key" },
		Action: func(ctx context.Context, s State) (Nudge, error) {
			<-release
			return Nudge{Title: "slow"}, nil
		},
	}
	fast := alwaysRule("fast", "fast_key")

	ev, sink, clk := newTestEvaluator(t, slow, fast)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- ev.Tick(ctx) }()

	require.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "fast", sink.all()[0].Rule)

	// A second tick while the slow rule is still in flight skips it.
	clk.Advance(5 * time.Minute)
	require.NoError(t, ev.Tick(ctx))
	assert.Equal(t, int32(1), slowCandidates.Load())

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("first tick did not finish")
	}
	assert.Equal(t, 2, sink.len())
}

func TestEvaluator_PanickingRuleIsIsolated(t *testing.T) {
	bad := &Fanout{ID: "bad", Expand: func(State) []Candidate { panic("bad rule") }}
	ev, sink, _ := newTestEvaluator(t, bad, alwaysRule("good", "good_key"))

	require.NotPanics(t, func() { require.NoError(t, ev.Tick(context.Background())) })
	assert.Equal(t, 1, sink.len())
}

func TestEvaluator_PanickingSinkIsIsolated(t *testing.T) {
	clk := testutil.NewFakeClock(tick0)
	sink := SinkFunc(func(ctx context.Context, n Nudge) { panic("toast failed") })
	ev := New(fixedState(clk), sink, []Rule{alwaysRule("r", "k")}, WithClock(clk))

	require.NotPanics(t, func() { require.NoError(t, ev.Tick(context.Background())) })

	seen, err := ev.Ledger().Seen(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, seen, "display failures do not un-fire the key")
}

func TestEvaluator_StateUnavailable(t *testing.T) {
	sink := &recordingSink{}
	src := StateFunc(func(ctx context.Context) (State, error) {
		return State{}, errors.New("profile store down")
	})
	ev := New(src, sink, []Rule{alwaysRule("r", "k")})

	err := ev.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, IsStateError(err))
	assert.Equal(t, 0, sink.len())
}

func TestEvaluator_OfferDedups(t *testing.T) {
	ev, sink, _ := newTestEvaluator(t)
	ctx := context.Background()

	c := Candidate{Key: "dasha_primary_Saturn_7_2026-10-15", Build: func(ctx context.Context) (Nudge, error) {
		return Nudge{Kind: KindGuru, Title: "Saturn"}, nil
	}}

	var wg sync.WaitGroup
	var fired atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ev.Offer(ctx, "transition", c) {
				fired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 1, sink.len())
}

func TestEvaluator_OfferRequiresKey(t *testing.T) {
	ev, sink, _ := newTestEvaluator(t)
	ok := ev.Offer(context.Background(), "r", Candidate{Build: func(ctx context.Context) (Nudge, error) {
		return Nudge{}, nil
	}})
	assert.False(t, ok)
	assert.Equal(t, 0, sink.len())
}

func TestEvaluator_EmitBypassesLedger(t *testing.T) {
	ev, sink, _ := newTestEvaluator(t)
	ctx := context.Background()

	ev.Emit(ctx, "growth", Nudge{Kind: KindCelebration, Title: "Growth"})
	ev.Emit(ctx, "growth", Nudge{Kind: KindCelebration, Title: "Growth"})

	nudges := sink.all()
	require.Len(t, nudges, 2)
	assert.Empty(t, nudges[0].Key)
	assert.Less(t, nudges[0].Seq, nudges[1].Seq)
}

func TestEvaluator_Close(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := &Simple{
		ID:        "slow",
		Predicate: func(State) bool { return true },
		Key:       func(State) string { return "slow_key" },
		Action: func(ctx context.Context, s State) (Nudge, error) {
			close(entered)
			<-release
			return Nudge{Title: "late"}, nil
		},
	}
	ev, sink, _ := newTestEvaluator(t, slow)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- ev.Tick(ctx) }()

	<-entered
	ev.Close()
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 0, sink.len(), "builds finishing after Close are discarded")
	assert.ErrorIs(t, ev.Tick(ctx), ErrClosed)
	assert.False(t, ev.Offer(ctx, "x", Candidate{Key: "k"}))
}

// blockingLedger holds Record until release is closed.
type blockingLedger struct {
	*MemoryLedger
	entered chan struct{}
	release chan struct{}
}

func (l *blockingLedger) Record(ctx context.Context, f Firing) (bool, error) {
	close(l.entered)
	<-l.release
	return l.MemoryLedger.Record(ctx, f)
}

func TestEvaluator_CloseDuringRecordDiscards(t *testing.T) {
	clk := testutil.NewFakeClock(tick0)
	sink := &recordingSink{}
	ledger := &blockingLedger{
		MemoryLedger: NewMemoryLedger(),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	ev := New(fixedState(clk), sink, []Rule{alwaysRule("r", "k")}, WithClock(clk), WithLedger(ledger))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- ev.Tick(ctx) }()

	<-ledger.entered
	ev.Close()
	close(ledger.release)
	require.NoError(t, <-done)

	assert.Equal(t, 0, sink.len(), "nothing reaches the sink after Close returns")

	ev.Emit(ctx, "growth", Nudge{Kind: KindCelebration, Title: "Growth"})
	assert.Equal(t, 0, sink.len())
}

func TestNew_DuplicateRuleNamesPanic(t *testing.T) {
	assert.Panics(t, func() {
		New(StateFunc(nil), &recordingSink{}, []Rule{alwaysRule("r", "a"), alwaysRule("r", "b")})
	})
}

func TestEvaluator_Rules(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, alwaysRule("b", "1"), alwaysRule("a", "2"))
	assert.Equal(t, []string{"b", "a"}, ev.Rules())
}

func TestState_LocalDay(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	s := State{Now: time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC), Location: kolkata}

	assert.Equal(t, "2026-10-16", s.Today())
	assert.Equal(t, 1, s.Hour())
}
