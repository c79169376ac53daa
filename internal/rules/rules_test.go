package rules

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nudge/internal/advisory"
	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/profile"
	"github.com/roach88/nudge/internal/testutil"
)

type collector struct {
	mu     sync.Mutex
	nudges []engine.Nudge
}

func (c *collector) Display(ctx context.Context, n engine.Nudge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nudges = append(c.nudges, n)
}

func (c *collector) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, n := range c.nudges {
		out = append(out, n.Key)
	}
	return out
}

func (c *collector) all() []engine.Nudge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]engine.Nudge(nil), c.nudges...)
}

// fixture drives an evaluator over a mutable summary.
type fixture struct {
	clk  *testutil.FakeClock
	sink *collector
	ev   *engine.Evaluator

	mu      sync.Mutex
	summary profile.Summary
}

func newFixture(t *testing.T, start time.Time, adv advisory.Service, set Settings, summary profile.Summary) *fixture {
	t.Helper()
	f := &fixture{clk: testutil.NewFakeClock(start), sink: &collector{}, summary: summary}
	src := engine.StateFunc(func(ctx context.Context) (engine.State, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		return engine.State{Now: f.clk.Now(), Location: time.UTC, SubjectID: "s1", Summary: f.summary}, nil
	})
	f.ev = engine.New(src, f.sink, Catalogue(adv, set),
		engine.WithClock(f.clk),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("n")),
	)
	return f
}

func (f *fixture) tickAt(t *testing.T, at time.Time) {
	t.Helper()
	f.clk.Set(at)
	require.NoError(t, f.ev.Tick(context.Background()))
}

func only(name string) Settings {
	set := DefaultSettings()
	for _, n := range Names {
		s := set[n]
		s.Enabled = n == name
		s.Cadence = 0
		set[n] = s
	}
	return set
}

func morningSummary() profile.Summary {
	return profile.Summary{
		Routines: []profile.Routine{{ID: "r1", Name: "Meditation", TimeOfDay: "morning", Active: true}},
	}
}

func TestWindow_Contains(t *testing.T) {
	w := Window{From: 10, To: 12}
	assert.False(t, w.Contains(9))
	assert.True(t, w.Contains(10))
	assert.True(t, w.Contains(11))
	assert.False(t, w.Contains(12))
	assert.Equal(t, "10:00-12:00", w.String())
}

func TestMorningRoutine_WindowEdges(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"one second before", time.Date(2026, 10, 15, 9, 59, 59, 0, time.UTC), false},
		{"window opens", time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC), true},
		{"last second", time.Date(2026, 10, 15, 11, 59, 59, 0, time.UTC), true},
		{"window closed", time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.at, nil, only(MorningRoutine), morningSummary())
			f.tickAt(t, tt.at)
			if tt.want {
				assert.Equal(t, []string{"routine_morning_2026-10-15"}, f.sink.keys())
			} else {
				assert.Empty(t, f.sink.keys())
			}
		})
	}
}

func TestMorningRoutine_OncePerDay(t *testing.T) {
	start := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, start, nil, only(MorningRoutine), morningSummary())

	for at := start; at.Before(start.Add(2 * time.Hour)); at = at.Add(5 * time.Minute) {
		f.tickAt(t, at)
	}
	f.tickAt(t, start.Add(24*time.Hour))

	assert.Equal(t, []string{"routine_morning_2026-10-15", "routine_morning_2026-10-16"}, f.sink.keys())
	n := f.sink.all()[0]
	assert.Equal(t, engine.KindInfo, n.Kind)
	assert.Equal(t, 10*time.Second, n.TTL)
	assert.Contains(t, n.Message, "Meditation")
}

func TestMorningRoutine_CompletedToday(t *testing.T) {
	at := time.Date(2026, 10, 15, 10, 30, 0, 0, time.UTC)
	sum := morningSummary()
	sum.Routines[0].LastCompletedDate = "2026-10-15"
	sum.Routines = append(sum.Routines, profile.Routine{ID: "r2", Name: "Journal", TimeOfDay: "morning", Active: false})

	f := newFixture(t, at, nil, only(MorningRoutine), sum)
	f.tickAt(t, at)
	assert.Empty(t, f.sink.keys())
}

func TestMissingIntention(t *testing.T) {
	at := time.Date(2026, 10, 15, 7, 0, 0, 0, time.UTC)
	f := newFixture(t, at, nil, only(MissingIntention), profile.Summary{DailyIntention: "  "})
	f.tickAt(t, at)
	f.tickAt(t, at.Add(time.Hour))
	f.tickAt(t, time.Date(2026, 10, 15, 11, 0, 0, 0, time.UTC).Add(24*time.Hour))

	require.Equal(t, []string{"intention_missing_2026-10-15"}, f.sink.keys())
	assert.Equal(t, engine.KindGuru, f.sink.all()[0].Kind)

	set := newFixture(t, at, nil, only(MissingIntention), profile.Summary{DailyIntention: "Stay present"})
	set.tickAt(t, at)
	assert.Empty(t, set.sink.keys())
}

func TestEveningGratitude(t *testing.T) {
	at := time.Date(2026, 10, 15, 22, 59, 0, 0, time.UTC)

	f := newFixture(t, at, nil, only(EveningGratitude), profile.Summary{DailyGratitudeDate: "2026-10-14"})
	f.tickAt(t, at)
	assert.Equal(t, []string{"gratitude_evening_2026-10-15"}, f.sink.keys())

	done := newFixture(t, at, nil, only(EveningGratitude), profile.Summary{DailyGratitudeDate: "2026-10-15"})
	done.tickAt(t, at)
	assert.Empty(t, done.sink.keys())

	late := newFixture(t, at, nil, only(EveningGratitude), profile.Summary{})
	late.tickAt(t, time.Date(2026, 10, 15, 23, 0, 0, 0, time.UTC))
	assert.Empty(t, late.sink.keys())
}

func TestChaoticState_KeyedByUpdate(t *testing.T) {
	at := time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC)
	update := time.Date(2026, 10, 15, 13, 45, 0, 0, time.UTC)
	f := newFixture(t, at, nil, only(ChaoticState), profile.Summary{EmotionalState: "chaotic", LastEmotionalUpdate: update})

	f.tickAt(t, at)
	f.tickAt(t, at.Add(5*time.Minute))

	f.mu.Lock()
	f.summary.LastEmotionalUpdate = update.Add(2 * time.Hour)
	f.mu.Unlock()
	f.tickAt(t, at.Add(3*time.Hour))

	assert.Equal(t, []string{
		"chaos_detected_2026-10-15T13:45:00Z",
		"chaos_detected_2026-10-15T15:45:00Z",
	}, f.sink.keys())
	assert.Equal(t, 15*time.Second, f.sink.all()[0].TTL)
}

func TestDailyTransit_RetriesUntilAdvice(t *testing.T) {
	var mu sync.Mutex
	answers := []error{errors.New("unavailable"), nil}
	var triggers []advisory.Trigger
	adv := advisory.ServiceFunc(func(ctx context.Context, st engine.State, trigger advisory.Trigger) (advisory.Advice, error) {
		mu.Lock()
		defer mu.Unlock()
		triggers = append(triggers, trigger)
		if len(answers) == 0 {
			return advisory.Advice{Title: "again", Message: "again"}, nil
		}
		err := answers[0]
		answers = answers[1:]
		if err != nil {
			return advisory.Advice{}, err
		}
		return advisory.Advice{}, nil
	})

	at := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, at, adv, only(DailyTransit), profile.Summary{})
	f.tickAt(t, at)                     // service error
	f.tickAt(t, at.Add(5*time.Minute))  // empty advice
	f.tickAt(t, at.Add(10*time.Minute)) // fires
	f.tickAt(t, at.Add(15*time.Minute)) // already fired today

	require.Equal(t, []string{"transit_alert_2026-10-15"}, f.sink.keys())
	n := f.sink.all()[0]
	assert.Equal(t, "again", n.Title)
	assert.Equal(t, 15*time.Second, n.TTL)
	assert.Len(t, triggers, 3)
	assert.Equal(t, advisory.TriggerDailyTransit, triggers[0])
}

func TestDailyTransit_NoService(t *testing.T) {
	at := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, at, nil, only(DailyTransit), profile.Summary{})
	f.tickAt(t, at)
	assert.Empty(t, f.sink.keys())
}

func TestRelationalCheckin(t *testing.T) {
	adv := advisory.ServiceFunc(func(ctx context.Context, st engine.State, trigger advisory.Trigger) (advisory.Advice, error) {
		assert.Equal(t, advisory.TriggerRelationalCheckin, trigger)
		return advisory.Advice{Title: "Reach out", Message: "Call " + st.Summary.KeyRelationships[0].Name}, nil
	})
	at := time.Date(2026, 10, 15, 17, 59, 0, 0, time.UTC)

	none := newFixture(t, at, adv, only(RelationalCheck), profile.Summary{})
	none.tickAt(t, at)
	assert.Empty(t, none.sink.keys())

	f := newFixture(t, at, adv, only(RelationalCheck), profile.Summary{
		KeyRelationships: []profile.Relationship{{ID: "p1", Name: "Asha"}},
	})
	f.tickAt(t, at.Add(-3*time.Hour)) // 14:59
	f.tickAt(t, at)
	require.Equal(t, []string{"relational_nudge_2026-10-15"}, f.sink.keys())
	assert.Equal(t, "Call Asha", f.sink.all()[0].Message)
}

func TestAnniversary_DoubleFire(t *testing.T) {
	at := time.Date(2026, 10, 31, 9, 0, 0, 0, time.UTC)
	sum := profile.Summary{ActiveEvents: []profile.LifeEvent{
		{ID: "e1", Title: "Moved house", Status: "completed", Date: "2026-10-24"},
		{ID: "e2", Title: "New job", Status: "completed", Date: "2026-10-01"},
		{ID: "e3", Title: "Trip", Status: "planned", Date: "2026-10-24"},
		{ID: "e4", Title: "Undated", Status: "completed"},
		{ID: "e5", Title: "Eight days", Status: "completed", Date: "2026-10-23"},
		{ID: "e6", Title: "Timestamped", Status: "completed", Date: "2026-10-24T09:00:00Z"},
		{ID: "e7", Title: "Malformed", Status: "completed", Date: "last week"},
	}}
	f := newFixture(t, at, nil, only(Anniversary), sum)

	f.tickAt(t, at)
	f.tickAt(t, at.Add(5*time.Minute))

	assert.ElementsMatch(t, []string{"anniversary_e1_7", "anniversary_e2_30", "anniversary_e6_7"}, f.sink.keys())
	for _, n := range f.sink.all() {
		assert.Equal(t, engine.KindInfo, n.Kind)
		assert.Equal(t, 12*time.Second, n.TTL)
	}
}

func TestAnniversary_LocalCalendarDay(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	st := engine.State{Now: time.Date(2026, 10, 30, 20, 0, 0, 0, time.UTC), Location: kolkata}

	days, ok := daysSince("2026-10-24", st)
	require.True(t, ok)
	assert.Equal(t, 7, days, "20:00 UTC is already the 31st in Kolkata")

	days, ok = daysSince("2026-10-23T20:00:00Z", st)
	require.True(t, ok)
	assert.Equal(t, 7, days, "the event instant is already the 24th in Kolkata")

	_, ok = daysSince("not-a-date", st)
	assert.False(t, ok)
}

func TestCatalogue_DisabledRulesOmitted(t *testing.T) {
	set := DefaultSettings()
	s := set[DailyTransit]
	s.Enabled = false
	set[DailyTransit] = s

	var names []string
	for _, r := range Catalogue(nil, set) {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{MorningRoutine, MissingIntention, EveningGratitude, ChaoticState, RelationalCheck, Anniversary}, names)
}

// keyPrefixes lists each rule's key namespace.
var keyPrefixes = map[string]string{
	MorningRoutine:   "routine_morning_",
	MissingIntention: "intention_missing_",
	EveningGratitude: "gratitude_evening_",
	ChaoticState:     "chaos_detected_",
	DailyTransit:     "transit_alert_",
	RelationalCheck:  "relational_nudge_",
	Anniversary:      "anniversary_",
	Transition:       "dasha_",
}

func TestCatalogue_KeyNamespacesDisjoint(t *testing.T) {
	for a, pa := range keyPrefixes {
		for b, pb := range keyPrefixes {
			if a != b {
				assert.False(t, strings.HasPrefix(pa, pb), "%s namespace %q shadows %s namespace %q", b, pb, a, pa)
			}
		}
	}

	set := DefaultSettings()
	for name, s := range set {
		s.Window = AllDay
		set[name] = s
	}
	adv := advisory.ServiceFunc(func(context.Context, engine.State, advisory.Trigger) (advisory.Advice, error) {
		return advisory.Advice{Title: "t", Message: "m"}, nil
	})
	st := engine.State{
		Now:      time.Date(2026, 10, 31, 10, 0, 0, 0, time.UTC),
		Location: time.UTC,
		Summary: profile.Summary{
			EmotionalState:      "chaotic",
			LastEmotionalUpdate: time.Date(2026, 10, 31, 9, 0, 0, 0, time.UTC),
			Routines:            morningSummary().Routines,
			KeyRelationships:    []profile.Relationship{{ID: "p1", Name: "Asha"}},
			ActiveEvents:        []profile.LifeEvent{{ID: "e1", Status: "completed", Date: "2026-10-24"}},
		},
	}

	rules := Catalogue(adv, set)
	require.Len(t, rules, 7)
	for _, r := range rules {
		cands := r.Candidates(st)
		require.NotEmpty(t, cands, r.Name())
		for _, c := range cands {
			assert.True(t, strings.HasPrefix(c.Key, keyPrefixes[r.Name()]), "%s produced key %q", r.Name(), c.Key)
		}
	}
}
