package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/nudge/internal/advisory"
	"github.com/roach88/nudge/internal/chart"
	"github.com/roach88/nudge/internal/config"
	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/profile"
	"github.com/roach88/nudge/internal/session"
	"github.com/roach88/nudge/internal/sink"
	"github.com/roach88/nudge/internal/testutil"
	"github.com/roach88/nudge/internal/timeline"
)

// Run executes a scenario against a fresh session and checks its
// assertions.
//
// The session is never started: the harness calls Poll and Evaluate
// itself, so scheduling is driven entirely by the scenario's steps. Every
// run gets its own in-memory ledger, clock and ID sequence.
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := scenarioConfig(scenario)
	if err != nil {
		return nil, err
	}

	clk := testutil.NewFakeClock(scenario.Start)
	profiles := profile.NewStatic(scenario.Subject)
	rec := &sink.Recorder{}

	sess := session.New(scenario.Subject.SubjectID, cfg, session.Deps{
		Profiles: profiles,
		Fetcher:  chart.Static(scenario.Timeline),
		Advisory: cannedAdvisory(scenario.Advisory),
		Sink:     func(string) engine.Sink { return rec },
		Clock:    clk,
		IDs:      testutil.NewSequentialIDGenerator("nudge"),
	})
	defer sess.Close()

	ctx := context.Background()
	for _, step := range scenario.Steps {
		repeat := step.Repeat
		if repeat == 0 {
			repeat = 1
		}
		for i := 0; i < repeat; i++ {
			if err := runStep(ctx, sess, clk, profiles, scenario.Subject.Profile, step); err != nil {
				return nil, err
			}
		}
	}

	result := NewResult()
	result.Trace = traceFromNudges(rec.Nudges())
	for i, a := range scenario.Assertions {
		if err := checkAssertion(a, result.Trace); err != nil {
			result.AddError(fmt.Errorf("assertion %d: %w", i, err))
		}
	}
	return result, nil
}

func runStep(ctx context.Context, sess *session.Session, clk *testutil.FakeClock, profiles *profile.Static, prof profile.Profile, step Step) error {
	switch {
	case step.At != nil:
		clk.Set(*step.At)
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		clk.Advance(d)
	}
	if step.Summary != nil {
		profiles.Put(profile.Subject{Profile: prof, Summary: *step.Summary})
	}
	if step.Poll {
		sess.Poll(ctx)
	}
	if step.Evaluate {
		if err := sess.Evaluate(ctx); err != nil {
			return fmt.Errorf("evaluate at %s: %w", clk.Now().Format(time.RFC3339), err)
		}
	}
	if len(step.Growth) > 0 {
		sess.PublishGrowth(ctx, step.Growth)
	}
	return nil
}

func scenarioConfig(s *Scenario) (config.Config, error) {
	cfg := config.Default()
	cfg.Location = time.UTC
	if s.Timezone != "" {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return config.Config{}, fmt.Errorf("timezone: %w", err)
		}
		cfg.Location = loc
	}
	policy, err := timeline.ParsePolicy(s.ScannerPolicy)
	if err != nil {
		return config.Config{}, err
	}
	cfg.ScannerPolicy = policy
	return cfg, nil
}

func cannedAdvisory(answers map[string]Advice) advisory.Service {
	return advisory.ServiceFunc(func(ctx context.Context, st engine.State, trigger advisory.Trigger) (advisory.Advice, error) {
		a := answers[string(trigger)]
		return advisory.Advice{Title: a.Title, Message: a.Message}, nil
	})
}
