package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/nudge/internal/bus"
	"github.com/roach88/nudge/internal/engine"
)

// transitionDays are the day counts that announce a period change.
var transitionDays = map[int]bool{30: true, 7: true, 0: true}

// Subscribe attaches the event-driven rules to b. Nudges go through ev so
// they share its ledger and sink. The returned functions unsubscribe.
func Subscribe(b *bus.Bus, ev *engine.Evaluator, loc *time.Location, set Settings) []func() {
	if loc == nil {
		loc = time.UTC
	}
	var unsubs []func()
	if s := set.Get(Transition); s.Enabled {
		unsubs = append(unsubs, b.Subscribe(bus.TopicTransitionApproaching, TransitionHandler(ev, loc, s.Window)))
	}
	if s := set.Get(Growth); s.Enabled {
		unsubs = append(unsubs, b.Subscribe(bus.TopicGrowthDetected, GrowthHandler(ev, loc, s.Window)))
	}
	return unsubs
}

// TransitionHandler announces an approaching period boundary 30 and 7 days
// ahead and on the day itself. Other day counts are ignored.
func TransitionHandler(ev *engine.Evaluator, loc *time.Location, w Window) bus.Handler {
	return func(ctx context.Context, payload any) error {
		t, err := asTransition(payload)
		if err != nil {
			return err
		}
		if !transitionDays[t.DaysRemaining] {
			return nil
		}
		now := ev.Now().In(loc)
		if !w.Contains(now.Hour()) {
			return nil
		}
		key := fmt.Sprintf("dasha_%s_%s_%d_%s", t.Depth, t.Label, t.DaysRemaining, now.Format(engine.DateLayout))
		ev.Offer(ctx, Transition, engine.Candidate{
			Key: key,
			Build: func(context.Context) (engine.Nudge, error) {
				return engine.Nudge{
					Kind:    engine.KindGuru,
					Title:   transitionTitle(t),
					Message: transitionMessage(t),
					TTL:     15 * time.Second,
				}, nil
			},
		})
		return nil
	}
}

func transitionTitle(t bus.TransitionApproaching) string {
	if t.DaysRemaining == 0 {
		return fmt.Sprintf("%s period begins", t.Label)
	}
	return fmt.Sprintf("%s period ends in %d days", t.Label, t.DaysRemaining)
}

func transitionMessage(t bus.TransitionApproaching) string {
	if t.DaysRemaining == 0 {
		return fmt.Sprintf("Your %s %s period changes today. Notice what is closing and what is opening.", t.Depth, t.Label)
	}
	return fmt.Sprintf("Your %s %s period closes on %s. Use the remaining days to complete what it started.",
		t.Depth, t.Label, t.BoundaryTime.Format(engine.DateLayout))
}

// GrowthHandler celebrates the first reported contradiction. Every event is
// distinct, so nothing is recorded in the ledger.
func GrowthHandler(ev *engine.Evaluator, loc *time.Location, w Window) bus.Handler {
	return func(ctx context.Context, payload any) error {
		g, err := asGrowth(payload)
		if err != nil {
			return err
		}
		if len(g.Contradictions) == 0 {
			return nil
		}
		if !w.Contains(ev.Now().In(loc).Hour()) {
			return nil
		}
		ev.Emit(ctx, Growth, engine.Nudge{
			Kind:    engine.KindCelebration,
			Title:   "Growth noticed",
			Message: fmt.Sprintf("You moved past an old pattern: %s", g.Contradictions[0]),
			TTL:     10 * time.Second,
		})
		return nil
	}
}

func asTransition(payload any) (bus.TransitionApproaching, error) {
	switch p := payload.(type) {
	case bus.TransitionApproaching:
		return p, nil
	case *bus.TransitionApproaching:
		if p != nil {
			return *p, nil
		}
	}
	return bus.TransitionApproaching{}, fmt.Errorf("unexpected %s payload %T", bus.TopicTransitionApproaching, payload)
}

func asGrowth(payload any) (bus.GrowthDetected, error) {
	switch p := payload.(type) {
	case bus.GrowthDetected:
		return p, nil
	case *bus.GrowthDetected:
		if p != nil {
			return *p, nil
		}
	}
	return bus.GrowthDetected{}, fmt.Errorf("unexpected %s payload %T", bus.TopicGrowthDetected, payload)
}
