package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/nudge/internal/advisory"
	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/profile"
)

// Catalogue builds the ticked rules that are enabled in set.
func Catalogue(adv advisory.Service, set Settings) []engine.Rule {
	all := []engine.Rule{
		morningRoutine(set.Get(MorningRoutine)),
		missingIntention(set.Get(MissingIntention)),
		eveningGratitude(set.Get(EveningGratitude)),
		chaoticState(set.Get(ChaoticState)),
		dailyTransit(adv, set.Get(DailyTransit)),
		relationalCheckin(adv, set.Get(RelationalCheck)),
		anniversary(set.Get(Anniversary)),
	}
	var enabled []engine.Rule
	for _, r := range all {
		if set.Get(r.Name()).Enabled {
			enabled = append(enabled, r)
		}
	}
	return enabled
}

func static(kind engine.Kind, ttl time.Duration, title, message string) func(context.Context, engine.State) (engine.Nudge, error) {
	return func(context.Context, engine.State) (engine.Nudge, error) {
		return engine.Nudge{Kind: kind, Title: title, Message: message, TTL: ttl}, nil
	}
}

func morningRoutine(set Setting) engine.Rule {
	return &engine.Simple{
		ID:    MorningRoutine,
		Every: set.Cadence,
		Predicate: func(s engine.State) bool {
			if !set.Window.Contains(s.Hour()) {
				return false
			}
			_, ok := pendingMorningRoutine(s)
			return ok
		},
		Key: func(s engine.State) string { return "routine_morning_" + s.Today() },
		Action: func(ctx context.Context, s engine.State) (engine.Nudge, error) {
			r, _ := pendingMorningRoutine(s)
			return engine.Nudge{
				Kind:    engine.KindInfo,
				Title:   "Morning routine",
				Message: fmt.Sprintf("%s is still waiting for you today. A few quiet minutes now set the tone.", r.Name),
				TTL:     10 * time.Second,
			}, nil
		},
	}
}

func pendingMorningRoutine(s engine.State) (profile.Routine, bool) {
	today := s.Today()
	for _, r := range s.Summary.Routines {
		if r.Active && r.TimeOfDay == "morning" && r.LastCompletedDate != today {
			return r, true
		}
	}
	return profile.Routine{}, false
}

func missingIntention(set Setting) engine.Rule {
	return &engine.Simple{
		ID:    MissingIntention,
		Every: set.Cadence,
		Predicate: func(s engine.State) bool {
			return set.Window.Contains(s.Hour()) && strings.TrimSpace(s.Summary.DailyIntention) == ""
		},
		Key: func(s engine.State) string { return "intention_missing_" + s.Today() },
		Action: static(engine.KindGuru, 12*time.Second,
			"Set today's intention",
			"You haven't set an intention yet. One sentence is enough to steer the day."),
	}
}

func eveningGratitude(set Setting) engine.Rule {
	return &engine.Simple{
		ID:    EveningGratitude,
		Every: set.Cadence,
		Predicate: func(s engine.State) bool {
			return set.Window.Contains(s.Hour()) && s.Summary.DailyGratitudeDate != s.Today()
		},
		Key: func(s engine.State) string { return "gratitude_evening_" + s.Today() },
		Action: static(engine.KindGuru, 12*time.Second,
			"Evening gratitude",
			"Before the day closes, name one thing you are grateful for."),
	}
}

func chaoticState(set Setting) engine.Rule {
	return &engine.Simple{
		ID:    ChaoticState,
		Every: set.Cadence,
		Predicate: func(s engine.State) bool {
			return set.Window.Contains(s.Hour()) && s.Summary.EmotionalState == "chaotic"
		},
		Key: func(s engine.State) string {
			return "chaos_detected_" + s.Summary.LastEmotionalUpdate.UTC().Format(time.RFC3339Nano)
		},
		Action: static(engine.KindGuru, 15*time.Second,
			"Pause and breathe",
			"Things feel turbulent right now. Take three slow breaths before the next decision."),
	}
}

// advised builds an action that asks the advisory service for content.
// Failures and empty answers leave the key unrecorded so the next tick retries.
func advised(adv advisory.Service, trigger advisory.Trigger, kind engine.Kind, ttl time.Duration) func(context.Context, engine.State) (engine.Nudge, error) {
	return func(ctx context.Context, s engine.State) (engine.Nudge, error) {
		if adv == nil {
			return engine.Nudge{}, engine.ErrNoNudge
		}
		a, err := adv.RequestNudge(ctx, s, trigger)
		if err != nil {
			return engine.Nudge{}, fmt.Errorf("advisory %s: %w", trigger, err)
		}
		if a.Empty() {
			return engine.Nudge{}, engine.ErrNoNudge
		}
		return engine.Nudge{Kind: kind, Title: a.Title, Message: a.Message, TTL: ttl}, nil
	}
}

func dailyTransit(adv advisory.Service, set Setting) engine.Rule {
	return &engine.Simple{
		ID:        DailyTransit,
		Every:     set.Cadence,
		Predicate: func(s engine.State) bool { return set.Window.Contains(s.Hour()) },
		Key:       func(s engine.State) string { return "transit_alert_" + s.Today() },
		Action:    advised(adv, advisory.TriggerDailyTransit, engine.KindGuru, 15*time.Second),
	}
}

func relationalCheckin(adv advisory.Service, set Setting) engine.Rule {
	return &engine.Simple{
		ID:    RelationalCheck,
		Every: set.Cadence,
		Predicate: func(s engine.State) bool {
			return set.Window.Contains(s.Hour()) && len(s.Summary.KeyRelationships) > 0
		},
		Key:    func(s engine.State) string { return "relational_nudge_" + s.Today() },
		Action: advised(adv, advisory.TriggerRelationalCheckin, engine.KindGuru, 12*time.Second),
	}
}

// anniversaryDays are the elapsed-day counts that trigger a reflection.
var anniversaryDays = map[int]bool{7: true, 30: true}

func anniversary(set Setting) engine.Rule {
	return &engine.Fanout{
		ID:    Anniversary,
		Every: set.Cadence,
		Expand: func(s engine.State) []engine.Candidate {
			if !set.Window.Contains(s.Hour()) {
				return nil
			}
			var out []engine.Candidate
			for _, ev := range s.Summary.ActiveEvents {
				if !ev.Completed() || ev.Date == "" {
					continue
				}
				days, ok := daysSince(ev.Date, s)
				if !ok {
					slog.Debug("skipping life event with unparseable date", "event", ev.ID, "date", ev.Date)
					continue
				}
				if !anniversaryDays[days] {
					continue
				}
				ev, days := ev, days
				out = append(out, engine.Candidate{
					Key: fmt.Sprintf("anniversary_%s_%d", ev.ID, days),
					Build: func(context.Context) (engine.Nudge, error) {
						return engine.Nudge{
							Kind:    engine.KindInfo,
							Title:   "Time to reflect",
							Message: fmt.Sprintf("It has been %d days since %q. What has shifted since then?", days, ev.Title),
							TTL:     12 * time.Second,
						}, nil
					},
				})
			}
			return out
		},
	}
}

// daysSince returns whole calendar days from date to the local day of s.
// date is YYYY-MM-DD, or an RFC 3339 timestamp whose day is taken in the
// subject's location. Both ends are taken as UTC midnights so DST never skews
// the count.
func daysSince(date string, s engine.State) (int, bool) {
	d, err := time.Parse(engine.DateLayout, date)
	if err != nil {
		ts, err := time.Parse(time.RFC3339, date)
		if err != nil {
			return 0, false
		}
		ts = ts.In(s.Local().Location())
		d = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	local := s.Local()
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return int(today.Sub(d) / (24 * time.Hour)), true
}
