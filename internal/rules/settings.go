// Package rules is the concrete trigger rule catalogue.
//
// Each rule is one row of the table: a predicate over engine.State, a dedup
// key in the rule's own namespace, and an action building the Nudge. Two rules
// are event-driven and hang off the bus instead of the evaluator tick.
package rules

import (
	"fmt"
	"time"
)

// Rule names. Also used as config keys.
const (
	MorningRoutine   = "morning_routine"
	MissingIntention = "missing_intention"
	EveningGratitude = "evening_gratitude"
	ChaoticState     = "chaotic_state"
	DailyTransit     = "daily_transit"
	RelationalCheck  = "relational_checkin"
	Anniversary      = "anniversary"
	Growth           = "growth_celebration"
	Transition       = "period_transition"
)

// Names lists every rule in catalogue order.
var Names = []string{
	MorningRoutine,
	MissingIntention,
	EveningGratitude,
	ChaoticState,
	DailyTransit,
	RelationalCheck,
	Anniversary,
	Growth,
	Transition,
}

// Window is a local time-of-day window in whole hours, [From, To).
type Window struct {
	From int
	To   int
}

// AllDay never restricts eligibility.
var AllDay = Window{From: 0, To: 24}

// Contains reports whether hour falls inside the window.
func (w Window) Contains(hour int) bool {
	return hour >= w.From && hour < w.To
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:00-%02d:00", w.From, w.To)
}

// Setting tunes one rule.
type Setting struct {
	Enabled bool
	Cadence time.Duration
	Window  Window
}

// Settings maps rule names to their Setting.
type Settings map[string]Setting

// DefaultCadence matches the evaluator's default tick interval.
const DefaultCadence = 5 * time.Minute

// DefaultSettings returns the stock catalogue configuration.
func DefaultSettings() Settings {
	return Settings{
		MorningRoutine:   {Enabled: true, Cadence: DefaultCadence, Window: Window{From: 10, To: 12}},
		MissingIntention: {Enabled: true, Cadence: DefaultCadence, Window: Window{From: 7, To: 11}},
		EveningGratitude: {Enabled: true, Cadence: DefaultCadence, Window: Window{From: 21, To: 23}},
		ChaoticState:     {Enabled: true, Cadence: DefaultCadence, Window: AllDay},
		DailyTransit:     {Enabled: true, Cadence: DefaultCadence, Window: AllDay},
		RelationalCheck:  {Enabled: true, Cadence: DefaultCadence, Window: Window{From: 15, To: 18}},
		Anniversary:      {Enabled: true, Cadence: DefaultCadence, Window: AllDay},
		Growth:           {Enabled: true, Window: AllDay},
		Transition:       {Enabled: true, Window: AllDay},
	}
}

// Get returns the setting for name, falling back to the default.
func (s Settings) Get(name string) Setting {
	if set, ok := s[name]; ok {
		return set
	}
	return DefaultSettings()[name]
}
