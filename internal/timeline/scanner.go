package timeline

import (
	"fmt"
	"log/slog"
	"time"
)

// Policy selects how the Scanner breaks ties between qualifying boundaries.
type Policy string

const (
	// PolicyFirstListed prefers primary boundaries, then the structurally
	// first match. This is the default.
	PolicyFirstListed Policy = "first-listed"
	// PolicyEarliest returns the chronologically nearest boundary at any
	// depth. Opt-in deviation from the default behaviour.
	PolicyEarliest Policy = "earliest"
)

// ParsePolicy converts a config string into a Policy.
// The empty string maps to PolicyFirstListed.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFirstListed:
		return PolicyFirstListed, nil
	case PolicyEarliest:
		return PolicyEarliest, nil
	default:
		return "", fmt.Errorf("unknown scanner policy %q", s)
	}
}

// Scanner finds the next period boundary inside a look-ahead window.
// The zero value uses PolicyFirstListed.
type Scanner struct {
	Policy Policy
}

// FindNextBoundary is the default first-listed scan.
func FindNextBoundary(periods []Period, now, horizon time.Time) (Transition, bool) {
	return Scanner{}.Scan(periods, now, horizon)
}

// Scan returns the next boundary satisfying now < End < horizon.
func (s Scanner) Scan(periods []Period, now, horizon time.Time) (Transition, bool) {
	if s.Policy == PolicyEarliest {
		return scanEarliest(periods, now, horizon)
	}
	return scanFirstListed(periods, now, horizon)
}

func inWindow(p Period, now, horizon time.Time) bool {
	if !p.wellFormed() {
		slog.Debug("skipping malformed period", "label", p.Label, "start", p.Start, "end", p.End)
		return false
	}
	return p.End.After(now) && p.End.Before(horizon)
}

func scanFirstListed(periods []Period, now, horizon time.Time) (Transition, bool) {
	for _, p := range periods {
		if inWindow(p, now, horizon) {
			return Transition{Label: p.Label, BoundaryTime: p.End, Depth: DepthPrimary}, true
		}
	}
	for _, p := range periods {
		for _, sub := range p.SubPeriods {
			if inWindow(sub, now, horizon) {
				return Transition{Label: sub.Label, BoundaryTime: sub.End, Depth: DepthSecondary}, true
			}
		}
	}
	return Transition{}, false
}

func scanEarliest(periods []Period, now, horizon time.Time) (Transition, bool) {
	var best Transition
	found := false
	consider := func(p Period, depth Depth) {
		if !inWindow(p, now, horizon) {
			return
		}
		// Strictly earlier only: primary is visited first and keeps ties.
		if !found || p.End.Before(best.BoundaryTime) {
			best = Transition{Label: p.Label, BoundaryTime: p.End, Depth: depth}
			found = true
		}
	}
	for _, p := range periods {
		consider(p, DepthPrimary)
	}
	for _, p := range periods {
		for _, sub := range p.SubPeriods {
			consider(sub, DepthSecondary)
		}
	}
	return best, found
}
