// Package timeline models hierarchical period timelines and scans them for
// upcoming boundaries.
//
// A timeline is an ordered sequence of top-level Periods, each optionally
// holding nested sub-periods. The Scanner looks for the next period End that
// falls strictly inside a look-ahead window (now, horizon).
//
// # Tie-break policy
//
// The default policy is first-listed: primary (top-level) boundaries are
// always preferred over secondary (sub-period) ones, and within a pass the
// structurally first match wins, not necessarily the chronologically nearest.
// This matches the behaviour clients already observe.
//
// PolicyEarliest is an opt-in deviation: the chronologically nearest boundary
// at any depth wins, with primary winning exact ties. It must be selected
// explicitly (config scanner.policy: "earliest").
//
// # Malformed data
//
// Nesting is not enforced. A period whose End is zero or not after its Start
// is skipped during scanning and reported by Validate. The Scanner never
// panics on bad upstream data.
package timeline
