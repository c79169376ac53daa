// Package harness replays nudge scenarios against a real session under a
// fake clock and checks the displayed nudges.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: morning_routine_once
//	description: "Routine reminder fires once per day"
//	start: 2026-10-15T09:55:00Z
//	timezone: UTC
//	subject:
//	  id: s1
//	  dob: "1990-04-12"
//	  tob: "06:30"
//	  summary:
//	    routines:
//	      - {id: r1, name: Meditation, timeOfDay: morning, active: true}
//	timeline:
//	  - {label: Saturn, start: 2016-10-15T00:00:00Z, end: 2026-10-22T10:30:00Z}
//	advisory:
//	  daily_transit: {title: "...", message: "..."}
//	steps:
//	  - evaluate: true
//	  - advance: 5m
//	    repeat: 30
//	    poll: true
//	    evaluate: true
//	assertions:
//	  - type: fired
//	    key: routine_morning_2026-10-15
//	  - type: count
//	    rule: morning_routine
//	    count: 1
//
// Each step optionally moves the clock (at or advance), replaces the
// summary, then runs poll, evaluate and growth in that order. repeat runs
// the whole step N times.
//
// # Assertion Types
//
//   - fired: a nudge with key was displayed
//   - not_fired: no nudge with key was displayed
//   - count: exactly count nudges from rule were displayed
//   - order: the listed keys were displayed in this order
//
// # Deterministic Traces
//
// Rules in one tick run concurrently, so the trace is sorted by display
// time, then rule, then key. IDs and sequence numbers are left out of the
// golden trace for the same reason.
package harness
