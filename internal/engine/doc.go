// Package engine implements the trigger rule evaluator of the nudge engine.
//
// The evaluator owns a table of independent rules and a firing ledger. Every
// tick it rebuilds the ambient State, asks each due rule for its firing
// candidates, and fires each candidate at most once per de-duplication key.
//
// ARCHITECTURE:
//
// Rule table:
// Rules share one shape (Rule / Simple): a predicate over State, a key
// function naming the firing opportunity, and an action building the Nudge.
// Rules never depend on each other. The order rules are registered in is kept
// for logging and listing only; no rule result depends on it.
//
// Tick flow:
//  1. Build State from the StateSource (fails soft: logged, tick skipped)
//  2. For each rule whose cadence elapsed and that is not still running,
//     start it on its own goroutine
//  3. For each candidate: skip if the key is in the ledger or in flight,
//     otherwise Build, Record, Display
//
// A slow external call inside a Build delays only the rule that issued it.
// The next tick skips that rule while it is still running, and the in-flight
// set keeps event-driven offers from racing it on the same key.
//
// CRITICAL PATTERNS:
//
// At-most-once per key:
// The ledger is consulted before Build and written before Display. A key is
// recorded only when a Nudge was actually built, so a failed or empty
// external call stays eligible for retry on the next tick.
//
// Key namespaces:
// Every rule prefixes its keys with its own namespace (routine_morning_,
// transit_alert_, dasha_, ...). Collisions across rules are a design defect,
// not a runtime condition.
//
// Shutdown:
// Close may land while a Build or a ledger write is in progress. The closed
// flag is checked again under the display gate, so once Close returns no
// nudge reaches the sink; a key recorded during shutdown is simply dropped.
//
// Log and continue:
// External failures, ledger failures and panicking rules are logged and
// swallowed. A missed nudge is acceptable; a crashed session is not.
package engine
