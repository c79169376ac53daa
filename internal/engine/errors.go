package engine

import (
	"errors"
	"fmt"
)

// ErrNoNudge is returned by a Build that decided not to fire, e.g. an
// advisory service answered with an empty title or message.
var ErrNoNudge = errors.New("no nudge")

// ErrClosed is returned by Tick after Close.
var ErrClosed = errors.New("evaluator closed")

// RuleError represents a failure detected while evaluating rules.
//
// RuleErrors are logged, never propagated to the user. The structured fields
// exist for diagnostics.
type RuleError struct {
	// Code identifies the error category.
	Code RuleErrorCode

	// Rule is the rule being evaluated, if any.
	Rule string

	// Key is the dedup key involved, if any.
	Key string

	// Err is the underlying cause.
	Err error
}

// RuleErrorCode categorises rule errors.
type RuleErrorCode string

const (
	// ErrCodeStateUnavailable means ambient state could not be built.
	ErrCodeStateUnavailable RuleErrorCode = "STATE_UNAVAILABLE"

	// ErrCodeLedgerFailed means the firing ledger could not be read or written.
	ErrCodeLedgerFailed RuleErrorCode = "LEDGER_FAILED"

	// ErrCodeBuildFailed means a candidate's Build returned an error.
	ErrCodeBuildFailed RuleErrorCode = "BUILD_FAILED"

	// ErrCodeRulePanic means a rule panicked while producing candidates.
	ErrCodeRulePanic RuleErrorCode = "RULE_PANIC"
)

// Error implements the error interface.
func (e *RuleError) Error() string {
	switch {
	case e.Rule != "" && e.Key != "":
		return fmt.Sprintf("%s: %v (rule=%s, key=%s)", e.Code, e.Err, e.Rule, e.Key)
	case e.Rule != "":
		return fmt.Sprintf("%s: %v (rule=%s)", e.Code, e.Err, e.Rule)
	default:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *RuleError) Unwrap() error {
	return e.Err
}

// IsStateError reports whether err is a state-unavailable RuleError.
// Uses errors.As to handle wrapped errors.
func IsStateError(err error) bool {
	var re *RuleError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStateUnavailable
	}
	return false
}
