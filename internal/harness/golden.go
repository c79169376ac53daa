package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/nudge/internal/canonical"
)

// GoldenTrace renders a trace as indented canonical JSON.
//
// Keys are sorted, times are RFC 3339 UTC and TTLs are integer
// milliseconds, so the bytes depend only on what was displayed.
func GoldenTrace(name string, trace []TraceEvent) ([]byte, error) {
	events := make([]any, len(trace))
	for i, ev := range trace {
		m := map[string]any{
			"at":      ev.At.UTC().Format(time.RFC3339),
			"rule":    ev.Rule,
			"kind":    string(ev.Kind),
			"title":   ev.Title,
			"message": ev.Message,
			"ttlMs":   ev.TTL.Milliseconds(),
		}
		if ev.Key != "" {
			m["key"] = ev.Key
		}
		events[i] = m
	}

	compact, err := canonical.Marshal(map[string]any{
		"scenario": name,
		"nudges":   events,
	})
	if err != nil {
		return nil, fmt.Errorf("canonical trace: %w", err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("indent trace: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// RunWithGolden runs a scenario, fails the test on assertion errors and
// compares the trace against testdata/golden/<name>.golden.
// Run with -update to regenerate.
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, e := range result.Errors {
		t.Errorf("scenario %s: %v", scenario.Name, e)
	}

	trace, err := GoldenTrace(scenario.Name, result.Trace)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, trace)
	return result
}
