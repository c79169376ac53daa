package harness

import (
	"fmt"
	"strings"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected any
	Actual   any
	Keys     []string
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s assertion failed\n", e.Type)
	fmt.Fprintf(&b, "  expected: %v\n", e.Expected)
	fmt.Fprintf(&b, "  actual:   %v\n", e.Actual)
	if len(e.Keys) > 0 {
		b.WriteString("  fired keys:\n")
		for i, k := range e.Keys {
			fmt.Fprintf(&b, "    [%d] %s\n", i, k)
		}
	}
	return b.String()
}

func checkAssertion(a Assertion, trace []TraceEvent) error {
	switch a.Type {
	case AssertFired:
		return assertFired(a.Key, trace)
	case AssertNotFired:
		return assertNotFired(a.Key, trace)
	case AssertCount:
		return assertCount(a.Rule, a.Count, trace)
	case AssertOrder:
		return assertOrder(a.Keys, trace)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func firedKeys(trace []TraceEvent) []string {
	keys := make([]string, 0, len(trace))
	for _, ev := range trace {
		if ev.Key != "" {
			keys = append(keys, ev.Key)
		}
	}
	return keys
}

func indexOf(key string, trace []TraceEvent) int {
	for i, ev := range trace {
		if ev.Key == key {
			return i
		}
	}
	return -1
}

func assertFired(key string, trace []TraceEvent) error {
	if indexOf(key, trace) >= 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFired,
		Expected: key,
		Actual:   "not fired",
		Keys:     firedKeys(trace),
	}
}

func assertNotFired(key string, trace []TraceEvent) error {
	if i := indexOf(key, trace); i >= 0 {
		return &AssertionError{
			Type:     AssertNotFired,
			Expected: "no nudge for " + key,
			Actual:   fmt.Sprintf("fired at %s", trace[i].At.UTC().Format("2006-01-02T15:04:05Z")),
		}
	}
	return nil
}

func assertCount(rule string, want int, trace []TraceEvent) error {
	got := 0
	for _, ev := range trace {
		if ev.Rule == rule {
			got++
		}
	}
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     AssertCount,
		Expected: fmt.Sprintf("%d nudges from %s", want, rule),
		Actual:   got,
		Keys:     firedKeys(trace),
	}
}

// assertOrder checks that keys fired in the given relative order. Other
// nudges may be interleaved.
func assertOrder(keys []string, trace []TraceEvent) error {
	prev := -1
	for _, k := range keys {
		i := indexOf(k, trace)
		if i < 0 {
			return &AssertionError{
				Type:     AssertOrder,
				Expected: keys,
				Actual:   k + " not fired",
				Keys:     firedKeys(trace),
			}
		}
		if i < prev {
			return &AssertionError{
				Type:     AssertOrder,
				Expected: keys,
				Actual:   k + " fired too early",
				Keys:     firedKeys(trace),
			}
		}
		prev = i
	}
	return nil
}
