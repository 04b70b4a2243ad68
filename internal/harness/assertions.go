package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s as %q %v -> %s\n", ev.Seq, ev.Op, ev.As, ev.Args, ev.Code)
		}
	}
	return buf.String()
}

// evaluate checks every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, trace []TraceEvent, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(trace, a)
		case AssertTraceCount:
			err = assertTraceCount(trace, a)
		case AssertFinalState:
			err = h.assertFinalState(ctx, a)
		case AssertConsistent:
			err = h.assertConsistent(ctx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return failures
}

// assertTraceContains checks that the trace holds the operation, with the
// given code and a superset of the given args when those are set.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Op != a.Op {
			continue
		}
		if a.Code != "" && ev.Code != a.Code {
			continue
		}
		if matchArgs(ev.Args, a.Args) {
			return nil
		}
	}

	expected := "op " + a.Op
	if a.Code != "" {
		expected += " with code " + a.Code
	}
	if len(a.Args) > 0 {
		expected += fmt.Sprintf(" with args %v", a.Args)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that operations first appear in the given order.
// Intervening operations are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if _, seen := positions[ev.Op]; !seen {
			positions[ev.Op] = i + 1
		}
	}

	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   "missing op: " + op,
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the operation appears exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Op == a.Op && (a.Code == "" || ev.Code == a.Code) {
			count++
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", *a.Count, a.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState performs a list operation as a principal and checks the
// number of items and that one of them matches Contains.
func (h *Harness) assertFinalState(ctx context.Context, a Assertion) error {
	op := lists[a.List]
	in, err := h.substitute(a.Args)
	if err != nil {
		return err
	}
	out, err := operations[op](ctx, h.vault, a.As, in)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s as %q to succeed", op, a.As),
			Actual:   err.Error(),
		}
	}
	normalized, err := normalize(out.result)
	if err != nil {
		return err
	}
	items, _ := normalized.([]any)

	if a.Count != nil && len(items) != *a.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d %s visible to %q", *a.Count, a.List, a.As),
			Actual:   fmt.Sprintf("%d %s", len(items), a.List),
		}
	}
	if len(a.Contains) == 0 {
		return nil
	}
	want, err := normalize(a.Contains)
	if err != nil {
		return err
	}
	for _, item := range items {
		if matchSubset(item, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("%s visible to %q to include %v", a.List, a.As, a.Contains),
		Actual:   fmt.Sprintf("%v", items),
	}
}

// assertConsistent verifies the owner and share indexes.
func (h *Harness) assertConsistent(ctx context.Context) error {
	violations, err := h.vault.Verify(ctx)
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		return nil
	}
	lines := make([]string, len(violations))
	for i, v := range violations {
		lines[i] = v.String()
	}
	return &AssertionError{
		Type:     AssertConsistent,
		Expected: "no index violations",
		Actual:   strings.Join(lines, "; "),
	}
}

// matchArgs checks if actual args contain all expected args (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	got, err := normalize(actual)
	if err != nil {
		return false
	}
	want, err := normalize(expected)
	if err != nil {
		return false
	}
	return matchSubset(got, want)
}

// matchSubset reports whether actual contains expected. Maps match when
// every expected key matches; slices match element-wise. Both values must
// be normalized.
func matchSubset(actual, expected any) bool {
	switch want := expected.(type) {
	case map[string]any:
		got, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range want {
			av, exists := got[k]
			if !exists || !matchSubset(av, v) {
				return false
			}
		}
		return true
	case []any:
		got, ok := actual.([]any)
		if !ok || len(got) != len(want) {
			return false
		}
		for i := range want {
			if !matchSubset(got[i], want[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(actual, expected)
	}
}
