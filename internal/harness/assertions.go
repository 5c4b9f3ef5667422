package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/promptinfra/internal/ir"
	"github.com/roach88/promptinfra/internal/ledger"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Trace    []RunEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s hit=%t gateway=%s cost=%s publish=%s\n",
			event.Index+1, event.DeploymentID, event.Outcome, event.Hit, event.Gateway, event.Cost, event.Publish)
	}
	return buf.String()
}

// assertRunContains checks that at least one run matches where (subset match).
func assertRunContains(trace []RunEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchFields(assertion.Where, event.fields()) == "" {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertRunContains,
		Expected: fmt.Sprintf("a run matching %s", formatWhere(assertion.Where)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertRunCount checks how many runs match where. An empty where counts
// every run.
func assertRunCount(trace []RunEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchFields(assertion.Where, event.fields()) == "" {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRunCount,
		Expected: fmt.Sprintf("%d run(s) matching %s", assertion.Count, formatWhere(assertion.Where)),
		Actual:   fmt.Sprintf("%d run(s)", count),
		Trace:    trace,
	}
}

// assertFinalState checks that exactly one ledger record matches where and
// that it carries the expected fields.
func assertFinalState(result *Result, assertion Assertion) error {
	var matches []ir.DeploymentRecord
	for _, rec := range result.Records {
		if matchFields(assertion.Where, recordFields(rec)) == "" {
			matches = append(matches, rec)
		}
	}

	fail := func(actual string) error {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record %s with %s", formatWhere(assertion.Where), formatWhere(assertion.Expect)),
			Actual:   actual,
			Trace:    result.Trace,
		}
	}
	switch len(matches) {
	case 0:
		return fail("no matching record in ledger")
	case 1:
	default:
		return fail(fmt.Sprintf("%d matching records, expected exactly 1", len(matches)))
	}

	if mismatch := matchFields(assertion.Expect, recordFields(matches[0])); mismatch != "" {
		return fail(mismatch)
	}
	return nil
}

// assertTotalCost checks the summed estimated cost across the ledger.
func assertTotalCost(result *Result, assertion Assertion) error {
	want, err := ir.ParseUSD(assertion.Value)
	if err != nil {
		return fmt.Errorf("total_cost: %w", err)
	}
	got := ledger.SumField(slices.Values(result.Records), func(r ir.DeploymentRecord) ir.USD {
		return r.EstimatedMonthlyCost
	})
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     AssertTotalCost,
		Expected: "$" + want.String(),
		Actual:   "$" + got.String(),
		Trace:    result.Trace,
	}
}

func assertCount(kind string, want, got int, trace []RunEvent) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprint(want),
		Actual:   fmt.Sprint(got),
		Trace:    trace,
	}
}

// matchFields reports the first field in expected whose printed value
// differs from actual, or "" when every field matches. Fields absent from
// actual never match.
func matchFields(expected map[string]any, actual map[string]string) string {
	for _, name := range slices.Sorted(maps.Keys(expected)) {
		want := fmt.Sprint(expected[name])
		got, ok := actual[name]
		if !ok {
			return fmt.Sprintf("%s: field not present", name)
		}
		if got != want {
			return fmt.Sprintf("%s: expected %q, got %q", name, want, got)
		}
	}
	return ""
}

// formatWhere renders a where clause deterministically for error messages.
func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(where))
	for _, name := range slices.Sorted(maps.Keys(where)) {
		parts = append(parts, fmt.Sprintf("%s=%v", name, where[name]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// EvaluateAssertions runs all assertions against the scenario result.
// Returns a list of error messages for failed assertions (empty if all pass).
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRunContains:
			err = assertRunContains(result.Trace, assertion)
		case AssertRunCount:
			err = assertRunCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertTotalCost:
			err = assertTotalCost(result, assertion)
		case AssertGatewayCalls:
			err = assertCount(AssertGatewayCalls, assertion.Count, result.GatewayCalls, result.Trace)
		case AssertLedgerCount:
			err = assertCount(AssertLedgerCount, assertion.Count, len(result.Records), result.Trace)
		case AssertRemotePuts:
			err = assertCount(AssertRemotePuts, assertion.Count, result.RemotePuts, result.Trace)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
