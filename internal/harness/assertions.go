package harness

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
)

// AssertionError is returned when an assertion fails.
// It includes the input's outcome to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Input    string        // Input the assertion applies to
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Outcome  RecordOutcome // Full outcome for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (%s)\n", e.Type, e.Input)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Outcome.ErrorCode != "" {
		fmt.Fprintf(&buf, "\nStructural error: %s\n", e.Outcome.ErrorCode)
	}
	if len(e.Outcome.Issues) > 0 {
		fmt.Fprintf(&buf, "\nIssues:\n")
		for i, is := range e.Outcome.Issues {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, is)
		}
	}

	return buf.String()
}

func assertRowCount(out RecordOutcome, a Assertion) error {
	if len(out.Rows) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRowCount,
		Input:    a.Input,
		Expected: fmt.Sprintf("%d rows", a.Count),
		Actual:   fmt.Sprintf("%d rows", len(out.Rows)),
		Outcome:  out,
	}
}

// assertRowValues checks a subset of columns on one row.
func assertRowValues(out RecordOutcome, a Assertion) error {
	if a.Row >= len(out.Rows) {
		return &AssertionError{
			Type:     AssertRowValues,
			Input:    a.Input,
			Expected: fmt.Sprintf("row %d", a.Row),
			Actual:   fmt.Sprintf("%d rows", len(out.Rows)),
			Outcome:  out,
		}
	}
	row := out.Rows[a.Row]

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var mismatches []string
	for _, k := range keys {
		actual, present := row[k]
		if !present {
			mismatches = append(mismatches, fmt.Sprintf("%s: missing", k))
			continue
		}
		if !valuesEqual(actual, a.Expect[k]) {
			mismatches = append(mismatches, fmt.Sprintf("%s: got %s, want %s", k, describe(actual), describe(a.Expect[k])))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}

	return &AssertionError{
		Type:     AssertRowValues,
		Input:    a.Input,
		Expected: fmt.Sprintf("row %d matches %d values", a.Row, len(keys)),
		Actual:   strings.Join(mismatches, "; "),
		Outcome:  out,
	}
}

func assertIssue(out RecordOutcome, a Assertion, want bool) error {
	if out.HasIssue(a.Code) == want {
		return nil
	}
	expected := "issue " + a.Code
	if !want {
		expected = "no issue " + a.Code
	}
	return &AssertionError{
		Type:     a.Type,
		Input:    a.Input,
		Expected: expected,
		Actual:   fmt.Sprintf("issues %v", issueCodes(out)),
		Outcome:  out,
	}
}

func assertStructuralError(out RecordOutcome, a Assertion) error {
	if out.ErrorCode == a.Code {
		return nil
	}
	actual := "no structural error"
	if out.ErrorCode != "" {
		actual = "structural error " + out.ErrorCode
	}
	return &AssertionError{
		Type:     AssertStructuralError,
		Input:    a.Input,
		Expected: "structural error " + a.Code,
		Actual:   actual,
		Outcome:  out,
	}
}

// valuesEqual compares values by their canonical JSON so that YAML ints
// match JSON numbers.
func valuesEqual(actual, expected any) bool {
	a, err := record.MarshalCanonical(actual)
	if err != nil {
		return false
	}
	e, err := record.MarshalCanonical(expected)
	if err != nil {
		return false
	}
	return bytes.Equal(a, e)
}

func describe(v any) string {
	b, err := record.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func issueCodes(out RecordOutcome) []string {
	codes := make([]string, len(out.Issues))
	for i, is := range out.Issues {
		codes[i] = is.Code
	}
	return codes
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		out, ok := result.Record(assertion.Input)
		if !ok {
			errors = append(errors, fmt.Sprintf("assertion[%d]: no outcome for input %q", i, assertion.Input))
			continue
		}

		var err error
		switch assertion.Type {
		case AssertRowCount:
			err = assertRowCount(out, assertion)
		case AssertRowValues:
			err = assertRowValues(out, assertion)
		case AssertIssuePresent:
			err = assertIssue(out, assertion, true)
		case AssertIssueAbsent:
			err = assertIssue(out, assertion, false)
		case AssertStructuralError:
			err = assertStructuralError(out, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
