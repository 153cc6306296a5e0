package harness

import (
	"github.com/AllenInstitute/ephys-analysis-tools/internal/pipeline"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
)

// RecordOutcome is what the pipeline produced for one input.
type RecordOutcome struct {
	Input string `json:"input"`

	// Version is the resolved form version. Empty on structural error.
	Version string `json:"version,omitempty"`

	Rows   []record.Row     `json:"rows"`
	Issues []pipeline.Issue `json:"issues,omitempty"`

	// ErrorCode is the structural error code, if the input failed.
	ErrorCode string `json:"error_code,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if all assertions held.
	Pass bool `json:"pass"`

	// Records holds one entry per input, in input order.
	Records []RecordOutcome `json:"records"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Records: []RecordOutcome{},
		Errors:  []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Record returns the outcome for the named input.
func (r *Result) Record(input string) (RecordOutcome, bool) {
	for _, rec := range r.Records {
		if rec.Input == input {
			return rec, true
		}
	}
	return RecordOutcome{}, false
}

// HasIssue reports whether the outcome carries an issue with code.
func (o RecordOutcome) HasIssue(code string) bool {
	for _, is := range o.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}
