package pipeline

import (
	"errors"
	"fmt"
)

// Structural error codes (P001-P009)
const (
	ErrCodeUnparseable = "P001" // input is not a JSON object
	ErrCodeMissingKey  = "P002" // slice has no join key
)

// StructuralError means a record could not be processed at all.
type StructuralError struct {
	Code    string
	Source  string
	Message string
	Err     error
}

func (e *StructuralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Source, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Code, e.Message)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// IsStructural reports whether err is a *StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// Issue codes (I001-I099)
const (
	IssueVersion       = "I001" // formVersion unparseable, default used
	IssueViolation     = "I002" // schema violation
	IssueAttempts      = "I003" // attempt list malformed
	IssueDate          = "I004" // date or time unparseable
	IssueOperator      = "I005" // operator name not in user table
	IssueRegionUnknown = "I006" // region not classified
	IssueLookupMiss    = "I007" // no user code for operator
	IssueContainer     = "I008" // tube number or date unusable
)

// Issue is a non-fatal problem found while processing a record.
type Issue struct {
	Code    string `json:"code"`
	Source  string `json:"source"`
	Kind    string `json:"kind,omitempty"`
	Field   string `json:"field,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	loc := i.Field
	if i.Attempt > 0 {
		loc = fmt.Sprintf("attempt %d %s", i.Attempt, i.Field)
	}
	return fmt.Sprintf("[%s] %s: %s: %s", i.Code, i.Source, loc, i.Message)
}
