// Package validate checks flattened JEM records against a schema.Spec.
//
// Validation is advisory. It never fails and never mutates the record; it
// returns the list of violations so the pipeline can log them and tag the
// row as invalid.
package validate

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/schema"
)

// Violation codes (V001-V099)
const (
	CodeRequired  = "V001" // required field missing
	CodeType      = "V002" // wrong type
	CodeAllowed   = "V003" // not an allowed value
	CodePattern   = "V004" // regex mismatch
	CodeMinLength = "V005" // value too short
	CodeUnknown   = "V006" // undeclared field in strict mode
)

// Violation messages.
const (
	MsgRequired = "required field missing"
	MsgType     = "wrong type"
	MsgAllowed  = "not an allowed value"
	MsgUnknown  = "unknown field"
)

// Violation is one field-level problem.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (v Violation) Error() string {
	return fmt.Sprintf("[%s] %s: %s", v.Code, v.Field, v.Message)
}

// Result is the outcome of validating one record.
type Result struct {
	Spec       string      `json:"spec"`
	Kind       schema.Kind `json:"kind"`
	Violations []Violation `json:"violations"`
}

// Valid reports whether no violations were found.
func (r Result) Valid() bool {
	return len(r.Violations) == 0
}

// Map returns field -> message. When a field has several violations the
// messages are joined with "; ".
func (r Result) Map() map[string]string {
	out := make(map[string]string, len(r.Violations))
	for _, v := range r.Violations {
		if prev, ok := out[v.Field]; ok {
			out[v.Field] = prev + "; " + v.Message
			continue
		}
		out[v.Field] = v.Message
	}
	return out
}

// Option configures a Validator.
type Option func(*Validator)

// WithStrict reports undeclared fields even when the spec is permissive.
func WithStrict() Option {
	return func(v *Validator) { v.strict = true }
}

// WithIgnoredFields exempts fields from the strict unknown-field check.
// Derived fields such as "attempt" are typically listed here.
func WithIgnoredFields(fields ...string) Option {
	return func(v *Validator) { v.ignored = append(v.ignored, fields...) }
}

// Validator applies specs to records. It holds no per-record state and is
// safe for concurrent use.
type Validator struct {
	strict  bool
	ignored []string
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks rec against spec. A nil spec is treated as permissive.
// Violations are ordered by field name so output is deterministic.
func (v *Validator) Validate(rec map[string]any, spec *schema.Spec) Result {
	if spec == nil {
		spec = schema.Permissive("")
	}
	result := Result{Spec: spec.Name, Kind: spec.Kind, Violations: []Violation{}}

	for _, name := range spec.FieldNames() {
		result.Violations = append(result.Violations, checkField(spec.Fields[name], rec)...)
	}

	if v.strict || spec.Strict {
		unknown := make([]string, 0)
		for name := range rec {
			if !spec.Declares(name) && !slices.Contains(v.ignored, name) {
				unknown = append(unknown, name)
			}
		}
		slices.Sort(unknown)
		for _, name := range unknown {
			result.Violations = append(result.Violations, Violation{Field: name, Message: MsgUnknown, Code: CodeUnknown})
		}
	}

	return result
}

// checkField returns every violation for one declared field.
// Once a type mismatch is found the value-level checks are skipped.
func checkField(f schema.FieldSpec, rec map[string]any) []Violation {
	val, present := rec[f.Name]
	if !present || val == nil {
		if f.Required {
			return []Violation{{Field: f.Name, Message: MsgRequired, Code: CodeRequired}}
		}
		return nil
	}

	if !TypeMatches(val, f.Type) {
		return []Violation{{Field: f.Name, Message: MsgType, Code: CodeType}}
	}

	var out []Violation
	s, isScalar := scalarString(val)

	if len(f.Allowed) > 0 && (!isScalar || !f.IsAllowed(s)) {
		out = append(out, Violation{Field: f.Name, Message: MsgAllowed, Code: CodeAllowed})
	}
	if f.Regex != nil && (!isScalar || !f.Regex.Match(s)) {
		out = append(out, Violation{Field: f.Name, Message: f.Regex.FailMessage, Code: CodePattern})
	}
	if f.MinLength > 0 && length(val) < f.MinLength {
		out = append(out, Violation{
			Field:   f.Name,
			Message: fmt.Sprintf("min length is %d", f.MinLength),
			Code:    CodeMinLength,
		})
	}
	return out
}

// scalarString renders strings, numbers and booleans for allowed-list and
// pattern checks.
func scalarString(val any) (string, bool) {
	switch x := val.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool, int, int64, float64:
		return fmt.Sprint(x), true
	}
	return "", false
}

func length(val any) int {
	switch x := val.(type) {
	case string:
		return len([]rune(strings.TrimSpace(x)))
	case []any:
		return len(x)
	case map[string]any:
		return len(x)
	}
	s, _ := scalarString(val)
	return len(s)
}
