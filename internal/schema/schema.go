package schema

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/version"
)

// Kind names the part of a record a Spec applies to.
type Kind string

const (
	// KindSlice covers the top-level slice fields.
	KindSlice Kind = "slice"
	// KindAttempt covers every pipette attempt.
	KindAttempt Kind = "attempt"
	// KindSample covers attempts that produced a sample (status SUCCESS).
	KindSample Kind = "sample"
)

// Kinds lists every kind in processing order.
var Kinds = []Kind{KindSlice, KindAttempt, KindSample}

// FieldType is the declared value type of a field.
type FieldType string

const (
	TypeAny     FieldType = "any"
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeList    FieldType = "list"
	TypeObject  FieldType = "object"
	TypeDate    FieldType = "date"
)

// Pattern is a regular expression constraint with its failure message.
// Matching is against the whole value.
type Pattern struct {
	Pattern     string `json:"pattern"`
	FailMessage string `json:"fail_message"`

	re *regexp.Regexp
}

// NewPattern compiles pattern for full-value matching.
func NewPattern(pattern, failMessage string) (*Pattern, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return &Pattern{Pattern: pattern, FailMessage: failMessage, re: re}, nil
}

// MustPattern is like NewPattern but panics on error.
func MustPattern(pattern, failMessage string) *Pattern {
	p, err := NewPattern(pattern, failMessage)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether s fully matches the pattern.
func (p *Pattern) Match(s string) bool {
	return p.re.MatchString(s)
}

// FieldSpec constrains a single field.
type FieldSpec struct {
	Name      string
	Type      FieldType
	Required  bool
	Allowed   []string
	Regex     *Pattern
	MinLength int
}

// IsAllowed reports whether s is in the allowed list.
// An empty list allows everything.
func (f FieldSpec) IsAllowed(s string) bool {
	return len(f.Allowed) == 0 || slices.Contains(f.Allowed, s)
}

// Spec is the constraint set for one kind from a minimum form version on.
type Spec struct {
	Name       string
	Kind       Kind
	MinVersion version.Version
	// Strict rejects fields that are not declared.
	Strict bool
	Fields map[string]FieldSpec
}

// Permissive returns an empty, non-strict spec. Every record is valid
// against it.
func Permissive(kind Kind) *Spec {
	return &Spec{
		Name:   "permissive",
		Kind:   kind,
		Fields: map[string]FieldSpec{},
	}
}

// FieldNames returns the declared field names in sorted order.
func (s *Spec) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Declares reports whether name is a declared field.
func (s *Spec) Declares(name string) bool {
	_, ok := s.Fields[name]
	return ok
}
