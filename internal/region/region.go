// Package region expands free-text recording locations into a
// normalized (major, minor, super) triple.
package region

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed regions.yaml
var defaultTableYAML []byte

// Super-region labels.
const (
	Cortical    = "Cortical"
	Subcortical = "Subcortical"
	Unknown     = "Unknown"
)

// Rule kinds.
const (
	KindLiteral = "literal"
	KindWhole   = "whole"
	KindRegex   = "regex"
)

// Placeholders are values the form writes when no location was entered.
var Placeholders = []string{"", "None", "None, None", "nan", "NaN"}

// Rule is one substitution step.
type Rule struct {
	Kind    string `yaml:"kind"`
	Match   string `yaml:"match"`
	Replace string `yaml:"replace"`
}

// Table is the substitution table as stored on disk.
type Table struct {
	Rules       []Rule   `yaml:"rules"`
	Cortical    []string `yaml:"cortical"`
	Subcortical []string `yaml:"subcortical"`
}

// Triple is a normalized region. Empty Major and Minor mean unknown.
type Triple struct {
	Major string `json:"major"`
	Minor string `json:"minor"`
	Super string `json:"super"`
}

// ParseTable decodes a YAML table. Unknown keys are rejected.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to parse region table: %w", err)
	}
	return &t, nil
}

// LoadTable reads a YAML table from disk.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read region table: %w", err)
	}
	return ParseTable(data)
}

// DefaultTable returns the embedded table.
func DefaultTable() *Table {
	t, err := ParseTable(defaultTableYAML)
	if err != nil {
		panic(err)
	}
	return t
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Normalizer applies a compiled Table. It is immutable after New.
type Normalizer struct {
	rules       []compiledRule
	cortical    []string
	subcortical []string
}

// New compiles a table.
func New(t *Table) (*Normalizer, error) {
	n := &Normalizer{
		cortical:    slices.Clone(t.Cortical),
		subcortical: slices.Clone(t.Subcortical),
	}
	for i, r := range t.Rules {
		cr := compiledRule{Rule: r}
		switch r.Kind {
		case KindLiteral, KindWhole:
			if r.Match == "" {
				return nil, fmt.Errorf("rule %d: empty match", i)
			}
		case KindRegex:
			re, err := regexp.Compile(r.Match)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			cr.re = re
		default:
			return nil, fmt.Errorf("rule %d: unknown kind %q", i, r.Kind)
		}
		n.rules = append(n.rules, cr)
	}
	return n, nil
}

// Default returns a Normalizer over the embedded table.
func Default() *Normalizer {
	n, err := New(DefaultTable())
	if err != nil {
		panic(err)
	}
	return n
}

// IsPlaceholder reports whether s carries no location.
func IsPlaceholder(s string) bool {
	return slices.Contains(Placeholders, strings.TrimSpace(s))
}

// Canonicalize runs the substitution rules and returns the rewritten string.
func (n *Normalizer) Canonicalize(raw string) string {
	s := strings.TrimSpace(norm.NFC.String(raw))
	for _, r := range n.rules {
		switch r.Kind {
		case KindLiteral:
			s = strings.ReplaceAll(s, r.Match, r.Replace)
		case KindWhole:
			if s == r.Match {
				s = r.Replace
			}
		case KindRegex:
			s = r.re.ReplaceAllString(s, r.Replace)
		}
	}
	return s
}

// Normalize converts raw into a Triple. Placeholders give an Unknown
// triple with empty major and minor.
func (n *Normalizer) Normalize(raw string) Triple {
	if IsPlaceholder(raw) {
		return Triple{Super: Unknown}
	}

	s := n.Canonicalize(raw)
	if s == "" {
		return Triple{Super: Unknown}
	}

	major, minor, _ := strings.Cut(s, "_")
	return Triple{Major: major, Minor: minor, Super: n.Super(major)}
}

// Super classifies major by the longest matching prefix across both lists.
func (n *Normalizer) Super(major string) string {
	best, label := 0, Unknown
	for _, p := range n.cortical {
		if strings.HasPrefix(major, p) && len(p) > best {
			best, label = len(p), Cortical
		}
	}
	for _, p := range n.subcortical {
		if strings.HasPrefix(major, p) && len(p) > best {
			best, label = len(p), Subcortical
		}
	}
	return label
}

// Select returns the first value among fields that is not a placeholder,
// and the field it came from. Fields are checked in order, so an
// automatic ROI wins over a manual one.
func Select(get func(string) (string, bool), fields []string) (value, field string) {
	for _, f := range fields {
		v, ok := get(f)
		if ok && !IsPlaceholder(v) {
			return strings.TrimSpace(v), f
		}
	}
	return "", ""
}
