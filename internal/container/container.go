// Package container derives the Patch-seq sample container ID of a
// successful pipette attempt.
//
// Forms from 2.0.2 on record the full container in the tube field
// (direct mode). Older forms record only a tube number, and the container
// is composed from the operator's user code, the experiment date and that
// number (composed mode).
package container

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/datetime"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/version"
)

// TissueTouchPilot is the pilot name whose tube number lives in
// approach.pilotTest05 instead of extraction.tubeID.
const TissueTouchPilot = "Tissue_Touch"

// SuccessStatus marks an attempt that produced a sample.
const SuccessStatus = "SUCCESS"

// Compose builds a container ID such as P1S4_180314_007_A01.
func Compose(userCode, yymmdd string, seq int) string {
	return fmt.Sprintf("%sS4_%s_%03d_A01", userCode, yymmdd, seq)
}

// UserCodes resolves an operator login to a Patch-seq user code.
type UserCodes interface {
	UserCode(login string) (string, bool)
}

// LookupMissError reports an operator without a user code.
type LookupMissError struct {
	Login string
}

func (e *LookupMissError) Error() string {
	return fmt.Sprintf("no user code for operator %q", e.Login)
}

// TubeError reports a missing or unusable tube number.
type TubeError struct {
	Field string
	Value string
}

func (e *TubeError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("tube field %s is empty", e.Field)
	}
	return fmt.Sprintf("tube field %s has non-numeric value %q", e.Field, e.Value)
}

// Input carries the row fields container derivation depends on.
type Input struct {
	Mode        version.ContainerMode
	Project     string
	Status      string
	HasAttempts bool
	TubeID      string // extraction.tubeID
	PilotName   string // approach.pilotName
	PilotTube   string // approach.pilotTest05
	Operator    string // rigOperator login
	Date        string // slice date
}

// Deriver computes container IDs. It is immutable and safe for
// concurrent use.
type Deriver struct {
	users        UserCodes
	dates        *datetime.Normalizer
	skipProjects []string
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithSkipProjects disables derivation for the named projects.
func WithSkipProjects(projects ...string) Option {
	return func(d *Deriver) { d.skipProjects = append(d.skipProjects, projects...) }
}

// NewDeriver creates a Deriver. users may be nil, in which case composed
// derivation always reports a lookup miss.
func NewDeriver(users UserCodes, dates *datetime.Normalizer, opts ...Option) *Deriver {
	if dates == nil {
		dates = datetime.Default()
	}
	d := &Deriver{users: users, dates: dates}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Eligible reports whether a container should be derived at all.
func (d *Deriver) Eligible(in Input) bool {
	if !in.HasAttempts || slices.Contains(d.skipProjects, in.Project) {
		return false
	}
	return strings.Contains(in.Status, SuccessStatus)
}

// Derive returns the container ID for one row.
// An ineligible row returns "" and no error. Errors mean the row was
// eligible but the container could not be determined; the caller leaves
// the field empty.
func (d *Deriver) Derive(in Input) (string, error) {
	if !d.Eligible(in) {
		return "", nil
	}

	if in.Mode == version.ContainerDirect {
		tube := strings.TrimSpace(in.TubeID)
		if tube == "" {
			return "", &TubeError{Field: "extraction.tubeID"}
		}
		return tube, nil
	}

	field, tube := "extraction.tubeID", in.TubeID
	if in.PilotName == TissueTouchPilot && strings.TrimSpace(in.PilotTube) != "" {
		field, tube = "approach.pilotTest05", in.PilotTube
	}
	seq, err := parseSequence(field, tube)
	if err != nil {
		return "", err
	}

	code, ok := d.lookup(in.Operator)
	if !ok {
		return "", &LookupMissError{Login: in.Operator}
	}

	yymmdd, err := d.dates.ContainerDate(in.Date)
	if err != nil {
		return "", err
	}

	return Compose(code, yymmdd, seq), nil
}

func (d *Deriver) lookup(login string) (string, bool) {
	if d.users == nil || strings.TrimSpace(login) == "" {
		return "", false
	}
	return d.users.UserCode(strings.TrimSpace(login))
}

func parseSequence(field, tube string) (int, error) {
	s := strings.TrimSpace(tube)
	if s == "" {
		return 0, &TubeError{Field: field}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f == float64(int(f)) {
		return int(f), nil
	}
	return 0, &TubeError{Field: field, Value: s}
}
