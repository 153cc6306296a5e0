// Package version resolves the JEM form version of a record and maps it
// to the set of version-dependent behaviors (the Profile).
package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Field is the record field holding the form version.
const Field = "formVersion"

// Default is assumed when a record carries no version.
const Default = "1.0.0"

// Version is a resolved three-part form version.
// Comparison is numeric per component, so 2.0.10 sorts after 2.0.2.
type Version struct {
	v *semver.Version
}

// Parse parses a dotted version string. Missing minor/patch components
// are treated as zero ("2" == "2.0.0").
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("parse version %q: %w", s, err)
	}
	return Version{v: v}, nil
}

// MustParse is like Parse but panics on error.
// Use only for compile-time constants and tests.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Resolve reads the form version from a record.
// An absent or empty field resolves to Default. An unparseable value also
// resolves to Default and is reported through the returned error so the
// caller can log it.
func Resolve(rec map[string]any) (Version, error) {
	def := MustParse(Default)

	raw, ok := rec[Field]
	if !ok || raw == nil {
		return def, nil
	}
	s := strings.TrimSpace(fmt.Sprint(raw))
	if s == "" {
		return def, nil
	}
	v, err := Parse(s)
	if err != nil {
		return def, err
	}
	return v, nil
}

// String returns the version in x.y.z form.
func (v Version) String() string {
	if v.v == nil {
		return Default
	}
	return fmt.Sprintf("%d.%d.%d", v.v.Major(), v.v.Minor(), v.v.Patch())
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	return v.sem().Compare(o.sem())
}

// AtLeast reports whether v >= o.
func (v Version) AtLeast(o Version) bool {
	return v.Compare(o) >= 0
}

// Less reports whether v < o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// IsZero reports whether v was never set.
func (v Version) IsZero() bool {
	return v.v == nil
}

func (v Version) sem() *semver.Version {
	if v.v == nil {
		return semver.MustParse(Default)
	}
	return v.v
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
