// Package datetime normalizes the date and time strings entered on JEM
// forms into fixed output layouts.
//
// Input is accepted in any of the layouts the form has produced over its
// history. A timestamp without an offset is left naive, except when it
// carries a non-midnight time of day and comes from the known lab, in
// which case the lab's offset is attached.
package datetime

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects the output layout.
type Kind int

const (
	// Date renders YYYY-MM-DD.
	Date Kind = iota
	// Time renders HH:MM:SS±HH:MM, or HH:MM:SS when naive.
	Time
	// DateTime renders YYYY-MM-DD HH:MM:SS ±HH:MM, or without offset when naive.
	DateTime
)

func (k Kind) String() string {
	switch k {
	case Date:
		return "date"
	case Time:
		return "time"
	case DateTime:
		return "datetime"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Output layouts.
const (
	LayoutDate          = "2006-01-02"
	LayoutTime          = "15:04:05-07:00"
	LayoutTimeNaive     = "15:04:05"
	LayoutDateTime      = "2006-01-02 15:04:05 -07:00"
	LayoutDateTimeNaive = "2006-01-02 15:04:05"
	LayoutContainerDate = "060102"
)

// DefaultLabOffset is the offset attached to naive lab timestamps.
const DefaultLabOffset = "-07:00"

// ParseError reports a value that matched no known layout.
type ParseError struct {
	Value string
	Kind  Kind
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q as %s", e.Value, e.Kind)
}

type layout struct {
	format   string
	hasZone  bool
	hasClock bool
}

// inputLayouts are tried in order. Zoned layouts come first so an offset
// is never discarded by a shorter naive match.
var inputLayouts = []layout{
	{"2006-01-02 15:04:05 -07:00", true, true},
	{"2006-01-02 15:04:05 -0700", true, true},
	{"2006-01-02 15:04:05-07:00", true, true},
	{time.RFC3339Nano, true, true},
	{"2006-01-02T15:04:05-0700", true, true},
	{"1/2/2006 15:04:05 -07:00", true, true},
	{"15:04:05 -07:00", true, true},
	{"15:04:05 -0700", true, true},
	{"15:04:05-07:00", true, true},
	{"15:04:05-0700", true, true},
	{"15:04 -07:00", true, true},

	{"2006-01-02 15:04:05", false, true},
	{"2006-01-02T15:04:05", false, true},
	{"2006-01-02 15:04", false, true},
	{"1/2/2006 15:04:05", false, true},
	{"1/2/2006 15:04", false, true},
	{"1/2/2006 3:04:05 PM", false, true},
	{"15:04:05", false, true},
	{"15:04", false, true},
	{"3:04:05 PM", false, true},
	{"3:04 PM", false, true},

	{"2006-01-02", false, false},
	{"1/2/2006", false, false},
	{"2006/01/02", false, false},
	{"Jan 2, 2006", false, false},
	{"January 2, 2006", false, false},
	{"02-Jan-2006", false, false},
}

// Normalizer formats date and time fields.
// It is immutable and safe for concurrent use.
type Normalizer struct {
	labZone *time.Location
}

// New creates a Normalizer that attaches labOffset (e.g. "-07:00") to
// naive timestamps from the known lab.
func New(labOffset string) (*Normalizer, error) {
	zone, err := ParseOffset(labOffset)
	if err != nil {
		return nil, err
	}
	return &Normalizer{labZone: zone}, nil
}

// Default returns a Normalizer using DefaultLabOffset.
func Default() *Normalizer {
	n, err := New(DefaultLabOffset)
	if err != nil {
		panic(err)
	}
	return n
}

// ParseOffset converts "±HH:MM" into a fixed zone.
func ParseOffset(offset string) (*time.Location, error) {
	t, err := time.Parse("-07:00", strings.TrimSpace(offset))
	if err != nil {
		return nil, fmt.Errorf("invalid UTC offset %q: %w", offset, err)
	}
	_, secs := t.Zone()
	return time.FixedZone(offset, secs), nil
}

// Normalize parses value and renders it in the layout for kind.
// knownLab enables offset injection for naive, non-midnight timestamps.
func (n *Normalizer) Normalize(value string, kind Kind, knownLab bool) (string, error) {
	ts, zoned, err := n.parse(value, knownLab)
	if err != nil {
		return "", &ParseError{Value: value, Kind: kind}
	}

	switch kind {
	case Date:
		return ts.Format(LayoutDate), nil
	case Time:
		if zoned {
			return ts.Format(LayoutTime), nil
		}
		return ts.Format(LayoutTimeNaive), nil
	default:
		if zoned {
			return ts.Format(LayoutDateTime), nil
		}
		return ts.Format(LayoutDateTimeNaive), nil
	}
}

// Parse returns the instant for value without formatting it.
// zoned reports whether the result carries an offset.
func (n *Normalizer) Parse(value string, knownLab bool) (ts time.Time, zoned bool, err error) {
	ts, zoned, err = n.parse(value, knownLab)
	if err != nil {
		return time.Time{}, false, &ParseError{Value: value, Kind: DateTime}
	}
	return ts, zoned, nil
}

// ContainerDate renders the calendar date of value as YYMMDD.
// The date is taken as written; no offset conversion is applied.
func (n *Normalizer) ContainerDate(value string) (string, error) {
	ts, _, err := n.parse(value, false)
	if err != nil {
		return "", &ParseError{Value: value, Kind: Date}
	}
	return ts.Format(LayoutContainerDate), nil
}

func (n *Normalizer) parse(value string, knownLab bool) (time.Time, bool, error) {
	s := strings.Join(strings.Fields(value), " ")
	if s == "" {
		return time.Time{}, false, fmt.Errorf("empty value")
	}

	for _, l := range inputLayouts {
		ts, err := time.Parse(l.format, s)
		if err != nil {
			continue
		}
		if l.hasZone {
			return ts, true, nil
		}
		if l.hasClock && knownLab && !isMidnight(ts) {
			return time.Date(ts.Year(), ts.Month(), ts.Day(),
				ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), n.labZone), true, nil
		}
		return ts, false, nil
	}
	return time.Time{}, false, fmt.Errorf("no layout matched")
}

func isMidnight(ts time.Time) bool {
	return ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0
}
