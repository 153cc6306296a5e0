package registry

import (
	"cmp"
	"slices"
)

// Entry is a container derived from a JEM form.
type Entry struct {
	Container string `json:"container"`
	Specimen  string `json:"specimen"`
	Source    string `json:"source"`
}

// Match pairs a JEM entry with the LIMS sample of the same container.
type Match struct {
	Container    string `json:"container"`
	JEMSpecimen  string `json:"jem_specimen"`
	LIMSSpecimen string `json:"lims_specimen"`
	Source       string `json:"source"`
}

// Report is the outcome of comparing JEM containers with LIMS.
type Report struct {
	Matched    []Match  `json:"matched"`
	Mismatched []Match  `json:"mismatched"`
	OnlyJEM    []Entry  `json:"only_jem"`
	OnlyLIMS   []Sample `json:"only_lims"`
}

// Consistent reports whether every container matched with the same
// specimen on both sides.
func (r Report) Consistent() bool {
	return len(r.Mismatched) == 0 && len(r.OnlyJEM) == 0 && len(r.OnlyLIMS) == 0
}

// Reconcile compares JEM entries with LIMS samples by container.
// A container found on both sides is matched when the JEM specimen equals
// the LIMS cell name, and mismatched otherwise. Every list is sorted by
// container.
func Reconcile(entries []Entry, samples []Sample) Report {
	byContainer := make(map[string]Sample, len(samples))
	for _, s := range samples {
		byContainer[s.Container] = s
	}

	rep := Report{Matched: []Match{}, Mismatched: []Match{}, OnlyJEM: []Entry{}, OnlyLIMS: []Sample{}}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		seen[e.Container] = true
		s, ok := byContainer[e.Container]
		if !ok {
			rep.OnlyJEM = append(rep.OnlyJEM, e)
			continue
		}
		m := Match{Container: e.Container, JEMSpecimen: e.Specimen, LIMSSpecimen: s.CellName, Source: e.Source}
		if e.Specimen == s.CellName {
			rep.Matched = append(rep.Matched, m)
		} else {
			rep.Mismatched = append(rep.Mismatched, m)
		}
	}
	for _, s := range samples {
		if !seen[s.Container] {
			rep.OnlyLIMS = append(rep.OnlyLIMS, s)
		}
	}

	byMatch := func(a, b Match) int { return cmp.Compare(a.Container, b.Container) }
	slices.SortStableFunc(rep.Matched, byMatch)
	slices.SortStableFunc(rep.Mismatched, byMatch)
	slices.SortStableFunc(rep.OnlyJEM, func(a, b Entry) int { return cmp.Compare(a.Container, b.Container) })
	slices.SortStableFunc(rep.OnlyLIMS, func(a, b Sample) int { return cmp.Compare(a.Container, b.Container) })
	return rep
}

// DateRange returns the smallest and largest container dates (YYMMDD) of
// entries, for querying LIMS. ok is false when no container carries a
// date.
func DateRange(entries []Entry) (from, to string, ok bool) {
	for _, e := range entries {
		d, valid := containerDate(e.Container)
		if !valid {
			continue
		}
		if !ok || d < from {
			from = d
		}
		if !ok || d > to {
			to = d
		}
		ok = true
	}
	return from, to, ok
}

func containerDate(container string) (string, bool) {
	if len(container) < 11 {
		return "", false
	}
	d := container[5:11]
	return d, isYYMMDD(d)
}
