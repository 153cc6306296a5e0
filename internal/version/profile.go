package version

import (
	"slices"
)

// ContainerMode selects how the sample container ID is obtained.
type ContainerMode string

const (
	// ContainerDirect reads the container verbatim from the tube field.
	ContainerDirect ContainerMode = "direct"
	// ContainerComposed builds the container from operator, date and tube number.
	ContainerComposed ContainerMode = "composed"
)

// Profile bundles every behavior that differs between form versions.
type Profile struct {
	// Name labels the profile in logs.
	Name string
	// AttemptsField is the slice field holding the attempt list.
	AttemptsField string
	// ROIFields are tried in order; the first non-placeholder value wins.
	ROIFields []string
	// Container selects the container derivation state.
	Container ContainerMode
	// OperatorIsFullName marks forms that stored the operator's full name
	// instead of the login.
	OperatorIsFullName bool
}

type entry struct {
	min     Version
	profile Profile
}

// Profiles is an ordered table of version profiles.
type Profiles struct {
	entries []entry
}

// NewProfiles returns an empty table.
func NewProfiles() *Profiles {
	return &Profiles{}
}

// Register adds a profile that applies from min upward.
// Registering the same min twice replaces the earlier profile.
func (p *Profiles) Register(min Version, profile Profile) {
	for i, e := range p.entries {
		if e.min.Compare(min) == 0 {
			p.entries[i].profile = profile
			return
		}
	}
	p.entries = append(p.entries, entry{min: min, profile: profile})
	slices.SortFunc(p.entries, func(a, b entry) int {
		return a.min.Compare(b.min)
	})
}

// For returns the profile with the highest minimum version <= v.
// Versions below every registered minimum get the oldest profile.
func (p *Profiles) For(v Version) Profile {
	if len(p.entries) == 0 {
		return Profile{}
	}
	selected := p.entries[0].profile
	for _, e := range p.entries {
		if v.AtLeast(e.min) {
			selected = e.profile
		}
	}
	return selected
}

// Minimums returns the registered lower bounds in ascending order.
func (p *Profiles) Minimums() []Version {
	out := make([]Version, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.min
	}
	return out
}

// DefaultProfiles returns the JEM form history:
//
//	1.0.0  pilot form, attempts under pipettesPatchSeqPilot, free-text location
//	2.0.0  attempts under pipettes, ROI under approach
//	2.0.2  top-level ROI fields, tube ID is the full container
func DefaultProfiles() *Profiles {
	p := NewProfiles()
	p.Register(MustParse("1.0.0"), Profile{
		Name:               "pilot",
		AttemptsField:      "pipettesPatchSeqPilot",
		ROIFields:          []string{"approach.anatomicalLocation"},
		Container:          ContainerComposed,
		OperatorIsFullName: true,
	})
	p.Register(MustParse("2.0.0"), Profile{
		Name:          "production",
		AttemptsField: "pipettes",
		ROIFields:     []string{"approach.autoRoi", "approach.manualRoi"},
		Container:     ContainerComposed,
	})
	p.Register(MustParse("2.0.2"), Profile{
		Name:          "production-direct",
		AttemptsField: "pipettes",
		ROIFields:     []string{"autoRoi", "manualRoi"},
		Container:     ContainerDirect,
	})
	return p
}
