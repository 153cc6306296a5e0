package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/version"
)

func TestPattern_FullMatch(t *testing.T) {
	p := MustPattern(`\d.\d.\d`, "invalid JEM version")
	assert.True(t, p.Match("2.0.2"))
	assert.False(t, p.Match("2.0.2-beta"))
	assert.False(t, p.Match("v2.0.2"))
	assert.Equal(t, "invalid JEM version", p.FailMessage)
}

func TestPattern_Invalid(t *testing.T) {
	_, err := NewPattern(`(unclosed`, "x")
	assert.Error(t, err)
}

func TestFieldSpec_IsAllowed(t *testing.T) {
	open := FieldSpec{Name: "any"}
	assert.True(t, open.IsAllowed("whatever"))

	closed := FieldSpec{Name: "flipped", Allowed: []string{"Yes", "No"}}
	assert.True(t, closed.IsAllowed("Yes"))
	assert.False(t, closed.IsAllowed("yes"))
}

func TestPermissive(t *testing.T) {
	s := Permissive(KindSample)
	assert.Equal(t, KindSample, s.Kind)
	assert.False(t, s.Strict)
	assert.Empty(t, s.Fields)
	assert.Empty(t, s.FieldNames())
}

// ============================================================================
// Registry
// ============================================================================

func TestRegistry_GetHighestMinimum(t *testing.T) {
	reg := NewRegistry()
	reg.Add(&Spec{Name: "old", Kind: KindSlice, MinVersion: version.MustParse("1.0.0")})
	reg.Add(&Spec{Name: "new", Kind: KindSlice, MinVersion: version.MustParse("2.0.0")})

	tests := []struct {
		version string
		want    string
	}{
		{"0.5.0", "old"},
		{"1.0.0", "old"},
		{"1.9.9", "old"},
		{"2.0.0", "new"},
		{"2.0.10", "new"},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.Get(KindSlice, version.MustParse(tt.version)).Name)
		})
	}
}

func TestRegistry_MissingKindIsPermissive(t *testing.T) {
	reg := NewRegistry()
	s := reg.Get(KindAttempt, version.MustParse("2.0.0"))
	require.NotNil(t, s)
	assert.Equal(t, "permissive", s.Name)
	assert.Empty(t, s.Fields)
}

func TestRegistry_AddReplacesSameMinimum(t *testing.T) {
	reg := NewRegistry()
	reg.Add(&Spec{Name: "a", Kind: KindSlice, MinVersion: version.MustParse("2.0.0")})
	reg.Add(&Spec{Name: "b", Kind: KindSlice, MinVersion: version.MustParse("2.0.0")})

	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, "b", reg.Get(KindSlice, version.MustParse("2.0.0")).Name)
}

// ============================================================================
// CUE loading
// ============================================================================

func TestDefault_LoadsJEMSchemas(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 6, reg.Len())

	slice := reg.Get(KindSlice, version.MustParse("2.0.2"))
	assert.Equal(t, "met_slice", slice.Name)
	assert.True(t, slice.Fields["pipettes"].Required)
	assert.Equal(t, TypeList, slice.Fields["pipettes"].Type)
	assert.Equal(t, 10, slice.Fields["limsSpecName"].MinLength)
	require.NotNil(t, slice.Fields["date"].Regex)
	assert.True(t, slice.Fields["date"].Regex.Match("2018-03-14 10:22:00 -07:00"))

	outdated := reg.Get(KindSlice, version.MustParse("1.0.0"))
	assert.Equal(t, "met_slice_outdated", outdated.Name)
	assert.True(t, outdated.Declares("pipettesPatchSeqPilot"))
	assert.False(t, outdated.Declares("pipettes"))

	attempt := reg.Get(KindAttempt, version.MustParse("1.0.0"))
	assert.Equal(t, []string{"SUCCESS", "FAILURE"}, attempt.Fields["status"].Allowed)
	assert.Equal(t, TypeNumber, attempt.Fields["depth"].Type)
	assert.Equal(t, "met_pipette_pilot", attempt.Name)
	assert.False(t, attempt.Declares("autoRoi"))

	approach := reg.Get(KindAttempt, version.MustParse("2.0.1"))
	assert.Equal(t, "met_pipette_approach", approach.Name)
	assert.True(t, approach.Fields["approach.autoRoi"].Required)
	assert.False(t, approach.Declares("autoRoi"))

	direct := reg.Get(KindAttempt, version.MustParse("2.0.10"))
	assert.Equal(t, "met_pipette", direct.Name)
	assert.True(t, direct.Fields["autoRoi"].Required)
	assert.NotEmpty(t, direct.Fields["manualRoi"].Allowed)

	sample := reg.Get(KindSample, version.MustParse("2.0.2"))
	assert.Equal(t, TypeAny, sample.Fields["extraction.sampleObservations"].Type)
	tube := sample.Fields["extraction.tubeID"].Regex
	require.NotNil(t, tube)
	assert.True(t, tube.Match("P1S4_180314_007_A01"))
	assert.True(t, tube.Match("NA"))
	assert.False(t, tube.Match("P1S4_181314_007_A01"))
}

func TestDefault_FormVersionPattern(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	pattern := reg.Get(KindSlice, version.MustParse("2.0.10")).Fields["formVersion"].Regex
	require.NotNil(t, pattern)

	tests := []struct {
		value string
		want  bool
	}{
		{"1.0.9", true},
		{"2.0.2", true},
		{"2.0.10", true},
		{"10.12.103", true},
		{"2.0", false},
		{"2a0b1", false},
		{"2.0.1-beta", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, pattern.Match(tt.value))
		})
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	src := []byte(`
schema: custom: {
	kind: "attempt"
	min_version: "3"
	strict: true
	fields: {
		status: {}
	}
}
`)
	reg, err := Load("custom.cue", src)
	require.NoError(t, err)

	s := reg.Get(KindAttempt, version.MustParse("3.0.0"))
	assert.Equal(t, "custom", s.Name)
	assert.True(t, s.Strict)
	assert.Equal(t, TypeAny, s.Fields["status"].Type)
	assert.False(t, s.Fields["status"].Required)
}

func TestLoad_RejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{
			name: "syntax error",
			src:  `schema: {`,
			code: ErrCodeCUE,
		},
		{
			name: "unknown kind",
			src:  `schema: x: {kind: "donor", min_version: "1.0.0", fields: {}}`,
			code: ErrCodeCUE,
		},
		{
			name: "unknown type",
			src:  `schema: x: {kind: "slice", min_version: "1.0.0", fields: {a: {type: "float"}}}`,
			code: ErrCodeCUE,
		},
		{
			name: "bad version",
			src:  `schema: x: {kind: "slice", min_version: "one", fields: {}}`,
			code: ErrCodeCUE,
		},
		{
			name: "negative minlength",
			src:  `schema: x: {kind: "slice", min_version: "1.0.0", fields: {a: {minlength: -1}}}`,
			code: ErrCodeCUE,
		},
		{
			name: "bad regex",
			src:  `schema: x: {kind: "slice", min_version: "1.0.0", fields: {a: {regex: {pattern: "(", fail_message: "x"}}}}`,
			code: ErrCodeBadPattern,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("bad.cue", []byte(tt.src))
			require.Error(t, err)
			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, tt.code, loadErr.Code)
		})
	}
}

func TestLoad_EmptySourceGivesEmptyRegistry(t *testing.T) {
	reg, err := Load("empty.cue", []byte(``))
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, "permissive", reg.Get(KindSlice, version.MustParse("1.0.0")).Name)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas.cue")
	require.NoError(t, os.WriteFile(path, []byte(`schema: s: {kind: "slice", min_version: "1.0.0", fields: {limsSpecName: {required: true}}}`), 0o644))

	reg, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, reg.Get(KindSlice, version.MustParse("1.0.0")).Fields["limsSpecName"].Required)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.cue"))
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeRead, loadErr.Code)
}
