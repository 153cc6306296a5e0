package validate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/schema"
)

func testSpec() *schema.Spec {
	return &schema.Spec{
		Name: "test",
		Kind: schema.KindAttempt,
		Fields: map[string]schema.FieldSpec{
			"limsSpecName": {Name: "limsSpecName", Type: schema.TypeString, Required: true, MinLength: 10},
			"status":       {Name: "status", Type: schema.TypeString, Required: true, Allowed: []string{"SUCCESS", "FAILURE"}},
			"depth":        {Name: "depth", Type: schema.TypeNumber, Required: true},
			"recording.timeStart": {
				Name:  "recording.timeStart",
				Type:  schema.TypeString,
				Regex: schema.MustPattern(`[0-2]\d:[0-5]\d:[0-5]\d (-|\+)?[0-1]\d:00`, "time is not in HH:MM:SS UTC format"),
			},
			"notes": {Name: "notes", Type: schema.TypeAny},
		},
	}
}

func validRecord() map[string]any {
	return map[string]any{
		"limsSpecName":        "Sst-IRES-Cre;Ai14-123456.04.01",
		"status":              "SUCCESS",
		"depth":               json.Number("42.5"),
		"recording.timeStart": "10:15:00 -07:00",
	}
}

func TestValidate_ValidRecord(t *testing.T) {
	result := New().Validate(validRecord(), testSpec())
	assert.True(t, result.Valid())
	assert.Empty(t, result.Map())
	assert.Equal(t, "test", result.Spec)
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]any)
		field   string
		code    string
		message string
	}{
		{
			name:    "required missing",
			mutate:  func(r map[string]any) { delete(r, "status") },
			field:   "status",
			code:    CodeRequired,
			message: MsgRequired,
		},
		{
			name:    "required null",
			mutate:  func(r map[string]any) { r["depth"] = nil },
			field:   "depth",
			code:    CodeRequired,
			message: MsgRequired,
		},
		{
			name:    "wrong type string for number",
			mutate:  func(r map[string]any) { r["depth"] = "42.5" },
			field:   "depth",
			code:    CodeType,
			message: MsgType,
		},
		{
			name:    "wrong type number for string",
			mutate:  func(r map[string]any) { r["status"] = json.Number("1") },
			field:   "status",
			code:    CodeType,
			message: MsgType,
		},
		{
			name:    "not allowed",
			mutate:  func(r map[string]any) { r["status"] = "success" },
			field:   "status",
			code:    CodeAllowed,
			message: MsgAllowed,
		},
		{
			name:    "pattern uses fail message",
			mutate:  func(r map[string]any) { r["recording.timeStart"] = "10:15" },
			field:   "recording.timeStart",
			code:    CodePattern,
			message: "time is not in HH:MM:SS UTC format",
		},
		{
			name:    "pattern must match whole value",
			mutate:  func(r map[string]any) { r["recording.timeStart"] = "10:15:00 -07:00 extra" },
			field:   "recording.timeStart",
			code:    CodePattern,
			message: "time is not in HH:MM:SS UTC format",
		},
		{
			name:    "min length",
			mutate:  func(r map[string]any) { r["limsSpecName"] = "short" },
			field:   "limsSpecName",
			code:    CodeMinLength,
			message: "min length is 10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(rec)

			result := New().Validate(rec, testSpec())
			require.Len(t, result.Violations, 1)
			v := result.Violations[0]
			assert.Equal(t, tt.field, v.Field)
			assert.Equal(t, tt.code, v.Code)
			assert.Equal(t, tt.message, v.Message)
			assert.Equal(t, tt.message, result.Map()[tt.field])
		})
	}
}

func TestValidate_OptionalAbsentIsFine(t *testing.T) {
	rec := validRecord()
	delete(rec, "recording.timeStart")
	assert.True(t, New().Validate(rec, testSpec()).Valid())
}

func TestValidate_UnknownFieldsIgnoredByDefault(t *testing.T) {
	rec := validRecord()
	rec["extraField"] = "x"
	assert.True(t, New().Validate(rec, testSpec()).Valid())
}

func TestValidate_StrictReportsUnknownFields(t *testing.T) {
	rec := validRecord()
	rec["zeta"] = "x"
	rec["alpha"] = "y"
	rec["attempt"] = 1

	result := New(WithStrict(), WithIgnoredFields("attempt")).Validate(rec, testSpec())
	require.Len(t, result.Violations, 2)
	assert.Equal(t, "alpha", result.Violations[0].Field)
	assert.Equal(t, "zeta", result.Violations[1].Field)
	assert.Equal(t, CodeUnknown, result.Violations[0].Code)
}

func TestValidate_SpecStrictFlag(t *testing.T) {
	spec := testSpec()
	spec.Strict = true
	rec := validRecord()
	rec["extra"] = true

	result := New().Validate(rec, spec)
	assert.Equal(t, map[string]string{"extra": MsgUnknown}, result.Map())
}

func TestValidate_NilSpecIsPermissive(t *testing.T) {
	result := New().Validate(map[string]any{"anything": 1}, nil)
	assert.True(t, result.Valid())
}

func TestValidate_MultipleViolationsDeterministicOrder(t *testing.T) {
	rec := map[string]any{"status": "maybe"}
	result := New().Validate(rec, testSpec())

	fields := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		fields = append(fields, v.Field)
	}
	assert.Equal(t, []string{"depth", "limsSpecName", "status"}, fields)
}

func TestResult_MapJoinsMessages(t *testing.T) {
	r := Result{Violations: []Violation{
		{Field: "a", Message: "one"},
		{Field: "a", Message: "two"},
	}}
	assert.Equal(t, map[string]string{"a": "one; two"}, r.Map())
}

// ============================================================================
// Coercion
// ============================================================================

func TestTypeMatches(t *testing.T) {
	tests := []struct {
		name string
		val  any
		typ  schema.FieldType
		want bool
	}{
		{"string", "x", schema.TypeString, true},
		{"number from json", json.Number("1.5"), schema.TypeNumber, true},
		{"number from string", "1.5", schema.TypeNumber, false},
		{"integer", json.Number("3"), schema.TypeInteger, true},
		{"integer fraction", json.Number("3.5"), schema.TypeInteger, false},
		{"boolean", true, schema.TypeBoolean, true},
		{"list", []any{}, schema.TypeList, true},
		{"object", map[string]any{}, schema.TypeObject, true},
		{"date", "2018-03-14", schema.TypeDate, true},
		{"date with offset", "2018-03-14 10:00:00 -07:00", schema.TypeDate, true},
		{"bad date", "March", schema.TypeDate, false},
		{"any", []any{1}, schema.TypeAny, true},
		{"unknown type", "x", schema.FieldType("float"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TypeMatches(tt.val, tt.typ))
		})
	}
}

func TestCoerce(t *testing.T) {
	v, err := Coerce(json.Number("42.5"), schema.TypeNumber)
	require.NoError(t, err)
	assert.Equal(t, 42.5, v)

	v, err = Coerce("7", schema.TypeInteger)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = Coerce(json.Number("12"), schema.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "12", v)

	v, err = Coerce("true", schema.TypeBoolean)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Coerce(nil, schema.TypeNumber)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = Coerce("7.5", schema.TypeInteger)
	assert.Error(t, err)

	_, err = Coerce([]any{}, schema.TypeString)
	assert.Error(t, err)

	_, err = Coerce("soon", schema.TypeDate)
	assert.Error(t, err)
}
