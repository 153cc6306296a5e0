package testutil

import (
	"encoding/json"
	"maps"
	"strings"
)

// Fixture values shared by record builders.
const (
	SpecimenName = "Sst-IRES-Cre;Ai14-384010.05.01"
	Operator     = "kristenh"
	OperatorName = "Kristen Hadley"
	SliceDate    = "2018-03-14 10:22:00 -07:00"
	FillDate     = "2018-03-13"
)

// RecordBuilder assembles JEM form records for tests. Dotted keys are
// expanded into nested objects, as the form writes them.
type RecordBuilder struct {
	fields        map[string]any
	attemptsField string
	attempts      []map[string]any
}

// NewRecord returns a builder preloaded with a valid slice for version.
// 1.x forms get the pilot attempt list and a full operator name.
func NewRecord(version string) *RecordBuilder {
	b := &RecordBuilder{fields: map[string]any{}, attemptsField: "pipettes"}
	b.Set("formVersion", version).
		Set("limsSpecName", SpecimenName).
		Set("rigOperator", Operator).
		Set("rigNumber", "3").
		Set("flipped", "No").
		Set("date", SliceDate).
		Set("acsfProductionDate", FillDate).
		Set("blankFillDate", FillDate).
		Set("internalFillDate", FillDate)
	if strings.HasPrefix(version, "1.") {
		b.attemptsField = "pipettesPatchSeqPilot"
		b.Set("rigOperator", OperatorName)
	}
	return b
}

// Set assigns value at a dotted path.
func (b *RecordBuilder) Set(path string, value any) *RecordBuilder {
	setPath(b.fields, path, value)
	return b
}

// Without removes a top-level key.
func (b *RecordBuilder) Without(key string) *RecordBuilder {
	delete(b.fields, key)
	return b
}

// Attempt appends an attempt. Keys may be dotted.
func (b *RecordBuilder) Attempt(fields map[string]any) *RecordBuilder {
	obj := map[string]any{}
	for k, v := range fields {
		setPath(obj, k, v)
	}
	b.attempts = append(b.attempts, obj)
	return b
}

// Map returns the record as decoded JSON would look.
func (b *RecordBuilder) Map() map[string]any {
	out := maps.Clone(b.fields)
	list := make([]any, len(b.attempts))
	for i, a := range b.attempts {
		list[i] = a
	}
	out[b.attemptsField] = list
	return out
}

// JSON encodes the record. It panics on encoding errors, which cannot
// occur for builder-produced values.
func (b *RecordBuilder) JSON() []byte {
	data, err := json.Marshal(b.Map())
	if err != nil {
		panic(err)
	}
	return data
}

// SuccessAttempt returns a valid successful attempt with the given tube
// field value.
func SuccessAttempt(tube string) map[string]any {
	a := FailedAttempt()
	a["status"] = "SUCCESS"
	a["extraction.tubeID"] = tube
	a["extraction.endPipetteR"] = 8.1
	a["extraction.postPatch"] = "nucleus_present"
	a["extraction.nucleus"] = "no"
	a["extraction.pressureApplied"] = 1.5
	a["extraction.retractionPressureApplied"] = 0.5
	a["extraction.timeExtractionStart"] = "10:45:00 -07:00"
	a["extraction.timeExtractionEnd"] = "10:50:00 -07:00"
	a["extraction.timeRetractionEnd"] = "10:55:00 -07:00"
	return a
}

// FailedAttempt returns a valid attempt that produced no sample.
func FailedAttempt() map[string]any {
	return map[string]any{
		"status":                       "FAILURE",
		"approach.creCell":             "Cre+",
		"approach.pilotName":           "None",
		"approach.cellHealth":          "3",
		"approach.sliceHealth":         "4",
		"autoRoi":                      "VISp5",
		"manualRoi":                    "VISp5",
		"depth":                        55.5,
		"recording.pipetteR":           5.2,
		"recording.timeStart":          "10:30:00 -07:00",
		"recording.timeWholeCellStart": "10:35:00 -07:00",
	}
}

func setPath(obj map[string]any, path string, value any) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		obj[path] = value
		return
	}
	child, ok := obj[head].(map[string]any)
	if !ok {
		child = map[string]any{}
		obj[head] = child
	}
	setPath(child, rest, value)
}
