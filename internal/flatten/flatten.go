// Package flatten joins a slice record with its pipette attempts into
// one row per attempt.
package flatten

import (
	"fmt"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
)

// DefaultKey is the slice field that identifies a specimen.
const DefaultKey = "limsSpecName"

// AttemptField holds the 1-based attempt number on each row.
const AttemptField = "attempt"

// MissingKeyError reports a slice without its join key.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("join key %q is missing", e.Key)
}

// Flatten returns max(len(attempts), 1) rows.
//
// With no attempts the single row carries the slice fields and a nil
// attempt number. Otherwise row i carries the slice fields, then the
// fields of attempts[i], then attempt = i+1. An attempt field with the
// same name as a slice field replaces it, except for the join key, which
// always comes from the slice.
func Flatten(slice record.Row, attempts []record.Row, key string) ([]record.Row, error) {
	if key == "" {
		key = DefaultKey
	}
	if !slice.Has(key) {
		return nil, &MissingKeyError{Key: key}
	}
	keyValue := slice[key]

	if len(attempts) == 0 {
		row := slice.Clone()
		row[AttemptField] = nil
		return []record.Row{row}, nil
	}

	rows := make([]record.Row, 0, len(attempts))
	for i, attempt := range attempts {
		row := slice.Clone()
		for k, v := range attempt {
			row[k] = v
		}
		row[key] = keyValue
		row[AttemptField] = i + 1
		rows = append(rows, row)
	}
	return rows, nil
}
