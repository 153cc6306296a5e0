package pipeline

import (
	"errors"
	"fmt"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/container"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/datetime"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/region"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/version"
)

// normalizeOperator replaces a legacy full operator name with the login.
// Without a user table the name is left alone.
func (r *run) normalizeOperator(slice record.Row) {
	if r.p.users.Len() == 0 {
		return
	}
	name, ok := slice.String(fieldOperator)
	if !ok || name == "" {
		return
	}
	login, ok := r.p.users.LoginForName(name)
	if !ok {
		r.issue(Issue{Code: IssueOperator, Field: fieldOperator, Message: fmt.Sprintf("operator %q not in user table", name)})
		return
	}
	slice[fieldOperator] = login
}

// normalizeSliceDates rewrites the slice date fields in place, once per
// record. Blank values become nil; unparseable values become nil and are
// reported.
func (r *run) normalizeSliceDates(slice record.Row) {
	r.normalizeField(slice, fieldSliceDate, datetime.DateTime, 0)
	for _, f := range DateFields {
		r.normalizeField(slice, f, datetime.Date, 0)
	}
}

// normalizeTimes rewrites the attempt time fields of one row.
func (r *run) normalizeTimes(row record.Row, attempt int) {
	for _, f := range TimeFields {
		r.normalizeField(row, f, datetime.Time, attempt)
	}
}

func (r *run) normalizeField(row record.Row, field string, kind datetime.Kind, attempt int) {
	val, present := row[field]
	if !present || val == nil {
		return
	}
	s, ok := row.String(field)
	if !ok || region.IsPlaceholder(s) {
		row[field] = nil
		return
	}
	out, err := r.p.dates.Normalize(s, kind, r.p.settings.KnownLab)
	if err != nil {
		row[field] = nil
		r.issue(Issue{Code: IssueDate, Field: field, Attempt: attempt, Message: err.Error()})
		return
	}
	row[field] = out
}

// normalizeRegion sets the roi columns from the first usable ROI field.
func (r *run) normalizeRegion(row record.Row, fields []string, attempt int) {
	value, from := region.Select(row.String, fields)
	t := r.p.regions.Normalize(value)

	row[ColumnROI] = orNil(t.Major + minorSuffix(t.Minor))
	row[ColumnROIMajor] = orNil(t.Major)
	row[ColumnROIMinor] = orNil(t.Minor)
	row[ColumnROISuper] = t.Super

	if value != "" && t.Super == region.Unknown {
		r.issue(Issue{Code: IssueRegionUnknown, Field: from, Attempt: attempt, Message: fmt.Sprintf("region %q not classified", value)})
	}
}

func minorSuffix(minor string) string {
	if minor == "" {
		return ""
	}
	return "_" + minor
}

// deriveContainer sets the container column. Rows that are not eligible
// get nil without an issue.
func (r *run) deriveContainer(row record.Row, mode version.ContainerMode, rawDate string, hasAttempts bool, attempt int) {
	in := container.Input{
		Mode:        mode,
		Project:     r.p.settings.Project,
		HasAttempts: hasAttempts,
		Date:        rawDate,
	}
	in.Status, _ = row.String(fieldStatus)
	in.TubeID, _ = row.String(fieldTubeID)
	in.PilotName, _ = row.String(fieldPilotName)
	in.PilotTube, _ = row.String(fieldPilotTube)
	in.Operator, _ = row.String(fieldOperator)

	id, err := r.p.deriver.Derive(in)
	if err != nil {
		row[ColumnContainer] = nil
		code := IssueContainer
		var miss *container.LookupMissError
		if errors.As(err, &miss) {
			code = IssueLookupMiss
		}
		r.issue(Issue{Code: code, Field: ColumnContainer, Attempt: attempt, Message: err.Error()})
		return
	}
	row[ColumnContainer] = orNil(id)
}

// backfill adds every expected field the row lacks.
func (p *Pipeline) backfill(row record.Row) {
	for _, f := range p.settings.ExpectedFields {
		if _, ok := row[f]; ok {
			continue
		}
		if def, ok := p.settings.FieldDefaults[f]; ok {
			row[f] = def
			continue
		}
		row[f] = nil
	}
}

func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
