package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/container"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/datetime"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/flatten"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/region"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/schema"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/source"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/validate"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/version"
)

// Columns added to every row.
const (
	ColumnSliceValid   = "slice_valid"
	ColumnAttemptValid = "attempt_valid"
	ColumnCreated      = "jem_created"
	ColumnSource       = "source_file"
	ColumnROI          = "roi"
	ColumnROIMajor     = "roi_major"
	ColumnROIMinor     = "roi_minor"
	ColumnROISuper     = "roi_super"
	ColumnContainer    = "container"
)

// Source fields read by the pipeline.
const (
	fieldOperator  = "rigOperator"
	fieldSliceDate = "date"
	fieldStatus    = "status"
	fieldTubeID    = "extraction.tubeID"
	fieldPilotName = "approach.pilotName"
	fieldPilotTube = "approach.pilotTest05"
)

// DateFields are rendered as YYYY-MM-DD.
var DateFields = []string{"acsfProductionDate", "internalFillDate", "blankFillDate"}

// TimeFields are rendered as HH:MM:SS±HH:MM.
var TimeFields = []string{
	"extraction.timeExtractionEnd",
	"extraction.timeExtractionStart",
	"extraction.timeRetractionEnd",
	"extraction.timeRetractionStart",
	"recording.timeStart",
	"recording.timeWholeCellStart",
}

// Result is the normalized output for one input record.
type Result struct {
	Source     string
	Version    version.Version
	Profile    string
	SliceValid bool
	Rows       []record.Row
	Issues     []Issue
}

// Settings are the per-deployment values the pipeline needs.
type Settings struct {
	JoinKey        string
	Project        string
	KnownLab       bool
	ExpectedFields []string
	FieldDefaults  map[string]string
}

// Components are the tables and normalizers the pipeline composes.
// Nil members are replaced by their built-in defaults.
type Components struct {
	Schemas   *schema.Registry
	Profiles  *version.Profiles
	Validator *validate.Validator
	Dates     *datetime.Normalizer
	Regions   *region.Normalizer
	Users     *container.UserTable
	Deriver   *container.Deriver
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithObserver registers an Observer for counts.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// Pipeline normalizes JEM records. It holds no per-record state.
type Pipeline struct {
	schemas   *schema.Registry
	profiles  *version.Profiles
	validator *validate.Validator
	dates     *datetime.Normalizer
	regions   *region.Normalizer
	users     *container.UserTable
	deriver   *container.Deriver
	settings  Settings
	logger    *slog.Logger
	observer  Observer
}

// New creates a Pipeline.
func New(c Components, s Settings, opts ...Option) (*Pipeline, error) {
	if c.Schemas == nil {
		reg, err := schema.Default()
		if err != nil {
			return nil, err
		}
		c.Schemas = reg
	}
	if c.Profiles == nil {
		c.Profiles = version.DefaultProfiles()
	}
	if c.Validator == nil {
		c.Validator = validate.New()
	}
	if c.Dates == nil {
		c.Dates = datetime.Default()
	}
	if c.Regions == nil {
		c.Regions = region.Default()
	}
	if c.Deriver == nil {
		c.Deriver = container.NewDeriver(c.Users, c.Dates)
	}
	if s.JoinKey == "" {
		s.JoinKey = flatten.DefaultKey
	}

	p := &Pipeline{
		schemas:   c.Schemas,
		profiles:  c.Profiles,
		validator: c.Validator,
		dates:     c.Dates,
		regions:   c.Regions,
		users:     c.Users,
		deriver:   c.Deriver,
		settings:  s,
		logger:    slog.Default(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run holds the state of one Process call.
type run struct {
	p      *Pipeline
	source string
	issues []Issue
}

func (r *run) issue(is Issue) {
	is.Source = r.source
	r.issues = append(r.issues, is)
	r.p.observer.Issue(is.Code)
	r.p.logger.Warn("record issue",
		"source", r.source,
		"code", is.Code,
		"field", is.Field,
		"attempt", is.Attempt,
		"message", is.Message,
	)
}

// Process normalizes one record.
// It returns a *StructuralError only when the input is not a JSON object
// or the slice has no join key.
func (p *Pipeline) Process(ctx context.Context, in source.Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := &run{p: p, source: in.Name()}

	raw, err := record.Parse(in.Data)
	if err != nil {
		p.observer.RecordProcessed(OutcomeStructural, 0)
		return nil, &StructuralError{Code: ErrCodeUnparseable, Source: r.source, Message: "input is not a JSON object", Err: err}
	}

	v, verr := version.Resolve(raw)
	if verr != nil {
		r.issue(Issue{Code: IssueVersion, Field: version.Field, Message: "unparseable form version, using " + version.Default})
	}
	profile := p.profiles.For(v)
	p.logger.Debug("record version resolved", "source", r.source, "version", v.String(), "profile", profile.Name)

	sliceSpec := p.schemas.Get(schema.KindSlice, v)
	attemptSpec := p.schemas.Get(schema.KindAttempt, v)
	sampleSpec := p.schemas.Get(schema.KindSample, v)

	sliceFull := record.Flatten(raw)
	sliceFull[version.Field] = v.String()
	sliceValid := r.validate(sliceFull, sliceSpec, 0)

	attemptObjs, err := raw.Attempts(profile.AttemptsField)
	if err != nil {
		r.issue(Issue{Code: IssueAttempts, Field: profile.AttemptsField, Message: err.Error()})
		attemptObjs = nil
	}
	attempts := make([]record.Row, 0, len(attemptObjs))
	attemptValid := make([]bool, 0, len(attemptObjs))
	for i, obj := range attemptObjs {
		row := record.Flatten(obj)
		ok := r.validate(row, attemptSpec, i+1)
		if status, _ := row.String(fieldStatus); status == container.SuccessStatus {
			ok = r.validate(row, sampleSpec, i+1) && ok
		}
		coerce(row, attemptSpec)
		coerce(row, sampleSpec)
		attempts = append(attempts, row)
		attemptValid = append(attemptValid, ok)
	}

	slice := record.Flatten(raw, profile.AttemptsField)
	slice[version.Field] = v.String()
	coerce(slice, sliceSpec)
	if profile.OperatorIsFullName {
		r.normalizeOperator(slice)
	}
	rawDate, _ := slice.String(fieldSliceDate)
	r.normalizeSliceDates(slice)

	rows, err := flatten.Flatten(slice, attempts, p.settings.JoinKey)
	if err != nil {
		var mk *flatten.MissingKeyError
		if errors.As(err, &mk) {
			p.observer.RecordProcessed(OutcomeStructural, 0)
			return nil, &StructuralError{Code: ErrCodeMissingKey, Source: r.source, Message: "slice has no join key", Err: err}
		}
		return nil, err
	}

	for i, row := range rows {
		attempt := 0
		if len(attempts) > 0 {
			attempt = i + 1
		}
		r.normalizeTimes(row, attempt)
		r.normalizeRegion(row, profile.ROIFields, attempt)
		r.deriveContainer(row, profile.Container, rawDate, len(attempts) > 0, attempt)
		p.backfill(row)

		row[ColumnSliceValid] = sliceValid
		row[ColumnAttemptValid] = len(attempts) == 0 || attemptValid[i]
		row[ColumnSource] = r.source
		row[ColumnCreated] = created(in.Created)
	}

	outcome := OutcomeValid
	if !sliceValid || !allTrue(attemptValid) {
		outcome = OutcomeInvalid
	}
	p.observer.RecordProcessed(outcome, len(rows))
	p.logger.Debug("record processed", "source", r.source, "version", v.String(), "rows", len(rows), "issues", len(r.issues))

	return &Result{
		Source:     r.source,
		Version:    v,
		Profile:    profile.Name,
		SliceValid: sliceValid,
		Rows:       rows,
		Issues:     r.issues,
	}, nil
}

// validate records each violation as an issue and reports validity.
func (r *run) validate(row record.Row, spec *schema.Spec, attempt int) bool {
	res := r.p.validator.Validate(row, spec)
	for _, v := range res.Violations {
		r.p.observer.Violation(string(res.Kind), v.Field)
		r.issue(Issue{
			Code:    IssueViolation,
			Kind:    string(res.Kind),
			Field:   v.Field,
			Attempt: attempt,
			Message: v.Message,
		})
	}
	return res.Valid()
}

// coerce converts declared scalar fields to their Go types. Values that
// do not convert are left as they are; validation has already flagged them.
func coerce(row record.Row, spec *schema.Spec) {
	if spec == nil {
		return
	}
	for name, f := range spec.Fields {
		switch f.Type {
		case schema.TypeNumber, schema.TypeInteger, schema.TypeBoolean:
		default:
			continue
		}
		val, ok := row[name]
		if !ok || val == nil {
			continue
		}
		if _, isString := val.(string); isString {
			continue
		}
		if typed, err := validate.Coerce(val, f.Type); err == nil {
			row[name] = typed
		}
	}
}

func created(ts time.Time) any {
	if ts.IsZero() {
		return nil
	}
	return ts.UTC().Format(time.RFC3339)
}

func allTrue(bs []bool) bool {
	for _, b := range bs {
		if !b {
			return false
		}
	}
	return true
}
