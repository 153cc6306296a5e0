package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/config"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/container"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/region"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/source"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/testutil"
)

const usersCSV = "name,login,p_user\nKristen Hadley,kristenh,P1\nLisa Kim,lisak,P2\n"

var createdAt = time.Date(2018, 3, 15, 0, 0, 0, 0, time.UTC)

func newTestPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	users, err := container.ParseUsers([]byte(usersCSV))
	require.NoError(t, err)

	cfg := config.Default()
	p, err := New(Components{Users: users}, Settings{
		Project:        cfg.Lab.Project,
		KnownLab:       true,
		ExpectedFields: cfg.ExpectedFields,
		FieldDefaults:  cfg.FieldDefaults,
	}, opts...)
	require.NoError(t, err)
	return p
}

func input(name string, data []byte) source.Input {
	return source.Input{Path: "/data/" + name, Data: data, Created: createdAt}
}

func issueCodes(issues []Issue) []string {
	codes := make([]string, 0, len(issues))
	for _, is := range issues {
		codes = append(codes, is.Code)
	}
	return codes
}

// ============================================================================
// Version routing and container derivation
// ============================================================================

func TestProcess_DirectContainer(t *testing.T) {
	p := newTestPipeline(t)
	data := testutil.NewRecord("2.0.2").
		Attempt(testutil.SuccessAttempt("P1S4_180314_007_A01")).
		JSON()

	res, err := p.Process(context.Background(), input("a_PS.json", data))
	require.NoError(t, err)

	assert.Equal(t, "2.0.2", res.Version.String())
	assert.Equal(t, "production-direct", res.Profile)
	assert.True(t, res.SliceValid)
	assert.Empty(t, res.Issues)

	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, "P1S4_180314_007_A01", row[ColumnContainer])
	assert.Equal(t, 1, row["attempt"])
	assert.Equal(t, "2.0.2", row["formVersion"])
	assert.Equal(t, testutil.SpecimenName, row["limsSpecName"])
	assert.Equal(t, true, row[ColumnSliceValid])
	assert.Equal(t, true, row[ColumnAttemptValid])
	assert.Equal(t, "a_PS.json", row[ColumnSource])
	assert.Equal(t, "2018-03-15T00:00:00Z", row[ColumnCreated])
}

func TestProcess_ComposedContainer(t *testing.T) {
	p := newTestPipeline(t)
	attempt := testutil.SuccessAttempt("7")
	attempt["approach.autoRoi"] = "VISp, layer 2/3"
	data := testutil.NewRecord("2.0.0").Attempt(attempt).JSON()

	res, err := p.Process(context.Background(), input("b_PS.json", data))
	require.NoError(t, err)
	assert.Equal(t, "production", res.Profile)

	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, "P1S4_180314_007_A01", row[ColumnContainer])
	assert.Equal(t, "VISp2-3", row[ColumnROI])
	assert.Equal(t, region.Cortical, row[ColumnROISuper])

	// A bare tube number does not satisfy the sample tube pattern.
	assert.Equal(t, false, row[ColumnAttemptValid])
	assert.Contains(t, issueCodes(res.Issues), IssueViolation)
}

func TestProcess_LegacyOperatorName(t *testing.T) {
	p := newTestPipeline(t)
	attempt := testutil.SuccessAttempt("12")
	attempt["approach.anatomicalLocation"] = "VISp5"
	data := testutil.NewRecord("1.0.9").Attempt(attempt).JSON()

	res, err := p.Process(context.Background(), input("c_PS.json", data))
	require.NoError(t, err)
	assert.Equal(t, "pilot", res.Profile)

	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, "kristenh", row["rigOperator"])
	assert.Equal(t, "P1S4_180314_012_A01", row[ColumnContainer])
	assert.Equal(t, "VISp5", row[ColumnROI])
}

func TestProcess_UnknownLegacyOperator(t *testing.T) {
	p := newTestPipeline(t)
	data := testutil.NewRecord("1.0.9").
		Set("rigOperator", "Someone Else").
		Attempt(testutil.SuccessAttempt("12")).
		JSON()

	res, err := p.Process(context.Background(), input("d_PS.json", data))
	require.NoError(t, err)

	row := res.Rows[0]
	assert.Equal(t, "Someone Else", row["rigOperator"])
	assert.Nil(t, row[ColumnContainer])
	assert.Contains(t, issueCodes(res.Issues), IssueOperator)
	assert.Contains(t, issueCodes(res.Issues), IssueLookupMiss)
}

func TestProcess_VersionRouting(t *testing.T) {
	p := newTestPipeline(t)
	tests := []struct {
		version string
		profile string
	}{
		{"2.0.2", "production-direct"},
		{"2.0.10", "production-direct"},
		{"2.0.1", "production"},
		{"1.0.9", "pilot"},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			res, err := p.Process(context.Background(), input("v.json", testutil.NewRecord(tt.version).JSON()))
			require.NoError(t, err)
			assert.Equal(t, tt.profile, res.Profile)
			assert.Equal(t, tt.version, res.Rows[0]["formVersion"])
			assert.True(t, res.SliceValid)
			assert.NotContains(t, issueCodes(res.Issues), IssueViolation)
		})
	}
}

func TestProcess_MalformedVersionFallsBack(t *testing.T) {
	p := newTestPipeline(t)
	data := testutil.NewRecord("garbage").JSON()

	res, err := p.Process(context.Background(), input("e.json", data))
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", res.Version.String())
	assert.Equal(t, "1.0.0", res.Rows[0]["formVersion"])
	assert.Contains(t, issueCodes(res.Issues), IssueVersion)
}

func TestProcess_SkippedProjectHasNoContainer(t *testing.T) {
	users, err := container.ParseUsers([]byte(usersCSV))
	require.NoError(t, err)
	p, err := New(Components{
		Users:   users,
		Deriver: container.NewDeriver(users, nil, container.WithSkipProjects("ME")),
	}, Settings{Project: "ME"})
	require.NoError(t, err)

	data := testutil.NewRecord("2.0.2").Attempt(testutil.SuccessAttempt("P1S4_180314_007_A01")).JSON()
	res, err := p.Process(context.Background(), input("f.json", data))
	require.NoError(t, err)
	assert.Nil(t, res.Rows[0][ColumnContainer])
}

// ============================================================================
// Flattening and backfill
// ============================================================================

func TestProcess_RowCountIsMaxAttemptsOne(t *testing.T) {
	p := newTestPipeline(t)

	for n := 0; n <= 3; n++ {
		b := testutil.NewRecord("2.0.2")
		for i := 0; i < n; i++ {
			b.Attempt(testutil.FailedAttempt())
		}
		res, err := p.Process(context.Background(), input("g.json", b.JSON()))
		require.NoError(t, err)
		assert.Len(t, res.Rows, max(n, 1), "attempts=%d", n)
		for i, row := range res.Rows {
			assert.Equal(t, testutil.SpecimenName, row["limsSpecName"])
			if n > 0 {
				assert.Equal(t, i+1, row["attempt"])
			}
		}
	}
}

func TestProcess_NoAttemptsBackfillsDefaults(t *testing.T) {
	p := newTestPipeline(t)

	res, err := p.Process(context.Background(), input("h.json", testutil.NewRecord("2.0.2").JSON()))
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, "NO ATTEMPTS", row["status"])
	assert.Contains(t, row, "attempt")
	assert.Nil(t, row["attempt"])
	assert.Nil(t, row[ColumnContainer])
	assert.Equal(t, region.Unknown, row[ColumnROISuper])
	for _, f := range config.Default().ExpectedFields {
		assert.Contains(t, row, f)
	}
}

func TestProcess_CoercesDeclaredNumbers(t *testing.T) {
	p := newTestPipeline(t)
	data := testutil.NewRecord("2.0.2").Attempt(testutil.FailedAttempt()).JSON()

	res, err := p.Process(context.Background(), input("i.json", data))
	require.NoError(t, err)
	assert.Equal(t, 55.5, res.Rows[0]["depth"])
	assert.Equal(t, 5.2, res.Rows[0]["recording.pipetteR"])
}

// ============================================================================
// Dates
// ============================================================================

func TestProcess_NormalizesDatesAndTimes(t *testing.T) {
	p := newTestPipeline(t)
	attempt := testutil.SuccessAttempt("P1S4_180314_007_A01")
	attempt["recording.timeStart"] = "10:30:00"
	data := testutil.NewRecord("2.0.2").
		Set("date", "2018-03-14 10:22:00").
		Attempt(attempt).
		JSON()

	res, err := p.Process(context.Background(), input("j.json", data))
	require.NoError(t, err)

	row := res.Rows[0]
	assert.Equal(t, "2018-03-14 10:22:00 -07:00", row["date"])
	assert.Equal(t, "2018-03-13", row["acsfProductionDate"])
	assert.Equal(t, "10:30:00-07:00", row["recording.timeStart"])
	assert.Equal(t, "10:45:00-07:00", row["extraction.timeExtractionStart"])
}

func TestProcess_BadDateEmptiesOnlyThatField(t *testing.T) {
	p := newTestPipeline(t)
	data := testutil.NewRecord("2.0.2").
		Set("acsfProductionDate", "not a date").
		Attempt(testutil.SuccessAttempt("P1S4_180314_007_A01")).
		JSON()

	res, err := p.Process(context.Background(), input("k.json", data))
	require.NoError(t, err)

	row := res.Rows[0]
	assert.Contains(t, row, "acsfProductionDate")
	assert.Nil(t, row["acsfProductionDate"])
	assert.Equal(t, "2018-03-13", row["blankFillDate"])
	assert.Equal(t, "P1S4_180314_007_A01", row[ColumnContainer])
	assert.False(t, res.SliceValid)
	assert.Contains(t, issueCodes(res.Issues), IssueDate)
}

func TestProcess_BadSliceDateReportedOnce(t *testing.T) {
	p := newTestPipeline(t)
	data := testutil.NewRecord("2.0.2").
		Set("date", "not a date").
		Attempt(testutil.FailedAttempt()).
		Attempt(testutil.FailedAttempt()).
		Attempt(testutil.FailedAttempt()).
		JSON()

	res, err := p.Process(context.Background(), input("m.json", data))
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	var dateIssues int
	for _, is := range res.Issues {
		if is.Code == IssueDate && is.Field == "date" {
			dateIssues++
			assert.Zero(t, is.Attempt)
		}
	}
	assert.Equal(t, 1, dateIssues)
	for _, row := range res.Rows {
		assert.Contains(t, row, "date")
		assert.Nil(t, row["date"])
	}
}

func TestProcess_PreDirectAttemptsUseApproachROI(t *testing.T) {
	p := newTestPipeline(t)
	attempt := testutil.FailedAttempt()
	delete(attempt, "autoRoi")
	delete(attempt, "manualRoi")
	attempt["approach.autoRoi"] = "VISp, layer 5"
	attempt["approach.manualRoi"] = "VISp, layer 5"
	data := testutil.NewRecord("2.0.1").Attempt(attempt).JSON()

	res, err := p.Process(context.Background(), input("n.json", data))
	require.NoError(t, err)

	assert.Equal(t, true, res.Rows[0][ColumnAttemptValid])
	for _, is := range res.Issues {
		assert.NotEqual(t, IssueViolation, is.Code, "unexpected violation on %s", is.Field)
	}
}

// ============================================================================
// Structural errors
// ============================================================================

func TestProcess_MissingJoinKey(t *testing.T) {
	p := newTestPipeline(t)
	data := testutil.NewRecord("2.0.2").Without("limsSpecName").JSON()

	res, err := p.Process(context.Background(), input("l.json", data))
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, IsStructural(err))

	var se *StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodeMissingKey, se.Code)
	assert.Equal(t, "l.json", se.Source)
}

func TestProcess_Unparseable(t *testing.T) {
	p := newTestPipeline(t)

	for _, data := range []string{`[1, 2]`, `{"a":`, `"text"`} {
		res, err := p.Process(context.Background(), input("m.json", []byte(data)))
		assert.Nil(t, res)

		var se *StructuralError
		require.ErrorAs(t, err, &se, data)
		assert.Equal(t, ErrCodeUnparseable, se.Code)
	}
}

func TestProcess_MalformedAttemptsList(t *testing.T) {
	p := newTestPipeline(t)
	data := []byte(`{"formVersion":"2.0.2","limsSpecName":"` + testutil.SpecimenName + `","pipettes":"oops"}`)

	res, err := p.Process(context.Background(), input("n.json", data))
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
	assert.Contains(t, issueCodes(res.Issues), IssueAttempts)
}

func TestProcess_ValidationIsAdvisory(t *testing.T) {
	p := newTestPipeline(t)
	data := testutil.NewRecord("2.0.2").
		Set("flipped", "Maybe").
		Without("rigNumber").
		Attempt(testutil.FailedAttempt()).
		JSON()

	res, err := p.Process(context.Background(), input("o.json", data))
	require.NoError(t, err)
	assert.False(t, res.SliceValid)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, false, res.Rows[0][ColumnSliceValid])

	fields := map[string]bool{}
	for _, is := range res.Issues {
		if is.Code == IssueViolation {
			assert.Equal(t, "slice", is.Kind)
			fields[is.Field] = true
		}
	}
	assert.True(t, fields["flipped"])
	assert.True(t, fields["rigNumber"])
}

// ============================================================================
// Idempotence
// ============================================================================

func TestProcess_Idempotent(t *testing.T) {
	p := newTestPipeline(t)
	attempt := testutil.SuccessAttempt("7")
	attempt["approach.autoRoi"] = "VISp, layer 2/3"
	data := testutil.NewRecord("2.0.0").
		Attempt(testutil.FailedAttempt()).
		Attempt(attempt).
		JSON()

	snapshot := func() []byte {
		res, err := p.Process(context.Background(), input("p.json", data))
		require.NoError(t, err)
		out, err := record.MarshalCanonical(res.Rows)
		require.NoError(t, err)
		return out
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(t.TempDir()),
		goldie.WithNameSuffix(".golden"),
	)
	require.NoError(t, g.Update(t, "rows", snapshot()))
	g.Assert(t, "rows", snapshot())
}

// ============================================================================
// Batches
// ============================================================================

func TestProcessAll_PreservesOrder(t *testing.T) {
	p := newTestPipeline(t)

	var inputs []source.Input
	for i := 0; i < 8; i++ {
		b := testutil.NewRecord("2.0.2").Set("limsSpecName", fmt.Sprintf("Specimen-%02d.01.01", i))
		inputs = append(inputs, input(fmt.Sprintf("r%02d.json", i), b.JSON()))
	}
	inputs[3].Data = []byte("not json")

	outcomes := p.ProcessAll(context.Background(), inputs, 3)
	require.Len(t, outcomes, len(inputs))

	for i, o := range outcomes {
		assert.Equal(t, fmt.Sprintf("r%02d.json", i), o.Source)
		if i == 3 {
			assert.True(t, IsStructural(o.Err))
			continue
		}
		require.NoError(t, o.Err)
		assert.Equal(t, fmt.Sprintf("Specimen-%02d.01.01", i), o.Result.Rows[0]["limsSpecName"])
	}
	assert.Len(t, Rows(outcomes), 7)
}

func TestProcessAll_Cancelled(t *testing.T) {
	p := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inputs := []source.Input{
		input("a.json", testutil.NewRecord("2.0.2").JSON()),
		input("b.json", testutil.NewRecord("2.0.2").JSON()),
	}
	for _, o := range p.ProcessAll(ctx, inputs, 2) {
		assert.ErrorIs(t, o.Err, context.Canceled)
		assert.Nil(t, o.Result)
	}
}

func TestProcessAll_Empty(t *testing.T) {
	p := newTestPipeline(t)
	assert.Empty(t, p.ProcessAll(context.Background(), nil, 4))
}

// ============================================================================
// Observer
// ============================================================================

type countingObserver struct {
	mu         sync.Mutex
	outcomes   map[string]int
	rows       int
	violations int
	issues     int
}

func (o *countingObserver) RecordProcessed(outcome string, rows int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[outcome]++
	o.rows += rows
}

func (o *countingObserver) Violation(string, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.violations++
}

func (o *countingObserver) Issue(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.issues++
}

func TestProcess_ReportsToObserver(t *testing.T) {
	obs := &countingObserver{}
	p := newTestPipeline(t, WithObserver(obs))

	valid := testutil.NewRecord("2.0.2").Attempt(testutil.FailedAttempt()).Attempt(testutil.FailedAttempt()).JSON()
	invalid := testutil.NewRecord("2.0.2").Set("flipped", "Maybe").JSON()

	_, err := p.Process(context.Background(), input("a.json", valid))
	require.NoError(t, err)
	_, err = p.Process(context.Background(), input("b.json", invalid))
	require.NoError(t, err)
	_, err = p.Process(context.Background(), input("c.json", []byte("[]")))
	require.Error(t, err)

	assert.Equal(t, map[string]int{OutcomeValid: 1, OutcomeInvalid: 1, OutcomeStructural: 1}, obs.outcomes)
	assert.Equal(t, 3, obs.rows)
	assert.Equal(t, 1, obs.violations)
	assert.Equal(t, 1, obs.issues)
}
