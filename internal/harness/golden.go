package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
)

// Snapshot renders the scenario's outcomes as canonical JSON.
// Issue messages are omitted so wording changes do not churn golden files.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	records := make([]any, len(result.Records))
	for i, rec := range result.Records {
		rows := make([]any, len(rec.Rows))
		for j, row := range rec.Rows {
			rows[j] = row
		}
		issues := make([]any, len(rec.Issues))
		for j, is := range rec.Issues {
			m := map[string]any{"code": is.Code}
			if is.Field != "" {
				m["field"] = is.Field
			}
			if is.Kind != "" {
				m["kind"] = is.Kind
			}
			if is.Attempt > 0 {
				m["attempt"] = is.Attempt
			}
			issues[j] = m
		}

		entry := map[string]any{
			"input":  rec.Input,
			"rows":   rows,
			"issues": issues,
		}
		if rec.Version != "" {
			entry["version"] = rec.Version
		}
		if rec.ErrorCode != "" {
			entry["error_code"] = rec.ErrorCode
		}
		records[i] = entry
	}

	return record.MarshalCanonical(map[string]any{
		"scenario_name": scenarioName,
		"records":       records,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
