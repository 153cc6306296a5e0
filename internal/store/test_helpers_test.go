package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/pipeline"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/version"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// writeTestRun inserts a run started at a fixed time.
func writeTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run := Run{
		ID:        id,
		StartedAt: time.Date(2018, 3, 15, 9, 0, 0, 0, time.UTC),
		Lab:       "AIBSPipeline",
		Project:   "MET",
	}
	if err := s.WriteRun(context.Background(), run); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	return run
}

// createTestResult creates a result with one row per container. An empty
// container yields a row without one.
func createTestResult(source string, containers ...string) *pipeline.Result {
	res := &pipeline.Result{
		Source:     source,
		Version:    version.MustParse("2.0.2"),
		Profile:    "production-direct",
		SliceValid: true,
	}
	for i, c := range containers {
		row := record.Row{
			"limsSpecName":           "Specimen-" + source,
			"attempt":                i + 1,
			"status":                 "SUCCESS",
			"source_file":            source,
			"depth":                  55.5,
			"roi":                    nil,
			pipeline.ColumnContainer: nil,
		}
		if c != "" {
			row[pipeline.ColumnContainer] = c
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}
