package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/pipeline"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
)

// ErrNoRuns is returned by LatestRun on an empty store.
var ErrNoRuns = errors.New("store has no runs")

// ReadRows returns the rows of a run in input order.
// Returns an empty slice (not nil) if the run has no rows.
func (s *Store) ReadRows(ctx context.Context, runID string) ([]record.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM rows
		WHERE run_id = ?
		ORDER BY seq ASC, row_index ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	out := []record.Row{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		raw, err := record.Parse([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, record.Row(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// ReadIssues returns the issues of a run ordered by source, then by the
// order they were reported.
func (s *Store) ReadIssues(ctx context.Context, runID string) ([]pipeline.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, code, kind, field, attempt, message FROM issues
		WHERE run_id = ?
		ORDER BY source COLLATE BINARY ASC, issue_seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	out := []pipeline.Issue{}
	for rows.Next() {
		var is pipeline.Issue
		if err := rows.Scan(&is.Source, &is.Code, &is.Kind, &is.Field, &is.Attempt, &is.Message); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		out = append(out, is)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}
	return out, nil
}

// ContainerRow is a derived container and the row it came from.
type ContainerRow struct {
	Container string
	Specimen  string
	Source    string
	Attempt   int
}

// Containers returns every row of a run that has a container, sorted by
// container.
func (s *Store) Containers(ctx context.Context, runID string) ([]ContainerRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT container, COALESCE(specimen, ''), source, COALESCE(attempt, 0) FROM rows
		WHERE run_id = ? AND container IS NOT NULL
		ORDER BY container COLLATE BINARY ASC, seq ASC, row_index ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query containers: %w", err)
	}
	defer rows.Close()

	out := []ContainerRow{}
	for rows.Next() {
		var c ContainerRow
		if err := rows.Scan(&c.Container, &c.Specimen, &c.Source, &c.Attempt); err != nil {
			return nil, fmt.Errorf("scan container: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate containers: %w", err)
	}
	return out, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, config_hash, lab, project FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRuns
	}
	return run, err
}

// ReadRun returns the run with the given ID.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, config_hash, lab, project FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %q not found", id)
	}
	return run, err
}

// RunSummary counts what a run produced.
type RunSummary struct {
	Records    int `json:"records"`
	Failed     int `json:"failed"`
	Rows       int `json:"rows"`
	Containers int `json:"containers"`
	Issues     int `json:"issues"`
}

// Summarize counts the records, rows, and issues of a run.
func (s *Store) Summarize(ctx context.Context, runID string) (RunSummary, error) {
	var sum RunSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM records WHERE run_id = ?1),
			(SELECT COUNT(*) FROM records WHERE run_id = ?1 AND error_code != ''),
			(SELECT COUNT(*) FROM rows WHERE run_id = ?1),
			(SELECT COUNT(*) FROM rows WHERE run_id = ?1 AND container IS NOT NULL),
			(SELECT COUNT(*) FROM issues WHERE run_id = ?1)
	`, runID).Scan(&sum.Records, &sum.Failed, &sum.Rows, &sum.Containers, &sum.Issues)
	if err != nil {
		return RunSummary{}, fmt.Errorf("summarize run: %w", err)
	}
	return sum, nil
}

func scanRun(row *sql.Row) (Run, error) {
	var run Run
	var started string
	if err := row.Scan(&run.ID, &started, &run.ConfigHash, &run.Lab, &run.Project); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	ts, err := time.Parse(timeLayout, started)
	if err != nil {
		return Run{}, fmt.Errorf("parse run start: %w", err)
	}
	run.StartedAt = ts
	return run, nil
}
