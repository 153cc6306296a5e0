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

// timeLayout is fixed-width so started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrCodeUnreadable is the error code of inputs that failed before
// reaching the pipeline.
const ErrCodeUnreadable = "R001"

// Run describes one process invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	ConfigHash string
	Lab        string
	Project    string
}

// WriteRun inserts a run. Writing the same ID twice is a no-op.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, config_hash, lab, project)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		run.ConfigHash,
		run.Lab,
		run.Project,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteResult stores one record's rows and issues in a single
// transaction. seq is the record's position in the input order and
// inputHash identifies the input bytes.
//
// Rows are keyed by content hash, so rewriting an identical result
// inserts nothing.
func (s *Store) WriteResult(ctx context.Context, runID string, seq int, inputHash string, res *pipeline.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write result: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (run_id, seq, source, input_hash, form_version, profile, slice_valid)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, source) DO NOTHING
	`, runID, seq, res.Source, inputHash, res.Version.String(), res.Profile, res.SliceValid)
	if err != nil {
		return fmt.Errorf("write result: record: %w", err)
	}

	for i, row := range res.Rows {
		data, err := record.MarshalCanonical(row)
		if err != nil {
			return fmt.Errorf("write result: row %d: %w", i, err)
		}
		hash, err := record.RowHash(row)
		if err != nil {
			return fmt.Errorf("write result: row %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rows (run_id, seq, row_index, row_hash, source, specimen, attempt, container, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, row_hash) DO NOTHING
		`,
			runID, seq, i, hash, res.Source,
			nullString(row, "limsSpecName"),
			row["attempt"],
			nullString(row, pipeline.ColumnContainer),
			string(data),
		)
		if err != nil {
			return fmt.Errorf("write result: row %d: %w", i, err)
		}
	}

	if err := writeIssues(ctx, tx, runID, res.Source, res.Issues); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write result: commit: %w", err)
	}
	return nil
}

// WriteFailure records an input that produced no rows.
func (s *Store) WriteFailure(ctx context.Context, runID string, seq int, source, inputHash string, cause error) error {
	code, message := ErrCodeUnreadable, cause.Error()
	var se *pipeline.StructuralError
	if errors.As(cause, &se) {
		code, message = se.Code, se.Message
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write failure: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (run_id, seq, source, input_hash, error_code)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, source) DO NOTHING
	`, runID, seq, source, inputHash, code)
	if err != nil {
		return fmt.Errorf("write failure: %w", err)
	}

	issue := pipeline.Issue{Code: code, Source: source, Message: message}
	if err := writeIssues(ctx, tx, runID, source, []pipeline.Issue{issue}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write failure: commit: %w", err)
	}
	return nil
}

func writeIssues(ctx context.Context, tx *sql.Tx, runID, source string, issues []pipeline.Issue) error {
	for i, is := range issues {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO issues (run_id, source, issue_seq, code, kind, field, attempt, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, source, issue_seq) DO NOTHING
		`, runID, source, i, is.Code, is.Kind, is.Field, is.Attempt, is.Message)
		if err != nil {
			return fmt.Errorf("write issue: %w", err)
		}
	}
	return nil
}

func nullString(row record.Row, key string) any {
	s, ok := row.String(key)
	if !ok || s == "" {
		return nil
	}
	return s
}
