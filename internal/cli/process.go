package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/config"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/export"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/metrics"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/pipeline"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/source"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/store"
)

// ProcessOptions holds flags for the process command.
type ProcessOptions struct {
	*RootOptions
	Since       int
	Suffix      string
	Out         string
	Database    string
	MetricsFile string
	Workers     int

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs IDGenerator

	// Now allows overriding the clock (for testing). If nil, time.Now.
	Now func() time.Time
}

// RecordFailure is an input that produced no rows.
type RecordFailure struct {
	Source  string `json:"source"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProcessResult summarizes one process run.
type ProcessResult struct {
	RunID       string          `json:"run_id"`
	Files       int             `json:"files"`
	Records     int             `json:"records"`
	Rows        int             `json:"rows"`
	Containers  int             `json:"containers"`
	Issues      int             `json:"issues"`
	Failures    []RecordFailure `json:"failures,omitempty"`
	Output      string          `json:"output,omitempty"`
	Database    string          `json:"database,omitempty"`
	MetricsFile string          `json:"metrics_file,omitempty"`
}

// NewProcessCommand creates the process command.
func NewProcessCommand(rootOpts *RootOptions) *cobra.Command {
	return newProcessCommand(&ProcessOptions{RootOptions: rootOpts})
}

func newProcessCommand(opts *ProcessOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <file|dir>...",
		Short: "Normalize JEM records into attempt rows",
		Long: `Normalize JEM records and flatten them into one row per pipette attempt.

Record files are discovered by filename suffix and, with --since, by
modification time. Rows can be written as CSV or JSON lines (--out),
stored in a SQLite run store (--db), and counted in a Prometheus
textfile (--metrics-file).

Exit codes:
  0 - Every record produced rows
  1 - One or more records could not be read or flattened
  2 - Command error (bad config, no files, unwritable output)

Example:
  jemnorm process --since 7 --suffix PS.json --out rows.csv /data/jem
  jemnorm process --db runs.db --metrics-file jemnorm.prom ./records`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(opts, args, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Since, "since", 0, "only records modified in the last N days (0 = all; default from config)")
	cmd.Flags().StringVar(&opts.Suffix, "suffix", "", "record filename suffix (default from config)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write rows to a .csv or .jsonl file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run store")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus counters to this textfile")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "records processed concurrently (default from config)")

	return cmd
}

func runProcess(opts *ProcessOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return outputCommandError(formatter, ErrCodeConfig, err.Error())
	}
	if cmd.Flags().Changed("since") {
		cfg.Input.SinceDays = opts.Since
	}
	if opts.Suffix != "" {
		cfg.Input.Suffix = opts.Suffix
	}
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}
	if err := cfg.Validate(); err != nil {
		return outputCommandError(formatter, ErrCodeConfig, err.Error())
	}
	if opts.Out != "" {
		if _, err := export.FormatForPath(opts.Out); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, err.Error())
		}
	}

	logger := opts.newLogger(cmd.ErrOrStderr())
	recorder := metrics.NewRecorder()
	p, err := pipeline.FromConfig(cfg, logger, pipeline.WithObserver(recorder))
	if err != nil {
		return outputCommandError(formatter, ErrCodeBuildFailed, err.Error())
	}

	// Stop starting new records on Ctrl-C; finished ones are still written.
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	ids := opts.RunIDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	started := now()
	runID := ids.Generate()

	files, derr := discover(ctx, paths, source.Window(cfg.Input.Suffix, cfg.Input.SinceDays, started))
	if derr != nil {
		return outputCommandError(formatter, derr.Code, derr.Message)
	}
	logger.Info("processing records", "run", runID, "files", len(files), "workers", cfg.Workers)

	inputs, failed, err := source.LoadAll(ctx, files)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read records", err)
	}
	outcomes := p.ProcessAll(ctx, inputs, cfg.Workers)

	batch := newBatch(files, inputs, outcomes, failed)
	result := batch.summarize(runID)

	if opts.Database != "" {
		run := store.Run{
			ID:         runID,
			StartedAt:  started,
			ConfigHash: configHash(cfg),
			Lab:        cfg.Lab.Name,
			Project:    cfg.Lab.Project,
		}
		if err := batch.write(ctx, opts.Database, run); err != nil {
			return outputCommandError(formatter, ErrCodeStore, err.Error())
		}
		result.Database = opts.Database
		logger.Info("run stored", "run", runID, "db", opts.Database)
	}

	if opts.Out != "" {
		rows := pipeline.Rows(outcomes)
		if err := export.WriteFile(opts.Out, rows, export.Columns(rows, leadingColumns(cfg))); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, err.Error())
		}
		result.Output = opts.Out
	}

	if opts.MetricsFile != "" {
		if err := recorder.WriteFile(opts.MetricsFile); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, err.Error())
		}
		result.MetricsFile = opts.MetricsFile
	}

	logger.Info("run complete",
		"run", runID,
		"records", result.Records,
		"rows", result.Rows,
		"failed", len(result.Failures),
		"issues", result.Issues,
	)
	return outputProcess(formatter, result)
}

// batch lines up discovered files with what happened to them.
type batch struct {
	files    []string
	inputs   map[string]source.Input
	outcomes map[string]pipeline.Outcome
	failed   map[string]error
}

func newBatch(files []string, inputs []source.Input, outcomes []pipeline.Outcome, failed map[string]error) *batch {
	b := &batch{
		files:    files,
		inputs:   make(map[string]source.Input, len(inputs)),
		outcomes: make(map[string]pipeline.Outcome, len(outcomes)),
		failed:   failed,
	}
	for i, in := range inputs {
		b.inputs[in.Path] = in
		b.outcomes[in.Path] = outcomes[i]
	}
	return b
}

func (b *batch) summarize(runID string) ProcessResult {
	res := ProcessResult{RunID: runID, Files: len(b.files)}
	for _, path := range b.files {
		if err, ok := b.failed[path]; ok {
			res.Failures = append(res.Failures, RecordFailure{Source: filepath.Base(path), Code: store.ErrCodeUnreadable, Message: err.Error()})
			continue
		}
		o := b.outcomes[path]
		if o.Err != nil {
			code := store.ErrCodeUnreadable
			var se *pipeline.StructuralError
			if errors.As(o.Err, &se) {
				code = se.Code
			}
			res.Failures = append(res.Failures, RecordFailure{Source: o.Source, Code: code, Message: o.Err.Error()})
			continue
		}
		res.Records++
		res.Rows += len(o.Result.Rows)
		res.Issues += len(o.Result.Issues)
		for _, row := range o.Result.Rows {
			if row[pipeline.ColumnContainer] != nil {
				res.Containers++
			}
		}
	}
	return res
}

// write stores the run in the SQLite store. seq follows file order.
func (b *batch) write(ctx context.Context, path string, run store.Run) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing run store", "error", closeErr)
		}
	}()

	// Writes must finish even if processing was interrupted.
	ctx = context.WithoutCancel(ctx)

	if err := st.WriteRun(ctx, run); err != nil {
		return err
	}
	for seq, p := range b.files {
		if loadErr, ok := b.failed[p]; ok {
			if err := st.WriteFailure(ctx, run.ID, seq, filepath.Base(p), "", loadErr); err != nil {
				return err
			}
			continue
		}
		in := b.inputs[p]
		o := b.outcomes[p]
		hash := record.InputHash(in.Data)
		if o.Err != nil {
			if err := st.WriteFailure(ctx, run.ID, seq, o.Source, hash, o.Err); err != nil {
				return err
			}
			continue
		}
		if err := st.WriteResult(ctx, run.ID, seq, hash, o.Result); err != nil {
			return err
		}
	}
	return nil
}

// leadingColumns puts the join key first, then the expected fields.
func leadingColumns(cfg *config.Config) []string {
	cols := []string{cfg.JoinKey}
	for _, f := range cfg.ExpectedFields {
		if !slices.Contains(cols, f) {
			cols = append(cols, f)
		}
	}
	return cols
}

// configHash identifies the effective configuration of a run.
func configHash(cfg *config.Config) string {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return ""
	}
	return record.InputHash(data)
}

// outputProcess writes the run summary.
func outputProcess(formatter *OutputFormatter, result ProcessResult) error {
	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result, RunID: result.RunID}
		if len(result.Failures) > 0 {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    ErrCodeStructural,
				Message: fmt.Sprintf("%d record(s) failed", len(result.Failures)),
			}
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintf(w, "Run %s\n", result.RunID)
		fmt.Fprintf(w, "  files:      %d\n", result.Files)
		fmt.Fprintf(w, "  records:    %d\n", result.Records)
		fmt.Fprintf(w, "  rows:       %d\n", result.Rows)
		fmt.Fprintf(w, "  containers: %d\n", result.Containers)
		fmt.Fprintf(w, "  issues:     %d\n", result.Issues)
		if result.Output != "" {
			fmt.Fprintf(w, "  output:     %s\n", result.Output)
		}
		if result.Database != "" {
			fmt.Fprintf(w, "  database:   %s\n", result.Database)
		}
		for _, f := range result.Failures {
			fmt.Fprintf(w, "✗ %s: %s: %s\n", f.Source, f.Code, f.Message)
		}
	}

	if len(result.Failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed", len(result.Failures)))
	}
	return nil
}
