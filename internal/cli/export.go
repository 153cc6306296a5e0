package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/export"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/pipeline"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	RunID    string
	Out      string
	Issues   string
}

// ExportResult summarizes an export.
type ExportResult struct {
	RunID     string           `json:"run_id"`
	Rows      int              `json:"rows"`
	Issues    int              `json:"issues"`
	Summary   store.RunSummary `json:"summary"`
	Output    string           `json:"output,omitempty"`
	IssueFile string           `json:"issue_file,omitempty"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a stored run's rows and issues",
		Long: `Write the rows of a stored run as CSV or JSON lines, and optionally its
issues as JSON lines. Rows come back in the order they were processed.

Exit codes:
  0 - Export written
  2 - Command error (no store, unknown run, unwritable output)

Example:
  jemnorm export --db runs.db --out rows.csv
  jemnorm export --db runs.db --run 0190f3e4-5c1a-7b2e-9d4f-3a8b2c1d0e9f --out rows.jsonl --issues issues.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run store (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID (default: latest run)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write rows to a .csv or .jsonl file (required)")
	cmd.Flags().StringVar(&opts.Issues, "issues", "", "write issues to a .jsonl file")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	if _, err := export.FormatForPath(opts.Out); err != nil {
		return outputCommandError(formatter, ErrCodeWriteFailed, err.Error())
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return outputCommandError(formatter, ErrCodeConfig, err.Error())
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return outputCommandError(formatter, ErrCodeStore, err.Error())
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing run store", "error", closeErr)
		}
	}()

	run, err := selectRun(ctx, st, opts.RunID)
	if err != nil {
		return outputCommandError(formatter, ErrCodeStore, err.Error())
	}
	rows, err := st.ReadRows(ctx, run.ID)
	if err != nil {
		return outputCommandError(formatter, ErrCodeStore, err.Error())
	}
	issues, err := st.ReadIssues(ctx, run.ID)
	if err != nil {
		return outputCommandError(formatter, ErrCodeStore, err.Error())
	}
	summary, err := st.Summarize(ctx, run.ID)
	if err != nil {
		return outputCommandError(formatter, ErrCodeStore, err.Error())
	}
	formatter.VerboseLog("Run %s: %d row(s), %d issue(s)", run.ID, len(rows), len(issues))

	if err := export.WriteFile(opts.Out, rows, export.Columns(rows, leadingColumns(cfg))); err != nil {
		return outputCommandError(formatter, ErrCodeWriteFailed, err.Error())
	}
	result := ExportResult{
		RunID:   run.ID,
		Rows:    len(rows),
		Issues:  len(issues),
		Summary: summary,
		Output:  opts.Out,
	}

	if opts.Issues != "" {
		if err := writeIssues(opts.Issues, issues); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, err.Error())
		}
		result.IssueFile = opts.Issues
	}

	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result, RunID: result.RunID}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)
	}
	fmt.Fprintf(formatter.Writer, "✓ Exported %d row(s) from run %s to %s\n", result.Rows, result.RunID, result.Output)
	if result.IssueFile != "" {
		fmt.Fprintf(formatter.Writer, "✓ Exported %d issue(s) to %s\n", result.Issues, result.IssueFile)
	}
	return nil
}

// writeIssues writes one JSON object per issue.
func writeIssues(path string, issues []pipeline.Issue) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create issue file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close issue file: %w", cerr)
		}
	}()

	enc := json.NewEncoder(f)
	for _, is := range issues {
		if err := enc.Encode(is); err != nil {
			return err
		}
	}
	return nil
}

// openExistingStore opens a run store that must already exist.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("run store not found: %s", path)
	}
	return store.Open(path)
}
