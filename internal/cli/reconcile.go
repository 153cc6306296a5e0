package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/registry"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/store"
)

// RegistryOpener connects to LIMS.
type RegistryOpener func(ctx context.Context, driver, dsn string) (*registry.Registry, error)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Database string
	RunID    string

	// OpenRegistry allows overriding the LIMS connection (for testing).
	// If nil, defaults to registry.Open.
	OpenRegistry RegistryOpener
}

// ReconcileResult is the reconcile command output.
type ReconcileResult struct {
	RunID      string `json:"run_id"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Consistent bool   `json:"consistent"`
	registry.Report
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return newReconcileCommand(&ReconcileOptions{RootOptions: rootOpts})
}

func newReconcileCommand(opts *ReconcileOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare a stored run's containers with LIMS",
		Long: `Compare the containers derived in a stored run with the samples LIMS
holds for the same dates.

The LIMS connection comes from the registry section of the config, or
JEMNORM_REGISTRY_DRIVER / JEMNORM_REGISTRY_DSN.

Exit codes:
  0 - JEM and LIMS agree
  1 - Containers missing on either side or specimen mismatch
  2 - Command error (no run, no registry configured, etc.)

Example:
  jemnorm reconcile --db runs.db
  jemnorm reconcile --db runs.db --run 0190f3e4-5c1a-7b2e-9d4f-3a8b2c1d0e9f --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run store (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID (default: latest run)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReconcile(opts *ReconcileOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

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

	rows, err := st.Containers(ctx, run.ID)
	if err != nil {
		return outputCommandError(formatter, ErrCodeStore, err.Error())
	}
	entries := make([]registry.Entry, len(rows))
	for i, r := range rows {
		entries[i] = registry.Entry{Container: r.Container, Specimen: r.Specimen, Source: r.Source}
	}
	formatter.VerboseLog("Run %s has %d container(s)", run.ID, len(entries))

	result := ReconcileResult{RunID: run.ID}
	from, to, ok := registry.DateRange(entries)
	if ok {
		open := opts.OpenRegistry
		if open == nil {
			open = registry.Open
		}
		reg, err := open(ctx, registryDriver(cfg.Registry.Driver), cfg.Registry.DSN)
		if err != nil {
			return outputCommandError(formatter, ErrCodeRegistry, err.Error())
		}
		defer reg.Close()

		samples, err := reg.SamplesByDateRange(ctx, from, to)
		if err != nil {
			return outputCommandError(formatter, ErrCodeRegistry, err.Error())
		}
		result.From, result.To = from, to
		result.Report = registry.Reconcile(entries, samples)
	} else {
		result.Report = registry.Reconcile(entries, nil)
	}
	result.Consistent = result.Report.Consistent()

	return outputReconcile(formatter, result)
}

// selectRun returns the named run, or the latest when id is empty.
func selectRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	if id != "" {
		return st.ReadRun(ctx, id)
	}
	run, err := st.LatestRun(ctx)
	if errors.Is(err, store.ErrNoRuns) {
		return store.Run{}, fmt.Errorf("no runs in store")
	}
	return run, err
}

// registryDriver maps config driver names to registry drivers.
func registryDriver(name string) string {
	switch name {
	case "", "postgres":
		return registry.DriverPostgres
	}
	return name
}

func outputReconcile(formatter *OutputFormatter, result ReconcileResult) error {
	summary := fmt.Sprintf("%d matched, %d mismatched, %d only in JEM, %d only in LIMS",
		len(result.Matched), len(result.Mismatched), len(result.OnlyJEM), len(result.OnlyLIMS))

	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result, RunID: result.RunID}
		if !result.Consistent {
			response.Status = "error"
			response.Error = &CLIError{Code: ErrCodeInconsistent, Message: summary}
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintf(w, "Run %s", result.RunID)
		if result.From != "" {
			fmt.Fprintf(w, " (containers %s to %s)", result.From, result.To)
		}
		fmt.Fprintln(w)
		for _, m := range result.Mismatched {
			fmt.Fprintf(w, "✗ %s: JEM %s, LIMS %s (%s)\n", m.Container, m.JEMSpecimen, m.LIMSSpecimen, m.Source)
		}
		for _, e := range result.OnlyJEM {
			fmt.Fprintf(w, "✗ %s: only in JEM (%s)\n", e.Container, e.Source)
		}
		for _, s := range result.OnlyLIMS {
			fmt.Fprintf(w, "✗ %s: only in LIMS (%s)\n", s.Container, s.CellName)
		}
		fmt.Fprintf(w, "\nReconcile Summary: %s\n", summary)
	}

	if !result.Consistent {
		return NewExitError(ExitFailure, summary)
	}
	return nil
}
