package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/config"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/pipeline"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/source"
)

// FileValidation is the validation outcome of one record file.
type FileValidation struct {
	Source    string           `json:"source"`
	Version   string           `json:"version,omitempty"`
	Valid     bool             `json:"valid"`
	ErrorCode string           `json:"error_code,omitempty"`
	Error     string           `json:"error,omitempty"`
	Issues    []pipeline.Issue `json:"issues,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool             `json:"valid"`
	Invalid int              `json:"invalid"`
	Files   []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file|dir>...",
		Short: "Validate JEM records without writing output",
		Long: `Validate JEM records against the schemas for their form version.

Every record is run through the full pipeline so date, region, and
container problems are reported alongside schema violations. Nothing
is written.

Exit codes:
  0 - All records valid
  1 - One or more records invalid or unreadable
  2 - Command error (bad config, no files, etc.)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return outputCommandError(formatter, ErrCodeConfig, err.Error())
	}

	p, err := pipeline.FromConfig(cfg, opts.newLogger(cmd.ErrOrStderr()))
	if err != nil {
		return outputCommandError(formatter, ErrCodeBuildFailed, err.Error())
	}

	files, derr := discover(ctx, paths, source.Filter{Suffix: cfg.Input.Suffix})
	if derr != nil {
		return outputCommandError(formatter, derr.Code, derr.Message)
	}
	formatter.VerboseLog("Found %d record file(s)", len(files))

	result := validateFiles(ctx, p, cfg, files)
	return outputValidation(formatter, result)
}

// validateFiles processes every file and collects per-file validity.
func validateFiles(ctx context.Context, p *pipeline.Pipeline, cfg *config.Config, files []string) ValidationResult {
	inputs, failed, _ := source.LoadAll(ctx, files)
	outcomes := p.ProcessAll(ctx, inputs, cfg.Workers)

	byPath := make(map[string]pipeline.Outcome, len(outcomes))
	for i, o := range outcomes {
		byPath[inputs[i].Path] = o
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, path := range files {
		fv := FileValidation{Source: path}
		if loadErr, ok := failed[path]; ok {
			fv.ErrorCode = ErrCodeNotFound
			fv.Error = loadErr.Error()
		} else if o, ok := byPath[path]; ok {
			fv = fileValidation(path, o)
		} else {
			fv.ErrorCode = ErrCodeGeneric
			fv.Error = "not processed"
		}

		if !fv.Valid {
			result.Valid = false
			result.Invalid++
		}
		result.Files = append(result.Files, fv)
	}
	return result
}

func fileValidation(path string, o pipeline.Outcome) FileValidation {
	fv := FileValidation{Source: path}
	if o.Err != nil {
		var se *pipeline.StructuralError
		if errors.As(o.Err, &se) {
			fv.ErrorCode = se.Code
		} else {
			fv.ErrorCode = ErrCodeGeneric
		}
		fv.Error = o.Err.Error()
		return fv
	}

	fv.Version = o.Result.Version.String()
	fv.Issues = o.Result.Issues
	fv.Valid = recordValid(o.Result)
	return fv
}

// recordValid reports whether the slice and every attempt passed
// validation.
func recordValid(res *pipeline.Result) bool {
	if !res.SliceValid {
		return false
	}
	for _, row := range res.Rows {
		if ok, _ := row[pipeline.ColumnAttemptValid].(bool); !ok {
			return false
		}
	}
	return true
}

// discoverError carries the CLI error code for a discovery failure.
type discoverError struct {
	Code    string
	Message string
}

// discover finds record files and maps failures to CLI error codes.
func discover(ctx context.Context, paths []string, filter source.Filter) ([]string, *discoverError) {
	files, err := source.Discover(ctx, paths, filter)
	if err != nil {
		code := ErrCodeScanError
		if errors.Is(err, fs.ErrNotExist) {
			code = ErrCodeNotFound
		}
		return nil, &discoverError{Code: code, Message: err.Error()}
	}
	if len(files) == 0 {
		return nil, &discoverError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no record files found in %v", paths)}
	}
	return files, nil
}

// outputValidation writes the validation result.
func outputValidation(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    ErrCodeInvalid,
				Message: fmt.Sprintf("%d record(s) invalid", result.Invalid),
			}
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	} else {
		for _, f := range result.Files {
			if f.Valid {
				fmt.Fprintf(formatter.Writer, "✓ %s (%s)\n", f.Source, f.Version)
				continue
			}
			fmt.Fprintf(formatter.Writer, "✗ %s\n", f.Source)
			if f.ErrorCode != "" {
				fmt.Fprintf(formatter.Writer, "  %s: %s\n", f.ErrorCode, f.Error)
			}
			for _, is := range f.Issues {
				fmt.Fprintf(formatter.Writer, "  %s\n", is)
			}
		}
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintf(formatter.Writer, "Validation Summary: %d valid, %d invalid, %d total\n",
			len(result.Files)-result.Invalid, result.Invalid, len(result.Files))
	}

	if !result.Valid {
		// Invalid records = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) invalid", result.Invalid))
	}
	return nil
}

// outputCommandError outputs a command-level error (exit code 2).
func outputCommandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// commandContext returns the command's context, or Background if unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
