package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/schema"
)

// FieldInfo describes one declared field.
type FieldInfo struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Allowed  []string `json:"allowed,omitempty"`
	Pattern  string   `json:"pattern,omitempty"`
	MinLen   int      `json:"min_length,omitempty"`
}

// SchemaInfo describes one registered spec.
type SchemaInfo struct {
	Name       string      `json:"name"`
	Kind       string      `json:"kind"`
	MinVersion string      `json:"min_version"`
	Strict     bool        `json:"strict"`
	Fields     []FieldInfo `json:"fields"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [kind]",
		Short: "Show the registered record schemas",
		Long: `Show the schemas records are validated against.

Each kind (slice, attempt, sample) may have several schemas keyed by
minimum form version; a record uses the highest minimum not above its
version. Schemas come from the config's schemas file, or the built-in
set when none is configured.`,
		Args:          cobra.MaximumNArgs(1),
		ValidArgs:     kindNames(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := ""
			if len(args) == 1 {
				kind = args[0]
			}
			return runSchema(rootOpts, kind, cmd)
		},
	}

	return cmd
}

func runSchema(opts *RootOptions, kind string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	kinds := schema.Kinds
	if kind != "" {
		k := schema.Kind(kind)
		if !isKnownKind(k) {
			return outputCommandError(formatter, ErrCodeUnknownKind,
				fmt.Sprintf("unknown schema kind %q: must be one of %v", kind, kindNames()))
		}
		kinds = []schema.Kind{k}
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return outputCommandError(formatter, ErrCodeConfig, err.Error())
	}

	var reg *schema.Registry
	if cfg.Schemas != "" {
		reg, err = schema.LoadFile(cfg.Schemas)
	} else {
		reg, err = schema.Default()
	}
	if err != nil {
		return outputCommandError(formatter, ErrCodeBuildFailed, err.Error())
	}
	formatter.VerboseLog("Loaded %d schema(s)", reg.Len())

	var infos []SchemaInfo
	for _, k := range kinds {
		for _, spec := range reg.Entries(k) {
			infos = append(infos, describeSpec(spec))
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(infos)
	}

	w := formatter.Writer
	for _, info := range infos {
		strict := ""
		if info.Strict {
			strict = ", strict"
		}
		fmt.Fprintf(w, "%s (%s, >= %s%s)\n", info.Name, info.Kind, info.MinVersion, strict)
		for _, f := range info.Fields {
			req := " "
			if f.Required {
				req = "*"
			}
			line := fmt.Sprintf("  %s %-40s %s", req, f.Name, f.Type)
			if len(f.Allowed) > 0 {
				line += " [" + strings.Join(f.Allowed, "|") + "]"
			}
			if f.Pattern != "" {
				line += " /" + f.Pattern + "/"
			}
			if f.MinLen > 0 {
				line += fmt.Sprintf(" (min %d)", f.MinLen)
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func describeSpec(spec *schema.Spec) SchemaInfo {
	info := SchemaInfo{
		Name:       spec.Name,
		Kind:       string(spec.Kind),
		MinVersion: spec.MinVersion.String(),
		Strict:     spec.Strict,
		Fields:     make([]FieldInfo, 0, len(spec.Fields)),
	}
	for _, name := range spec.FieldNames() {
		f := spec.Fields[name]
		fi := FieldInfo{
			Name:     name,
			Type:     string(f.Type),
			Required: f.Required,
			Allowed:  f.Allowed,
			MinLen:   f.MinLength,
		}
		if f.Regex != nil {
			fi.Pattern = f.Regex.Pattern
		}
		info.Fields = append(info.Fields, fi)
	}
	return info
}

func isKnownKind(k schema.Kind) bool {
	return slices.Contains(schema.Kinds, k)
}

func kindNames() []string {
	names := make([]string, len(schema.Kinds))
	for i, k := range schema.Kinds {
		names[i] = string(k)
	}
	return names
}
