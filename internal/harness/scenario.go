package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a regression test for one pipeline configuration.
// It processes a fixed set of records and asserts on the rows and issues
// they produce.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario covers.
	Description string `yaml:"description"`

	// Config overrides the built-in pipeline configuration.
	Config ConfigOverrides `yaml:"config,omitempty"`

	// Created is the RFC 3339 creation time stamped on every input.
	// If empty, DefaultCreated is used so golden rows stay stable.
	Created string `yaml:"created,omitempty"`

	// Inputs are processed in order.
	Inputs []InputStep `yaml:"inputs"`

	// Assertions run against the processed records.
	Assertions []Assertion `yaml:"assertions"`

	// baseDir resolves relative paths in Config and Inputs.
	baseDir string
}

// ConfigOverrides are the configuration keys a scenario may set.
// Paths are relative to the scenario file.
type ConfigOverrides struct {
	Lab          string   `yaml:"lab,omitempty"`
	Project      string   `yaml:"project,omitempty"`
	KnownLabs    []string `yaml:"known_labs,omitempty"`
	UTCOffset    string   `yaml:"utc_offset,omitempty"`
	Users        string   `yaml:"users,omitempty"`
	Schemas      string   `yaml:"schemas,omitempty"`
	Regions      string   `yaml:"regions,omitempty"`
	Strict       bool     `yaml:"strict,omitempty"`
	SkipProjects []string `yaml:"skip_projects,omitempty"`
}

// InputStep is one record fed to the pipeline. Exactly one of Path,
// Record and Raw must be set.
type InputStep struct {
	// Name is the source file name reported on rows and issues.
	Name string `yaml:"name"`

	// Path reads the record from a file.
	Path string `yaml:"path,omitempty"`

	// Record is the record inline, as YAML.
	Record map[string]any `yaml:"record,omitempty"`

	// Raw is passed to the pipeline byte for byte. Use it for inputs
	// that are not JSON objects.
	Raw string `yaml:"raw,omitempty"`
}

// Assertion checks the outcome of one input.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row_count": input produced Count rows
	// - "row_values": row Row of input has the Expect values
	// - "issue_present": input reported an issue with Code
	// - "issue_absent": input reported no issue with Code
	// - "structural_error": input failed with error Code
	Type string `yaml:"type"`

	// Input is the InputStep name the assertion applies to.
	Input string `yaml:"input"`

	// Count is the expected number of rows (row_count).
	Count int `yaml:"count,omitempty"`

	// Row is the zero-based row index (row_values).
	Row int `yaml:"row,omitempty"`

	// Expect holds expected column values (row_values).
	// Subset match: unlisted columns are not checked. A null value
	// asserts the column is present and empty.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Code is an issue or structural error code.
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount        = "row_count"
	AssertRowValues       = "row_values"
	AssertIssuePresent    = "issue_present"
	AssertIssueAbsent     = "issue_absent"
	AssertStructuralError = "structural_error"
)

// LoadScenario loads a scenario from a YAML file. Relative paths in the
// scenario resolve against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath loads a scenario, resolving relative paths
// against basePath. An empty basePath uses the scenario file's directory.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}

	if basePath == "" {
		basePath = filepath.Dir(path)
	}
	s.baseDir = basePath

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}

	return &s, nil
}

// resolve returns p relative to the scenario's base directory.
func (s *Scenario) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || s.baseDir == "" {
		return p
	}
	return filepath.Join(s.baseDir, p)
}

// validateScenario checks required fields and assertion shapes.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Inputs) == 0 {
		return fmt.Errorf("at least one input is required")
	}
	if s.Created != "" {
		if _, err := parseCreated(s.Created); err != nil {
			return fmt.Errorf("created: %w", err)
		}
	}

	names := make(map[string]bool, len(s.Inputs))
	for i, in := range s.Inputs {
		if err := validateInput(in, i); err != nil {
			return err
		}
		if names[in.Name] {
			return fmt.Errorf("inputs[%d]: duplicate name %q", i, in.Name)
		}
		names[in.Name] = true
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, i, names); err != nil {
			return err
		}
	}

	return nil
}

func validateInput(in InputStep, index int) error {
	if in.Name == "" {
		return fmt.Errorf("inputs[%d]: name is required", index)
	}
	set := 0
	if in.Path != "" {
		set++
	}
	if in.Record != nil {
		set++
	}
	if in.Raw != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("inputs[%d]: exactly one of path, record, raw is required", index)
	}
	return nil
}

func validateAssertion(a Assertion, index int, inputs map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if !inputs[a.Input] {
		return fmt.Errorf("assertions[%d]: unknown input %q", index, a.Input)
	}

	switch a.Type {
	case AssertRowCount:
		if a.Count < 1 {
			return fmt.Errorf("assertions[%d]: count must be at least 1 for row_count", index)
		}
	case AssertRowValues:
		if a.Row < 0 {
			return fmt.Errorf("assertions[%d]: row must be non-negative for row_values", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for row_values", index)
		}
	case AssertIssuePresent, AssertIssueAbsent, AssertStructuralError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
