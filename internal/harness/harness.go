package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/config"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/pipeline"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/record"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/source"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/testutil"
)

// DefaultCreated is the creation time stamped on inputs when a scenario
// does not set one.
const DefaultCreated = "2018-03-15T00:00:00Z"

// Harness runs the inputs of one scenario through a pipeline built from
// the scenario's configuration.
type Harness struct {
	pipeline *pipeline.Pipeline
	clock    *testutil.FixedClock
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Build the configuration from defaults plus scenario overrides
// 2. Build the pipeline from that configuration
// 3. Process each input in order with a fixed creation time
// 4. Evaluate assertions against the outcomes
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := scenarioConfig(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	created := DefaultCreated
	if scenario.Created != "" {
		created = scenario.Created
	}
	ts, err := parseCreated(created)
	if err != nil {
		return nil, err
	}

	// Suppress logs; issues are captured in the result.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := pipeline.FromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	h := &Harness{
		pipeline: p,
		clock:    testutil.NewFixedClock(ts),
		logger:   logger,
	}

	ctx := context.Background()
	result := NewResult()
	for _, step := range scenario.Inputs {
		out, err := h.process(ctx, scenario, step)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", step.Name, err)
		}
		result.Records = append(result.Records, out)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) process(ctx context.Context, scenario *Scenario, step InputStep) (RecordOutcome, error) {
	data, err := inputData(scenario, step)
	if err != nil {
		return RecordOutcome{}, err
	}

	in := source.Input{Path: step.Name, Data: data, Created: h.clock.Now()}
	res, err := h.pipeline.Process(ctx, in)
	if err != nil {
		var se *pipeline.StructuralError
		if errors.As(err, &se) {
			return RecordOutcome{Input: step.Name, Rows: []record.Row{}, ErrorCode: se.Code}, nil
		}
		return RecordOutcome{}, err
	}

	return RecordOutcome{
		Input:   step.Name,
		Version: res.Version.String(),
		Rows:    res.Rows,
		Issues:  res.Issues,
	}, nil
}

func inputData(scenario *Scenario, step InputStep) ([]byte, error) {
	switch {
	case step.Path != "":
		data, err := os.ReadFile(scenario.resolve(step.Path))
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		return data, nil
	case step.Record != nil:
		data, err := json.Marshal(step.Record)
		if err != nil {
			return nil, fmt.Errorf("failed to encode inline record: %w", err)
		}
		return data, nil
	default:
		return []byte(step.Raw), nil
	}
}

// scenarioConfig applies the scenario overrides to the built-in config.
func scenarioConfig(s *Scenario) (*config.Config, error) {
	cfg := config.Default()
	o := s.Config

	if o.Lab != "" {
		cfg.Lab.Name = o.Lab
	}
	if o.Project != "" {
		cfg.Lab.Project = o.Project
	}
	if o.KnownLabs != nil {
		cfg.Lab.KnownLabs = o.KnownLabs
	}
	if o.UTCOffset != "" {
		cfg.Lab.UTCOffset = o.UTCOffset
	}
	if o.Users != "" {
		cfg.Users = s.resolve(o.Users)
	}
	if o.Schemas != "" {
		cfg.Schemas = s.resolve(o.Schemas)
	}
	if o.Regions != "" {
		cfg.Regions = s.resolve(o.Regions)
	}
	if o.SkipProjects != nil {
		cfg.Container.SkipProjects = o.SkipProjects
	}
	cfg.Strict = o.Strict

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseCreated(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid created time %q: %w", s, err)
	}
	return ts, nil
}
