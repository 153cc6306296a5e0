package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/config"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/container"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/datetime"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/region"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/schema"
	"github.com/AllenInstitute/ephys-analysis-tools/internal/validate"
)

// FromConfig loads the tables named in cfg and builds a Pipeline.
// Empty table paths use the embedded defaults. A missing user table is
// logged and composed containers then fail their lookup.
func FromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var c Components
	var err error

	if cfg.Schemas != "" {
		if c.Schemas, err = schema.LoadFile(cfg.Schemas); err != nil {
			return nil, fmt.Errorf("schemas: %w", err)
		}
	}

	if cfg.Regions != "" {
		table, err := region.LoadTable(cfg.Regions)
		if err != nil {
			return nil, fmt.Errorf("regions: %w", err)
		}
		if c.Regions, err = region.New(table); err != nil {
			return nil, fmt.Errorf("regions: %w", err)
		}
	}

	if c.Dates, err = datetime.New(cfg.Lab.UTCOffset); err != nil {
		return nil, err
	}

	if cfg.Users != "" {
		if c.Users, err = container.LoadUsers(cfg.Users); err != nil {
			logger.Warn("user table not loaded, operator names not normalized", "path", cfg.Users, "error", err)
			c.Users = nil
		} else {
			logger.Debug("user table loaded", "path", cfg.Users, "users", c.Users.Len())
		}
	}
	c.Deriver = container.NewDeriver(c.Users, c.Dates, container.WithSkipProjects(cfg.Container.SkipProjects...))

	var vopts []validate.Option
	if cfg.Strict {
		vopts = append(vopts, validate.WithStrict())
	}
	c.Validator = validate.New(vopts...)

	s := Settings{
		JoinKey:        cfg.JoinKey,
		Project:        cfg.Lab.Project,
		KnownLab:       cfg.KnownLab(),
		ExpectedFields: cfg.ExpectedFields,
		FieldDefaults:  cfg.FieldDefaults,
	}
	return New(c, s, append([]Option{WithLogger(logger)}, opts...)...)
}
