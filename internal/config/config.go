// Package config loads jemnorm settings from YAML with an optional .env
// overlay. The result is built once at startup and passed to each
// component; nothing reads configuration after that.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Environment variables that override file settings.
const (
	EnvLab            = "JEMNORM_LAB"
	EnvProject        = "JEMNORM_PROJECT"
	EnvUTCOffset      = "JEMNORM_UTC_OFFSET"
	EnvSchemas        = "JEMNORM_SCHEMAS"
	EnvRegions        = "JEMNORM_REGIONS"
	EnvUsers          = "JEMNORM_USERS_CSV"
	EnvWorkers        = "JEMNORM_WORKERS"
	EnvRegistryDriver = "JEMNORM_REGISTRY_DRIVER"
	EnvRegistryDSN    = "JEMNORM_REGISTRY_DSN"
)

// LabConfig identifies where records come from.
type LabConfig struct {
	Name      string   `yaml:"name"`
	Project   string   `yaml:"project"`
	KnownLabs []string `yaml:"known_labs"`
	UTCOffset string   `yaml:"utc_offset"`
}

// InputConfig controls record discovery.
type InputConfig struct {
	Suffix    string `yaml:"suffix"`
	SinceDays int    `yaml:"since_days"`
}

// ContainerConfig controls container derivation.
type ContainerConfig struct {
	SkipProjects []string `yaml:"skip_projects"`
}

// RegistryConfig points at the LIMS database.
type RegistryConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Config is the full jemnorm configuration.
type Config struct {
	Lab            LabConfig         `yaml:"lab"`
	Schemas        string            `yaml:"schemas"`
	Regions        string            `yaml:"regions"`
	Users          string            `yaml:"users"`
	JoinKey        string            `yaml:"join_key"`
	Strict         bool              `yaml:"strict"`
	Workers        int               `yaml:"workers"`
	Input          InputConfig       `yaml:"input"`
	Container      ContainerConfig   `yaml:"container"`
	ExpectedFields []string          `yaml:"expected_fields"`
	FieldDefaults  map[string]string `yaml:"field_defaults"`
	Registry       RegistryConfig    `yaml:"registry"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := parse(defaultYAML, nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values; unknown keys are rejected. An empty path returns the
// defaults. Relative table paths are resolved against the file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = parse(data, cfg)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	cfg.Schemas = resolve(base, cfg.Schemas)
	cfg.Regions = resolve(base, cfg.Regions)
	cfg.Users = resolve(base, cfg.Users)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(data []byte, into *Config) (*Config, error) {
	cfg := into
	if cfg == nil {
		cfg = &Config{}
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// ReadEnvFile returns the variables in a .env file. A missing file yields
// an empty map.
func ReadEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return env, nil
}

// ApplyEnv overlays JEMNORM_* settings. Values from lookup (normally
// os.LookupEnv) take precedence over values from file.
func (c *Config) ApplyEnv(file map[string]string, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		if lookup != nil {
			if v, ok := lookup(key); ok {
				return v, true
			}
		}
		v, ok := file[key]
		return v, ok
	}

	strs := map[string]*string{
		EnvLab:            &c.Lab.Name,
		EnvProject:        &c.Lab.Project,
		EnvUTCOffset:      &c.Lab.UTCOffset,
		EnvSchemas:        &c.Schemas,
		EnvRegions:        &c.Regions,
		EnvUsers:          &c.Users,
		EnvRegistryDriver: &c.Registry.Driver,
		EnvRegistryDSN:    &c.Registry.DSN,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := get(EnvWorkers); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Workers = n
	}

	return c.Validate()
}

// Validate checks settings that would otherwise fail deep in a run.
func (c *Config) Validate() error {
	if c.JoinKey == "" {
		return fmt.Errorf("join_key must be set")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Input.SinceDays < 0 {
		return fmt.Errorf("input.since_days must not be negative")
	}
	switch c.Registry.Driver {
	case "", "pgx", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported registry driver %q", c.Registry.Driver)
	}
	return nil
}

// KnownLab reports whether the configured lab is one whose naive
// timestamps get the lab offset.
func (c *Config) KnownLab() bool {
	return slices.Contains(c.Lab.KnownLabs, c.Lab.Name)
}
