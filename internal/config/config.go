package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/b2a/internal/actuals"
	"github.com/cleared-dev/b2a/internal/financials"
	"github.com/cleared-dev/b2a/internal/model"
	"github.com/cleared-dev/b2a/internal/money"
)

// FileName is the configuration file at the root of a b2a workspace.
const FileName = "b2a.yaml"

// Config represents the top-level b2a.yaml configuration.
type Config struct {
	Project       ProjectConfig            `yaml:"project"`
	Database      DatabaseConfig           `yaml:"database"`
	Rates         RatesConfig              `yaml:"rates"`
	Aggregation   AggregationConfig        `yaml:"aggregation"`
	ReservedCodes financials.ReservedCodes `yaml:"reserved_codes"`
	Snapshots     SnapshotsConfig          `yaml:"snapshots"`
	Log           LogConfig                `yaml:"log"`
	Git           GitConfig                `yaml:"git"`
}

// ProjectConfig identifies the project bills are built for.
type ProjectConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig locates the SQLite database, relative to the workspace.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RatesConfig holds the bill financials rates as decimal strings.
type RatesConfig struct {
	ProfitPercent string `yaml:"profit_percent"`
	InsuranceRate string `yaml:"insurance_rate"` // per $1,000
	BOTax         string `yaml:"bo_tax"`
	SalesTax      string `yaml:"sales_tax"`
}

// AggregationConfig controls how documents are aggregated.
type AggregationConfig struct {
	UnknownCostCode string `yaml:"unknown_cost_code"` // "skip" or "fail"
}

// SnapshotsConfig controls fetching bill snapshots for reports. With an
// empty URL snapshots are read from the local database.
type SnapshotsConfig struct {
	URL          string `yaml:"url,omitempty"`
	TokenEnv     string `yaml:"token_env,omitempty"`
	MaxAttempts  int    `yaml:"max_attempts"`
	InitialDelay string `yaml:"initial_delay"`
	Concurrency  int    `yaml:"concurrency"`
}

// LogConfig sets the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// GitConfig controls committing workspace changes after each bill or
// budget operation.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Load reads a b2a.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default("", "")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default(projectID, projectName string) *Config {
	return &Config{
		Project:  ProjectConfig{ID: projectID, Name: projectName},
		Database: DatabaseConfig{Path: "b2a.db"},
		Rates: RatesConfig{
			ProfitPercent: "10",
			InsuranceRate: "0",
			BOTax:         "0",
			SalesTax:      "0",
		},
		Aggregation:   AggregationConfig{UnknownCostCode: string(actuals.SkipUnknown)},
		ReservedCodes: financials.DefaultReservedCodes,
		Snapshots: SnapshotsConfig{
			MaxAttempts:  3,
			InitialDelay: "300ms",
			Concurrency:  4,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Git: GitConfig{
			AuthorName:  "b2a",
			AuthorEmail: "b2a@localhost",
		},
	}
}

// Validate checks every field that is parsed later.
func (c *Config) Validate() error {
	if _, err := c.ProjectRates(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := c.InitialDelay(); err != nil {
		return err
	}
	if c.Snapshots.MaxAttempts < 1 {
		return fmt.Errorf("snapshots.max_attempts must be at least 1, got %d", c.Snapshots.MaxAttempts)
	}
	if c.Snapshots.Concurrency < 1 {
		return fmt.Errorf("snapshots.concurrency must be at least 1, got %d", c.Snapshots.Concurrency)
	}
	return nil
}

// ProjectRates parses the configured rates.
func (c *Config) ProjectRates() (model.ProjectRates, error) {
	var r model.ProjectRates
	var err error
	if r.ProfitPercent, err = parseRate("profit_percent", c.Rates.ProfitPercent); err != nil {
		return r, err
	}
	if r.InsuranceRate, err = parseRate("insurance_rate", c.Rates.InsuranceRate); err != nil {
		return r, err
	}
	if r.BOTax, err = parseRate("bo_tax", c.Rates.BOTax); err != nil {
		return r, err
	}
	if r.SalesTax, err = parseRate("sales_tax", c.Rates.SalesTax); err != nil {
		return r, err
	}
	return r, nil
}

func parseRate(name, raw string) (decimal.Decimal, error) {
	d, err := money.Parse(raw)
	if err != nil {
		return d, fmt.Errorf("rates.%s: %w", name, err)
	}
	if d.IsNegative() {
		return d, fmt.Errorf("rates.%s must not be negative, got %s", name, raw)
	}
	return d, nil
}

// Policy parses aggregation.unknown_cost_code.
func (c *Config) Policy() (actuals.UnknownCodePolicy, error) {
	return actuals.ParsePolicy(c.Aggregation.UnknownCostCode)
}

// InitialDelay parses snapshots.initial_delay.
func (c *Config) InitialDelay() (time.Duration, error) {
	d, err := time.ParseDuration(c.Snapshots.InitialDelay)
	if err != nil {
		return 0, fmt.Errorf("snapshots.initial_delay: %w", err)
	}
	return d, nil
}
