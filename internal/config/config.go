// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sirikarn/edoc-pipeline/internal/graph"
	"github.com/sirikarn/edoc-pipeline/internal/library"
	"github.com/sirikarn/edoc-pipeline/internal/notify"
	"github.com/sirikarn/edoc-pipeline/internal/pipeline"
	"github.com/sirikarn/edoc-pipeline/internal/remote"
)

// Resave configures the pre-merge rewrite chain.
type Resave struct {
	// Enabled turns the pre-merge resave pass on.
	Enabled bool `json:"enabled"`
	// Command is the external rewriter argv; empty means library-only.
	Command []string `json:"command"`
	// TimeoutSeconds bounds one external rewrite.
	TimeoutSeconds int64 `json:"timeout_seconds" validate:"gte=0"`
}

// Config is the full runtime configuration, loaded from a JSON file with
// secrets supplied through the environment.
type Config struct {
	TenantID     string `json:"tenant_id" validate:"required"`
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"-" validate:"required"`

	Graph   graph.Config   `json:"graph"`
	Source  remote.Config  `json:"source"`
	Library library.Config `json:"library"`
	Notify  notify.Config  `json:"notify"`

	Teams []pipeline.Team `json:"teams" validate:"required,min=1,dive"`

	WorkDir     string `json:"work_dir"`
	LogsDir     string `json:"logs_dir"`
	SummaryPath string `json:"summary_path"`

	Sender      string `json:"sender" validate:"required,email"`
	DatabaseURL string `json:"database_url,omitempty"` // Optional relational fallback for employee names

	Resave           Resave `json:"resave"`
	IgnoreEncryption bool   `json:"ignore_encryption"`
	Verbose          bool   `json:"verbose,omitempty"`
}

// Load reads the JSON config at path and fills in environment secrets and
// defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv fills secrets and overrides from the environment. A .env file, if
// present, has already been loaded by the CLI entrypoint.
func (c *Config) applyEnv() {
	if v := os.Getenv("EDOC_CLIENT_SECRET"); v != "" {
		c.ClientSecret = v
	}
	if v := os.Getenv("EDOC_DATABASE_URL"); v != "" && c.DatabaseURL == "" {
		c.DatabaseURL = v
	}
	if v, err := strconv.ParseBool(os.Getenv("RESAVE_BEFORE_MERGE")); err == nil {
		c.Resave.Enabled = v
	}
	if v := os.Getenv("RESAVE_COMMAND"); v != "" {
		c.Resave.Command = strings.Fields(v)
	}
	if v, err := strconv.ParseInt(os.Getenv("RESAVE_TIMEOUT"), 10, 64); err == nil && v > 0 {
		c.Resave.TimeoutSeconds = v
	}
	if v, err := strconv.ParseBool(os.Getenv("ALLOW_IGNORE_ENCRYPTED_PDF")); err == nil {
		c.IgnoreEncryption = v
	}
}

func (c *Config) applyDefaults() {
	if c.WorkDir == "" {
		c.WorkDir = "work"
	}
	if c.LogsDir == "" {
		c.LogsDir = "logs"
	}
	if c.SummaryPath == "" {
		c.SummaryPath = filepath.Join(c.LogsDir, "summary.csv")
	}
	if c.Notify.OutputDir == "" {
		c.Notify.OutputDir = filepath.Join(c.WorkDir, "output")
	}
	if c.Graph.TimeoutSeconds == 0 {
		c.Graph.TimeoutSeconds = 30
	}
	if c.Graph.RetryMax == 0 {
		c.Graph.RetryMax = 3
	}
	if c.Resave.TimeoutSeconds == 0 {
		c.Resave.TimeoutSeconds = 60
	}
}

// Validate validates the configuration using the validator.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// Pipeline returns the workspace layout derived from the config.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{WorkDir: c.WorkDir}
}
