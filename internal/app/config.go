package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	SpecPath     string // saved extraction response (JSON)
	DocumentPath string // document to upload for extraction
	BackendURL   string
	InputsPath   string // JSON form state

	LogFormat   string
	LogLevel    string
	HTTPTimeout time.Duration
}

// fileConfig is the YAML shape of an optional config file. Flags override
// whatever the file sets.
type fileConfig struct {
	BackendURL  string `yaml:"backend_url"`
	HTTPTimeout string `yaml:"http_timeout"`
	LogFormat   string `yaml:"log_format"`
	LogLevel    string `yaml:"log_level"`
}

// LoadFile fills unset Config fields from a YAML config file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if c.BackendURL == "" {
		c.BackendURL = fc.BackendURL
	}
	if c.LogFormat == "" {
		c.LogFormat = fc.LogFormat
	}
	if c.LogLevel == "" {
		c.LogLevel = fc.LogLevel
	}
	if c.HTTPTimeout == 0 && fc.HTTPTimeout != "" {
		d, err := time.ParseDuration(fc.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("invalid http_timeout in config file: %w", err)
		}
		c.HTTPTimeout = d
	}
	return nil
}

// NewConfig validates a Config and applies defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.SpecPath == "" && cfg.DocumentPath == "" {
		return nil, errors.New("either a specification file or a document to upload is required")
	}
	if cfg.SpecPath != "" && cfg.DocumentPath != "" {
		return nil, errors.New("a specification file and a document upload are mutually exclusive")
	}
	if cfg.DocumentPath != "" && cfg.BackendURL == "" {
		return nil, errors.New("uploading a document requires the extraction backend URL")
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HTTPTimeout == 0 {
		// The backend runs an LLM pipeline per document.
		cfg.HTTPTimeout = 3 * time.Minute
	}

	return &cfg, nil
}
