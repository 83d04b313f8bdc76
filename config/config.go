// Package config loads the batch configuration: catalog credentials
// and the ordered list of titles to archive.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"wenku8-archiver/utils"
)

//go:embed sample_config.toml
var sampleConfig string

const defaultBaseURL = "https://www.wenku8.net"

type Config struct {
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	Novels   []string `toml:"novels"`

	OutputDir             string `toml:"output_dir"`
	Concurrency           int    `toml:"concurrency"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`

	// BaseURL exists for mirrors and tests; the default is the main
	// site.
	BaseURL string `toml:"base_url"`
}

// Load reads and validates the config file. A missing file is seeded
// with the embedded sample so the user has something to fill in.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if writeErr := os.WriteFile(path, []byte(sampleConfig), 0644); writeErr == nil {
			return nil, fmt.Errorf("config %s did not exist; a sample was written, fill it in and rerun", path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("config: username and password are required")
	}
	if len(c.Novels) == 0 {
		return fmt.Errorf("config: at least one novel title is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	// Duplicate titles are ignored; first occurrence keeps its place
	// in the batch order.
	c.Novels = utils.Unique(c.Novels)
	if c.OutputDir == "" {
		c.OutputDir = "./download"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 30
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
